package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SRLevels/internal/domain/models"
	xhttp "SRLevels/pkg/http"
	"SRLevels/pkg/queue"
)

// AnalyzeJobType is the queue message type for on-demand analysis.
const AnalyzeJobType = "analyze_levels"

// SingleAnalyzer runs one analysis job end to end.
type SingleAnalyzer interface {
	AnalyzeOne(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error)
}

// AnalyzeJob executes queued analysis requests.
type AnalyzeJob struct {
	analyzer SingleAnalyzer
}

var _ queue.Job = (*AnalyzeJob)(nil)

func NewAnalyzeJob(a SingleAnalyzer) *AnalyzeJob { return &AnalyzeJob{analyzer: a} }

func (j *AnalyzeJob) Name() string { return "analyze-levels" }
func (j *AnalyzeJob) Type() string { return AnalyzeJobType }

// Handle decodes a models.AnalyzeRequest, fills its defaults and runs it.
func (j *AnalyzeJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.ParsePayload[models.AnalyzeRequest](payload)
	if err != nil {
		return err
	}
	if err := xhttp.ValidateStruct(ctx, req); err != nil {
		return fmt.Errorf("analyze job: %w", err)
	}
	_, err = j.analyzer.AnalyzeOne(ctx, req.Key())
	return err
}

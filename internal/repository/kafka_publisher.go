package repository

import (
	"context"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	pkgkafka "SRLevels/pkg/kafka"
)

// batchPublisher is satisfied by *pkgkafka.Producer.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaResultPublisher emits analysis results as JSON keyed by symbol.
type KafkaResultPublisher struct {
	producer batchPublisher
	topic    string
}

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.AnalysisResult) error {
	return p.PublishBatch(ctx, []*models.AnalysisResult{r})
}

func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(r.Symbol),
			Value: r,
			Headers: map[string]string{
				"content-type": "application/json",
				"exchange":     r.Exchange,
				"timeframe":    r.Timeframe,
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

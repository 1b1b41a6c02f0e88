package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"SRLevels/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordAnalysis("binance", "1h", "success")
	r.RecordAnalysis("binance", "1h", "success")
	r.RecordAnalysis("binance", "1h", "failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.analyses.WithLabelValues("binance", "1h", "success")))

	r.RecordLevels("binance", "BTCUSDT", "4h", 5, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.levelsFound.WithLabelValues("binance", "BTCUSDT", "4h", "resistance")))

	r.RecordLastPrice("BTCUSDT", 64000)
	assert.Equal(t, 64000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")))

	r.RecordRun(models.RunStats{Total: 10, Success: 8, Failed: 2, Duration: 3 * time.Second})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.runJobs.WithLabelValues("failed")))

	r.RecordError("fetch")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("fetch")))
}

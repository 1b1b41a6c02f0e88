package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SRLevels/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	analyses    *prometheus.CounterVec
	levelsFound *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	runJobs     *prometheus.GaugeVec
	runDuration prometheus.Histogram
}

// New creates a new Prometheus metrics recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg, which lets tests use a
// throwaway registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srlevels_analyses_total",
				Help: "Symbol/timeframe analyses by outcome",
			},
			[]string{"exchange", "timeframe", "status"},
		),
		levelsFound: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srlevels_levels_found",
				Help: "Number of levels returned by the last analysis",
			},
			[]string{"exchange", "symbol", "timeframe", "side"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srlevels_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srlevels_last_price",
				Help: "Last close seen for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "srlevels_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		runJobs: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "srlevels_run_jobs",
				Help: "Job counts of the last coordinator run",
			},
			[]string{"result"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "srlevels_run_duration_seconds",
				Help:    "Wall time of coordinator runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
	}
}

// RecordAnalysis counts one symbol/timeframe analysis.
func (r *Recorder) RecordAnalysis(exchange, timeframe, status string) {
	r.analyses.WithLabelValues(exchange, timeframe, status).Inc()
}

// RecordLevels sets how many levels each side produced.
func (r *Recorder) RecordLevels(exchange, symbol, timeframe string, supports, resistances int) {
	r.levelsFound.WithLabelValues(exchange, symbol, timeframe, "support").Set(float64(supports))
	r.levelsFound.WithLabelValues(exchange, symbol, timeframe, "resistance").Set(float64(resistances))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRun publishes the summary of a coordinator run.
func (r *Recorder) RecordRun(s models.RunStats) {
	r.runJobs.WithLabelValues("total").Set(float64(s.Total))
	r.runJobs.WithLabelValues("success").Set(float64(s.Success))
	r.runJobs.WithLabelValues("failed").Set(float64(s.Failed))
	r.runDuration.Observe(s.Duration.Seconds())
}

package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer

	producerMsgsTotal     *prometheus.CounterVec
	producerBytesTotal    *prometheus.CounterVec
	producerLatencyHist   *prometheus.HistogramVec
	consumerMsgsTotal     *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

// SetMetricsRegisterer routes producer and consumer metrics to reg. It must
// be called before the first Producer or Consumer is created.
func SetMetricsRegisterer(reg prometheus.Registerer) { registerer = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(registerer)
		producerMsgsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "srlevels_kafka_producer_messages_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "result"})
		producerBytesTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "srlevels_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic"})
		producerLatencyHist = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "srlevels_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		consumerMsgsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "srlevels_kafka_consumer_messages_total",
			Help: "Messages handled by outcome",
		}, []string{"topic", "result"})
		consumerQueueDepth = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "srlevels_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandleLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "srlevels_kafka_consumer_handle_seconds",
			Help:    "Handling time per message",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"topic"})
	})
}

func observePublish(topic string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, result).Add(float64(count))
	producerBytesTotal.WithLabelValues(topic).Add(float64(bytes))
	producerLatencyHist.WithLabelValues(topic).Observe(dur.Seconds())
}

// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pronunciation_practice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Request metrics (unary gRPC and HTTP)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Attempt metrics
	AttemptsStarted  prometheus.Counter
	AttemptsScored   prometheus.Counter
	AttemptsDropped  *prometheus.CounterVec
	InterimFallbacks prometheus.Counter
	AccuracyPercent  prometheus.Histogram

	// Recognizer metrics
	FragmentsReceived  *prometheus.CounterVec
	RecognizerRestarts prometheus.Counter
	STTErrors          *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Backpressure metrics
	AttemptLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		StreamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of gRPC practice streams started",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active gRPC practice streams",
		}),
		StreamsSuccess: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of gRPC practice streams in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		// Request metrics
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of unary requests by transport, method and status code",
		}, []string{"transport", "method", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Unary request latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"transport", "method"}),

		// Attempt metrics
		AttemptsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Total number of recording attempts started",
		}),
		AttemptsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_scored_total",
			Help:      "Total number of recording attempts scored",
		}),
		AttemptsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_dropped_total",
			Help:      "Total number of recording attempts dropped",
		}, []string{"reason"}),
		InterimFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_fallbacks_total",
			Help:      "Attempts scored from interim text because nothing was finalized",
		}),
		AccuracyPercent: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accuracy_percent",
			Help:      "Distribution of attempt accuracy scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),

		// Recognizer metrics
		FragmentsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_received_total",
			Help:      "Total number of recognition fragments received",
		}, []string{"kind"}),
		RecognizerRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_restarts_total",
			Help:      "Recognizer sessions restarted after ending mid-attempt",
		}),
		STTErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of recognizer errors",
		}, []string{"provider", "error_type"}),

		// Kafka publish metrics
		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Backpressure metrics
		AttemptLimitExceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_limit_exceeded_total",
			Help:      "Total number of times attempt limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordRequest records a unary request.
func (m *Metrics) RecordRequest(transport, method, code string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(transport, method, code).Inc()
	m.RequestDuration.WithLabelValues(transport, method).Observe(durationSeconds)
}

// RecordAttemptStarted records a new recording attempt.
func (m *Metrics) RecordAttemptStarted() {
	m.AttemptsStarted.Inc()
}

// RecordAttemptScored records a scored attempt and its accuracy.
func (m *Metrics) RecordAttemptScored(accuracy int, usedInterim bool) {
	m.AttemptsScored.Inc()
	m.AccuracyPercent.Observe(float64(accuracy))
	if usedInterim {
		m.InterimFallbacks.Inc()
	}
}

// RecordAttemptDropped records an attempt being dropped.
func (m *Metrics) RecordAttemptDropped(reason string) {
	m.AttemptsDropped.WithLabelValues(reason).Inc()
}

// RecordFragment records a recognition fragment.
func (m *Metrics) RecordFragment(final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	m.FragmentsReceived.WithLabelValues(kind).Inc()
}

// RecordRestart records a recognizer session restart.
func (m *Metrics) RecordRestart() {
	m.RecognizerRestarts.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records a recognizer error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordLimitExceeded records when an attempt limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.AttemptLimitExceeded.WithLabelValues(limitType).Inc()
}

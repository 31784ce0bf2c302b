package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_enqueued_total",
			Help: "Total number of payloads accepted onto the dispatch queue (count)",
		},
		[]string{"type"},
	)

	EventsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_filtered_total",
			Help: "Total number of integration deliveries suppressed before fan-out (count)",
		},
		[]string{"reason"},
	)

	IntegrationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_integration_calls_total",
			Help: "Total number of calls into integrations (count)",
		},
		[]string{"integration", "operation", "status"},
	)

	IntegrationCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_integration_call_duration_ms",
			Help:    "Duration of a single integration call in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"integration"},
	)

	DispatchQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_dispatch_queue_size",
			Help: "Current number of tasks waiting on the dispatch queue (count)",
		},
		[]string{"instance"},
	)

	UploadLogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_upload_log_size",
			Help: "Current number of payloads held in the durable upload log (count)",
		},
		[]string{"instance"},
	)

	UploadBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_upload_batches_total",
			Help: "Total number of batch upload attempts by outcome (count)",
		},
		[]string{"status"},
	)

	UploadPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_upload_payloads_total",
			Help: "Total number of payloads leaving the upload log by outcome (count)",
		},
		[]string{"status"},
	)

	UploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_upload_duration_ms",
			Help:    "Duration of batch uploads in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	PayloadsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_payloads_dropped_total",
			Help: "Total number of payloads dropped without delivery (count)",
		},
		[]string{"reason"},
	)

	SettingsLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_settings_loads_total",
			Help: "Total number of project settings publications by source (count)",
		},
		[]string{"source"},
	)

	LifecycleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_lifecycle_events_total",
			Help: "Total number of automatic lifecycle events emitted (count)",
		},
		[]string{"event"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	KVOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_kv_operations_total",
			Help: "Total number of key-value store operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	KVOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_kv_operation_duration_ms",
			Help:    "Duration of key-value store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"backend", "operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic", "status"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	RelayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of ingestion API requests (count)",
		},
		[]string{"verb", "status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

// register tolerates collectors that are already registered so several pipeline
// instances in one process can each call the Register functions.
func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func RegisterPipelineMetrics() {
	register(
		EventsEnqueuedTotal,
		EventsFilteredTotal,
		IntegrationCallsTotal,
		IntegrationCallDuration,
		DispatchQueueSize,
		UploadLogSize,
		UploadBatchesTotal,
		UploadPayloadsTotal,
		UploadDuration,
		PayloadsDroppedTotal,
		SettingsLoadsTotal,
		LifecycleEventsTotal,
		RetryAttemptsTotal,
		KVOperationsTotal,
		KVOperationDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	register(CircuitBreakerState, CircuitBreakerRequests, CircuitBreakerFailures)
}

func RegisterKafkaMetrics() {
	register(KafkaMessagesWrittenTotal, KafkaMessageSizeBytes, KafkaWriteDuration)
}

func RegisterRelayMetrics() {
	register(RelayRequestsTotal, RateLimitRequestsTotal)
}

func IncEventsEnqueued(eventType string) {
	EventsEnqueuedTotal.WithLabelValues(eventType).Inc()
}

func IncEventsFiltered(reason string) {
	EventsFilteredTotal.WithLabelValues(reason).Inc()
}

func IncIntegrationCall(integration, operation, status string) {
	IntegrationCallsTotal.WithLabelValues(integration, operation, status).Inc()
}

func ObserveIntegrationCallDuration(integration string, duration time.Duration) {
	IntegrationCallDuration.WithLabelValues(integration).Observe(float64(duration.Milliseconds()))
}

func SetDispatchQueueSize(instance string, size int) {
	DispatchQueueSize.WithLabelValues(instance).Set(float64(size))
}

func SetUploadLogSize(instance string, size int) {
	UploadLogSize.WithLabelValues(instance).Set(float64(size))
}

func IncUploadBatch(status string) {
	UploadBatchesTotal.WithLabelValues(status).Inc()
}

func AddUploadPayloads(status string, n int) {
	UploadPayloadsTotal.WithLabelValues(status).Add(float64(n))
}

func ObserveUploadDuration(status string, duration time.Duration) {
	UploadDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func AddPayloadsDropped(reason string, n int) {
	PayloadsDroppedTotal.WithLabelValues(reason).Add(float64(n))
}

func IncSettingsLoad(source string) {
	SettingsLoadsTotal.WithLabelValues(source).Inc()
}

func IncLifecycleEvent(event string) {
	LifecycleEventsTotal.WithLabelValues(event).Inc()
}

func IncRetryAttempt(operation string) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

func IncKVOperation(backend, operation, status string) {
	KVOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func ObserveKVOperationDuration(backend, operation string, duration time.Duration) {
	KVOperationDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesWritten(topic, status string) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic, status).Inc()
}

func ObserveKafkaMessageSize(topic string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(topic).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func IncRelayRequest(verb, status string) {
	RelayRequestsTotal.WithLabelValues(verb, status).Inc()
}

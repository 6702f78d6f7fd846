package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every txnhook collector plus the Go and process collectors.
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

var factory = promauto.With(Registry)

var (
	// HTTP request metrics
	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Ingestion metrics
	webhooksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_transactions_total",
			Help: "Webhook submissions by outcome (accepted, duplicate, invalid, error)",
		},
		[]string{"outcome"},
	)

	// Processing metrics
	processingTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_processing_total",
			Help: "Worker executions by result",
		},
		[]string{"result"},
	)

	processingDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transaction_processing_duration_seconds",
			Help:    "Processing step duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"processor", "result"},
	)

	// Database metrics
	dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// Redis metrics
	redisOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// Queue metrics
	queueSize = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_size",
			Help: "Current queue size",
		},
		[]string{"queue_name", "state"},
	)

	queueRequeuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_requeued_total",
			Help: "Items returned to the queue by lease expiry or stranded-row recovery",
		},
		[]string{"reason"},
	)

	eventsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_events_published_total",
			Help: "Status events handed to the publisher",
		},
		[]string{"status"},
	)

	systemErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "system_errors_total",
			Help: "Total number of system errors",
		},
		[]string{"error_type", "component"},
	)
)

// HTTP Metrics
func RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration)
}

// Ingestion Metrics
func RecordWebhook(outcome string) {
	webhooksTotal.WithLabelValues(outcome).Inc()
}

// Processing Metrics
func RecordProcessing(processor, result string, duration float64) {
	processingTotal.WithLabelValues(result).Inc()
	processingDuration.WithLabelValues(processor, result).Observe(duration)
}

func RecordProcessingResult(result string) {
	processingTotal.WithLabelValues(result).Inc()
}

// Database Metrics
func RecordDBQuery(operation, table string, duration float64) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// Redis Metrics
func RecordRedisOperation(operation, status string) {
	redisOperationsTotal.WithLabelValues(operation, status).Inc()
}

// Queue Metrics
func SetQueueSize(queueName, state string, size float64) {
	queueSize.WithLabelValues(queueName, state).Set(size)
}

func RecordRequeued(reason string, count int) {
	queueRequeuedTotal.WithLabelValues(reason).Add(float64(count))
}

// Event Metrics
func RecordEventPublished(status string) {
	eventsPublishedTotal.WithLabelValues(status).Inc()
}

// Application Metrics
func RecordSystemError(errorType, component string) {
	systemErrorsTotal.WithLabelValues(errorType, component).Inc()
}

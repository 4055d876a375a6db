// Package metrics defines the Prometheus collectors exported by the tracker.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal *prometheus.CounterVec

	// Metadata provider metrics
	MetadataFetchTotal    *prometheus.CounterVec
	MetadataFetchDuration *prometheus.HistogramVec
	MetadataCacheHits     prometheus.Counter

	// Batch operation metrics
	BatchItemsTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics returns the process-wide Metrics, creating and registering it on
// first use.
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		MetadataFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_metadata_fetch_total",
			Help: "Total number of metadata provider requests",
		}, []string{"provider", "status"}),

		MetadataFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_metadata_fetch_duration_seconds",
			Help:    "Metadata provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "status"}),

		MetadataCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_metadata_cache_hits_total",
			Help: "Metadata lookups served from the cache",
		}),

		BatchItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_batch_items_total",
			Help: "Items processed by batch operations",
		}, []string{"operation", "outcome"}),
	}

	m.HTTPRequestTotal = registerOrGet(m.HTTPRequestTotal).(*prometheus.CounterVec)
	m.HTTPRequestDuration = registerOrGet(m.HTTPRequestDuration).(*prometheus.HistogramVec)
	m.StorageOperationTotal = registerOrGet(m.StorageOperationTotal).(*prometheus.CounterVec)
	m.StorageOperationDuration = registerOrGet(m.StorageOperationDuration).(*prometheus.HistogramVec)
	m.EventPublishTotal = registerOrGet(m.EventPublishTotal).(*prometheus.CounterVec)
	m.MetadataFetchTotal = registerOrGet(m.MetadataFetchTotal).(*prometheus.CounterVec)
	m.MetadataFetchDuration = registerOrGet(m.MetadataFetchDuration).(*prometheus.HistogramVec)
	m.MetadataCacheHits = registerOrGet(m.MetadataCacheHits).(prometheus.Counter)
	m.BatchItemsTotal = registerOrGet(m.BatchItemsTotal).(*prometheus.CounterVec)

	globalMetrics = m
	return m
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

// ObserveStorage records one storage operation.
func (m *Metrics) ObserveStorage(op string, start time.Time, err error) {
	status := statusLabel(err)
	m.StorageOperationTotal.WithLabelValues(op, status).Inc()
	m.StorageOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// ObserveFetch records one metadata provider request.
func (m *Metrics) ObserveFetch(provider string, start time.Time, err error) {
	status := statusLabel(err)
	m.MetadataFetchTotal.WithLabelValues(provider, status).Inc()
	m.MetadataFetchDuration.WithLabelValues(provider, status).Observe(time.Since(start).Seconds())
}

// ObservePublish records one event publish attempt.
func (m *Metrics) ObservePublish(eventType string, err error) {
	m.EventPublishTotal.WithLabelValues(eventType, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

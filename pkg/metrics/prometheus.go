// Package metrics provides Prometheus metrics for the keiba collection runs.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// defaultLatencyBuckets are millisecond buckets sized for page and vision calls.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // shared default buckets

// Manager manages all Prometheus metrics for the keiba service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Run Metrics - per unit outcomes of a collection run
	runsTotal      *prometheus.CounterVec
	unitsProcessed *prometheus.CounterVec
	unitsSkipped   *prometheus.CounterVec
	unitLatency    *prometheus.HistogramVec
	pacingDelay    prometheus.Histogram

	// Store Metrics - merge protocol and persistence
	upserts       *prometheus.CounterVec
	fieldsWritten *prometheus.CounterVec
	upsertLatency prometheus.Histogram
	persistErrors prometheus.Counter
	storeRecords  prometheus.Gauge

	// Derivation Metrics - rank fields and OCR review
	ranksOmitted *prometheus.CounterVec
	reviewFlags  *prometheus.CounterVec

	// Queue Metrics - work unit queue
	queueSize     prometheus.Gauge
	queueRejected *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry *prometheus.Registry //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	Init()
}

// Init replaces the global manager with one built from opts on a fresh
// registry. It must be called before any metric is recorded concurrently.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "keiba",
		subsystem:        "collector",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "runs_total",
		Help: "Collection runs by kind and outcome (ok, fatal)",
	}, []string{"kind", "outcome"})

	m.unitsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "units_processed_total",
		Help: "Work units that produced a record",
	}, []string{"kind"})

	m.unitsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "units_skipped_total",
		Help: "Work units skipped after a local failure",
	}, []string{"kind", "reason"})

	m.unitLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "unit_latency_milliseconds",
		Help:    "Time spent on one work unit in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"kind"})

	m.pacingDelay = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "pacing_delay_milliseconds",
		Help:    "Randomised politeness delay applied between units",
		Buckets: []float64{250, 500, 800, 1000, 1250, 1500, 1750, 2000, 3000, 5000},
	})

	m.upserts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "store_upserts_total",
		Help: "Upserts applied to the entity store by writing source",
	}, []string{"source"})

	m.fieldsWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "store_fields_written_total",
		Help: "Record fields overwritten by merges, by writing source",
	}, []string{"source"})

	m.upsertLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "store_upsert_latency_milliseconds",
		Help:    "Merge plus persist latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.persistErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "store_persist_errors_total",
		Help: "Failed writes of a record to durable storage",
	})

	m.storeRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "store_records",
		Help: "Race records held by the entity store",
	})

	m.ranksOmitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "rank_fields_omitted_total",
		Help: "Rank fields omitted because too few horses resolved",
	}, []string{"field"})

	m.reviewFlags = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "ocr_review_flags_total",
		Help: "OCR observations flagged for manual review by reason",
	}, []string{"reason"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "queue_size",
		Help: "Work units waiting in the run queue",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "queue_rejected_total",
		Help: "Work units refused by the queue",
	}, []string{"reason"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "errors_by_component_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "errors_by_type_total",
		Help: "Errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "errors_by_endpoint_total",
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "error_latency_milliseconds",
		Help:    "Latency of operations that ended in an error",
		Buckets: m.histogramBuckets,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "system_memory_usage_bytes",
		Help: "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: "system_goroutine_count",
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "Average GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// Run Metrics Functions.

// RecordRun records the outcome of one collection run.
func RecordRun(kind, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.runsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordUnitProcessed increments the processed units counter.
func RecordUnitProcessed(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitsProcessed.WithLabelValues(kind).Inc()
}

// RecordUnitSkipped increments the skipped units counter.
func RecordUnitSkipped(kind, reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitsSkipped.WithLabelValues(kind, reason).Inc()
}

// RecordUnitLatency records the latency of one unit in milliseconds.
func RecordUnitLatency(kind string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.unitLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordPacingDelay records a pacing delay in milliseconds.
func RecordPacingDelay(delayMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.pacingDelay.Observe(delayMs)
}

// Store Metrics Functions.

// RecordUpsert records one upsert and the number of fields it wrote.
func RecordUpsert(source string, written int) {
	if !globalManager.enabled {
		return
	}
	globalManager.upserts.WithLabelValues(source).Inc()
	globalManager.fieldsWritten.WithLabelValues(source).Add(float64(written))
}

// RecordUpsertLatency records merge plus persist latency in milliseconds.
func RecordUpsertLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.upsertLatency.Observe(latencyMs)
}

// RecordPersistError increments the persist error counter.
func RecordPersistError() {
	if !globalManager.enabled {
		return
	}
	globalManager.persistErrors.Inc()
}

// UpdateStoreRecords sets the number of records in the store.
func UpdateStoreRecords(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeRecords.Set(float64(count))
}

// Derivation Metrics Functions.

// RecordRankOmitted increments the omitted counter for a rank field.
func RecordRankOmitted(field string) {
	if !globalManager.enabled {
		return
	}
	globalManager.ranksOmitted.WithLabelValues(field).Inc()
}

// RecordReviewFlag increments the OCR review counter for reason.
func RecordReviewFlag(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.reviewFlags.WithLabelValues(reason).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueRejected increments the rejected units counter.
func RecordQueueRejected(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RunSystemCollector samples runtime statistics into the system gauges until
// ctx is done.
func RunSystemCollector(ctx context.Context) {
	ticker := time.NewTicker(globalManager.refreshInterval)
	defer ticker.Stop()

	var lastPause uint64
	var lastGC uint32
	for {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		UpdateSystemMemoryUsage(ms.HeapAlloc)
		UpdateSystemGoroutineCount(runtime.NumGoroutine())
		if ms.NumGC > lastGC {
			avg := float64(ms.PauseTotalNs-lastPause) / float64(ms.NumGC-lastGC)
			RecordSystemGCPauseTime(avg / float64(time.Millisecond))
			lastPause, lastGC = ms.PauseTotalNs, ms.NumGC
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SetEnabled turns recording on or off for the global manager.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

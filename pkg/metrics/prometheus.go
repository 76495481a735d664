// Package metrics provides Prometheus metrics for the pitch feed core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Cache
	cacheHits              *prometheus.CounterVec
	cacheMisses            *prometheus.CounterVec
	cacheWrites            *prometheus.CounterVec
	cacheFaults            *prometheus.CounterVec
	cacheInvalidations     *prometheus.CounterVec
	cacheInvalidationsJoin prometheus.Counter
	cacheKeysCleared       prometheus.Counter

	// Pagination
	pageFetches      *prometheus.CounterVec
	pageFetchLatency *prometheus.HistogramVec
	pageItemsLoaded  *prometheus.GaugeVec
	pageWarmStarts   *prometheus.CounterVec
	pagePrefetches   *prometheus.CounterVec

	// Document store
	docstoreReads        *prometheus.CounterVec
	docstoreThrottleWait prometheus.Histogram

	// Scoring and assembly
	scorerRejections  *prometheus.CounterVec
	assembleLatency   *prometheus.HistogramVec
	assembleResultLen *prometheus.GaugeVec

	// User-facing notifications
	notifications *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Change queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Change workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	changeEventsProcessed   *prometheus.CounterVec
	changeEventsDuplicate   prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitch",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauges fed from polled state should be refreshed.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.cacheHits = m.counterVec("cache_hits_total", "Cache lookups served from a fresh entry", "category")
	m.cacheMisses = m.counterVec("cache_misses_total", "Cache lookups that found no fresh entry", "category")
	m.cacheWrites = m.counterVec("cache_writes_total", "Cache entries written", "category")
	m.cacheFaults = m.counterVec("cache_faults_total", "Absorbed cache storage or serialization failures", "category", "op")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Invalidation group clears executed", "group")
	m.cacheInvalidationsJoin = m.counter("cache_invalidations_joined_total", "Invalidation calls that joined an in-flight clear of the same group")
	m.cacheKeysCleared = m.counter("cache_keys_cleared_total", "Cache keys removed by clear operations")

	m.pageFetches = m.counterVec("page_fetches_total", "Page fetch attempts by feed and outcome", "feed", "outcome")
	m.pageFetchLatency = m.histogramVec("page_fetch_latency_milliseconds", "Remote page fetch latency in milliseconds", "feed")
	m.pageItemsLoaded = m.gaugeVec("page_items_loaded", "Items accumulated in the current page state", "feed")
	m.pageWarmStarts = m.counterVec("page_warm_starts_total", "Page states resumed from a cached snapshot", "feed")
	m.pagePrefetches = m.counterVec("page_prefetches_total", "Background prefetches started", "feed")

	m.docstoreReads = m.counterVec("docstore_reads_total", "Document store reads by collection and operation", "collection", "op")
	m.docstoreThrottleWait = m.histogram("docstore_throttle_wait_milliseconds", "Time spent waiting on the document store rate limiter", m.histogramBuckets)

	m.scorerRejections = m.counterVec("scorer_rejections_total", "Scorer calls rejected for invalid input", "op")
	m.assembleLatency = m.histogramVec("assemble_latency_milliseconds", "Feed assembly latency by mode", "mode")
	m.assembleResultLen = m.gaugeVec("assemble_result_size", "Entries produced by the last assembly per mode", "mode")

	m.notifications = m.counterVec("notifications_total", "User-facing notifications by severity", "severity")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("change_queue_size", "Current size of the change event queue")
	m.queueCapacity = m.gauge("change_queue_capacity", "Maximum change event queue capacity")
	m.queueUtilization = m.gauge("change_queue_utilization_ratio", "Change queue utilization ratio (size / capacity)")
	m.queueEnqueueRate = m.counter("change_queue_enqueue_total", "Change events enqueued")
	m.queueDequeueRate = m.counter("change_queue_dequeue_total", "Change events dequeued")
	m.queueEnqueueErrors = m.counter("change_queue_enqueue_errors_total", "Change events rejected by the queue")

	m.workerActiveCount = m.gauge("change_worker_active_count", "Number of change workers")
	m.workerProcessingLatency = m.histogram("change_worker_processing_latency_milliseconds", "Change event processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("change_worker_errors_total", "Change events that failed processing")
	m.changeEventsProcessed = m.counterVec("change_events_processed_total", "Change events applied by collection", "collection")
	m.changeEventsDuplicate = m.counter("change_events_duplicate_total", "Redelivered change events skipped")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Cache metrics.

// RecordCacheHit counts a fresh cache lookup.
func RecordCacheHit(category string) { globalManager.cacheHits.WithLabelValues(category).Inc() }

// RecordCacheMiss counts an absent or expired cache lookup.
func RecordCacheMiss(category string) { globalManager.cacheMisses.WithLabelValues(category).Inc() }

// RecordCacheWrite counts a successful cache write.
func RecordCacheWrite(category string) { globalManager.cacheWrites.WithLabelValues(category).Inc() }

// RecordCacheFault counts an absorbed storage or serialization failure.
func RecordCacheFault(category, op string) {
	globalManager.cacheFaults.WithLabelValues(category, op).Inc()
}

// RecordCacheInvalidation counts an executed group clear.
func RecordCacheInvalidation(group string) {
	globalManager.cacheInvalidations.WithLabelValues(group).Inc()
}

// RecordCacheInvalidationJoined counts a call that shared an in-flight clear.
func RecordCacheInvalidationJoined() { globalManager.cacheInvalidationsJoin.Inc() }

// RecordCacheKeysCleared adds n removed keys.
func RecordCacheKeysCleared(n int) { globalManager.cacheKeysCleared.Add(float64(n)) }

// Pagination metrics.

// RecordPageFetch counts a page fetch attempt; outcome is ok, error, stale or skipped.
func RecordPageFetch(feed, outcome string) {
	globalManager.pageFetches.WithLabelValues(feed, outcome).Inc()
}

// RecordPageFetchLatency records remote fetch latency in milliseconds.
func RecordPageFetchLatency(feed string, latencyMs float64) {
	globalManager.pageFetchLatency.WithLabelValues(feed).Observe(latencyMs)
}

// UpdatePageItemsLoaded sets the accumulated item count for a feed.
func UpdatePageItemsLoaded(feed string, n int) {
	globalManager.pageItemsLoaded.WithLabelValues(feed).Set(float64(n))
}

// RecordPageWarmStart counts a resume from a cached snapshot.
func RecordPageWarmStart(feed string) { globalManager.pageWarmStarts.WithLabelValues(feed).Inc() }

// RecordPagePrefetch counts a background prefetch.
func RecordPagePrefetch(feed string) { globalManager.pagePrefetches.WithLabelValues(feed).Inc() }

// Document store metrics.

// RecordDocstoreRead counts a document store read.
func RecordDocstoreRead(collection, op string) {
	globalManager.docstoreReads.WithLabelValues(collection, op).Inc()
}

// RecordDocstoreThrottleWait records rate limiter wait time in milliseconds.
func RecordDocstoreThrottleWait(waitMs float64) { globalManager.docstoreThrottleWait.Observe(waitMs) }

// Scoring and assembly metrics.

// RecordScorerRejection counts a scorer call rejected for invalid input.
func RecordScorerRejection(op string) { globalManager.scorerRejections.WithLabelValues(op).Inc() }

// RecordAssembleLatency records feed assembly latency in milliseconds.
func RecordAssembleLatency(mode string, latencyMs float64) {
	globalManager.assembleLatency.WithLabelValues(mode).Observe(latencyMs)
}

// UpdateAssembleResultSize sets the size of the last assembled feed for a mode.
func UpdateAssembleResultSize(mode string, n int) {
	globalManager.assembleResultLen.WithLabelValues(mode).Set(float64(n))
}

// RecordNotification counts a user-facing notification.
func RecordNotification(severity string) {
	globalManager.notifications.WithLabelValues(severity).Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Change queue metrics.

// UpdateQueueSize sets the current change queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the change queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the change queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Change worker metrics.

// UpdateWorkerActiveCount sets the number of change workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records change processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the change worker error counter.
func RecordWorkerError() { globalManager.workerErrorRate.Inc() }

// RecordChangeEventProcessed counts an applied change event.
func RecordChangeEventProcessed(collection string) {
	globalManager.changeEventsProcessed.WithLabelValues(collection).Inc()
}

// RecordChangeEventDuplicate counts a redelivered change event.
func RecordChangeEventDuplicate() { globalManager.changeEventsDuplicate.Inc() }

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry holding every collector of this package.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package metrics provides Prometheus metrics for the metric
// aggregation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus instruments for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Recomputation outcomes
	recomputeSuccess   prometheus.Counter
	recomputeFailure   prometheus.Counter
	recomputeScheduled prometheus.Counter
	eventsCoalesced    prometheus.Counter
	recomputeLatency   prometheus.Histogram
	ruleEvalLatency    prometheus.Histogram

	// Store health
	storeRetries prometheus.Counter

	// Task queue
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Coverage cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// Error tracking
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Registry returns the registry the global manager registers into,
// for exposing via promhttp.
func Registry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "metron",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Manager) initialize() {
	factory := promauto.With(m.registry)

	m.recomputeSuccess = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_success_total",
		Help: "Successful recomputations.",
	})
	m.recomputeFailure = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_failure_total",
		Help: "Failed recomputations.",
	})
	m.recomputeScheduled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_scheduled_total",
		Help: "Recomputations dispatched to workers.",
	})
	m.eventsCoalesced = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "events_coalesced_total",
		Help: "Qualifying events absorbed into an already pending or running recomputation.",
	})
	m.recomputeLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "recompute_latency_ms",
		Help:    "End-to-end recomputation latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})
	m.ruleEvalLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "rule_eval_latency_ms",
		Help:    "Per-item rule evaluation latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})
	m.storeRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_retries_total",
		Help: "Retries of transient store failures.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "task_queue_capacity",
		Help: "Capacity of the recompute task queue.",
	})
	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "task_queue_size",
		Help: "Current depth of the recompute task queue.",
	})
	m.queueEnqueueErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "task_queue_enqueue_errors_total",
		Help: "Task enqueues rejected because the queue was full or closed.",
	})
	m.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "coverage_cache_hits_total",
		Help: "Coverage resolutions served from cache.",
	})
	m.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "coverage_cache_misses_total",
		Help: "Coverage resolutions that had to hit the catalog.",
	})
	m.errorsByComponent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_total",
		Help: "Errors by component and kind.",
	}, []string{"component", "kind"})
}

// Package-level helpers against the global manager.

// RecordRecomputeSuccess counts one successful recomputation.
func RecordRecomputeSuccess() { globalManager.recomputeSuccess.Inc() }

// RecordRecomputeFailure counts one failed recomputation.
func RecordRecomputeFailure() { globalManager.recomputeFailure.Inc() }

// RecordRecomputeScheduled counts one dispatched recomputation.
func RecordRecomputeScheduled() { globalManager.recomputeScheduled.Inc() }

// RecordEventCoalesced counts one absorbed qualifying event.
func RecordEventCoalesced() { globalManager.eventsCoalesced.Inc() }

// RecordRecomputeLatency observes an end-to-end recomputation latency.
func RecordRecomputeLatency(latencyMs float64) { globalManager.recomputeLatency.Observe(latencyMs) }

// RecordRuleEvalLatency observes a per-item rule evaluation latency.
func RecordRuleEvalLatency(latencyMs float64) { globalManager.ruleEvalLatency.Observe(latencyMs) }

// RecordStoreRetry counts one retried transient store failure.
func RecordStoreRetry() { globalManager.storeRetries.Inc() }

// UpdateQueueCapacity sets the task queue capacity gauge.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueSize sets the task queue depth gauge.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordCacheHit counts one coverage cache hit.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss counts one coverage cache miss.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordErrorByComponent counts one error by component and kind.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

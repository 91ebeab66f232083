package metrics

import (
	"github.com/loomery/loom/internal/domain"
)

// GaugeFunc reads a point-in-time value from a live component.
type GaugeFunc func() int

// Collector joins the atomic execution counters with gauges sampled from the
// scheduler, registry, and cache at snapshot time.
type Collector struct {
	counters *domain.ExecutionMetrics

	queueSize           GaugeFunc
	activeCount         GaugeFunc
	registeredWorkflows GaugeFunc
	cacheSize           GaugeFunc
}

func NewCollector(counters *domain.ExecutionMetrics) *Collector {
	if counters == nil {
		counters = domain.NewExecutionMetrics()
	}
	return &Collector{counters: counters}
}

func (c *Collector) SetQueueSizeGauge(fn GaugeFunc)   { c.queueSize = fn }
func (c *Collector) SetActiveCountGauge(fn GaugeFunc) { c.activeCount = fn }
func (c *Collector) SetWorkflowsGauge(fn GaugeFunc)   { c.registeredWorkflows = fn }
func (c *Collector) SetCacheSizeGauge(fn GaugeFunc)   { c.cacheSize = fn }

// Counters exposes the shared counter set for components that record into it.
func (c *Collector) Counters() *domain.ExecutionMetrics {
	return c.counters
}

// Snapshot assembles the engine-level aggregate. Counter reads are atomic;
// gauges are sampled best-effort and default to zero when unwired.
func (c *Collector) Snapshot() domain.EngineMetrics {
	counters := c.counters.GetSnapshot()
	return domain.EngineMetrics{
		TotalExecutions:      counters.ExecutionsSubmitted,
		SuccessfulExecutions: counters.ExecutionsCompleted,
		FailedExecutions:     counters.ExecutionsFailed,
		AverageDuration:      c.counters.GetAverageExecutionTime(),
		QueueSize:            sample(c.queueSize),
		ActiveCount:          sample(c.activeCount),
		RegisteredWorkflows:  sample(c.registeredWorkflows),
		CacheSize:            sample(c.cacheSize),
		CacheHits:            counters.CacheHits,
		CacheMisses:          counters.CacheMisses,
		NodesRetried:         counters.NodesRetried,
	}
}

// Reset clears the counters. Gauges reflect live state and are untouched.
func (c *Collector) Reset() {
	c.counters.Reset()
}

func sample(fn GaugeFunc) int {
	if fn == nil {
		return 0
	}
	return fn()
}

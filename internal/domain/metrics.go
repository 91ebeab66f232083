package domain

import (
	"sync/atomic"
	"time"
)

type ExecutionMetrics struct {
	ExecutionsSubmitted int64 `json:"executions_submitted"`
	ExecutionsCompleted int64 `json:"executions_completed"`
	ExecutionsFailed    int64 `json:"executions_failed"`
	ExecutionsCancelled int64 `json:"executions_cancelled"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesSkipped   int64 `json:"nodes_skipped"`
	NodesRetried   int64 `json:"nodes_retried"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	TotalExecutionTimeNs int64 `json:"total_execution_time_ns"`
	NodeExecutionCount   int64 `json:"node_execution_count"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementExecutionsSubmitted() {
	atomic.AddInt64(&m.ExecutionsSubmitted, 1)
}

func (m *ExecutionMetrics) IncrementExecutionsCompleted() {
	atomic.AddInt64(&m.ExecutionsCompleted, 1)
}

func (m *ExecutionMetrics) IncrementExecutionsFailed() {
	atomic.AddInt64(&m.ExecutionsFailed, 1)
}

func (m *ExecutionMetrics) IncrementExecutionsCancelled() {
	atomic.AddInt64(&m.ExecutionsCancelled, 1)
}

func (m *ExecutionMetrics) IncrementNodesExecuted() {
	atomic.AddInt64(&m.NodesExecuted, 1)
}

func (m *ExecutionMetrics) IncrementNodesSucceeded() {
	atomic.AddInt64(&m.NodesSucceeded, 1)
}

func (m *ExecutionMetrics) IncrementNodesFailed() {
	atomic.AddInt64(&m.NodesFailed, 1)
}

func (m *ExecutionMetrics) IncrementNodesSkipped() {
	atomic.AddInt64(&m.NodesSkipped, 1)
}

func (m *ExecutionMetrics) IncrementNodesRetried() {
	atomic.AddInt64(&m.NodesRetried, 1)
}

func (m *ExecutionMetrics) IncrementCacheHits() {
	atomic.AddInt64(&m.CacheHits, 1)
}

func (m *ExecutionMetrics) IncrementCacheMisses() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

func (m *ExecutionMetrics) AddExecutionTime(duration time.Duration) {
	atomic.AddInt64(&m.TotalExecutionTimeNs, int64(duration))
	atomic.AddInt64(&m.NodeExecutionCount, 1)
}

func (m *ExecutionMetrics) GetSnapshot() ExecutionMetrics {
	return ExecutionMetrics{
		ExecutionsSubmitted:  atomic.LoadInt64(&m.ExecutionsSubmitted),
		ExecutionsCompleted:  atomic.LoadInt64(&m.ExecutionsCompleted),
		ExecutionsFailed:     atomic.LoadInt64(&m.ExecutionsFailed),
		ExecutionsCancelled:  atomic.LoadInt64(&m.ExecutionsCancelled),
		NodesExecuted:        atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:       atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:          atomic.LoadInt64(&m.NodesFailed),
		NodesSkipped:         atomic.LoadInt64(&m.NodesSkipped),
		NodesRetried:         atomic.LoadInt64(&m.NodesRetried),
		CacheHits:            atomic.LoadInt64(&m.CacheHits),
		CacheMisses:          atomic.LoadInt64(&m.CacheMisses),
		TotalExecutionTimeNs: atomic.LoadInt64(&m.TotalExecutionTimeNs),
		NodeExecutionCount:   atomic.LoadInt64(&m.NodeExecutionCount),
	}
}

func (m *ExecutionMetrics) GetAverageExecutionTime() time.Duration {
	totalNs := atomic.LoadInt64(&m.TotalExecutionTimeNs)
	count := atomic.LoadInt64(&m.NodeExecutionCount)

	if count == 0 {
		return 0
	}

	return time.Duration(totalNs / count)
}

func (m *ExecutionMetrics) Reset() {
	atomic.StoreInt64(&m.ExecutionsSubmitted, 0)
	atomic.StoreInt64(&m.ExecutionsCompleted, 0)
	atomic.StoreInt64(&m.ExecutionsFailed, 0)
	atomic.StoreInt64(&m.ExecutionsCancelled, 0)
	atomic.StoreInt64(&m.NodesExecuted, 0)
	atomic.StoreInt64(&m.NodesSucceeded, 0)
	atomic.StoreInt64(&m.NodesFailed, 0)
	atomic.StoreInt64(&m.NodesSkipped, 0)
	atomic.StoreInt64(&m.NodesRetried, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.TotalExecutionTimeNs, 0)
	atomic.StoreInt64(&m.NodeExecutionCount, 0)
}

// EngineMetrics is the read-only aggregate exposed by the engine facade.
type EngineMetrics struct {
	TotalExecutions      int64         `json:"total_executions"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	FailedExecutions     int64         `json:"failed_executions"`
	AverageDuration      time.Duration `json:"average_duration"`
	QueueSize            int           `json:"queue_size"`
	ActiveCount          int           `json:"active_count"`
	RegisteredWorkflows  int           `json:"registered_workflows"`
	CacheSize            int           `json:"cache_size"`
	CacheHits            int64         `json:"cache_hits"`
	CacheMisses          int64         `json:"cache_misses"`
	NodesRetried         int64         `json:"nodes_retried"`
}

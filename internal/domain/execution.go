package domain

import (
	"sync"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition can occur.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

type NodePerformance struct {
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

type NodeResult struct {
	NodeID string      `json:"node_id"`
	Value  interface{} `json:"value"`
}

// SkippedMarker is recorded as a node's result when its error strategy
// absorbs a failure with "skip".
func SkippedMarker() map[string]interface{} {
	return map[string]interface{}{"skipped": true}
}

// ExecutionContext carries the mutable state of one execution. It is owned
// exclusively by that execution; subflows receive isolated copies, never
// aliases. The mutex covers concurrent writes from parallel branches of the
// same execution only.
type ExecutionContext struct {
	ExecutionID  string
	WorkflowID   string
	StartedAt    time.Time
	SubflowDepth int

	mu          sync.RWMutex
	variables   map[string]interface{}
	nodeResults map[string]interface{}
	performance map[string]NodePerformance
	order       []string
}

func NewExecutionContext(executionID, workflowID string, variables map[string]interface{}) *ExecutionContext {
	if variables == nil {
		variables = make(map[string]interface{})
	}
	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		StartedAt:   time.Now(),
		variables:   variables,
		nodeResults: make(map[string]interface{}),
		performance: make(map[string]NodePerformance),
	}
}

func (c *ExecutionContext) Variable(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[key]
	return v, ok
}

func (c *ExecutionContext) SetVariable(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Variables returns a shallow snapshot of the variables map.
func (c *ExecutionContext) Variables() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// MergeVariables folds updates into the variables map, overriding on conflict.
func (c *ExecutionContext) MergeVariables(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged, err := MergeMaps(c.variables, updates)
	if err != nil {
		return err
	}
	c.variables = merged
	return nil
}

func (c *ExecutionContext) Result(nodeID string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.nodeResults[nodeID]
	return v, ok
}

func (c *ExecutionContext) HasResult(nodeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodeResults[nodeID]
	return ok
}

func (c *ExecutionContext) SetResult(nodeID string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.nodeResults[nodeID]; !seen {
		c.order = append(c.order, nodeID)
	}
	c.nodeResults[nodeID] = value
}

func (c *ExecutionContext) ResultCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodeResults)
}

// OrderedResults returns every recorded result in recording order.
func (c *ExecutionContext) OrderedResults() []NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeResult, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, NodeResult{NodeID: id, Value: c.nodeResults[id]})
	}
	return out
}

func (c *ExecutionContext) RecordPerformance(nodeID string, perf NodePerformance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.performance[nodeID] = perf
}

func (c *ExecutionContext) Performance() map[string]NodePerformance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]NodePerformance, len(c.performance))
	for k, v := range c.performance {
		out[k] = v
	}
	return out
}

// ResultsSnapshot returns a shallow copy of the node-results map, for guard
// evaluation and status reads.
func (c *ExecutionContext) ResultsSnapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.nodeResults))
	for k, v := range c.nodeResults {
		out[k] = v
	}
	return out
}

// ChildVariables builds the variable map for an isolated subflow context.
// Only the named variables are carried over, by value.
func (c *ExecutionContext) ChildVariables(inherit []string) (map[string]interface{}, error) {
	c.mu.RLock()
	picked := make(map[string]interface{}, len(inherit))
	for _, key := range inherit {
		if v, ok := c.variables[key]; ok {
			picked[key] = v
		}
	}
	c.mu.RUnlock()
	return CloneMap(picked)
}

type WorkflowExecution struct {
	ID                 string                     `json:"id"`
	WorkflowID         string                     `json:"workflow_id"`
	Status             ExecutionStatus            `json:"status"`
	Priority           int                        `json:"priority"`
	StartedAt          time.Time                  `json:"started_at"`
	CompletedAt        *time.Time                 `json:"completed_at,omitempty"`
	Results            []NodeResult               `json:"results,omitempty"`
	ErrorDetails       *string                    `json:"error_details,omitempty"`
	PerformanceMetrics map[string]NodePerformance `json:"performance_metrics,omitempty"`
}

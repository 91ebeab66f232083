package domain

import (
	"time"
)

type NodeType string

const (
	NodeTypeTrigger     NodeType = "trigger"
	NodeTypeAction      NodeType = "action"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeIntegration NodeType = "integration"
	NodeTypeDelay       NodeType = "delay"
	NodeTypeParallel    NodeType = "parallel"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeSubflow     NodeType = "subflow"
)

type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
	ModeBatch      ExecutionMode = "batch"
	ModeStreaming  ExecutionMode = "streaming"
)

type ErrorStrategy string

const (
	ErrorStrategyFail    ErrorStrategy = "fail"
	ErrorStrategySkip    ErrorStrategy = "skip"
	ErrorStrategyDefault ErrorStrategy = "default"
)

type WorkflowNode struct {
	ID            string                 `json:"id" yaml:"id"`
	Type          NodeType               `json:"type" yaml:"type"`
	Name          string                 `json:"name" yaml:"name"`
	Config        map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Metadata      map[string]string      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Cacheable     *bool                  `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
	CacheFields   []string               `json:"cache_fields,omitempty" yaml:"cache_fields,omitempty"`
	ErrorStrategy ErrorStrategy          `json:"error_strategy,omitempty" yaml:"error_strategy,omitempty"`
	DefaultResult interface{}            `json:"default_result,omitempty" yaml:"default_result,omitempty"`
}

// IsCacheable reports the effective cache setting. Integration nodes default
// to cacheable unless explicitly overridden; every other type defaults to off.
func (n *WorkflowNode) IsCacheable() bool {
	if n.Cacheable != nil {
		return *n.Cacheable
	}
	return n.Type == NodeTypeIntegration
}

type WorkflowEdge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Guard  string `json:"guard,omitempty" yaml:"guard,omitempty"`
}

type RetryPolicy struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff       time.Duration `json:"backoff" yaml:"backoff"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
}

// BackoffFor returns the pause before the given retry attempt (1-based).
func (p *RetryPolicy) BackoffFor(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	factor := p.BackoffFactor
	if factor <= 1 {
		return backoff
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * factor)
	}
	return backoff
}

type ScalingHints struct {
	MaxParallelNodes int `json:"max_parallel_nodes,omitempty" yaml:"max_parallel_nodes,omitempty"`
	BatchSize        int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

type WorkflowDefinition struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Version int            `json:"version" yaml:"version"`
	Nodes   []WorkflowNode `json:"nodes" yaml:"nodes"`
	Edges   []WorkflowEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
	Mode    ExecutionMode  `json:"mode" yaml:"mode"`
	Timeout time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry   *RetryPolicy   `json:"retry,omitempty" yaml:"retry,omitempty"`
	Scaling *ScalingHints  `json:"scaling,omitempty" yaml:"scaling,omitempty"`
}

// Node returns the node with the given id, or nil.
func (d *WorkflowDefinition) Node(id string) *WorkflowNode {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

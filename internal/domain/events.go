package domain

import (
	"time"
)

type ExecutionStartedEvent struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Priority    int       `json:"priority"`
	StartedAt   time.Time `json:"started_at"`
}

type NodeCompletedEvent struct {
	ExecutionID string        `json:"execution_id"`
	WorkflowID  string        `json:"workflow_id"`
	NodeID      string        `json:"node_id"`
	NodeType    NodeType      `json:"node_type"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

type ExecutionCompletedEvent struct {
	ExecutionID   string        `json:"execution_id"`
	WorkflowID    string        `json:"workflow_id"`
	CompletedAt   time.Time     `json:"completed_at"`
	Duration      time.Duration `json:"duration"`
	ExecutedNodes []string      `json:"executed_nodes"`
}

type ExecutionFailedEvent struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	FailedAt    time.Time `json:"failed_at"`
	Error       string    `json:"error"`
	FailedNode  string    `json:"failed_node,omitempty"`
}

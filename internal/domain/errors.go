package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrQueueClosed    = errors.New("admission queue closed")
	ErrStopped        = errors.New("engine stopped")
)

// ValidationError rejects a workflow definition at registration time.
// Nothing is stored when one is returned.
type ValidationError struct {
	WorkflowID string
	Field      string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("workflow %q invalid: %s", e.WorkflowID, e.Message)
	}
	return fmt.Sprintf("workflow %q invalid: %s: %s", e.WorkflowID, e.Field, e.Message)
}

func NewValidationError(workflowID, field, message string) *ValidationError {
	return &ValidationError{WorkflowID: workflowID, Field: field, Message: message}
}

// CycleError reports a dependency cycle, either at registration or when a
// sequential round makes no progress at runtime.
type CycleError struct {
	WorkflowID string
	Path       []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("workflow %q contains a dependency cycle", e.WorkflowID)
	}
	return fmt.Sprintf("workflow %q contains a dependency cycle: %s", e.WorkflowID, strings.Join(e.Path, " -> "))
}

// UnknownNodeTypeError is fatal to the enclosing run and is never retried.
type UnknownNodeTypeError struct {
	NodeID string
	Type   NodeType
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type %q for node %q", e.Type, e.NodeID)
}

// NodeExecutionError wraps a handler failure, including recovered panics.
type NodeExecutionError struct {
	NodeID     string
	Err        error
	StackTrace string
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q execution failed: %v", e.NodeID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

type RetryExhaustedError struct {
	NodeID   string
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("node %q failed after %d attempts: %v", e.NodeID, e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

type SubflowNotFoundError struct {
	WorkflowID string
}

func (e *SubflowNotFoundError) Error() string {
	return "Subflow not found: " + e.WorkflowID
}

type SubflowDepthError struct {
	WorkflowID string
	Depth      int
	MaxDepth   int
}

func (e *SubflowDepthError) Error() string {
	return fmt.Sprintf("subflow %q rejected at depth %d: max depth %d", e.WorkflowID, e.Depth, e.MaxDepth)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

func IsUnknownNodeType(err error) bool {
	var ue *UnknownNodeTypeError
	return errors.As(err, &ue)
}

func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

func IsSubflowNotFound(err error) bool {
	var se *SubflowNotFoundError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

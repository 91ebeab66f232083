// Package loom provides a typed workflow execution engine for Go applications.
//
// Loom executes workflows declared as directed acyclic graphs of typed nodes.
// It provides:
//   - Eight built-in node types (trigger, action, condition, integration,
//     delay, parallel, loop, subflow) plus custom handler registration
//   - Four execution strategies: sequential, parallel, batch, and streaming
//   - Priority-based admission with a bounded number of concurrent executions
//   - Result caching for integration nodes, retry policies, and per-node
//     error strategies
//   - Optional badger-backed persistence of definitions and execution records
//
// Basic usage:
//
//	engine, _ := loom.New(loom.DefaultConfig(), logger)
//	engine.Start(context.Background())
//	defer engine.Stop()
//
//	engine.Register(ctx, loom.WorkflowDefinition{
//	    ID:   "greet",
//	    Name: "Greet",
//	    Mode: loom.ModeSequential,
//	    Nodes: []loom.WorkflowNode{
//	        {ID: "start", Type: loom.NodeTypeTrigger},
//	    },
//	})
//
//	executionID, _ := engine.Execute(ctx, "greet", map[string]interface{}{"who": "world"}, 1)
//	status, _ := engine.GetStatus(executionID)
package loom

import (
	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/ports"
)

// WorkflowDefinition declares a workflow: its nodes, edges, execution mode,
// and optional timeout, retry, and scaling settings.
type WorkflowDefinition = domain.WorkflowDefinition

// WorkflowNode is one typed step in a workflow graph.
type WorkflowNode = domain.WorkflowNode

// WorkflowEdge is a directed dependency between two nodes, optionally guarded
// by a condition expression.
type WorkflowEdge = domain.WorkflowEdge

// WorkflowExecution is the engine's record of one execution, from submission
// through its terminal status.
type WorkflowExecution = domain.WorkflowExecution

// NodeResult pairs a node id with the value it produced, in execution order.
type NodeResult = domain.NodeResult

// NodePerformance captures one node's timing and outcome.
type NodePerformance = domain.NodePerformance

// ExecutionContext carries the mutable variable and result state of a running
// execution; custom handlers receive it.
type ExecutionContext = domain.ExecutionContext

// RetryPolicy configures repeated node attempts with exponential backoff.
type RetryPolicy = domain.RetryPolicy

// ScalingHints bound parallelism and batch sizes for a single workflow.
type ScalingHints = domain.ScalingHints

// EngineConfig bounds engine concurrency and sets engine-wide defaults.
type EngineConfig = domain.EngineConfig

// EngineMetrics is the aggregate snapshot returned by Engine.Metrics.
type EngineMetrics = domain.EngineMetrics

// NodeHandler executes one node type. Implement it to add custom node types
// through Engine.RegisterHandler.
type NodeHandler = ports.NodeHandler

// NodeType discriminates workflow node behavior.
type NodeType = domain.NodeType

// ExecutionMode selects the strategy a workflow runs under.
type ExecutionMode = domain.ExecutionMode

// ErrorStrategy controls how a node failure affects its execution.
type ErrorStrategy = domain.ErrorStrategy

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus = domain.ExecutionStatus

const (
	NodeTypeTrigger     = domain.NodeTypeTrigger
	NodeTypeAction      = domain.NodeTypeAction
	NodeTypeCondition   = domain.NodeTypeCondition
	NodeTypeIntegration = domain.NodeTypeIntegration
	NodeTypeDelay       = domain.NodeTypeDelay
	NodeTypeParallel    = domain.NodeTypeParallel
	NodeTypeLoop        = domain.NodeTypeLoop
	NodeTypeSubflow     = domain.NodeTypeSubflow

	ModeSequential = domain.ModeSequential
	ModeParallel   = domain.ModeParallel
	ModeBatch      = domain.ModeBatch
	ModeStreaming  = domain.ModeStreaming

	ErrorStrategyFail    = domain.ErrorStrategyFail
	ErrorStrategySkip    = domain.ErrorStrategySkip
	ErrorStrategyDefault = domain.ErrorStrategyDefault

	ExecutionStatusPending   = domain.ExecutionStatusPending
	ExecutionStatusRunning   = domain.ExecutionStatusRunning
	ExecutionStatusCompleted = domain.ExecutionStatusCompleted
	ExecutionStatusFailed    = domain.ExecutionStatusFailed
	ExecutionStatusCancelled = domain.ExecutionStatusCancelled
)

// Lifecycle event payloads delivered through Engine.Events.
type (
	ExecutionStartedEvent   = domain.ExecutionStartedEvent
	NodeCompletedEvent      = domain.NodeCompletedEvent
	ExecutionCompletedEvent = domain.ExecutionCompletedEvent
	ExecutionFailedEvent    = domain.ExecutionFailedEvent
)

// Sentinel errors and classification helpers.
var (
	ErrNotFound       = domain.ErrNotFound
	ErrAlreadyStarted = domain.ErrAlreadyStarted
	ErrNotStarted     = domain.ErrNotStarted
)

var (
	IsValidation      = domain.IsValidation
	IsCycle           = domain.IsCycle
	IsNotFound        = domain.IsNotFound
	IsRetryExhausted  = domain.IsRetryExhausted
	IsSubflowNotFound = domain.IsSubflowNotFound
)

// DefaultConfig returns the engine defaults: four concurrent executions, a
// five minute execution timeout, and retries disabled.
func DefaultConfig() EngineConfig {
	return domain.DefaultEngineConfig()
}

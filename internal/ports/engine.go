package ports

import (
	"context"

	"github.com/loomery/loom/internal/domain"
)

// NodeHandler executes one node type. Handlers read the node's config and the
// execution context and return the node's result value.
type NodeHandler interface {
	Type() domain.NodeType
	Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error)
}

// SubflowLauncher lets a subflow node submit a nested execution through the
// same admission-controlled scheduler that owns its parent.
type SubflowLauncher interface {
	SubmitSubflow(ctx context.Context, workflowID string, variables map[string]interface{}, priority, depth int) (string, error)
	ExecutionStatus(executionID string) (*domain.WorkflowExecution, bool)
}

// DefinitionSource resolves stored workflow definitions for strategies and
// the scheduler.
type DefinitionSource interface {
	Get(workflowID string) (*domain.WorkflowDefinition, error)
}

// EventSink receives execution lifecycle transitions so an external
// notification layer can observe them.
type EventSink interface {
	PublishExecutionStarted(event domain.ExecutionStartedEvent)
	PublishNodeCompleted(event domain.NodeCompletedEvent)
	PublishExecutionCompleted(event domain.ExecutionCompletedEvent)
	PublishExecutionFailed(event domain.ExecutionFailedEvent)
}

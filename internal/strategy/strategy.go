package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/executor"
	"github.com/loomery/loom/internal/graph"
)

// Strategy orders node execution for one whole run. Every strategy honors
// the same dependency contract: a node runs only after all of its
// dependencies have a recorded result.
type Strategy interface {
	Mode() domain.ExecutionMode
	Run(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext) error
}

// ForMode returns the strategy implementing the definition's execution mode.
func ForMode(mode domain.ExecutionMode, exec *executor.Executor, cfg domain.EngineConfig, logger *slog.Logger) (Strategy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := base{exec: exec, cfg: cfg, logger: logger.With("component", "execution-strategy", "mode", string(mode))}

	switch mode {
	case domain.ModeSequential:
		return &Sequential{base: base}, nil
	case domain.ModeParallel:
		return &Parallel{base: base}, nil
	case domain.ModeBatch:
		return &Batch{base: base}, nil
	case domain.ModeStreaming:
		return &Streaming{base: base}, nil
	default:
		return nil, fmt.Errorf("unsupported execution mode %q", mode)
	}
}

type base struct {
	exec   *executor.Executor
	cfg    domain.EngineConfig
	logger *slog.Logger
}

// executeNode runs one node through the executor after consulting the guard
// conditions on its incoming edges. A false guard records the skip marker so
// dependents can still resolve.
func (b *base) executeNode(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext, nodeID string) error {
	pass, err := guardsPass(g, ec, nodeID)
	if err != nil {
		return &domain.NodeExecutionError{NodeID: nodeID, Err: err}
	}
	if !pass {
		b.logger.Debug("guard condition false, skipping node",
			"execution_id", ec.ExecutionID,
			"node_id", nodeID)
		ec.SetResult(nodeID, domain.SkippedMarker())
		ec.RecordPerformance(nodeID, domain.NodePerformance{Success: true})
		return nil
	}

	return b.exec.Execute(ctx, def, g.Node(nodeID), ec)
}

func guardsPass(g *graph.Graph, ec *domain.ExecutionContext, nodeID string) (bool, error) {
	for _, dep := range g.Dependencies(nodeID) {
		guard, ok := g.Guard(dep, nodeID)
		if !ok {
			continue
		}
		pass, err := executor.EvaluateExpression(guard, ec)
		if err != nil {
			return false, fmt.Errorf("guard on edge %s->%s: %w", dep, nodeID, err)
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

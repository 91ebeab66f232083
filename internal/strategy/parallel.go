package strategy

import (
	"context"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/graph"
)

// Parallel launches every node the moment its dependencies are satisfied,
// with no round batching. The first unrecovered node error cancels the
// remaining launches but already-running nodes are drained before returning.
type Parallel struct {
	base
}

func (p *Parallel) Mode() domain.ExecutionMode {
	return domain.ModeParallel
}

type completion struct {
	nodeID string
	err    error
}

func (p *Parallel) Run(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := 0
	if def.Scaling != nil {
		limit = def.Scaling.MaxParallelNodes
	}

	started := make(map[string]bool, g.Size())
	completions := make(chan completion, g.Size())
	inFlight := 0
	var firstErr error

	for {
		if firstErr == nil {
			for _, nodeID := range g.ReadySet(ec.HasResult) {
				if started[nodeID] {
					continue
				}
				if limit > 0 && inFlight >= limit {
					break
				}
				started[nodeID] = true
				inFlight++
				go func(id string) {
					completions <- completion{nodeID: id, err: p.executeNode(runCtx, def, g, ec, id)}
				}(nodeID)
			}
		}

		if inFlight == 0 {
			if firstErr != nil {
				return firstErr
			}
			if remaining := g.Remaining(ec.HasResult); remaining > 0 {
				p.logger.Error("no progress with nodes remaining, aborting",
					"execution_id", ec.ExecutionID,
					"remaining", remaining)
				return &domain.CycleError{WorkflowID: def.ID}
			}
			return nil
		}

		done := <-completions
		inFlight--
		if done.err != nil && firstErr == nil {
			firstErr = done.err
			cancel()
		}
	}
}

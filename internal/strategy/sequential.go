package strategy

import (
	"context"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/graph"
)

// Sequential executes round by round: each round runs every member of the
// ready set in declaration order, then recomputes. An empty ready set with
// unexecuted nodes remaining means a cycle slipped past validation and the
// run aborts.
type Sequential struct {
	base
}

func (s *Sequential) Mode() domain.ExecutionMode {
	return domain.ModeSequential
}

func (s *Sequential) Run(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready := g.ReadySet(ec.HasResult)
		if len(ready) == 0 {
			if remaining := g.Remaining(ec.HasResult); remaining > 0 {
				s.logger.Error("no progress with nodes remaining, aborting",
					"execution_id", ec.ExecutionID,
					"remaining", remaining)
				return &domain.CycleError{WorkflowID: def.ID}
			}
			return nil
		}

		for _, nodeID := range ready {
			if err := s.executeNode(ctx, def, g, ec, nodeID); err != nil {
				return err
			}
		}
	}
}

package strategy

import (
	"context"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/graph"
)

// Streaming processes one node at a time so context-altering input recorded
// between nodes is visible to every later guard and condition. Beyond the
// shared dependency contract it adds no further invariants.
type Streaming struct {
	base
}

func (s *Streaming) Mode() domain.ExecutionMode {
	return domain.ModeStreaming
}

func (s *Streaming) Run(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext) error {
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

		if err := s.executeNode(ctx, def, g, ec, ready[0]); err != nil {
			return err
		}
	}
}

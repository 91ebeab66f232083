package strategy

import (
	"context"
	"sync"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/graph"
)

// Batch processes the ready set in fixed-size groups: members of a group run
// concurrently, groups run in order, and the next ready set is computed only
// after the current one is fully drained.
type Batch struct {
	base
}

func (b *Batch) Mode() domain.ExecutionMode {
	return domain.ModeBatch
}

func (b *Batch) Run(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext) error {
	batchSize := b.cfg.BatchSize
	if def.Scaling != nil && def.Scaling.BatchSize > 0 {
		batchSize = def.Scaling.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready := g.ReadySet(ec.HasResult)
		if len(ready) == 0 {
			if remaining := g.Remaining(ec.HasResult); remaining > 0 {
				b.logger.Error("no progress with nodes remaining, aborting",
					"execution_id", ec.ExecutionID,
					"remaining", remaining)
				return &domain.CycleError{WorkflowID: def.ID}
			}
			return nil
		}

		for start := 0; start < len(ready); start += batchSize {
			end := start + batchSize
			if end > len(ready) {
				end = len(ready)
			}
			if err := b.runGroup(ctx, def, g, ec, ready[start:end]); err != nil {
				return err
			}
		}
	}
}

func (b *Batch) runGroup(ctx context.Context, def *domain.WorkflowDefinition, g *graph.Graph, ec *domain.ExecutionContext, group []string) error {
	errs := make([]error, len(group))
	var wg sync.WaitGroup

	for i, nodeID := range group {
		wg.Add(1)
		go func(index int, id string) {
			defer wg.Done()
			errs[index] = b.executeNode(ctx, def, g, ec, id)
		}(i, nodeID)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

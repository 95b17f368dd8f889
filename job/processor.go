package job

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Processor runs a batch of job Configs against a Scheduler.
type Processor interface {
	Process(ctx context.Context, cfgs []Config) ([]*Record, error)
}

// SequentialProcessor runs one Config at a time, stopping at the first
// error (spec §7: "a simple processor exists for small pipelines and
// for deterministic test runs").
type SequentialProcessor struct {
	Scheduler *Scheduler
}

// Process implements Processor.
func (p *SequentialProcessor) Process(ctx context.Context, cfgs []Config) ([]*Record, error) {
	results := make([]*Record, 0, len(cfgs))
	for _, cfg := range cfgs {
		rec, err := p.Scheduler.Execute(ctx, cfg)
		if err != nil {
			return results, err
		}
		results = append(results, rec)
	}
	return results, nil
}

// PoolProcessor runs up to Concurrency Configs at once using an
// errgroup-bounded worker pool (spec §7's "a worker pool bounds
// concurrent module execution"). Grounded on golang.org/x/sync/errgroup
// for coordinating bounded concurrent work.
type PoolProcessor struct {
	Scheduler   *Scheduler
	Concurrency int
}

// Process implements Processor. Results are returned in the same order
// as cfgs regardless of completion order. If any job fails, Process
// returns the first error observed. The failure cancels the errgroup
// context, but every remaining Config is still launched with that
// context (Execute does not check it) and in-flight work is never
// interrupted, consistent with the scheduler's cooperative-only
// cancellation.
func (p *PoolProcessor) Process(ctx context.Context, cfgs []Config) ([]*Record, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Record, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			rec, err := p.Scheduler.Execute(ctx, cfg)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

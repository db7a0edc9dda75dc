package evo

import (
	"context"
	"sync"

	"evotree/internal/tree"
)

// evaluate scores a batch through the bounded worker pool. Each individual is
// passed to the fitness function exactly once, results come back aligned to
// input order, and all bookkeeping (fitness assignment, win/game accumulation,
// replay absorption, eval accounting) happens single-threaded afterwards.
// countEvals is false for elite re-scores: only the initial population and the
// offspring batches advance numEvals, so each generation costs exactly PopSize
// toward the evaluation bound.
func (e *Engine) evaluate(ctx context.Context, batch []*tree.Multitree, countEvals bool) error {
	if len(batch) == 0 {
		return nil
	}

	type job struct {
		idx int
		ind *tree.Multitree
	}
	type outcome struct {
		idx int
		res Result
		err error
	}

	jobs := make(chan job)
	outcomes := make(chan outcome, len(batch))

	workerCount := e.cfg.Parallelism
	if workerCount > len(batch) {
		workerCount = len(batch)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes <- outcome{idx: j.idx, err: err}
					continue
				}
				res, err := e.cfg.Fitness(ctx, j.ind)
				outcomes <- outcome{idx: j.idx, res: res, err: err}
			}
		}()
	}

	for i := range batch {
		jobs <- job{idx: i, ind: batch[i]}
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	ordered := make([]Result, len(batch))
	var firstErr error
	for out := range outcomes {
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		ordered[out.idx] = out.res
	}
	if firstErr != nil {
		return firstErr
	}

	for i, ind := range batch {
		res := ordered[i]
		ind.Fitness = res.Fitness
		ind.Evaluated = true
		ind.Wins += res.Wins
		ind.Games += res.Games
		e.memory.Add(res.Transitions...)
	}
	if countEvals {
		e.numEvals += len(batch)
	}
	return nil
}

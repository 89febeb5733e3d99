package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mrsim/logger"
)

// Run executes one word-count style job: a coordinator plus a pool of
// cfg.NumWorkers workers sharing fresh queues and barriers. A nil logger
// logs to stderr at cfg.LogLevel.
func Run(ctx context.Context, cfg Config, storage Storage, mapFunc MapFunc, reduceFunc ReduceFunc, lg *logger.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lg == nil {
		lg = logger.New(cfg.LogLevel)
	}
	if cfg.ResetOnStart {
		if err := storage.Reset(); err != nil {
			return nil, fmt.Errorf("cannot reset storage: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	phases := NewPhases()
	coordinator := NewCoordinator(cfg, phases, storage, lg)

	var wg sync.WaitGroup
	workerErrs := make([]error, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		worker := NewWorker(i+1, cfg, phases, storage, mapFunc, reduceFunc, coordinator, lg)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			workerErrs[i] = worker.Run(ctx)
		}(i)
	}

	report, err := coordinator.Run(ctx)
	if err != nil {
		// release workers still parked on a start gate.
		cancel()
	}
	wg.Wait()
	if err != nil {
		return report, err
	}

	var errs []error
	for i, werr := range workerErrs {
		if werr != nil && !errors.Is(werr, context.Canceled) {
			errs = append(errs, fmt.Errorf("worker %v: %w", i+1, werr))
		}
	}
	return report, errors.Join(errs...)
}

// Package pool dispatches unit jobs across a bounded set of parallel
// workers. Jobs are fully isolated from one another: a failing or panicking
// job never cancels the pool, and the pool always drains every submitted job
// before returning.
package pool

import (
	"context"
	"sync"

	"github.com/vk/floodgridgo/internal/catalog"
	"github.com/vk/floodgridgo/internal/ctxlog"
)

// JobFunc processes one unit job to a terminal outcome.
type JobFunc func(ctx context.Context, job catalog.UnitJob)

// Execute fans the jobs out across the given number of workers and blocks
// until all of them have completed. A bound of one degenerates to sequential
// execution with identical per-job results.
func Execute(ctx context.Context, jobs []catalog.UnitJob, workers int, run JobFunc) {
	if workers < 1 {
		workers = 1
	}

	jobChan := make(chan catalog.UnitJob, len(jobs))
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker(ctx, jobChan, &wg, i, run)
	}
	wg.Wait()
}

// worker is the processing loop for a single concurrent worker.
func worker(ctx context.Context, jobChan chan catalog.UnitJob, wg *sync.WaitGroup, workerID int, run JobFunc) {
	defer wg.Done()

	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for job := range jobChan {
		runIsolated(ctx, job, run, workerID)
	}
	logger.Debug("Worker finished.")
}

// runIsolated shields the pool from a panicking job so the remaining jobs
// still drain.
func runIsolated(ctx context.Context, job catalog.UnitJob, run JobFunc, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID, "unit", job.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job processing panicked.", "panic", r)
		}
	}()

	logger.Debug("Worker picked up job.")
	run(ctx, job)
}

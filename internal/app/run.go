package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/vk/floodgridgo/internal/barrier"
	"github.com/vk/floodgridgo/internal/catalog"
	"github.com/vk/floodgridgo/internal/ctxlog"
	"github.com/vk/floodgridgo/internal/ledger"
	"github.com/vk/floodgridgo/internal/pipeline"
	"github.com/vk/floodgridgo/internal/pool"
	"github.com/vk/floodgridgo/internal/toolrunner"
)

// runDirLayout is the timestamp format of the per-run directory name.
const runDirLayout = "2006_01_02_15_04_05"

// Run executes the whole batch: it creates the timestamped run directory,
// opens the ledger, fans the unit jobs out across the worker pool, executes
// any parent merges the barrier triggers, and writes the run sidecar. The
// run always drains the pool, even if every unit fails.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	start := time.Now()

	runDir := filepath.Join(a.params.OutputDir, "runs", start.Format(runDirLayout))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	a.logger.Info("Run directory created.", "path", runDir)

	store, err := a.openLedger(runDir)
	if err != nil {
		return err
	}
	defer store.Close()

	workers := a.workers()
	toolkit := toolrunner.NewToolkit(a.runner)
	inspector := toolrunner.NewGDALInspector(a.runner)
	pipe := pipeline.New(a.params, toolkit, inspector, store, runDir, parseLevel(a.config.LogLevel))
	bar := barrier.New(a.params)
	merger := barrier.NewMerger(bar, toolkit, store)

	a.logger.Info("Executing unit jobs...", "units", len(a.jobs), "workers", workers)
	pool.Execute(ctx, a.jobs, workers, func(ctx context.Context, job catalog.UnitJob) {
		pipe.Run(ctx, job)
		if job.ParentID == "" {
			return
		}

		req, err := bar.OnChildComplete(job.ID, job.ParentID)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to evaluate aggregation barrier.", "unit", job.ID, "parent", job.ParentID, "error", err)
			return
		}
		if req != nil {
			merger.ExecuteMerge(ctx, req)
		}
	})

	if err := a.writeSidecar(runDir, start, time.Now(), workers); err != nil {
		a.logger.Warn("Failed to write run sidecar.", "error", err)
	}

	a.logger.Info("Completed.", "duration", time.Since(start).String())
	return nil
}

// openLedger opens the configured ledger backend inside the run directory.
func (a *App) openLedger(runDir string) (ledger.Ledger, error) {
	switch a.params.LedgerBackend {
	case "sqlite":
		store, err := ledger.OpenSQLite(filepath.Join(runDir, "units.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		return store, nil
	default:
		store, err := ledger.OpenCSV(filepath.Join(runDir, "units.csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		return store, nil
	}
}

// workers resolves the effective concurrency bound: CLI override first, then
// the run configuration, then one worker per CPU.
func (a *App) workers() int {
	if a.config.Workers > 0 {
		return a.config.Workers
	}
	if a.params.Concurrency > 0 {
		return a.params.Concurrency
	}
	return runtime.NumCPU()
}

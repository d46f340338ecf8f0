package barrier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/floodgridgo/internal/ctxlog"
	"github.com/vk/floodgridgo/internal/errclass"
	"github.com/vk/floodgridgo/internal/ledger"
	"github.com/vk/floodgridgo/internal/pipeline"
	"github.com/vk/floodgridgo/internal/toolrunner"
)

const (
	initialRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// Merger executes triggered parent merges and records their outcome. It is
// the merge-only variant of the unit pipeline.
type Merger struct {
	barrier *Barrier
	toolkit *toolrunner.Toolkit
	ledger  ledger.Ledger
}

// NewMerger wires a Merger from its collaborators.
func NewMerger(b *Barrier, toolkit *toolrunner.Toolkit, store ledger.Ledger) *Merger {
	return &Merger{barrier: b, toolkit: toolkit, ledger: store}
}

// ExecuteMerge mosaics the request's sibling rasters into parent-level
// artifacts, one per class. Like the unit pipeline, it always appends
// exactly one terminal record for the parent before returning.
func (m *Merger) ExecuteMerge(ctx context.Context, req *MergeRequest) (record *ledger.Record) {
	logger := ctxlog.FromContext(ctx).With("parent", req.ParentID)
	record = ledger.NewRecord(req.ParentID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Parent merge panicked.", "panic", r)
			record.Fail(errclass.KindUnknown, fmt.Sprintf("%v", r))
		}
		if err := m.ledger.Append(record); err != nil {
			logger.Error("Failed to persist parent merge record.", "error", err)
		}
	}()

	logger.Info("All children complete, merging parent unit.", "children", len(req.Children))
	if err := m.merge(ctx, logger, req); err != nil {
		kind := errclass.Classify(err)
		logger.Error("Parent merge failed.", "kind", string(kind), "error", err)
		record.Fail(kind, err.Error())
		return record
	}

	record.Succeed(fmt.Sprintf("merged %d children", len(req.Children)))
	logger.Info("Parent merge completed.", "duration", time.Since(record.StartTime).String())
	return record
}

// merge mosaics each class's sibling rasters into the parent artifact for
// that class. Children that never produced a given class are skipped.
func (m *Merger) merge(ctx context.Context, logger *slog.Logger, req *MergeRequest) error {
	params := m.barrier.params
	for _, class := range params.Classes {
		var inputs []string
		for _, child := range req.Children {
			path := pipeline.ArtifactPath(params.OutputDir, child, class.Label)
			if _, err := os.Stat(path); err == nil {
				inputs = append(inputs, path)
			}
		}
		if len(inputs) == 0 {
			continue
		}

		output := pipeline.ArtifactPath(params.OutputDir, req.ParentID, class.Label)
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("failed to create parent artifact directory: %w", err)
		}

		logger.Info("Mosaicking class rasters.", "class", class.Label, "inputs", len(inputs))
		if err := m.mosaicWithRetry(ctx, logger, inputs, output); err != nil {
			return err
		}
	}
	return nil
}

// mosaicWithRetry retries the mosaic on transient I/O contention with
// exponential backoff, up to the configured attempt cap. Any other failure
// is returned immediately.
func (m *Merger) mosaicWithRetry(ctx context.Context, logger *slog.Logger, inputs []string, output string) error {
	delay := initialRetryDelay
	maxAttempts := m.barrier.params.MergeMaxAttempts

	for attempt := 1; ; attempt++ {
		err := m.attemptMosaic(ctx, inputs, output)
		if err == nil {
			return nil
		}
		if !errclass.Retryable(errclass.Classify(err)) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("mosaic gave up after %d attempts: %w", attempt, err)
		}

		logger.Warn("Transient I/O during mosaic, retrying.", "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// attemptMosaic preflights every input for readability before invoking the
// mosaic tool. A sibling raster still being flushed by another process shows
// up here as a transient failure rather than a tool error.
func (m *Merger) attemptMosaic(ctx context.Context, inputs []string, output string) error {
	for _, input := range inputs {
		file, err := os.Open(input)
		if err != nil {
			return &errclass.TransientIOError{Path: input, Err: err}
		}
		file.Close()
	}
	return m.toolkit.Mosaic(ctx, inputs, output)
}

// Package pipeline runs the ordered per-unit processing steps: idempotency
// check, source preconditions, attribute presence, reprojection, per-class
// rasterization, and the cumulative class merge. Every terminal outcome is
// persisted to the ledger on every exit path, including panics, so each
// submitted job yields exactly one record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/floodgridgo/internal/catalog"
	"github.com/vk/floodgridgo/internal/ctxlog"
	"github.com/vk/floodgridgo/internal/errclass"
	"github.com/vk/floodgridgo/internal/ledger"
	"github.com/vk/floodgridgo/internal/runconfig"
	"github.com/vk/floodgridgo/internal/toolrunner"
)

// Pipeline executes the step sequence for individual units. It is safe for
// concurrent use: all mutable state is job-local, and the ledger serializes
// its own writes.
type Pipeline struct {
	params    *runconfig.Params
	toolkit   *toolrunner.Toolkit
	inspector toolrunner.Inspector
	ledger    ledger.Ledger

	// logDir receives one log file per unit; empty disables file logging
	// and falls back to the context logger.
	logDir   string
	logLevel slog.Leveler
}

// New wires a Pipeline from its collaborators.
func New(params *runconfig.Params, toolkit *toolrunner.Toolkit, inspector toolrunner.Inspector, store ledger.Ledger, logDir string, logLevel slog.Leveler) *Pipeline {
	return &Pipeline{
		params:    params,
		toolkit:   toolkit,
		inspector: inspector,
		ledger:    store,
		logDir:    logDir,
		logLevel:  logLevel,
	}
}

// Run processes one unit to a terminal outcome and returns its record. The
// record is always appended to the ledger before Run returns, whatever the
// exit path.
func (p *Pipeline) Run(ctx context.Context, job catalog.UnitJob) (record *ledger.Record) {
	record = ledger.NewRecord(job.ID)

	logger, closeLog := p.unitLogger(ctx, job.ID)
	defer closeLog()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unit processing panicked.", "panic", r)
			record.Fail(errclass.KindUnknown, fmt.Sprintf("%v", r))
		}
		if err := p.ledger.Append(record); err != nil {
			logger.Error("Failed to persist job record.", "error", err)
		}
	}()

	logger.Info("Starting processing...")
	artifacts := UnitArtifacts(job.Params, job.ID)

	// 1. Idempotency: a fully materialized output tree means a prior run
	// already succeeded for this unit.
	if allArtifactsExist(artifacts) {
		logger.Info("Processing skipped as outputs already exist.")
		record.Succeed("skipped: outputs already exist")
		return record
	}

	if err := p.process(ctx, logger, job, artifacts); err != nil {
		kind := errclass.Classify(err)
		logger.Error("Unit processing failed.", "kind", string(kind), "error", err)
		record.Fail(kind, err.Error())
		return record
	}

	record.Succeed("")
	logger.Info("Completed.", "duration", time.Since(record.StartTime).String())
	return record
}

// process runs steps 2 through 6 in strict order, short-circuiting on the
// first failure.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, job catalog.UnitJob, artifacts []ClassArtifact) error {
	// 2. Source resolution and CRS preconditions.
	info, err := p.inspector.Describe(ctx, job.InputPath)
	if err != nil {
		return err
	}
	if !job.Params.UnitMatches(info.LinearUnit) {
		return &errclass.PreconditionError{
			Resolution: info.Resolution,
			LinearUnit: info.LinearUnit,
			Reason:     fmt.Sprintf("linear unit is not %s", job.Params.SourceUnits),
		}
	}
	if info.Resolution > job.Params.SourceMaxResolution {
		return &errclass.PreconditionError{
			Resolution: info.Resolution,
			LinearUnit: info.LinearUnit,
			Reason:     fmt.Sprintf("resolution exceeds maximum %g", job.Params.SourceMaxResolution),
		}
	}

	// 3. Every targeted class must have at least one matching feature
	// before any transform work is invested.
	for _, artifact := range artifacts {
		ok, err := p.inspector.HasClassFeatures(ctx, job.InputPath, job.Params.SourceLayer, job.Params.ClassField, artifact.Class.Match)
		if err != nil {
			return err
		}
		if !ok {
			return &errclass.NoAttributeValuesError{Layer: job.Params.SourceLayer, Class: artifact.Class.Label}
		}
	}

	// 4. Reproject the hazard layer into a unit-scoped temporary location.
	logger.Info("Reprojecting hazard layer...")
	reprojected := filepath.Join(job.Params.OutputDir, "tmp", job.ID+".shp")
	if err := os.MkdirAll(filepath.Dir(reprojected), 0o755); err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	if err := p.toolkit.Reproject(ctx, job.InputPath, reprojected, job.Params.SourceLayer, job.Params.OutputCRS); err != nil {
		return err
	}

	// 5. Burn each class's feature subset into its own boolean raster.
	for _, artifact := range artifacts {
		logger.Info("Creating inundation map...", "class", artifact.Class.Label)
		if err := os.MkdirAll(filepath.Dir(artifact.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
		if err := p.toolkit.Rasterize(ctx, reprojected, artifact.Path, job.Params.ClassField, artifact.Class.Match, job.Params.OutputResolution); err != nil {
			return err
		}
	}

	// 6. Fold higher-severity extents into lower tiers so each raster is a
	// cumulative hazard extent rather than a disjoint class.
	for i := len(artifacts) - 2; i >= 0; i-- {
		logger.Info("Merging class extents...", "into", artifacts[i].Class.Label, "from", artifacts[i+1].Class.Label)
		if err := p.toolkit.MergeInto(ctx, artifacts[i].Path, artifacts[i+1].Path); err != nil {
			return err
		}
	}
	return nil
}

// unitLogger returns a logger scoped to one unit. With a log directory
// configured it writes to a dedicated per-unit file; otherwise it annotates
// the context logger.
func (p *Pipeline) unitLogger(ctx context.Context, unitID string) (*slog.Logger, func()) {
	fallback := ctxlog.FromContext(ctx).With("unit", unitID)
	if p.logDir == "" {
		return fallback, func() {}
	}

	path := filepath.Join(p.logDir, unitID+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fallback.Warn("Failed to open per-unit log file, using run logger.", "path", path, "error", err)
		return fallback, func() {}
	}

	handler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: p.logLevel})
	return slog.New(handler).With("unit", unitID), func() { file.Close() }
}

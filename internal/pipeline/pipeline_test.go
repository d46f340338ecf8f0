package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/floodgridgo/internal/catalog"
	"github.com/vk/floodgridgo/internal/errclass"
	"github.com/vk/floodgridgo/internal/ledger"
	"github.com/vk/floodgridgo/internal/runconfig"
	"github.com/vk/floodgridgo/internal/toolrunner"
)

// memLedger is an in-memory Ledger for tests.
type memLedger struct {
	mu      sync.Mutex
	records []*ledger.Record
}

func (m *memLedger) Append(record *ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memLedger) Close() error { return nil }

// fakeRunner scripts external tool outcomes and records invocations.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	handler func(name string, args []string) (string, string, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(name, args)
	}
	return "", "", nil
}

// fakeInspector scripts the source probes.
type fakeInspector struct {
	info        *toolrunner.SourceInfo
	describeErr error
	hasFeatures func(values []string) (bool, error)
	panicMsg    string
}

func (f *fakeInspector) Describe(context.Context, string) (*toolrunner.SourceInfo, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.info, f.describeErr
}

func (f *fakeInspector) HasClassFeatures(_ context.Context, _, _, _ string, values []string) (bool, error) {
	if f.hasFeatures != nil {
		return f.hasFeatures(values)
	}
	return true, nil
}

func testParams(t *testing.T) *runconfig.Params {
	t.Helper()
	return &runconfig.Params{
		OutputDir:           t.TempDir(),
		OutputCRS:           "EPSG:5070",
		OutputResolution:    3,
		SourceMaxResolution: 10,
		SourceUnits:         "feet",
		SourceLayer:         "FLD_HAZ_AR",
		ClassField:          "EST_Risk",
		MergeMaxAttempts:    3,
		Classes: []runconfig.Class{
			{Label: "500yr", Match: []string{"M", "Moderate"}},
			{Label: "100yr", Match: []string{"H", "High"}},
		},
	}
}

func validInspector() *fakeInspector {
	return &fakeInspector{info: &toolrunner.SourceInfo{Resolution: 3, LinearUnit: "US survey foot"}}
}

func newTestPipeline(params *runconfig.Params, runner *fakeRunner, inspector *fakeInspector, store *memLedger) *Pipeline {
	return New(params, toolrunner.NewToolkit(runner), inspector, store, "", slog.LevelInfo)
}

func testJob(params *runconfig.Params) catalog.UnitJob {
	return catalog.UnitJob{ID: "12040101", InputPath: "/data/BLE_12040101.gdb", Params: params}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{}
	store := &memLedger{}
	pipe := newTestPipeline(params, runner, validInspector(), store)

	record := pipe.Run(context.Background(), testJob(params))

	assert.Equal(t, ledger.StatusSuccess, record.Status)
	assert.Equal(t, errclass.KindNone, record.ErrorKind)
	assert.Empty(t, record.Message)
	assert.False(t, record.EndTime.Before(record.StartTime))

	// Reproject, one rasterize per class, one cumulative merge.
	assert.Equal(t, []string{"ogr2ogr", "gdal_rasterize", "gdal_rasterize", "gdal_calc.py"}, runner.calls)

	// Exactly one record persisted for the unit.
	require.Len(t, store.records, 1)
	assert.Same(t, record, store.records[0])
}

func TestRunIdempotentSkip(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	for _, artifact := range UnitArtifacts(params, "12040101") {
		require.NoError(t, os.MkdirAll(filepath.Dir(artifact.Path), 0o755))
		require.NoError(t, os.WriteFile(artifact.Path, []byte("raster"), 0o644))
	}

	runner := &fakeRunner{}
	store := &memLedger{}
	pipe := newTestPipeline(params, runner, validInspector(), store)

	record := pipe.Run(context.Background(), testJob(params))

	// A skip is a success outcome with an explanatory message, and nothing
	// is recomputed.
	assert.Equal(t, ledger.StatusSuccess, record.Status)
	assert.Contains(t, record.Message, "skipped")
	assert.Empty(t, runner.calls)
	require.Len(t, store.records, 1)
}

func TestRunPreconditionGating(t *testing.T) {
	t.Parallel()

	t.Run("resolution too coarse", func(t *testing.T) {
		params := testParams(t)
		runner := &fakeRunner{}
		store := &memLedger{}
		inspector := &fakeInspector{info: &toolrunner.SourceInfo{Resolution: 30, LinearUnit: "US survey foot"}}
		pipe := newTestPipeline(params, runner, inspector, store)

		record := pipe.Run(context.Background(), testJob(params))

		assert.Equal(t, ledger.StatusFailed, record.Status)
		assert.Equal(t, errclass.KindResolutionOrCRSMismatch, record.ErrorKind)

		// No side effects: no tool ran, no artifact was produced.
		assert.Empty(t, runner.calls)
		for _, artifact := range UnitArtifacts(params, "12040101") {
			assert.NoFileExists(t, artifact.Path)
		}
	})

	t.Run("wrong linear unit", func(t *testing.T) {
		params := testParams(t)
		runner := &fakeRunner{}
		store := &memLedger{}
		inspector := &fakeInspector{info: &toolrunner.SourceInfo{Resolution: 3, LinearUnit: "metre"}}
		pipe := newTestPipeline(params, runner, inspector, store)

		record := pipe.Run(context.Background(), testJob(params))

		assert.Equal(t, ledger.StatusFailed, record.Status)
		assert.Equal(t, errclass.KindResolutionOrCRSMismatch, record.ErrorKind)
		assert.Empty(t, runner.calls)
	})
}

func TestRunNoValidAttributeValues(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{}
	store := &memLedger{}
	inspector := validInspector()
	// The higher-severity class has no features.
	inspector.hasFeatures = func(values []string) (bool, error) {
		return values[0] != "H", nil
	}
	pipe := newTestPipeline(params, runner, inspector, store)

	record := pipe.Run(context.Background(), testJob(params))

	assert.Equal(t, ledger.StatusFailed, record.Status)
	assert.Equal(t, errclass.KindNoValidAttributeValues, record.ErrorKind)
	assert.Contains(t, record.Message, "100yr")
	assert.Empty(t, runner.calls)
}

func TestRunInputMissing(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{}
	store := &memLedger{}
	inspector := &fakeInspector{describeErr: &errclass.InputMissingError{Path: "/data/BLE_12040101.gdb"}}
	pipe := newTestPipeline(params, runner, inspector, store)

	record := pipe.Run(context.Background(), testJob(params))

	assert.Equal(t, ledger.StatusFailed, record.Status)
	assert.Equal(t, errclass.KindInputMissing, record.ErrorKind)
}

func TestRunToolFailureShortCircuits(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{handler: func(name string, _ []string) (string, string, error) {
		if name == "ogr2ogr" {
			return "", "ERROR 1: reprojection failed", errors.New("exit status 1")
		}
		return "", "", nil
	}}
	store := &memLedger{}
	pipe := newTestPipeline(params, runner, validInspector(), store)

	record := pipe.Run(context.Background(), testJob(params))

	assert.Equal(t, ledger.StatusFailed, record.Status)
	assert.Equal(t, errclass.KindExternalToolFailure, record.ErrorKind)
	assert.Contains(t, record.Message, "reprojection failed")

	// The failure stopped the sequence before any rasterize.
	assert.Equal(t, []string{"ogr2ogr"}, runner.calls)
}

func TestRunRecordsPanicAsUnknown(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	store := &memLedger{}
	inspector := &fakeInspector{panicMsg: "unexpected driver state"}
	pipe := newTestPipeline(params, &fakeRunner{}, inspector, store)

	record := pipe.Run(context.Background(), testJob(params))

	// The record is finalized and persisted even on a panic exit path, with
	// the original message preserved.
	assert.Equal(t, ledger.StatusFailed, record.Status)
	assert.Equal(t, errclass.KindUnknown, record.ErrorKind)
	assert.Contains(t, record.Message, "unexpected driver state")
	require.Len(t, store.records, 1)
	assert.Same(t, record, store.records[0])
}

func TestRunWritesPerUnitLogFile(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	logDir := t.TempDir()
	store := &memLedger{}
	pipe := New(params, toolrunner.NewToolkit(&fakeRunner{}), validInspector(), store, logDir, slog.LevelDebug)

	pipe.Run(context.Background(), testJob(params))

	logPath := filepath.Join(logDir, "12040101.log")
	require.FileExists(t, logPath)
	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "Starting processing")
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	path := ArtifactPath("/out", "12040101", "500yr")
	assert.Equal(t, filepath.Join("/out", "12040101", "500yr", "ble_huc_12040101_extent_500yr.tif"), path)
}

package barrier

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

	"github.com/vk/floodgridgo/internal/errclass"
	"github.com/vk/floodgridgo/internal/ledger"
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

func TestExecuteMergeSuccess(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	children := []string{"120401010101", "120401010102"}
	for _, child := range children {
		writeArtifact(t, params, child, "500yr")
		writeArtifact(t, params, child, "100yr")
	}

	runner := &fakeRunner{}
	store := &memLedger{}
	merger := NewMerger(New(params), toolrunner.NewToolkit(runner), store)

	record := merger.ExecuteMerge(context.Background(), &MergeRequest{ParentID: "12040101", Children: children})

	assert.Equal(t, ledger.StatusSuccess, record.Status)
	assert.Contains(t, record.Message, "merged 2 children")

	// One mosaic per class, and the record is persisted.
	assert.Equal(t, []string{"gdal_merge.py", "gdal_merge.py"}, runner.calls)
	require.Len(t, store.records, 1)
	assert.Equal(t, "12040101", store.records[0].UnitID)
}

func TestExecuteMergeSkipsClassesWithoutInputs(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	// Only the lower-severity class ever materialized.
	writeArtifact(t, params, "120401010101", "500yr")

	runner := &fakeRunner{}
	store := &memLedger{}
	merger := NewMerger(New(params), toolrunner.NewToolkit(runner), store)

	record := merger.ExecuteMerge(context.Background(), &MergeRequest{ParentID: "12040101", Children: []string{"120401010101"}})

	assert.Equal(t, ledger.StatusSuccess, record.Status)
	assert.Len(t, runner.calls, 1)
}

func TestExecuteMergeToolFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	writeArtifact(t, params, "120401010101", "500yr")

	runner := &fakeRunner{handler: func(string, []string) (string, string, error) {
		return "", "ERROR 1: cannot mosaic", errors.New("exit status 1")
	}}
	store := &memLedger{}
	merger := NewMerger(New(params), toolrunner.NewToolkit(runner), store)

	record := merger.ExecuteMerge(context.Background(), &MergeRequest{ParentID: "12040101", Children: []string{"120401010101"}})

	assert.Equal(t, ledger.StatusFailed, record.Status)
	assert.Equal(t, errclass.KindExternalToolFailure, record.ErrorKind)
	// Non-transient failures go through exactly one attempt.
	assert.Len(t, runner.calls, 1)
	require.Len(t, store.records, 1)
	assert.Equal(t, ledger.StatusFailed, store.records[0].Status)
}

func TestMosaicWithRetryGivesUpAfterCap(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{}
	merger := NewMerger(New(params), toolrunner.NewToolkit(runner), &memLedger{})

	// A perpetually unreadable input stays transient until the cap.
	missing := filepath.Join(params.OutputDir, "still-flushing.tif")
	err := merger.mosaicWithRetry(context.Background(), slog.Default(), []string{missing}, filepath.Join(params.OutputDir, "out.tif"))

	require.Error(t, err)
	assert.Equal(t, errclass.KindTransientIO, errclass.Classify(err))
	assert.ErrorContains(t, err, "gave up after 3 attempts")
	// The preflight never let the tool run.
	assert.Empty(t, runner.calls)
}

func TestMosaicWithRetryRecoversAfterTransientContention(t *testing.T) {
	t.Parallel()

	params := testParams(t)
	runner := &fakeRunner{}
	merger := NewMerger(New(params), toolrunner.NewToolkit(runner), &memLedger{})

	input := filepath.Join(params.OutputDir, "late.tif")
	output := filepath.Join(params.OutputDir, "out.tif")

	// The sibling artifact appears while the merge is backing off.
	done := make(chan error, 1)
	go func() {
		done <- merger.mosaicWithRetry(context.Background(), slog.Default(), []string{input}, output)
	}()
	require.NoError(t, os.WriteFile(input, []byte("raster"), 0o644))

	require.NoError(t, <-done)
	assert.Equal(t, []string{"gdal_merge.py"}, runner.calls)
}

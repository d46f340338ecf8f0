package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/floodgridgo/internal/cli"
)

func TestRunPrintsUsageWithoutArguments(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := run(&out, []string{})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunHelpFlag(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := run(&out, []string{"--help"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "FloodGridGo")
}

func TestRunReturnsExitErrorOnBadFlags(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	err := run(&out, []string{"-log-format", "xml", "hucs.csv"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRunRecoversFromStartupPanic(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	// The run configuration does not exist, so app construction panics; run
	// must convert that into a clean error.
	missing := filepath.Join(t.TempDir(), "absent.hcl")
	err := run(&out, []string{"-config", missing, "hucs.csv"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "application startup panicked")
	assert.Contains(t, err.Error(), "failed to load run configuration")
}

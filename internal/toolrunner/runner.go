// Package toolrunner abstracts the external geospatial tool boundary. Every
// pipeline step that touches geometry or rasters is expressed against the
// Runner interface, so the GDAL command-line tools can be swapped for
// in-process implementations without touching the orchestration layer.
package toolrunner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Runner executes one external command and reports its captured output.
// Implementations must treat the command as a black box: the only observable
// results are the pass/fail signal and the diagnostic text.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct{}

// Run executes the named command, blocking until it exits.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

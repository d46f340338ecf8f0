// Package app owns the application lifecycle: it configures logging, loads
// the run configuration and unit manifest, and drives the worker pool
// through a full batch run.
package app

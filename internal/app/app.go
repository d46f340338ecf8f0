package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/floodgridgo/internal/catalog"
	"github.com/vk/floodgridgo/internal/runconfig"
	"github.com/vk/floodgridgo/internal/toolrunner"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	config *Config
	logger *slog.Logger
	params *runconfig.Params
	jobs   []catalog.UnitJob
	runner toolrunner.Runner
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, the decoded run
// parameters, and the loaded unit catalog.
func NewApp(outW io.Writer, appConfig *Config, runner toolrunner.Runner) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	params, err := runconfig.Load(appConfig.RunConfigPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load run configuration: %w", err))
	}
	logger.Debug("Run configuration loaded.", "classes", len(params.Classes))

	jobs, err := catalog.Load(appConfig.ManifestPath, params)
	if err != nil {
		panic(fmt.Errorf("failed to load unit manifest: %w", err))
	}
	logger.Debug("Unit manifest loaded.", "units", len(jobs))

	if runner == nil {
		runner = toolrunner.ExecRunner{}
	}

	return &App{
		outW:   outW,
		config: appConfig,
		logger: logger,
		params: params,
		jobs:   jobs,
		runner: runner,
	}
}

// Params returns the decoded run parameters. This is primarily for testing.
func (a *App) Params() *runconfig.Params {
	return a.params
}

// Jobs returns the loaded unit jobs. This is primarily for testing.
func (a *App) Jobs() []catalog.UnitJob {
	return a.jobs
}

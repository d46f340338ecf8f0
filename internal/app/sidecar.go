package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// runSidecar is the structured run-level metadata written alongside the
// ledger, recording what ran and with which parameters.
type runSidecar struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	ManifestPath string `json:"manifest_path"`
	UnitCount    int    `json:"unit_count"`
	Workers      int    `json:"workers"`

	OutputCRS           string   `json:"output_crs"`
	OutputResolution    float64  `json:"output_resolution"`
	SourceMaxResolution float64  `json:"source_max_resolution"`
	SourceUnits         string   `json:"source_units"`
	Classes             []string `json:"classes"`
	LedgerBackend       string   `json:"ledger_backend"`

	// Metadata carries the free-form annotations from the run configuration,
	// e.g. whether inputs were calibrated or which model variant ran.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// writeSidecar serializes the run metadata into run.json in the run directory.
func (a *App) writeSidecar(runDir string, start, end time.Time, workers int) error {
	classes := make([]string, 0, len(a.params.Classes))
	for _, class := range a.params.Classes {
		classes = append(classes, class.Label)
	}

	sidecar := runSidecar{
		RunID:               uuid.NewString(),
		StartTime:           start,
		EndTime:             end,
		ManifestPath:        a.config.ManifestPath,
		UnitCount:           len(a.jobs),
		Workers:             workers,
		OutputCRS:           a.params.OutputCRS,
		OutputResolution:    a.params.OutputResolution,
		SourceMaxResolution: a.params.SourceMaxResolution,
		SourceUnits:         a.params.SourceUnits,
		Classes:             classes,
		LedgerBackend:       a.params.LedgerBackend,
		Metadata:            a.params.Metadata,
	}

	raw, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "run.json"), raw, 0o644)
}

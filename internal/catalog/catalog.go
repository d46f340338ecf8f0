// Package catalog loads the unit manifest that drives a run: one row per
// hydrologic unit, mapping its ID to the GDAL-readable source dataset path.
package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/vk/floodgridgo/internal/runconfig"
)

// UnitJob is one schedulable unit of work. It is immutable once scheduled
// and consumed by exactly one worker.
type UnitJob struct {
	// ID is the unit identifier from the manifest, e.g. a HUC code.
	ID string
	// InputPath is the GDAL path to the unit's source dataset.
	InputPath string
	// ParentID names the coarser unit this one rolls up into. Empty for
	// flat (non-hierarchical) runs.
	ParentID string
	// Params is the shared, read-only run configuration.
	Params *runconfig.Params
}

// Load reads the manifest at path and returns one UnitJob per data row.
// The manifest is CSV with a header row (skipped) and rows of
// (unitID, sourcePath).
func Load(path string, params *runconfig.Params) ([]UnitJob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("manifest %s is empty, expected a header row", path)
	}

	jobs := make([]UnitJob, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("manifest %s row %d: expected (unitID, sourcePath), got %d fields", path, i+2, len(row))
		}
		id := strings.TrimSpace(row[0])
		inputPath := strings.TrimSpace(row[1])
		if id == "" || inputPath == "" {
			return nil, fmt.Errorf("manifest %s row %d: unitID and sourcePath must be non-empty", path, i+2)
		}
		jobs = append(jobs, UnitJob{
			ID:        id,
			InputPath: inputPath,
			ParentID:  ParentID(id, params.ParentIDLength),
			Params:    params,
		})
	}
	return jobs, nil
}

// ParentID derives the parent unit for hierarchical runs: a unit whose ID is
// longer than the configured prefix length is a child of the prefix unit.
// A zero prefix length disables roll-up.
func ParentID(unitID string, prefixLen int) string {
	if prefixLen > 0 && len(unitID) > prefixLen {
		return unitID[:prefixLen]
	}
	return ""
}

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/floodgridgo/internal/runconfig"
)

// ClassArtifact is one class's resolved output raster slot for a unit. The
// slots are built once per job and never mutated, so the class table itself
// stays shared and read-only.
type ClassArtifact struct {
	Class runconfig.Class
	Path  string
}

// ArtifactPath returns the deterministic output raster path for a unit and
// class label. Parent-level merged rasters use the same naming under the
// parent's own unit directory.
func ArtifactPath(outputDir, unitID, label string) string {
	name := fmt.Sprintf("ble_huc_%s_extent_%s.tif", unitID, label)
	return filepath.Join(outputDir, unitID, label, name)
}

// UnitArtifacts resolves the ordered artifact slots for one unit, preserving
// the least- to most-severe class order.
func UnitArtifacts(params *runconfig.Params, unitID string) []ClassArtifact {
	artifacts := make([]ClassArtifact, 0, len(params.Classes))
	for _, class := range params.Classes {
		artifacts = append(artifacts, ClassArtifact{
			Class: class,
			Path:  ArtifactPath(params.OutputDir, unitID, class.Label),
		})
	}
	return artifacts
}

// allArtifactsExist reports whether every expected output already exists,
// which is the idempotent-skip condition.
func allArtifactsExist(artifacts []ClassArtifact) bool {
	for _, artifact := range artifacts {
		if _, err := os.Stat(artifact.Path); err != nil {
			return false
		}
	}
	return true
}

// Package runconfig defines the immutable per-run parameters and loads them
// from an HCL run-configuration file. The decoded Params value is shared
// read-only by every job in the run.
package runconfig

// Class is one named severity tier, ordered in Params.Classes from least to
// most severe. Match holds the attribute values that assign a feature to the
// class; the list is never mutated after load.
type Class struct {
	Label string   `validate:"required"`
	Match []string `validate:"min=1"`
}

// Params is the configuration snapshot for a run.
type Params struct {
	OutputDir           string  `validate:"required"`
	OutputCRS           string  `validate:"required"`
	OutputResolution    float64 `validate:"gt=0"`
	SourceMaxResolution float64 `validate:"gt=0"`
	SourceUnits         string  `validate:"required,oneof=feet meter"`

	// SourceLayer is the vector layer carrying the hazard polygons, and
	// ClassField the attribute consulted for class membership.
	SourceLayer string `validate:"required"`
	ClassField  string `validate:"required"`

	// Concurrency is the worker bound; zero means one worker per CPU.
	Concurrency int `validate:"gte=0"`

	// LedgerBackend selects the durable store for job records.
	LedgerBackend string `validate:"oneof=csv sqlite"`

	// ParentIDLength enables hierarchical runs: a unit whose ID is longer
	// than this prefix length is treated as a child of the unit named by the
	// prefix. Zero disables roll-up entirely.
	ParentIDLength int `validate:"gte=0"`

	// MergeMaxAttempts bounds the parent mosaic retry loop.
	MergeMaxAttempts int `validate:"gt=0"`

	// Classes is ordered least- to most-severe.
	Classes []Class `validate:"min=1,dive"`

	// Metadata carries free-form run annotations (e.g. whether inputs were
	// calibrated) through to the run sidecar.
	Metadata map[string]any
}

// defaultParams returns a Params populated with the values a run file may
// omit. The default class table mirrors the production benchmark layers:
// the 500yr tier collects moderate-risk spellings and the 100yr tier the
// high-risk ones.
func defaultParams() *Params {
	return &Params{
		SourceLayer:      "FLD_HAZ_AR",
		ClassField:       "EST_Risk",
		LedgerBackend:    "csv",
		MergeMaxAttempts: 5,
		Classes: []Class{
			{Label: "500yr", Match: []string{"M", "Moderate", "MODERATE", "Low or Moderate", "L"}},
			{Label: "100yr", Match: []string{"H", "High", "HIGH"}},
		},
		Metadata: map[string]any{},
	}
}

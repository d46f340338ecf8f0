package runconfig

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// --- HCL file schema ---

// paramsBlock mirrors the `params` block of a run-configuration file.
type paramsBlock struct {
	OutputDir           string  `hcl:"output_dir"`
	OutputCRS           string  `hcl:"output_crs"`
	OutputResolution    float64 `hcl:"output_resolution"`
	SourceMaxResolution float64 `hcl:"source_max_resolution"`
	SourceUnits         string  `hcl:"source_units"`
	SourceLayer         *string `hcl:"source_layer,optional"`
	ClassField          *string `hcl:"class_field,optional"`
	Concurrency         *int    `hcl:"concurrency,optional"`
	LedgerBackend       *string `hcl:"ledger,optional"`
	ParentIDLength      *int    `hcl:"parent_id_length,optional"`
	MergeMaxAttempts    *int    `hcl:"merge_max_attempts,optional"`
}

// classBlock mirrors an ordered `class "<label>"` block.
type classBlock struct {
	Label string   `hcl:"label,label"`
	Match []string `hcl:"match"`
}

// metadataBlock captures the free-form `metadata` block; its attributes are
// evaluated as cty values and carried into the run sidecar.
type metadataBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// fileSchema is the top-level structure of a run-configuration file.
type fileSchema struct {
	Params   *paramsBlock   `hcl:"params,block"`
	Classes  []*classBlock  `hcl:"class,block"`
	Metadata *metadataBlock `hcl:"metadata,block"`
}

// Load parses and validates the run-configuration file at path. Class blocks,
// when present, replace the default class table in file order (least- to
// most-severe).
func Load(path string) (*Params, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse run configuration %s: %w", path, diags)
	}

	var root fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode run configuration %s: %w", path, diags)
	}
	if root.Params == nil {
		return nil, fmt.Errorf("run configuration %s is missing the required params block", path)
	}

	params := defaultParams()
	applyParamsBlock(params, root.Params)

	if len(root.Classes) > 0 {
		classes := make([]Class, 0, len(root.Classes))
		for _, block := range root.Classes {
			classes = append(classes, Class{Label: block.Label, Match: block.Match})
		}
		params.Classes = classes
	}

	if root.Metadata != nil {
		metadata, err := decodeMetadata(root.Metadata.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata block in %s: %w", path, err)
		}
		params.Metadata = metadata
	}

	if err := Validate(params); err != nil {
		return nil, fmt.Errorf("invalid run configuration %s: %w", path, err)
	}
	return params, nil
}

// Validate checks a Params value against its declared constraints.
func Validate(params *Params) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(params)
}

func applyParamsBlock(params *Params, block *paramsBlock) {
	params.OutputDir = block.OutputDir
	params.OutputCRS = block.OutputCRS
	params.OutputResolution = block.OutputResolution
	params.SourceMaxResolution = block.SourceMaxResolution
	params.SourceUnits = block.SourceUnits

	if block.SourceLayer != nil {
		params.SourceLayer = *block.SourceLayer
	}
	if block.ClassField != nil {
		params.ClassField = *block.ClassField
	}
	if block.Concurrency != nil {
		params.Concurrency = *block.Concurrency
	}
	if block.LedgerBackend != nil {
		params.LedgerBackend = *block.LedgerBackend
	}
	if block.ParentIDLength != nil {
		params.ParentIDLength = *block.ParentIDLength
	}
	if block.MergeMaxAttempts != nil {
		params.MergeMaxAttempts = *block.MergeMaxAttempts
	}
}

// decodeMetadata evaluates every attribute of the metadata block into a
// plain Go value suitable for JSON serialization.
func decodeMetadata(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	metadata := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		metadata[name] = goVal
	}
	return metadata, nil
}

// ctyToGo converts an evaluated cty value to the equivalent plain Go value
// by round-tripping through its JSON representation.
func ctyToGo(val cty.Value) (any, error) {
	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	var goVal any
	if err := json.Unmarshal(raw, &goVal); err != nil {
		return nil, err
	}
	return goVal, nil
}

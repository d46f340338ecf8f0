package toolrunner

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/floodgridgo/internal/errclass"
)

// SourceInfo is what the precondition check needs to know about a source
// dataset: its cell size and the linear unit its spatial reference declares.
type SourceInfo struct {
	Resolution float64
	LinearUnit string
}

// Inspector probes source datasets ahead of any transform work.
type Inspector interface {
	// Describe reports the resolution and linear unit of the dataset's
	// raster content.
	Describe(ctx context.Context, path string) (*SourceInfo, error)
	// HasClassFeatures reports whether the layer has at least one feature
	// whose field value belongs to the given set.
	HasClassFeatures(ctx context.Context, path, layer, field string, values []string) (bool, error)
}

// GDALInspector probes datasets with gdalinfo and ogrinfo.
type GDALInspector struct {
	runner Runner
}

// NewGDALInspector returns an Inspector backed by the GDAL info tools.
func NewGDALInspector(runner Runner) *GDALInspector {
	return &GDALInspector{runner: runner}
}

// gdalinfoReport is the subset of `gdalinfo -json` output the inspector reads.
type gdalinfoReport struct {
	GeoTransform     []float64 `json:"geoTransform"`
	CoordinateSystem struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	Metadata map[string]map[string]string `json:"metadata"`
}

// Describe probes the dataset at path. Container datasets are followed into
// their first subdataset, matching how the benchmark sources package their
// raster content.
func (g *GDALInspector) Describe(ctx context.Context, path string) (*SourceInfo, error) {
	report, err := g.info(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(report.GeoTransform) < 6 {
		sub, ok := report.Metadata["SUBDATASETS"]["SUBDATASET_1_NAME"]
		if !ok {
			return nil, &errclass.InputMissingError{Path: path}
		}
		report, err = g.info(ctx, sub)
		if err != nil {
			return nil, err
		}
		if len(report.GeoTransform) < 6 {
			return nil, &errclass.InputMissingError{Path: path}
		}
	}

	resolution := report.GeoTransform[1]
	if ns := -report.GeoTransform[5]; ns > resolution {
		resolution = ns
	}
	return &SourceInfo{
		Resolution: resolution,
		LinearUnit: linearUnitFromWKT(report.CoordinateSystem.WKT),
	}, nil
}

// featureCountRe matches the aliased COUNT(*) column in ogrinfo output.
var featureCountRe = regexp.MustCompile(`feature_count \(Integer(?:64)?\) = (\d+)`)

// HasClassFeatures runs a COUNT(*) probe over the layer with the class's
// attribute filter.
func (g *GDALInspector) HasClassFeatures(ctx context.Context, path, layer, field string, values []string) (bool, error) {
	query := "SELECT COUNT(*) AS feature_count FROM " + layer + " WHERE " + AttributeFilter(field, values)
	stdout, stderr, err := g.runner.Run(ctx, "ogrinfo", "-ro", "-q", "-sql", query, path)
	if err != nil {
		return false, &errclass.ToolError{Tool: "ogrinfo", Stderr: stderr, Err: err}
	}

	match := featureCountRe.FindStringSubmatch(stdout)
	if match == nil {
		return false, nil
	}
	count, err := strconv.Atoi(match[1])
	if err != nil {
		return false, nil
	}
	return count > 0, nil
}

// info runs gdalinfo and decodes its JSON report. A failed probe means the
// path does not resolve to a readable dataset.
func (g *GDALInspector) info(ctx context.Context, path string) (*gdalinfoReport, error) {
	stdout, _, err := g.runner.Run(ctx, "gdalinfo", "-json", path)
	if err != nil {
		return nil, &errclass.InputMissingError{Path: path}
	}
	var report gdalinfoReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return nil, &errclass.InputMissingError{Path: path}
	}
	return &report, nil
}

// linearUnitFromWKT extracts the name of the last UNIT declaration in a WKT
// spatial reference, which is the linear unit of a projected CRS.
func linearUnitFromWKT(wkt string) string {
	idx := strings.LastIndex(wkt, `UNIT["`)
	if idx < 0 {
		return ""
	}
	rest := wkt[idx+len(`UNIT["`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

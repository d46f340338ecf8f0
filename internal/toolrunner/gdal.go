package toolrunner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/floodgridgo/internal/errclass"
)

// Toolkit wraps the GDAL command-line tools used by the pipeline steps.
type Toolkit struct {
	runner Runner
}

// NewToolkit returns a Toolkit that invokes the tools through the given runner.
func NewToolkit(runner Runner) *Toolkit {
	return &Toolkit{runner: runner}
}

// Reproject rewrites one vector layer of src into dst in the target CRS.
func (t *Toolkit) Reproject(ctx context.Context, src, dst, layer, targetCRS string) error {
	_, stderr, err := t.runner.Run(ctx, "ogr2ogr", "-t_srs", targetCRS, dst, src, layer)
	if err != nil {
		return &errclass.ToolError{Tool: "ogr2ogr", Stderr: stderr, Err: err}
	}
	return nil
}

// Rasterize burns the features of src matching the attribute filter into a
// boolean byte raster at the given cell size.
func (t *Toolkit) Rasterize(ctx context.Context, src, dst, field string, values []string, resolution float64) error {
	res := strconv.FormatFloat(resolution, 'f', -1, 64)
	args := []string{
		"-burn", "1",
		"-where", AttributeFilter(field, values),
		"-at",
		"-tr", res, res,
		"-ot", "Byte",
		"-co", "COMPRESS=LZW",
		src, dst,
	}
	_, stderr, err := t.runner.Run(ctx, "gdal_rasterize", args...)
	if err != nil {
		return &errclass.ToolError{Tool: "gdal_rasterize", Stderr: stderr, Err: err}
	}
	return nil
}

// MergeInto overwrites the lower raster with the logical OR of itself and the
// higher raster, so the lower-severity extent becomes cumulative.
func (t *Toolkit) MergeInto(ctx context.Context, lower, higher string) error {
	args := []string{
		"-A", lower,
		"-B", higher,
		"--outfile=" + lower,
		"--co", "COMPRESS=LZW",
		`--calc="A+B>0"`,
		"--overwrite",
	}
	_, stderr, err := t.runner.Run(ctx, "gdal_calc.py", args...)
	if err != nil {
		return &errclass.ToolError{Tool: "gdal_calc.py", Stderr: stderr, Err: err}
	}
	return nil
}

// Mosaic combines the sibling rasters into one parent-unit raster.
func (t *Toolkit) Mosaic(ctx context.Context, inputs []string, output string) error {
	args := append([]string{"-o", output, "-ot", "Byte", "-co", "COMPRESS=LZW"}, inputs...)
	_, stderr, err := t.runner.Run(ctx, "gdal_merge.py", args...)
	if err != nil {
		return &errclass.ToolError{Tool: "gdal_merge.py", Stderr: stderr, Err: err}
	}
	return nil
}

// AttributeFilter builds the SQL membership predicate used both as the
// rasterize burn condition and in feature-presence probes.
func AttributeFilter(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("'%s'", v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ", "))
}

package reporting

import (
	"errors"
	"fmt"
	"os"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/xkilldash9x/vulnreport/internal/results"
)

// ErrEmptyChart is returned when no chart slice has a positive weight.
var ErrEmptyChart = errors.New("chart has no weighted slices")

// ChartRenderer draws the severity pie chart to a temporary PNG file.
type ChartRenderer struct {
	Title   string
	Width   int
	Height  int
	TempDir string
}

// ChartFile is a rendered chart image on disk. The caller owns it and must
// call Release once the image has been copied into the document.
type ChartFile struct {
	Path   string
	Width  int
	Height int
}

// Render draws one slice per severity with a positive count. Each slice is
// labelled "Severity: count" and filled with the severity color.
func (c ChartRenderer) Render(slices []results.ChartSlice) (*ChartFile, error) {
	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		if s.Count <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Value: float64(s.Count),
			Label: fmt.Sprintf("%s: %d", s.Label, s.Count),
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex(string(s.Color)),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
				FontColor:   drawing.ColorWhite,
			},
		})
	}
	if len(values) == 0 {
		return nil, ErrEmptyChart
	}
	if len(values) == 1 {
		values = wholeDisc(values[0])
	}

	pie := chart.PieChart{
		Title:  c.Title,
		Width:  c.Width,
		Height: c.Height,
		Values: values,
	}

	f, err := os.CreateTemp(c.TempDir, "vulnreport-chart-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create chart image: %w", err)
	}
	out := &ChartFile{Path: f.Name(), Width: c.Width, Height: c.Height}

	renderErr := pie.Render(chart.PNG, f)
	closeErr := f.Close()
	if renderErr != nil || closeErr != nil {
		_ = out.Release()
		if renderErr != nil {
			return nil, fmt.Errorf("failed to render chart: %w", renderErr)
		}
		return nil, fmt.Errorf("failed to write chart image: %w", closeErr)
	}
	return out, nil
}

// wholeDisc splits a lone value into two equal halves of the same color.
// go-chart outlines a single-value pie without filling it, so a chart where
// every finding shares one severity would otherwise come out blank.
func wholeDisc(v chart.Value) []chart.Value {
	half := v
	half.Value = v.Value / 2
	half.Style.StrokeColor = half.Style.FillColor
	rest := half
	rest.Label = ""
	return []chart.Value{half, rest}
}

// Release removes the image. It is safe to call on a nil file and more than once.
func (f *ChartFile) Release() error {
	if f == nil || f.Path == "" {
		return nil
	}
	path := f.Path
	f.Path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove chart image %s: %w", path, err)
	}
	return nil
}

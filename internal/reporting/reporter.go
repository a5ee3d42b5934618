package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xkilldash9x/vulnreport/internal/results"
)

// ErrUnsupportedFormat is returned by New for an unknown output format.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// FormatDocx is the Office Open XML word processing format.
const FormatDocx = "docx"

// Reporter defines the interface for rendering a report model to an output.
type Reporter interface {
	// Write lays out the model. It may be called once per reporter.
	Write(model *results.Model) error
	// Close finalizes the document and closes any underlying resources
	// (file handles, temporary chart images).
	Close() error
}

// Options controls document layout.
type Options struct {
	Author       string
	ScopeColumns int
	ChartWidth   int
	ChartHeight  int
	// TempDir holds the intermediate chart image. Empty means os.TempDir.
	TempDir string
}

func (o Options) withDefaults() Options {
	if o.ScopeColumns <= 0 {
		o.ScopeColumns = 4
	}
	if o.ChartWidth <= 0 {
		o.ChartWidth = 640
	}
	if o.ChartHeight <= 0 {
		o.ChartHeight = 480
	}
	return o
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath, toolVersion string, opts Options) (Reporter, error) {
	if !strings.EqualFold(format, FormatDocx) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	// NewDocxReporter takes ownership of the writer.
	return NewDocxReporter(writer, toolVersion, opts), nil
}

// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnreport/internal/findings"
	"github.com/xkilldash9x/vulnreport/internal/ingest"
)

// Pipeline runs ingestion, aggregation and model building over one export.
type Pipeline struct {
	columns ingest.ColumnMap
	logger  *zap.Logger
}

// NewPipeline creates a pipeline that resolves columns with the given table.
// A nil table means ingest.DefaultColumns.
func NewPipeline(columns ingest.ColumnMap, logger *zap.Logger) *Pipeline {
	if columns == nil {
		columns = ingest.DefaultColumns()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		columns: columns,
		logger:  logger.Named("results_pipeline"),
	}
}

// Run reads r to completion and returns the report model. The pass is a
// single synchronous loop; ctx is only consulted before it starts.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, opts BuildOptions) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled before ingestion: %w", err)
	}
	start := time.Now()
	p.logger.Info("Starting results processing", zap.String("source", opts.Source))

	reader, err := ingest.NewReader(r, p.columns, p.logger)
	if err != nil {
		return nil, fmt.Errorf("error opening export: %w", err)
	}

	agg := findings.Collect(reader.Records())
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("error ingesting rows: %w", err)
	}
	p.logger.Info("Aggregated rows",
		zap.Int("rows", agg.Rows),
		zap.Int("findings", len(agg.Findings)),
		zap.Int("hosts", len(agg.Hosts)),
		zap.Int("skipped", reader.Skipped()),
		zap.Int("dropped", reader.Dropped()),
	)
	if reader.Skipped() > 0 {
		p.logger.Warn("Malformed rows were skipped", zap.Int("count", reader.Skipped()))
	}

	model := Build(agg, opts)
	model.Skipped = reader.Skipped()
	model.Dropped = reader.Dropped()

	if unknown := agg.UniqueCount(findings.SeverityUnknown); unknown > 0 {
		p.logger.Debug("Findings with unrecognized severity are listed last", zap.Int("count", unknown))
	}
	p.logger.Info("Results processing complete",
		zap.Int("chart_total", model.ChartTotal()),
		zap.Duration("duration", time.Since(start)),
	)
	return model, nil
}

// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/vulnreport/internal/config"
	"github.com/xkilldash9x/vulnreport/internal/ingest"
	"github.com/xkilldash9x/vulnreport/internal/reporting"
	"github.com/xkilldash9x/vulnreport/internal/results"
)

const stdoutPath = "stdout"

// OutputPath derives the report path for an input by replacing its extension
// with .docx. An input that already ends in .docx is rejected.
func OutputPath(input string) (string, error) {
	ext := filepath.Ext(input)
	out := strings.TrimSuffix(input, ext) + "." + reporting.FormatDocx
	if out == input {
		return "", fmt.Errorf("output path for %s would overwrite the input", input)
	}
	return out, nil
}

// runReport generates one report per input. Inputs are independent: a failing
// input does not stop the others, and every failure is returned joined.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	inputs []string,
	outputPath string,
	out io.Writer,
) error {
	if len(inputs) == 0 {
		return errors.New("no input files given")
	}
	if outputPath != "" && len(inputs) > 1 {
		return errors.New("--output can only be used with a single input file")
	}

	if outputPath != "" && outputPath != stdoutPath {
		expanded, err := homedir.Expand(outputPath)
		if err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		outputPath = expanded
	}

	columns, err := ingest.DefaultColumns().Extend(cfg.Ingest().Columns)
	if err != nil {
		return fmt.Errorf("invalid column synonyms: %w", err)
	}

	startTime := time.Now()
	logger.Info("Starting report generation",
		zap.Int("inputs", len(inputs)),
		zap.Int("concurrency", cfg.Report().Concurrency),
	)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs = make([]error, len(inputs))
	)
	g.SetLimit(max(cfg.Report().Concurrency, 1))

	for i, input := range inputs {
		g.Go(func() error {
			dest := outputPath
			if dest == "" {
				var err error
				if dest, err = OutputPath(input); err != nil {
					errs[i] = err
					return nil
				}
			}

			if err := generateReport(ctx, logger.With(zap.String("input", input)), cfg.Report(), columns, input, dest); err != nil {
				logger.Error("Report generation failed", zap.String("input", input), zap.Error(err))
				errs[i] = err
				return nil
			}
			if dest != stdoutPath {
				mu.Lock()
				fmt.Fprintf(out, "Report for %s written to %s\n", input, dest)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	logger.Info("Report generation finished",
		zap.Bool("success", err == nil),
		zap.Duration("duration", time.Since(startTime)),
	)
	return err
}

// generateReport runs the pipeline over one input and writes its document.
func generateReport(
	ctx context.Context,
	logger *zap.Logger,
	rc config.ReportConfig,
	columns ingest.ColumnMap,
	input, outputPath string,
) error {
	path, err := homedir.Expand(input)
	if err != nil {
		return fmt.Errorf("cannot open input %s: %w", input, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open input %s: %w", input, err)
	}
	defer f.Close()

	pipeline := results.NewPipeline(columns, logger)
	model, err := pipeline.Run(ctx, f, results.BuildOptions{
		Title:  rc.Title,
		Source: filepath.Base(path),
	})
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", input, err)
	}

	if model.Empty() {
		logger.Warn("No actionable findings in export; writing an empty report")
	}
	return writeReportFile(logger, model, outputPath, rc)
}

// writeReportFile renders model with the configured reporter. A partially
// written file is removed when rendering or finalizing fails.
func writeReportFile(logger *zap.Logger, model *results.Model, outputPath string, rc config.ReportConfig) (err error) {
	reporter, err := reporting.New(rc.Format, outputPath, Version, reporting.Options{
		Author:       rc.Author,
		ScopeColumns: rc.ScopeColumns,
		ChartWidth:   rc.ChartWidth,
		ChartHeight:  rc.ChartHeight,
		TempDir:      rc.TempDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if closeErr := reporter.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to finalize report: %w", closeErr)
		}
		if err == nil {
			logger.Info("Report successfully written to file",
				zap.String("path", outputPath),
				zap.Int("findings", len(model.Findings)),
			)
			return
		}
		if outputPath != stdoutPath {
			if rmErr := os.Remove(outputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn("Failed to remove partial report", zap.String("path", outputPath), zap.Error(rmErr))
			}
		}
	}()

	if err := reporter.Write(model); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

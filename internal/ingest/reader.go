// Package ingest reads tabular scanner exports and resolves their columns
// onto the canonical finding fields.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoHeader is returned when the input does not start with a usable header row.
var ErrNoHeader = errors.New("input has no header row")

// Record is one canonicalized input row.
type Record map[Field]string

// Get returns the value of f, or "" when it is absent.
func (r Record) Get(f Field) string { return r[f] }

// Excluded reports whether a severity value marks a row as not actionable:
// empty or "none", ignoring case and surrounding space.
func Excluded(severity string) bool {
	s := strings.ToLower(strings.TrimSpace(severity))
	return s == "" || s == "none"
}

// Reader yields canonical records from a delimited export.
// A Reader is single use and not safe for concurrent use.
type Reader struct {
	csv      *csv.Reader
	header   []string
	resolver resolver
	logger   *zap.Logger

	skipped int
	dropped int
	err     error
}

// NewReader reads the header row of r and prepares column resolution.
// A leading UTF-8 byte order mark is stripped.
func NewReader(r io.Reader, columns ColumnMap, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	// Short rows resolve missing columns to "" and extra cells are ignored.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		var perr *csv.ParseError
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrNoHeader
		case errors.As(err, &perr):
			return nil, fmt.Errorf("%w: %v", ErrNoHeader, err)
		default:
			return nil, fmt.Errorf("reading header: %w", err)
		}
	}
	if blank(header) {
		return nil, ErrNoHeader
	}

	res := newResolver(header, columns)
	rd := &Reader{
		csv:      cr,
		header:   header,
		resolver: res,
		logger:   logger.Named("ingest"),
	}

	if missing := res.missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		rd.logger.Debug("Header does not provide every field", zap.Strings("missing", names))
		if !rd.Provides(FieldFindingName) || !rd.Provides(FieldSeverity) {
			rd.logger.Warn("No finding name or severity column found; the report will be empty",
				zap.Strings("header", header))
		}
	}
	return rd, nil
}

// Header returns the header row as read.
func (r *Reader) Header() []string { return append([]string(nil), r.header...) }

// Provides reports whether any header column maps to f.
func (r *Reader) Provides(f Field) bool { return len(r.resolver[f]) > 0 }

// Records returns a lazy sequence of canonical records. Rows with a quoting
// error and rows with an excluded severity are skipped. Rows with fewer or
// more cells than the header are kept. Iteration stops at the first
// I/O error, which is then available from Err.
func (r *Reader) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for {
			row, err := r.csv.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					r.skipped++
					r.logger.Debug("Skipping malformed row", zap.Int("line", perr.StartLine), zap.Error(perr.Err))
					continue
				}
				r.err = fmt.Errorf("reading input: %w", err)
				return
			}

			rec := r.resolver.resolve(row)
			if Excluded(rec[FieldSeverity]) {
				r.dropped++
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Skipped returns how many malformed rows were skipped so far.
func (r *Reader) Skipped() int { return r.skipped }

// Dropped returns how many rows were dropped for having no actionable severity.
func (r *Reader) Dropped() int { return r.dropped }

// Err returns the I/O error that ended iteration early, if any.
func (r *Reader) Err() error { return r.err }

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

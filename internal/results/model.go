package results

import (
	"time"

	"github.com/xkilldash9x/vulnreport/internal/findings"
)

// ChartSlice is one severity bucket of the executive chart.
type ChartSlice struct {
	Severity findings.Severity
	Label    string
	Count    int
	Color    findings.Color
}

// Entry is one numbered finding. The same slice of entries feeds both the
// summary table and the detail sections, so their numbering cannot diverge.
type Entry struct {
	Number        int
	Name          string
	Severity      findings.Severity
	SeverityLabel string
	Color         findings.Color
	Hosts         []string
	References    string
	Description   string
	Remediation   string
}

// Model is the read-only, renderer-agnostic view of an aggregated export.
type Model struct {
	Title       string
	Source      string
	GeneratedAt time.Time

	// Chart has exactly one slice per recognized severity, most severe first.
	// Counts are distinct findings, not affected assets.
	Chart []ChartSlice
	// Occurrences has the same buckets counting every retained row.
	Occurrences []ChartSlice
	// Scope is the sorted, deduplicated list of affected hosts.
	Scope    []string
	Findings []Entry

	// Skipped and Dropped count unparseable and non-actionable input rows.
	Skipped int
	Dropped int
}

// ChartTotal returns the sum of the chart weights.
func (m *Model) ChartTotal() int {
	total := 0
	for _, s := range m.Chart {
		total += s.Count
	}
	return total
}

// Empty reports whether no finding survived filtering.
func (m *Model) Empty() bool { return len(m.Findings) == 0 }

// BuildOptions carries the document metadata that does not come from the rows.
type BuildOptions struct {
	Title  string
	Source string
	// Now defaults to time.Now.
	Now func() time.Time
}

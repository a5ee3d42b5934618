// Package results turns aggregated findings into the ordered report model.
package results

import (
	"sort"
	"time"

	"github.com/xkilldash9x/vulnreport/internal/findings"
)

// Build converts an aggregate into a Model. It never fails: an aggregate with
// no findings yields a valid, empty model.
func Build(agg *findings.Aggregate, opts BuildOptions) *Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Model{
		Title:       opts.Title,
		Source:      opts.Source,
		GeneratedAt: now().UTC(),
		Chart:       make([]ChartSlice, 0, len(findings.Recognized)),
		Occurrences: make([]ChartSlice, 0, len(findings.Recognized)),
		Scope:       scope(agg),
	}

	for _, sev := range findings.Recognized {
		m.Chart = append(m.Chart, slice(sev, agg.UniqueCount(sev)))
		m.Occurrences = append(m.Occurrences, slice(sev, agg.OccurrenceCount(sev)))
	}

	ordered := prioritize(agg.Ordered())
	m.Findings = make([]Entry, 0, len(ordered))
	for i, f := range ordered {
		m.Findings = append(m.Findings, newEntry(i+1, f))
	}
	return m
}

func slice(sev findings.Severity, n int) ChartSlice {
	return ChartSlice{Severity: sev, Label: sev.String(), Count: n, Color: sev.Color()}
}

func scope(agg *findings.Aggregate) []string {
	hosts := make([]string, 0, len(agg.Hosts))
	for h := range agg.Hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func newEntry(number int, f *findings.Finding) Entry {
	hosts := f.Hosts()
	display := make([]string, 0, len(hosts))
	for _, h := range hosts {
		display = append(display, h.Display())
	}
	return Entry{
		Number:        number,
		Name:          f.Name,
		Severity:      f.Severity,
		SeverityLabel: f.SeverityLabel,
		Color:         f.Severity.Color(),
		Hosts:         display,
		References:    f.References(),
		Description:   f.Description(),
		Remediation:   f.Remediation(),
	}
}

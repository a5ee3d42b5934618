// Package findings groups canonical scanner rows into unique findings.
package findings

import (
	"iter"

	"github.com/xkilldash9x/vulnreport/internal/ingest"
)

// Aggregate is the result of one aggregation pass.
type Aggregate struct {
	// Findings is keyed by finding name.
	Findings map[string]*Finding
	// Order holds finding names in first-seen order.
	Order []string
	// Occurrences counts retained rows per severity, repeats included.
	Occurrences map[Severity]int
	// Unique holds the distinct finding names seen per severity.
	Unique map[Severity]map[string]struct{}
	// Hosts holds every non-empty host of a retained row.
	Hosts map[string]struct{}
	// Rows is the number of records aggregated.
	Rows int
}

func newAggregate() *Aggregate {
	return &Aggregate{
		Findings:    make(map[string]*Finding),
		Occurrences: make(map[Severity]int),
		Unique:      make(map[Severity]map[string]struct{}),
		Hosts:       make(map[string]struct{}),
	}
}

// UniqueCount returns how many distinct findings carry severity s.
func (a *Aggregate) UniqueCount(s Severity) int { return len(a.Unique[s]) }

// OccurrenceCount returns how many rows carried severity s.
func (a *Aggregate) OccurrenceCount(s Severity) int { return a.Occurrences[s] }

// Ordered returns the findings in first-seen order.
func (a *Aggregate) Ordered() []*Finding {
	out := make([]*Finding, 0, len(a.Order))
	for _, name := range a.Order {
		out = append(out, a.Findings[name])
	}
	return out
}

// Aggregator owns the state of a single aggregation pass.
// It is not safe for concurrent use.
type Aggregator struct {
	agg *Aggregate
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{agg: newAggregate()}
}

// Add folds one record into the aggregate.
func (a *Aggregator) Add(rec ingest.Record) {
	name := rec.Get(ingest.FieldFindingName)
	f, ok := a.agg.Findings[name]
	if !ok {
		f = newFinding(rec)
		a.agg.Findings[name] = f
		a.agg.Order = append(a.agg.Order, name)
	}

	host := rec.Get(ingest.FieldHost)
	f.AddHost(HostEntry{Host: host, Port: rec.Get(ingest.FieldPort)})
	if host != "" {
		a.agg.Hosts[host] = struct{}{}
	}

	sev := f.Severity
	a.agg.Occurrences[sev]++
	if a.agg.Unique[sev] == nil {
		a.agg.Unique[sev] = make(map[string]struct{})
	}
	a.agg.Unique[sev][name] = struct{}{}
	a.agg.Rows++
}

// Result returns the aggregate built so far.
func (a *Aggregator) Result() *Aggregate { return a.agg }

// Collect aggregates a whole record sequence in a single pass.
func Collect(records iter.Seq[ingest.Record]) *Aggregate {
	a := NewAggregator()
	for rec := range records {
		a.Add(rec)
	}
	return a.Result()
}

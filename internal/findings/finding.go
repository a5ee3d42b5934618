package findings

import "github.com/xkilldash9x/vulnreport/internal/ingest"

// HostEntry is one affected (host, port) pair. Both parts compare exactly.
type HostEntry struct {
	Host string
	Port string
}

// Display renders the entry as "host:port", or just the host when no port
// was recorded.
func (h HostEntry) Display() string {
	if h.Port == "" {
		return h.Host
	}
	return h.Host + ":" + h.Port
}

// Finding is a unique named issue with every host it was seen on.
type Finding struct {
	Name string
	// Severity and SeverityLabel come from the first row seen for Name.
	// Later rows are trusted to agree and are not reconciled.
	Severity      Severity
	SeverityLabel string
	// Representative is the first row seen; descriptive fields come from it.
	Representative ingest.Record

	hosts []HostEntry
	seen  map[HostEntry]struct{}
}

func newFinding(rec ingest.Record) *Finding {
	label := rec.Get(ingest.FieldSeverity)
	return &Finding{
		Name:           rec.Get(ingest.FieldFindingName),
		Severity:       ParseSeverity(label),
		SeverityLabel:  label,
		Representative: rec,
		seen:           make(map[HostEntry]struct{}),
	}
}

// AddHost records h and reports whether it was new.
func (f *Finding) AddHost(h HostEntry) bool {
	if _, ok := f.seen[h]; ok {
		return false
	}
	f.seen[h] = struct{}{}
	f.hosts = append(f.hosts, h)
	return true
}

// Hosts returns the distinct affected hosts in first-seen order.
func (f *Finding) Hosts() []HostEntry {
	return append([]HostEntry(nil), f.hosts...)
}

// HostCount returns the number of distinct affected hosts.
func (f *Finding) HostCount() int { return len(f.hosts) }

func (f *Finding) References() string  { return f.Representative.Get(ingest.FieldReferences) }
func (f *Finding) Description() string { return f.Representative.Get(ingest.FieldDescription) }
func (f *Finding) Remediation() string { return f.Representative.Get(ingest.FieldRemediation) }

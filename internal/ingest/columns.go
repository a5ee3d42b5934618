package ingest

import (
	"fmt"
	"strings"
)

// Field is a canonical record field that scanner columns resolve to.
type Field string

const (
	FieldFindingName Field = "finding_name"
	FieldHost        Field = "host"
	FieldPort        Field = "port"
	FieldSeverity    Field = "severity"
	FieldReferences  Field = "references"
	FieldDescription Field = "description"
	FieldRemediation Field = "remediation"
)

// Fields lists every canonical field in a stable order.
var Fields = []Field{
	FieldFindingName,
	FieldHost,
	FieldPort,
	FieldSeverity,
	FieldReferences,
	FieldDescription,
	FieldRemediation,
}

// ColumnMap maps each canonical field to the source column names that may
// carry it, highest priority first.
type ColumnMap map[Field][]string

// defaultColumns covers Nessus, OpenVAS/Greenbone and the generic exports
// produced by most commercial scanners.
var defaultColumns = ColumnMap{
	FieldFindingName: {"Name", "Plugin Name", "Vulnerability", "Vulnerability Name", "Title", "Finding"},
	FieldHost:        {"Host", "IP Address", "IP", "Hostname", "DNS Name", "Asset"},
	FieldPort:        {"Port", "Service Port"},
	FieldSeverity:    {"Risk", "Severity", "Risk Factor", "Threat"},
	FieldReferences:  {"CVE", "CVEs", "References", "See Also"},
	FieldDescription: {"Description", "Synopsis", "Summary", "Details"},
	FieldRemediation: {"Solution", "Remediation", "Recommendation", "Fix"},
}

// DefaultColumns returns a copy of the built-in synonym table.
func DefaultColumns() ColumnMap {
	out := make(ColumnMap, len(defaultColumns))
	for field, names := range defaultColumns {
		out[field] = append([]string(nil), names...)
	}
	return out
}

// Extend returns a copy of m with extra synonyms appended after the existing
// ones. Keys of extra are canonical field names; unknown keys are an error.
func (m ColumnMap) Extend(extra map[string][]string) (ColumnMap, error) {
	out := make(ColumnMap, len(m))
	for field, names := range m {
		out[field] = append([]string(nil), names...)
	}
	for key, names := range extra {
		field, ok := lookupField(key)
		if !ok {
			return nil, fmt.Errorf("unknown field %q in column synonyms", key)
		}
		out[field] = append(out[field], names...)
	}
	return out, nil
}

func lookupField(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// normalizeColumn folds a header or synonym for comparison.
func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// resolver holds, for every field, the column positions to try in priority order.
type resolver map[Field][]int

func newResolver(header []string, columns ColumnMap) resolver {
	positions := make(map[string][]int, len(header))
	for i, h := range header {
		key := normalizeColumn(h)
		positions[key] = append(positions[key], i)
	}

	r := make(resolver, len(Fields))
	for _, field := range Fields {
		for _, name := range columns[field] {
			r[field] = append(r[field], positions[normalizeColumn(name)]...)
		}
	}
	return r
}

// missing reports the fields no header column can supply.
func (r resolver) missing() []Field {
	var out []Field
	for _, field := range Fields {
		if len(r[field]) == 0 {
			out = append(out, field)
		}
	}
	return out
}

func (r resolver) resolve(row []string) Record {
	rec := make(Record, len(Fields))
	for _, field := range Fields {
		rec[field] = ""
		for _, i := range r[field] {
			if i >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				rec[field] = v
				break
			}
		}
	}
	return rec
}

// Resolve maps one data row onto the canonical fields using the header and
// synonym table. The first non-empty matching column wins.
func Resolve(header, row []string, columns ColumnMap) Record {
	return newResolver(header, columns).resolve(row)
}

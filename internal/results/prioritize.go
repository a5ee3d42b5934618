package results

import (
	"sort"

	"github.com/xkilldash9x/vulnreport/internal/findings"
)

// prioritize orders findings by severity, most severe first. Findings of
// equal severity keep their discovery order; names are never compared.
func prioritize(in []*findings.Finding) []*findings.Finding {
	out := append([]*findings.Finding(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

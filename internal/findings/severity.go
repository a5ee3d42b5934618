package findings

import "strings"

// Severity is the ranked criticality of a finding. Lower values are more
// severe; SeverityUnknown sorts after every recognized level.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
	SeverityUnknown
)

// Recognized lists the four charted severities, most severe first.
var Recognized = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var severityNames = map[Severity]string{
	SeverityCritical: "Critical",
	SeverityHigh:     "High",
	SeverityMedium:   "Medium",
	SeverityLow:      "Low",
	SeverityUnknown:  "Unknown",
}

// ParseSeverity maps a scanner label onto a Severity. Only the exact labels
// "Critical", "High", "Medium" and "Low" are recognized, ignoring surrounding
// space; any other spelling is SeverityUnknown.
func ParseSeverity(label string) Severity {
	l := strings.TrimSpace(label)
	for _, s := range Recognized {
		if l == severityNames[s] {
			return s
		}
	}
	return SeverityUnknown
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return severityNames[SeverityUnknown]
}

// Rank orders severities for sorting; unrecognized values share the last rank.
func (s Severity) Rank() int {
	if s < SeverityCritical || s > SeverityUnknown {
		return int(SeverityUnknown)
	}
	return int(s)
}

// Color is an RGB color as six hex digits, without a leading '#'.
type Color string

const (
	ColorDarkRed   Color = "8B0000"
	ColorRed       Color = "FF0000"
	ColorOrange    Color = "FFA500"
	ColorDarkGreen Color = "006400"
	ColorBlack     Color = "000000"
)

// Color returns the display color used for s everywhere a severity is shown.
func (s Severity) Color() Color {
	switch s {
	case SeverityCritical:
		return ColorDarkRed
	case SeverityHigh:
		return ColorRed
	case SeverityMedium:
		return ColorOrange
	case SeverityLow:
		return ColorDarkGreen
	default:
		return ColorBlack
	}
}

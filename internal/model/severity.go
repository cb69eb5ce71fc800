package model

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Severities lists every severity from most to least severe. Report layouts
// depend on this order.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Title renders the severity the way change reports print it ("Critical").
func (s Severity) Title() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return string(s)
	}
}

// SeverityCounts tallies vulnerabilities per severity.
type SeverityCounts map[Severity]int

func (c SeverityCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Summary flattens the counts for JSON/YAML output.
func (c SeverityCounts) Summary() Summary {
	return Summary{
		Total:    c.Total(),
		Critical: c[SeverityCritical],
		High:     c[SeverityHigh],
		Medium:   c[SeverityMedium],
		Low:      c[SeverityLow],
	}
}

type Summary struct {
	Total    int `json:"total_fixed" yaml:"total_fixed"`
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
}

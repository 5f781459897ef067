package models

import "strings"

// Severity is the signature severity on a 1..5 scale
type Severity int

const (
	SeverityInfo     Severity = 1
	SeverityLow      Severity = 2
	SeverityMedium   Severity = 3
	SeverityHigh     Severity = 4
	SeverityCritical Severity = 5
)

// String returns the severity label
func (s Severity) String() string {
	switch {
	case s >= SeverityCritical:
		return "critical"
	case s == SeverityHigh:
		return "high"
	case s == SeverityMedium:
		return "medium"
	case s == SeverityLow:
		return "low"
	default:
		return "info"
	}
}

// ParseSeverity converts a label or a digit to a Severity, defaulting to medium
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "5":
		return SeverityCritical
	case "high", "4":
		return SeverityHigh
	case "low", "2":
		return SeverityLow
	case "info", "1":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// SignatureMeta is the static metadata of a signature
type SignatureMeta struct {
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description" json:"description"`
	Severity       Severity `yaml:"severity" json:"severity"`
	Categories     []string `yaml:"categories" json:"categories"`
	Families       []string `yaml:"families" json:"families,omitempty"`
	Authors        []string `yaml:"authors" json:"authors,omitempty"`
	TTPs           []string `yaml:"ttps" json:"ttps,omitempty"`
	MBCs           []string `yaml:"mbcs" json:"mbcs,omitempty"`
	References     []string `yaml:"references" json:"references,omitempty"`
	Minimum        string   `yaml:"minimum" json:"minimum,omitempty"`
	Evented        bool     `yaml:"evented" json:"evented"`
	FilterAPINames []string `yaml:"filter_apinames" json:"filter_apinames,omitempty"`
}

// HasCategory checks whether the signature is tagged with category
func (m *SignatureMeta) HasCategory(category string) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

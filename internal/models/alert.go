package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity returns the severity named by s, or false.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s)
	return sev, sev.Rank() > 0
}

const AlertTypeHighEmission = "high_emission"

// Alert is raised when a reading breaches the threshold. Only Read changes
// after creation.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"alert_type"`
	Threshold float64   `json:"threshold_value"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"is_read"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

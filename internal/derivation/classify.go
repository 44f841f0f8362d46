package derivation

import (
	"fmt"
	"strconv"

	"emission-service/internal/models"
)

const (
	highFactor     = 1.1
	criticalFactor = 1.2
)

// AlertDecision is what ClassifyAlert returns when a value breaches the
// threshold.
type AlertDecision struct {
	Severity models.Severity
	Message  string
}

// ClassifyAlert returns nil when value does not exceed threshold. Otherwise
// severity steps up at 1.1x (high) and 1.2x (critical); a value equal to a
// step stays in the lower band.
func ClassifyAlert(value, threshold float64) (*AlertDecision, error) {
	if !finite(value) || !finite(threshold) {
		return nil, fmt.Errorf("classify value %v, threshold %v: %w", value, threshold, ErrInvalidInput)
	}
	if value <= threshold {
		return nil, nil
	}
	severity := models.SeverityMedium
	switch {
	case value > threshold*criticalFactor:
		severity = models.SeverityCritical
	case value > threshold*highFactor:
		severity = models.SeverityHigh
	}
	return &AlertDecision{
		Severity: severity,
		Message:  alertMessage(value, threshold),
	}, nil
}

func alertMessage(value, threshold float64) string {
	return fmt.Sprintf("High CO2 emission detected: %s exceeds threshold %s",
		formatValue(value), formatValue(threshold))
}

// formatValue prints the shortest decimal that round-trips, so nothing the
// producer sent is rounded away.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

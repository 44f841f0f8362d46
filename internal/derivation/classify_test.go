package derivation

import (
	"math"
	"testing"

	"emission-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAlertBands(t *testing.T) {
	tests := []struct {
		value    float64
		severity models.Severity
	}{
		{1000.5, models.SeverityMedium},
		{1050, models.SeverityMedium},
		{1100, models.SeverityMedium},
		{1100.01, models.SeverityHigh},
		{1150, models.SeverityHigh},
		{1200, models.SeverityHigh},
		{1200.01, models.SeverityCritical},
		{1250, models.SeverityCritical},
		{10000, models.SeverityCritical},
	}
	for _, tt := range tests {
		decision, err := ClassifyAlert(tt.value, 1000)
		require.NoError(t, err)
		require.NotNil(t, decision, "value %v", tt.value)
		assert.Equal(t, tt.severity, decision.Severity, "value %v", tt.value)
	}
}

func TestClassifyAlertNoBreach(t *testing.T) {
	for _, v := range []float64{0, 850, 999.99, 1000} {
		decision, err := ClassifyAlert(v, 1000)
		require.NoError(t, err)
		assert.Nil(t, decision, "value %v", v)
	}
}

func TestClassifyAlertMessage(t *testing.T) {
	decision, err := ClassifyAlert(1050, 1000)
	require.NoError(t, err)
	assert.Equal(t, "High CO2 emission detected: 1050 exceeds threshold 1000", decision.Message)

	decision, err = ClassifyAlert(1234.5, 1000)
	require.NoError(t, err)
	assert.Equal(t, "High CO2 emission detected: 1234.5 exceeds threshold 1000", decision.Message)
}

func TestClassifyAlertRejectsNonFinite(t *testing.T) {
	_, err := ClassifyAlert(math.NaN(), 1000)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ClassifyAlert(1000, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

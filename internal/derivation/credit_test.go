package derivation

import (
	"math"
	"testing"

	"emission-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCredit(t *testing.T) {
	tests := []struct {
		name     string
		emission float64
		limit    float64
		amount   float64
		status   models.CreditStatus
	}{
		{"below limit earns", 850, 1000, 0.15, models.CreditEarned},
		{"above limit is a deficit", 1250, 1000, -0.25, models.CreditDeficit},
		{"at limit is neutral", 1000, 1000, 0, models.CreditNeutral},
		{"zero emission earns full limit", 0, 1000, 1, models.CreditEarned},
		{"zero limit", 500, 0, -0.5, models.CreditDeficit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeCredit(tt.emission, tt.limit)
			require.NoError(t, err)
			assert.InDelta(t, tt.amount, res.Amount, 1e-9)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestComputeCreditSignMatchesStatus(t *testing.T) {
	for _, emission := range []float64{0, 1, 999.999, 1000, 1000.001, 5000} {
		res, err := ComputeCredit(emission, 1000)
		require.NoError(t, err)
		switch {
		case res.Amount > 0:
			assert.Equal(t, models.CreditEarned, res.Status, "emission %v", emission)
		case res.Amount < 0:
			assert.Equal(t, models.CreditDeficit, res.Status, "emission %v", emission)
		default:
			assert.Equal(t, models.CreditNeutral, res.Status, "emission %v", emission)
		}
	}
}

func TestComputeCreditRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := ComputeCredit(v, 1000)
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = ComputeCredit(500, v)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

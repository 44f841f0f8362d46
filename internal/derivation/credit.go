package derivation

import (
	"errors"
	"fmt"
	"math"

	"emission-service/internal/models"
)

// ErrInvalidInput is returned for NaN or infinite inputs.
var ErrInvalidInput = errors.New("invalid input")

// KgPerCredit converts the emission differential (kg) into credits: one credit
// per metric ton.
const KgPerCredit = 1000.0

// CreditResult is the outcome of ComputeCredit.
type CreditResult struct {
	Amount float64
	Status models.CreditStatus
}

// ComputeCredit derives the credit for one emission value against the
// allowed limit. Values below the limit earn credit, values above it are a
// deficit.
func ComputeCredit(emission, limit float64) (CreditResult, error) {
	if !finite(emission) || !finite(limit) {
		return CreditResult{}, fmt.Errorf("compute credit for emission %v, limit %v: %w", emission, limit, ErrInvalidInput)
	}
	amount := (limit - emission) / KgPerCredit
	status := models.CreditNeutral
	switch {
	case amount > 0:
		status = models.CreditEarned
	case amount < 0:
		status = models.CreditDeficit
	}
	return CreditResult{Amount: amount, Status: status}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package models

import "time"

type CreditStatus string

const (
	CreditEarned  CreditStatus = "earned"
	CreditDeficit CreditStatus = "deficit"
	CreditNeutral CreditStatus = "neutral"
)

// Credit is derived once from a compliant reading and never changes.
type Credit struct {
	ID            string       `json:"id"`
	CalculatedAt  time.Time    `json:"calculation_date"`
	EmissionValue float64      `json:"emission_value"`
	AllowedLimit  float64      `json:"allowed_limit"`
	Amount        float64      `json:"credit_amount"`
	Status        CreditStatus `json:"status"`
}

// CreditReading links a credit to a reading it was computed from.
type CreditReading struct {
	CreditID     string  `json:"credit_id"`
	ReadingID    string  `json:"reading_id"`
	WeightFactor float64 `json:"weight_factor"`
	Included     bool    `json:"included"`
}

// MonthlyCredits summarises one calendar month of credits.
type MonthlyCredits struct {
	Month        string  `json:"month"`
	Earned       float64 `json:"earned"`
	Deficit      float64 `json:"deficit"`
	Net          float64 `json:"net"`
	Calculations int     `json:"calculations"`
}

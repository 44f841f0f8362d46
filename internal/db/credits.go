package db

import (
	"context"
	"fmt"

	"emission-service/internal/models"
)

// ownedCredits selects the ids of credits linked to readings of the user's
// sensors; $1 is the user id.
const ownedCredits = `
	SELECT cr.credit_id
	FROM credit_readings cr
	JOIN readings r ON r.id = cr.reading_id
	JOIN sensors s ON s.id = r.sensor_id
	WHERE s.user_id = $1`

// MonthlyCredits groups the user's credits by UTC calendar month, newest
// month first.
func (d *DB) MonthlyCredits(ctx context.Context, userID string) ([]models.MonthlyCredits, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query := `
	SELECT
		to_char(c.calculation_date AT TIME ZONE 'UTC', 'YYYY-MM') AS month,
		COALESCE(SUM(c.credit_amount) FILTER (WHERE c.credit_amount > 0), 0),
		COALESCE(SUM(-c.credit_amount) FILTER (WHERE c.credit_amount < 0), 0),
		COALESCE(SUM(c.credit_amount), 0),
		COUNT(*)
	FROM credits c
	WHERE c.id IN (` + ownedCredits + `)
	GROUP BY month
	ORDER BY month DESC`

	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly credits: %w", mapErr(err))
	}
	defer rows.Close()

	list := []models.MonthlyCredits{}
	for rows.Next() {
		var m models.MonthlyCredits
		if err := rows.Scan(&m.Month, &m.Earned, &m.Deficit, &m.Net, &m.Calculations); err != nil {
			return nil, fmt.Errorf("failed to scan monthly credits: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monthly credits: %w", mapErr(err))
	}
	return list, nil
}

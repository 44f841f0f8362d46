package db

import (
	"context"
	"errors"
	"fmt"

	"emission-service/internal/models"
	"github.com/jackc/pgx/v5"
)

// DashboardStats reads all four figures from one snapshot.
func (d *DB) DashboardStats(ctx context.Context, userID string) (models.DashboardStats, error) {
	var stats models.DashboardStats
	err := d.snapshot(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT r.co2_value
			FROM readings r
			JOIN sensors s ON s.id = r.sensor_id
			WHERE s.user_id = $1
			ORDER BY r.timestamp DESC, r.id DESC
			LIMIT 1`, userID).Scan(&stats.CurrentCO2)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to get current co2: %w", mapErr(err))
		}

		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(c.credit_amount), 0) FROM credits c WHERE c.id IN (`+ownedCredits+`)`,
			userID).Scan(&stats.TotalCredits)
		if err != nil {
			return fmt.Errorf("failed to sum credits: %w", mapErr(err))
		}

		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM sensors WHERE user_id = $1 AND status = $2`,
			userID, models.SensorStatusActive).Scan(&stats.ActiveSensors)
		if err != nil {
			return fmt.Errorf("failed to count sensors: %w", mapErr(err))
		}

		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM alerts WHERE user_id = $1 AND NOT is_read`,
			userID).Scan(&stats.UnreadAlerts)
		if err != nil {
			return fmt.Errorf("failed to count alerts: %w", mapErr(err))
		}
		return nil
	})
	if err != nil {
		return models.DashboardStats{}, err
	}
	return stats, nil
}

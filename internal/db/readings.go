package db

import (
	"context"
	"errors"
	"fmt"

	"emission-service/internal/models"
	"emission-service/internal/repository"
	"github.com/jackc/pgx/v5"
)

// derivationTx implements repository.DerivationTx on one pgx transaction.
type derivationTx struct {
	tx pgx.Tx
}

// InsertReading stores r. A replayed id hits ON CONFLICT and returns no row.
func (t *derivationTx) InsertReading(ctx context.Context, r *models.Reading) (bool, error) {
	query := `
	INSERT INTO readings (id, sensor_id, timestamp, co2_value, pm25_value, temperature, humidity)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
	RETURNING created_at`

	err := t.tx.QueryRow(ctx, query,
		r.ID,
		r.SensorID,
		r.Timestamp,
		r.CO2Value,
		r.PM25Value,
		r.Temperature,
		r.Humidity,
	).Scan(&r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert reading %s: %w", r.ID, mapErr(err))
	}
	return true, nil
}

func (t *derivationTx) SensorOwner(ctx context.Context, sensorID string) (string, error) {
	var owner string
	err := t.tx.QueryRow(ctx, `SELECT user_id FROM sensors WHERE id = $1`, sensorID).Scan(&owner)
	if err != nil {
		return "", fmt.Errorf("failed to get sensor %s: %w", sensorID, mapErr(err))
	}
	return owner, nil
}

func (t *derivationTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	query := `
	INSERT INTO alerts (id, alert_type, threshold_value, value, message, severity, is_read, user_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := t.tx.Exec(ctx, query,
		a.ID,
		a.Type,
		a.Threshold,
		a.Value,
		a.Message,
		string(a.Severity),
		a.Read,
		a.UserID,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", mapErr(err))
	}
	return nil
}

// LinkAlert sets readings.alert_id only while it is still NULL.
func (t *derivationTx) LinkAlert(ctx context.Context, readingID, alertID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE readings SET alert_id = $2 WHERE id = $1 AND alert_id IS NULL`, readingID, alertID)
	if err != nil {
		return fmt.Errorf("failed to link alert %s: %w", alertID, mapErr(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM readings WHERE id = $1)`, readingID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check reading %s: %w", readingID, mapErr(err))
	}
	if !exists {
		return fmt.Errorf("reading %s: %w", readingID, repository.ErrNotFound)
	}
	return fmt.Errorf("reading %s: %w", readingID, repository.ErrAlreadyLinked)
}

func (t *derivationTx) InsertCredit(ctx context.Context, c *models.Credit) error {
	query := `
	INSERT INTO credits (id, calculation_date, emission_value, allowed_limit, credit_amount, status)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := t.tx.Exec(ctx, query,
		c.ID,
		c.CalculatedAt,
		c.EmissionValue,
		c.AllowedLimit,
		c.Amount,
		string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert credit: %w", mapErr(err))
	}
	return nil
}

func (t *derivationTx) InsertCreditReading(ctx context.Context, l models.CreditReading) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO credit_readings (credit_id, reading_id, weight_factor, included) VALUES ($1, $2, $3, $4)`,
		l.CreditID, l.ReadingID, l.WeightFactor, l.Included)
	if err != nil {
		return fmt.Errorf("failed to link credit %s to reading %s: %w", l.CreditID, l.ReadingID, mapErr(err))
	}
	return nil
}

// RecentReadings returns the latest readings of userID's sensors, newest first.
func (d *DB) RecentReadings(ctx context.Context, userID string, limit int) ([]models.RecentReading, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query := `
	SELECT
		r.id, r.sensor_id, r.timestamp, r.co2_value, r.pm25_value, r.temperature, r.humidity,
		r.alert_id, r.created_at, s.location, s.sensor_type
	FROM readings r
	JOIN sensors s ON s.id = r.sensor_id
	WHERE s.user_id = $1
	ORDER BY r.timestamp DESC, r.id DESC
	LIMIT $2`

	rows, err := d.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", mapErr(err))
	}
	defer rows.Close()

	list := []models.RecentReading{}
	for rows.Next() {
		var r models.RecentReading
		if err := rows.Scan(
			&r.ID, &r.SensorID, &r.Timestamp, &r.CO2Value, &r.PM25Value, &r.Temperature, &r.Humidity,
			&r.AlertID, &r.CreatedAt, &r.Location, &r.SensorType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read readings: %w", mapErr(err))
	}
	return list, nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"emission-service/internal/models"
)

const sensorColumns = `id, sensor_type, location, installed_at, status, user_id, created_at`

func (d *DB) CreateSensor(ctx context.Context, s *models.Sensor) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	if s.InstalledAt.IsZero() {
		s.InstalledAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = models.SensorStatusActive
	}
	query := `
	INSERT INTO sensors (id, sensor_type, location, installed_at, status, user_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at`

	err := d.Pool.QueryRow(ctx, query, s.ID, s.Type, s.Location, s.InstalledAt, s.Status, s.UserID).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sensor %s: %w", s.ID, mapErr(err))
	}
	return nil
}

func (d *DB) GetSensor(ctx context.Context, id string) (*models.Sensor, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	var s models.Sensor
	err := d.Pool.QueryRow(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = $1`, id).
		Scan(&s.ID, &s.Type, &s.Location, &s.InstalledAt, &s.Status, &s.UserID, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor %s: %w", id, mapErr(err))
	}
	return &s, nil
}

func (d *DB) ListSensors(ctx context.Context, userID string) ([]models.Sensor, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	rows, err := d.Pool.Query(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", mapErr(err))
	}
	defer rows.Close()

	list := []models.Sensor{}
	for rows.Next() {
		var s models.Sensor
		if err := rows.Scan(&s.ID, &s.Type, &s.Location, &s.InstalledAt, &s.Status, &s.UserID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", mapErr(err))
	}
	return list, nil
}

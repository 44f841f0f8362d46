package db

import (
	"context"
	"fmt"

	"emission-service/internal/models"
	"emission-service/internal/repository"
)

// AlertsByUser fetches the latest alerts for a user, newest first.
func (d *DB) AlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query := `
	SELECT id, alert_type, threshold_value, value, message, severity, is_read, user_id, created_at
	FROM alerts
	WHERE user_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

	rows, err := d.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", mapErr(err))
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var severity string
		if err := rows.Scan(&a.ID, &a.Type, &a.Threshold, &a.Value, &a.Message, &severity, &a.Read, &a.UserID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Severity = models.Severity(severity)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", mapErr(err))
	}
	return alerts, nil
}

// SetAlertRead updates is_read on an alert owned by userID.
func (d *DB) SetAlertRead(ctx context.Context, userID, alertID string, read bool) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tag, err := d.Pool.Exec(ctx, `UPDATE alerts SET is_read = $3 WHERE id = $1 AND user_id = $2`, alertID, userID, read)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alertID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alertID, repository.ErrNotFound)
	}
	return nil
}

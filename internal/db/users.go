package db

import (
	"context"
	"fmt"

	"emission-service/internal/models"
)

const userColumns = `id, name, email, password_hash, role, created_at`

func (d *DB) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query := `
	INSERT INTO users (id, name, email, password_hash, role, created_at)
	VALUES ($1, $2, lower($3), $4, $5, $6)`

	if _, err := d.Pool.Exec(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert user: %w", mapErr(err))
	}
	return nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	var u models.User
	err := d.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", mapErr(err))
	}
	return &u, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	var u models.User
	err := d.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, mapErr(err))
	}
	return &u, nil
}

// Package db is the PostgreSQL implementation of repository.Backend.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"emission-service/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type DB struct {
	Pool    *pgxpool.Pool
	timeout time.Duration
}

var _ repository.Backend = (*DB)(nil)

// New connects to dsn and checks the connection. timeout bounds every query
// that is not already bounded by its caller.
func New(ctx context.Context, dsn string, maxConns int32, timeout time.Duration) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	d := &DB{Pool: pool, timeout: timeout}

	pingCtx, cancel := d.bound(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", mapErr(err))
	}
	return d, nil
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", mapErr(err))
	}
	return nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

func (d *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// WithTx runs fn in a READ COMMITTED transaction.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.DerivationTx) error) (err error) {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = tx.Rollback(rbCtx)
		}
	}()
	if err = fn(ctx, &derivationTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", mapErr(err))
	}
	return nil
}

// snapshot runs fn in a read-only REPEATABLE READ transaction so every query
// in fn sees the same state.
func (d *DB) snapshot(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", mapErr(err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mapErr translates driver errors into repository sentinels, keeping the
// original error in the chain.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %w", repository.ErrDuplicate, err)
		case "23503":
			return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
		case "22P02":
			return fmt.Errorf("%w: %w", repository.ErrInvalid, err)
		case "57014", "57P01", "53300":
			return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", repository.ErrNotFound, err)
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		pgconn.Timeout(err) || errors.As(err, &connErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return err
}

// Package repository defines the storage boundary. internal/db implements it
// on PostgreSQL and internal/memstore in memory.
package repository

import (
	"context"
	"errors"

	"emission-service/internal/models"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates that a resource already exists
	ErrDuplicate = errors.New("resource already exists")
	// ErrUnavailable indicates a timeout or lost connection to the store
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalid indicates a value the store cannot represent, such as a
	// malformed id
	ErrInvalid = errors.New("invalid value")
	// ErrAlreadyLinked indicates the reading already carries an alert reference
	ErrAlreadyLinked = errors.New("reading already linked to an alert")
)

// DerivationTx is the set of writes one derivation performs. Everything done
// through a DerivationTx commits or rolls back together.
type DerivationTx interface {
	// InsertReading stores r. It returns false without error when a reading
	// with the same id already exists.
	InsertReading(ctx context.Context, r *models.Reading) (bool, error)
	SensorOwner(ctx context.Context, sensorID string) (string, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
	// LinkAlert sets the reading's alert reference. It fails with
	// ErrAlreadyLinked if the reference is already set.
	LinkAlert(ctx context.Context, readingID, alertID string) error
	InsertCredit(ctx context.Context, c *models.Credit) error
	InsertCreditReading(ctx context.Context, l models.CreditReading) error
}

// Store runs derivations transactionally.
type Store interface {
	// WithTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DerivationTx) error) error
}

// QueryStore holds the read-only projections, all scoped to one user.
type QueryStore interface {
	RecentReadings(ctx context.Context, userID string, limit int) ([]models.RecentReading, error)
	DashboardStats(ctx context.Context, userID string) (models.DashboardStats, error)
	AlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	MonthlyCredits(ctx context.Context, userID string) ([]models.MonthlyCredits, error)
	// SetAlertRead updates the read flag of an alert owned by userID.
	SetAlertRead(ctx context.Context, userID, alertID string, read bool) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type SensorStore interface {
	CreateSensor(ctx context.Context, s *models.Sensor) error
	GetSensor(ctx context.Context, id string) (*models.Sensor, error)
	ListSensors(ctx context.Context, userID string) ([]models.Sensor, error)
}

// Backend is everything the service needs from a storage implementation.
type Backend interface {
	Store
	QueryStore
	UserStore
	SensorStore
	Close()
}

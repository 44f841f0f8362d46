package derivation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/logging"
	"emission-service/internal/memstore"
	"emission-service/internal/models"
	"emission-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string {
	return fmt.Sprintf("id-%04d", s.n.Add(1))
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: "u1", Email: "op@example.com", Role: models.RoleOperator}))
	require.NoError(t, store.CreateSensor(ctx, &models.Sensor{ID: "s1", Type: "co2", Location: "Plant A", Status: models.SensorStatusActive, UserID: "u1"}))
	return store
}

func newOrchestrator(store repository.Store, opts ...Option) *Orchestrator {
	base := []Option{WithIDs(&seqIDs{}), WithClock(func() time.Time { return fixedNow })}
	return New(store, StaticThreshold(1000), logging.Discard(), append(base, opts...)...)
}

func reading(id string, co2 float64) models.Reading {
	return models.Reading{ID: id, SensorID: "s1", Timestamp: fixedNow, CO2Value: co2}
}

func TestIngestCompliantReadingEarnsCredit(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)

	res, err := o.Ingest(context.Background(), reading("r1", 850))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Nil(t, res.Alert)
	require.NotNil(t, res.Credit)
	assert.InDelta(t, 0.15, res.Credit.Amount, 1e-9)
	assert.Equal(t, models.CreditEarned, res.Credit.Status)
	assert.Equal(t, 850.0, res.Credit.EmissionValue)
	assert.Equal(t, 1000.0, res.Credit.AllowedLimit)

	links := store.Links()
	require.Len(t, links, 1)
	assert.Equal(t, models.CreditReading{CreditID: res.Credit.ID, ReadingID: "r1", WeightFactor: 1, Included: true}, links[0])

	stored, ok := store.Reading("r1")
	require.True(t, ok)
	assert.Nil(t, stored.AlertID)
}

func TestIngestBreachRaisesAlertWithoutCredit(t *testing.T) {
	tests := []struct {
		co2      float64
		severity models.Severity
	}{
		{1050, models.SeverityMedium},
		{1150, models.SeverityHigh},
		{1250, models.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			store := seededStore(t)
			o := newOrchestrator(store)

			res, err := o.Ingest(context.Background(), reading("r1", tt.co2))
			require.NoError(t, err)
			assert.Nil(t, res.Credit)
			require.NotNil(t, res.Alert)
			assert.Equal(t, tt.severity, res.Alert.Severity)
			assert.Equal(t, models.AlertTypeHighEmission, res.Alert.Type)
			assert.Equal(t, "u1", res.Alert.UserID)
			assert.Equal(t, 1000.0, res.Alert.Threshold)
			assert.False(t, res.Alert.Read)

			stored, ok := store.Reading("r1")
			require.True(t, ok)
			require.NotNil(t, stored.AlertID)
			assert.Equal(t, res.Alert.ID, *stored.AlertID)

			counts := store.Counts()
			assert.Equal(t, 0, counts.Credits)
			assert.Equal(t, 0, counts.Links)
		})
	}
}

func TestIngestDuplicateDerivesOnce(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)
	ctx := context.Background()

	first, err := o.Ingest(ctx, reading("r1", 850))
	require.NoError(t, err)
	second, err := o.Ingest(ctx, reading("r1", 850))
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Credit)
	assert.Equal(t, memstore.Counts{Readings: 1, Credits: 1, Links: 1}, store.Counts())
}

func TestIngestConcurrentDuplicates(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)

	var wg sync.WaitGroup
	var fresh atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Ingest(context.Background(), reading("r1", 1300))
			if assert.NoError(t, err) && !res.Duplicate {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
	assert.Equal(t, 1, store.Counts().Alerts)
}

func TestIngestUnknownSensorIsValidationError(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)

	r := reading("r1", 850)
	r.SensorID = "missing"
	_, err := o.Ingest(context.Background(), r)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, memstore.Counts{}, store.Counts())
}

// failingStore wraps a Store and fails the named DerivationTx step.
type failingStore struct {
	repository.Store
	failOn string
	err    error
}

func (f *failingStore) WithTx(ctx context.Context, fn func(context.Context, repository.DerivationTx) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx repository.DerivationTx) error {
		return fn(ctx, &failingTx{DerivationTx: tx, failOn: f.failOn, err: f.err})
	})
}

type failingTx struct {
	repository.DerivationTx
	failOn string
	err    error
}

func (f *failingTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	if f.failOn == "alert" {
		return f.err
	}
	return f.DerivationTx.InsertAlert(ctx, a)
}

func (f *failingTx) LinkAlert(ctx context.Context, readingID, alertID string) error {
	if f.failOn == "link-alert" {
		return f.err
	}
	return f.DerivationTx.LinkAlert(ctx, readingID, alertID)
}

func (f *failingTx) InsertCreditReading(ctx context.Context, l models.CreditReading) error {
	if f.failOn == "link-credit" {
		return f.err
	}
	return f.DerivationTx.InsertCreditReading(ctx, l)
}

func TestIngestRollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		co2    float64
		err    error
		kind   apperr.Kind
	}{
		{"alert insert", "alert", 1250, errors.New("disk full"), apperr.KindDerivationFailed},
		{"alert link", "link-alert", 1250, errors.New("constraint"), apperr.KindDerivationFailed},
		{"credit link", "link-credit", 850, repository.ErrUnavailable, apperr.KindStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t)
			o := newOrchestrator(&failingStore{Store: store, failOn: tt.failOn, err: tt.err})

			_, err := o.Ingest(context.Background(), reading("r1", tt.co2))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, tt.kind))
			assert.True(t, apperr.Retryable(err))
			assert.Equal(t, memstore.Counts{}, store.Counts())

			// Retrying with the same id after recovery derives normally.
			res, err := newOrchestrator(store).Ingest(context.Background(), reading("r1", tt.co2))
			require.NoError(t, err)
			assert.False(t, res.Duplicate)
		})
	}
}

func TestIngestTimeoutIsStoreUnavailable(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Ingest(ctx, reading("r1", 850))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStoreUnavailable))
	assert.Equal(t, memstore.Counts{}, store.Counts())
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []models.Alert
	reads  []models.Reading
}

func (s *recordingSink) AlertRaised(a models.Alert, r models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	s.reads = append(s.reads, r)
}

func TestIngestNotifiesSinkAfterCommit(t *testing.T) {
	store := seededStore(t)
	sink := &recordingSink{}
	o := newOrchestrator(store, WithAlertSink(sink))
	ctx := context.Background()

	_, err := o.Ingest(ctx, reading("r1", 850))
	require.NoError(t, err)
	res, err := o.Ingest(ctx, reading("r2", 1500))
	require.NoError(t, err)
	_, err = o.Ingest(ctx, reading("r2", 1500))
	require.NoError(t, err)

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, res.Alert.ID, sink.alerts[0].ID)
	require.NotNil(t, sink.reads[0].AlertID)
	assert.Equal(t, res.Alert.ID, *sink.reads[0].AlertID)

	failing := newOrchestrator(&failingStore{Store: store, failOn: "link-alert", err: errors.New("boom")}, WithAlertSink(sink))
	_, err = failing.Ingest(ctx, reading("r3", 1500))
	require.Error(t, err)
	assert.Len(t, sink.alerts, 1)
}

func TestEveryCreditHasExactlyOneLink(t *testing.T) {
	store := seededStore(t)
	o := newOrchestrator(store)
	for i, co2 := range []float64{100, 400, 999, 1000, 1001, 700} {
		_, err := o.Ingest(context.Background(), reading(fmt.Sprintf("r%d", i), co2))
		require.NoError(t, err)
	}
	perCredit := map[string]int{}
	for _, l := range store.Links() {
		perCredit[l.CreditID]++
	}
	assert.Len(t, perCredit, store.Counts().Credits)
	for id, n := range perCredit {
		assert.Equal(t, 1, n, "credit %s", id)
	}
	assert.Equal(t, 5, store.Counts().Credits)
	assert.Equal(t, 1, store.Counts().Alerts)
}

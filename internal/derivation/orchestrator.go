package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/ids"
	"emission-service/internal/logging"
	"emission-service/internal/metrics"
	"emission-service/internal/models"
	"emission-service/internal/repository"
)

// DefaultTimeout bounds one derivation when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ThresholdSource resolves the emission ceiling that applies to a sensor.
type ThresholdSource interface {
	Threshold(ctx context.Context, sensorID string) (float64, error)
}

// StaticThreshold applies one threshold to every sensor.
type StaticThreshold float64

func (t StaticThreshold) Threshold(context.Context, string) (float64, error) {
	return float64(t), nil
}

// AlertSink receives alerts once their derivation has committed. It must not
// block.
type AlertSink interface {
	AlertRaised(alert models.Alert, reading models.Reading)
}

// Result describes what one Ingest call produced.
type Result struct {
	ReadingID string
	// Duplicate is set when the reading id had already been ingested; nothing
	// new was derived.
	Duplicate bool
	Alert     *models.Alert
	Credit    *models.Credit
}

// Orchestrator stores a reading and derives its alert or credit in a single
// transaction.
type Orchestrator struct {
	store      repository.Store
	thresholds ThresholdSource
	logger     *logging.Logger
	ids        ids.Generator
	now        func() time.Time
	timeout    time.Duration
	sink       AlertSink
	metrics    *metrics.Metrics
}

type Option func(*Orchestrator)

func WithIDs(g ids.Generator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithAlertSink(s AlertSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New constructs an Orchestrator.
func New(store repository.Store, thresholds ThresholdSource, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		thresholds: thresholds,
		logger:     logger,
		ids:        ids.UUIDv7{},
		now:        time.Now,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ingest persists r and runs its derivation. r must already be validated and
// carry its final id; re-submitting the same id after a failure is safe and
// after a success returns a Duplicate result.
func (o *Orchestrator) Ingest(ctx context.Context, r models.Reading) (Result, error) {
	start := o.now()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	threshold, err := o.thresholds.Threshold(ctx, r.SensorID)
	if err != nil {
		o.metrics.Reading(metrics.ResultFailed)
		return Result{}, o.fail(r, fmt.Errorf("resolve threshold: %w", err))
	}

	var res Result
	err = o.store.WithTx(ctx, func(ctx context.Context, tx repository.DerivationTx) error {
		res = Result{ReadingID: r.ID}
		reading := r
		inserted, err := tx.InsertReading(ctx, &reading)
		if err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
		if !inserted {
			res.Duplicate = true
			return nil
		}
		return o.derive(ctx, tx, &reading, threshold, &res)
	})
	if err != nil {
		o.metrics.Reading(metrics.ResultFailed)
		return Result{}, o.fail(r, err)
	}
	o.metrics.Derivation(o.now().Sub(start))

	if res.Duplicate {
		o.metrics.Reading(metrics.ResultDuplicate)
		o.logger.Infof("Reading %s already ingested, skipping derivation", r.ID)
		return res, nil
	}

	o.metrics.Reading(metrics.ResultAccepted)
	if res.Alert != nil {
		o.metrics.Alert(string(res.Alert.Severity))
		o.logger.Warnf("Alert %s (%s) raised for reading %s on sensor %s: %s",
			res.Alert.ID, res.Alert.Severity, r.ID, r.SensorID, res.Alert.Message)
		if o.sink != nil {
			linked := r
			linked.AlertID = &res.Alert.ID
			o.sink.AlertRaised(*res.Alert, linked)
		}
	}
	if res.Credit != nil {
		o.metrics.Credit(string(res.Credit.Status))
		o.logger.Debugf("Credit %s (%s, %v) derived from reading %s",
			res.Credit.ID, res.Credit.Status, res.Credit.Amount, r.ID)
	}
	return res, nil
}

// derive runs inside the transaction. A breach produces an alert and no
// credit; a compliant reading produces one credit and its link.
func (o *Orchestrator) derive(ctx context.Context, tx repository.DerivationTx, r *models.Reading, threshold float64, res *Result) error {
	decision, err := ClassifyAlert(r.CO2Value, threshold)
	if err != nil {
		return err
	}
	if decision != nil {
		owner, err := tx.SensorOwner(ctx, r.SensorID)
		if err != nil {
			return fmt.Errorf("resolve owner of sensor %s: %w", r.SensorID, err)
		}
		alert := &models.Alert{
			ID:        o.ids.NewID(),
			Type:      models.AlertTypeHighEmission,
			Threshold: threshold,
			Value:     r.CO2Value,
			Message:   decision.Message,
			Severity:  decision.Severity,
			UserID:    owner,
			CreatedAt: o.now().UTC(),
		}
		if err := tx.InsertAlert(ctx, alert); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		if err := tx.LinkAlert(ctx, r.ID, alert.ID); err != nil {
			return fmt.Errorf("link alert %s: %w", alert.ID, err)
		}
		r.AlertID = &alert.ID
		res.Alert = alert
		return nil
	}

	cr, err := ComputeCredit(r.CO2Value, threshold)
	if err != nil {
		return err
	}
	credit := &models.Credit{
		ID:            o.ids.NewID(),
		CalculatedAt:  o.now().UTC(),
		EmissionValue: r.CO2Value,
		AllowedLimit:  threshold,
		Amount:        cr.Amount,
		Status:        cr.Status,
	}
	if err := tx.InsertCredit(ctx, credit); err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	link := models.CreditReading{
		CreditID:     credit.ID,
		ReadingID:    r.ID,
		WeightFactor: 1.0,
		Included:     true,
	}
	if err := tx.InsertCreditReading(ctx, link); err != nil {
		return fmt.Errorf("link credit %s: %w", credit.ID, err)
	}
	res.Credit = credit
	return nil
}

func (o *Orchestrator) fail(r models.Reading, err error) error {
	o.logger.Errorf("Derivation for reading %s (sensor %s) rolled back: %v", r.ID, r.SensorID, err)
	wrapped := fmt.Errorf("derive reading %s: %w", r.ID, err)
	switch {
	case errors.Is(err, ErrInvalidInput):
		return apperr.Validation("reading values must be finite numbers", wrapped)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Validation("unknown sensor", wrapped)
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperr.StoreUnavailable("store unavailable, retry later", wrapped)
	default:
		return apperr.DerivationFailed("derivation failed, retry with the same reading id", wrapped)
	}
}

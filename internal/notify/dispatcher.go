// Package notify delivers committed alerts to operators outside the API.
package notify

import (
	"context"
	"sync"
	"time"

	"emission-service/internal/logging"
	"emission-service/internal/metrics"
	"emission-service/internal/models"
)

// Notification outcomes recorded in metrics.
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
	OutcomeFiltered = "filtered"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert, reading models.Reading) error
}

type task struct {
	alert   models.Alert
	reading models.Reading
}

type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	MinSeverity models.Severity
	// SendTimeout bounds one delivery including its retries.
	SendTimeout time.Duration
}

// Dispatcher queues alerts and hands them to a Notifier on a worker pool.
// Queueing never blocks; alerts are dropped when the queue is full.
type Dispatcher struct {
	notifier Notifier
	logger   *logging.Logger
	metrics  *metrics.Metrics
	cfg      DispatcherConfig
	tasks    chan task
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, logger *logging.Logger, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = models.SeverityHigh
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		notifier: n,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		tasks:    make(chan task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop cancels pending deliveries and waits for the workers.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// AlertRaised enqueues alert for delivery if it meets the minimum severity.
func (d *Dispatcher) AlertRaised(alert models.Alert, reading models.Reading) {
	if alert.Severity.Rank() < d.cfg.MinSeverity.Rank() {
		d.metrics.Notification(OutcomeFiltered)
		return
	}
	select {
	case d.tasks <- task{alert: alert, reading: reading}:
		d.logger.Debugf("Queued notification for alert %s", alert.ID)
	default:
		d.metrics.Notification(OutcomeDropped)
		d.logger.Errorf("Queue full, dropping notification for alert %s", alert.ID)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debugf("Notification worker %d stopped", id)
			return
		case t := <-d.tasks:
			d.deliver(t)
		}
	}
}

func (d *Dispatcher) deliver(t task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.notifier.Notify(ctx, t.alert, t.reading); err != nil {
		d.metrics.Notification(OutcomeFailed)
		d.logger.Errorf("Notification for alert %s (user %s) failed: %v", t.alert.ID, t.alert.UserID, err)
		return
	}
	d.metrics.Notification(OutcomeSent)
	d.logger.Infof("Notification for alert %s sent", t.alert.ID)
}

package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/derivation"
	"emission-service/internal/logging"
	"emission-service/internal/metrics"
	"emission-service/internal/models"
	"emission-service/internal/utils"
)

// ErrStopped is returned by Submit once the pipeline is shutting down.
var ErrStopped = errors.New("ingest pipeline stopped")

// Deriver is the derivation step; *derivation.Orchestrator implements it.
type Deriver interface {
	Ingest(ctx context.Context, r models.Reading) (derivation.Result, error)
}

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Pipeline runs derivations on a fixed set of workers. Each worker owns one
// queue and readings are routed by sensor id, so one sensor's readings are
// derived in submission order.
type Pipeline struct {
	validator *Validator
	deriver   Deriver
	logger    *logging.Logger
	metrics   *metrics.Metrics
	opts      Options

	shards []chan models.Reading
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewPipeline(v *Validator, d Deriver, logger *logging.Logger, m *metrics.Metrics, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		validator: v,
		deriver:   d,
		logger:    logger,
		metrics:   m,
		opts:      opts,
		shards:    make([]chan models.Reading, opts.Workers),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range p.shards {
		p.shards[i] = make(chan models.Reading, opts.QueueSize)
	}
	return p
}

// Start launches the workers.
func (p *Pipeline) Start() {
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(i, ch)
	}
	p.logger.Infof("Ingest pipeline started with %d workers", len(p.shards))
}

// Submit validates rec and queues it, blocking while the sensor's queue is
// full. It returns the reading id the record will be stored under.
func (p *Pipeline) Submit(ctx context.Context, rec Record) (string, error) {
	reading, _, err := p.validator.Validate(ctx, rec)
	if err != nil {
		p.metrics.Reading(metrics.ResultRejected)
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", ErrStopped
	}
	select {
	case p.shards[p.shard(reading.SensorID)] <- reading:
		return reading.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop closes the queues and waits for queued readings to be derived. When
// ctx expires first, in-flight retries are abandoned.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, ch := range p.shards {
			close(ch)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pipeline) shard(sensorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sensorID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pipeline) worker(id int, queue <-chan models.Reading) {
	defer p.wg.Done()
	for r := range queue {
		p.process(r)
	}
	p.logger.Infof("Ingest worker %d stopped", id)
}

func (p *Pipeline) process(r models.Reading) {
	err := utils.Retry(p.ctx, p.logger, p.opts.MaxAttempts, p.opts.RetryDelay, func() error {
		res, err := p.deriver.Ingest(p.ctx, r)
		if err != nil {
			if !apperr.Retryable(err) {
				return utils.Permanent(err)
			}
			return err
		}
		if res.Duplicate {
			p.logger.Debugf("Reading %s replayed, nothing derived", r.ID)
		}
		return nil
	})
	if err != nil {
		p.logger.Errorf("Dropping reading %s from sensor %s: %v", r.ID, r.SensorID, err)
	}
}

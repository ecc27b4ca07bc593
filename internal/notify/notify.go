// Package notify fans merged matches out to external sinks without blocking the pipeline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/observability"
)

// Sink receives every merged match.
type Sink interface {
	Name() string
	MatchCompleted(ctx context.Context, rec models.MatchRecord) error
}

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	QueueSize int
	// Timeout bounds one delivery to one sink.
	Timeout time.Duration
	Metrics *observability.Metrics
}

// Dispatcher queues records and delivers each one to all sinks concurrently. A failing,
// slow or panicking sink never affects the others or the caller of Publish.
type Dispatcher struct {
	sinks   []Sink
	queue   chan models.MatchRecord
	timeout time.Duration
	metrics *observability.Metrics
}

// NewDispatcher creates a dispatcher for sinks. Call Run to start delivering.
func NewDispatcher(sinks []Sink, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan models.MatchRecord, opts.QueueSize),
		timeout: opts.Timeout,
		metrics: opts.Metrics,
	}
}

// Sinks returns the names of the registered sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish enqueues rec. When the queue is full the record is dropped.
func (d *Dispatcher) Publish(rec models.MatchRecord) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case d.queue <- rec:
	default:
		logger.Warn("Notification queue full, dropping match %s", rec.ID)
		if d.metrics != nil {
			d.metrics.QueueDropped.Inc()
		}
	}
}

// Run delivers queued records until ctx is cancelled, then flushes what is still queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case rec := <-d.queue:
			d.dispatch(ctx, rec)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case rec := <-d.queue:
			d.dispatch(context.Background(), rec)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, rec models.MatchRecord) {
	if err := d.deliver(ctx, rec); err != nil {
		logger.With("match", rec.ID).Error("Failed to deliver match: %v", err)
	}
}

// deliver sends rec to every sink and returns the joined delivery errors.
func (d *Dispatcher) deliver(ctx context.Context, rec models.MatchRecord) error {
	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, s := range d.sinks {
		i, s := i, s
		g.Go(func() error {
			errs[i] = d.send(ctx, s, rec)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, s Sink, rec models.MatchRecord) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
		if err != nil {
			if d.metrics != nil {
				d.metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
			}
			return
		}
		if d.metrics != nil {
			d.metrics.SinkDeliveries.WithLabelValues(s.Name()).Inc()
		}
	}()

	if err := s.MatchCompleted(ctx, rec); err != nil {
		return fmt.Errorf("sink %s: %w", s.Name(), err)
	}
	return nil
}

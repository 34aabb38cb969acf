package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/metrics"
)

// Dispatcher is the single consumer of the event queue. Each event is handed
// to every sender registered for its level, one sender at a time, before the
// next event is taken.
type Dispatcher struct {
	queue        Queue
	registry     *Registry
	logger       *slog.Logger
	sendTimeout  time.Duration
	retryBackoff time.Duration

	running    atomic.Bool
	dispatched atomic.Int64
	failures   atomic.Int64
}

// DispatchStats summarizes what the dispatcher has done since start.
type DispatchStats struct {
	Running      bool  `json:"running"`
	Dispatched   int64 `json:"dispatched"`
	SenderErrors int64 `json:"sender_errors"`
}

// NewDispatcher creates a dispatcher reading from queue. sendTimeout bounds
// each sender invocation; zero means no per-send deadline.
func NewDispatcher(queue Queue, registry *Registry, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		registry:     registry,
		logger:       logger,
		sendTimeout:  sendTimeout,
		retryBackoff: time.Second,
	}
}

// Run consumes events until ctx is cancelled. The registry is frozen on
// entry. Run returns nil on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatcher already running")
	}
	defer d.running.Store(false)

	d.registry.freeze()
	d.logger.Info("dispatcher started", "routes", d.registry.Routes())

	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logShutdown()
				return nil
			}
			d.logger.Error("failed to dequeue event", "error", err)
			select {
			case <-ctx.Done():
				d.logShutdown()
				return nil
			case <-time.After(d.retryBackoff):
			}
			continue
		}

		d.Dispatch(ctx, ev)
		d.updateQueueDepth(ctx)
	}
}

// Dispatch runs every sender registered for the event's level in order.
// Sender failures are logged and do not stop the remaining senders.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.Event) {
	senders := d.registry.Senders(ev.Level)
	if len(senders) == 0 {
		metrics.EventsUnroutedTotal.WithLabelValues(ev.Level.String()).Inc()
		d.logger.Debug("no senders for level",
			"level", ev.Level.String(),
			"event_id", ev.EventID,
			"envelope_id", ev.EnvelopeID,
		)
		return
	}

	for _, s := range senders {
		start := time.Now()
		err := d.send(ctx, s, ev)
		elapsed := time.Since(start)

		metrics.DispatchDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())
		if err != nil {
			d.failures.Add(1)
			metrics.DispatchTotal.WithLabelValues(s.Name(), ev.Level.String(), "error").Inc()
			d.logger.Warn("sender failed",
				"sender", s.Name(),
				"level", ev.Level.String(),
				"event_id", ev.EventID,
				"envelope_id", ev.EnvelopeID,
				"project_id", ev.Project.ID,
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
			continue
		}

		metrics.DispatchTotal.WithLabelValues(s.Name(), ev.Level.String(), "success").Inc()
		d.logger.Debug("event sent",
			"sender", s.Name(),
			"level", ev.Level.String(),
			"event_id", ev.EventID,
			"envelope_id", ev.EnvelopeID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	d.dispatched.Add(1)
}

// send invokes one sender, converting a panic into an error.
func (d *Dispatcher) send(ctx context.Context, s Sender, ev *domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender %s panicked: %v", s.Name(), r)
		}
	}()

	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	return s.Send(ctx, ev)
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Running:      d.running.Load(),
		Dispatched:   d.dispatched.Load(),
		SenderErrors: d.failures.Load(),
	}
}

// Len reports the number of events waiting in the queue.
func (d *Dispatcher) Len(ctx context.Context) (int64, error) {
	return d.queue.Len(ctx)
}

// Routes lists the registered sender names per level.
func (d *Dispatcher) Routes() map[string][]string {
	return d.registry.Routes()
}

func (d *Dispatcher) updateQueueDepth(ctx context.Context) {
	n, err := d.queue.Len(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(n))
}

func (d *Dispatcher) logShutdown() {
	// The run context is already cancelled here.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pending, err := d.queue.Len(ctx)
	if err != nil {
		d.logger.Info("dispatcher stopping", "dispatched", d.dispatched.Load())
		return
	}
	d.logger.Info("dispatcher stopping",
		"dispatched", d.dispatched.Load(),
		"pending", pending,
	)
}

package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// HandleFunc processes one claimed event. It mutates the event to its
// final status before returning; a non-nil error tells the source to roll
// the document writes back to the savepoint while keeping the status
// update.
type HandleFunc func(ctx context.Context, ev *outbox.Event) error

// OutboxSource claims due events with row locks so concurrent workers
// never process the same event twice.
type OutboxSource interface {
	// ProcessNext claims the next due event FOR UPDATE SKIP LOCKED inside
	// one transaction, runs handle under a savepoint, persists the event's
	// mutated status fields, and commits. False when nothing is due.
	ProcessNext(ctx context.Context, handle HandleFunc) (bool, error)
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// DefaultDispatcherConfig returns default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    100,
		MaxAttempts:  outbox.DefaultMaxAttempts,
	}
}

// Dispatcher drains the outbox in the background, routing each event to
// the builder registered for its type.
type Dispatcher struct {
	source   OutboxSource
	builders map[outbox.EventType]Builder
	config   DispatcherConfig
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given builders registered.
func NewDispatcher(source OutboxSource, config DispatcherConfig, logger *zap.Logger, builders ...Builder) *Dispatcher {
	registry := make(map[outbox.EventType]Builder, len(builders))
	for _, b := range builders {
		registry[b.EventType()] = b
	}
	return &Dispatcher{
		source:   source,
		builders: registry,
		config:   config,
		logger:   logger,
	}
}

// Start starts the background polling loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.pollLoop(ctx)

	d.logger.Info("dispatcher started",
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Int("batch_size", d.config.BatchSize),
		zap.Int("max_attempts", d.config.MaxAttempts),
	)
	return nil
}

// Stop gracefully stops the dispatcher, waiting for the in-flight event.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain processes due events one at a time until the batch budget is
// spent or the outbox is empty.
func (d *Dispatcher) drain(ctx context.Context) {
	for i := 0; i < d.config.BatchSize; i++ {
		if ctx.Err() != nil {
			return
		}
		claimed, err := d.source.ProcessNext(ctx, d.dispatch)
		if err != nil {
			d.logger.Error("failed to claim next event", zap.Error(err))
			return
		}
		if !claimed {
			return
		}
	}
}

// dispatch routes one claimed event to its builder and settles the
// event's status. Every failure counts against the attempt budget; there
// is no separate non-retryable path, dead-lettering at the budget covers
// permanently broken events.
func (d *Dispatcher) dispatch(ctx context.Context, ev *outbox.Event) error {
	now := time.Now().UTC()

	builder, ok := d.builders[ev.EventType]
	if !ok {
		err := shared.NewValidationError("UNKNOWN_EVENT_TYPE",
			fmt.Sprintf("no builder registered for event type %q", ev.EventType))
		d.fail(ev, now, err)
		return err
	}

	result, err := builder.Process(ctx, ev)
	if err != nil {
		d.fail(ev, now, err)
		return err
	}

	ev.MarkProcessed(now)
	for _, diag := range result.Diagnostics {
		d.logger.Warn("event diagnostic",
			zap.String("event_id", ev.ID.String()),
			zap.String("event_type", string(ev.EventType)),
			zap.String("diagnostic", diag),
		)
	}
	d.logger.Info("event processed",
		zap.String("event_id", ev.ID.String()),
		zap.String("event_type", string(ev.EventType)),
		zap.String("status", result.Status),
		zap.String("document_id", result.DocumentID.String()),
	)
	return nil
}

func (d *Dispatcher) fail(ev *outbox.Event, now time.Time, cause error) {
	ev.MarkFailed(now, cause, d.config.MaxAttempts)
	if ev.IsDead() {
		d.logger.Warn("event moved to dead letter queue",
			zap.String("event_id", ev.ID.String()),
			zap.String("event_type", string(ev.EventType)),
			zap.Int("attempt_count", ev.AttemptCount),
			zap.String("last_error", ev.ErrorMessage),
		)
		return
	}
	d.logger.Error("event failed, scheduled for retry",
		zap.String("event_id", ev.ID.String()),
		zap.String("event_type", string(ev.EventType)),
		zap.Int("attempt_count", ev.AttemptCount),
		zap.Timep("next_attempt_at", ev.NextAttemptAt),
		zap.Error(cause),
	)
}

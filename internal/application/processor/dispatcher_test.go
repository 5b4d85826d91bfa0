package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahtrading/posledger/internal/domain/outbox"
)

// stubBuilder is a canned Builder for dispatcher tests.
type stubBuilder struct {
	eventType outbox.EventType
	result    Result
	err       error
	calls     int
}

func (s *stubBuilder) EventType() outbox.EventType { return s.eventType }

func (s *stubBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	s.calls++
	return s.result, s.err
}

// queueSource feeds queued events to the dispatch handler, persisting only
// the mutated in-memory event the way the transactional source does.
type queueSource struct {
	events []*outbox.Event
}

func (q *queueSource) ProcessNext(ctx context.Context, handle HandleFunc) (bool, error) {
	if len(q.events) == 0 {
		return false, nil
	}
	ev := q.events[0]
	q.events = q.events[1:]
	// A handler error only rolls back the document writes; the event's
	// status fields persist regardless.
	_ = handle(ctx, ev)
	return true, nil
}

func testEvent(eventType outbox.EventType) *outbox.Event {
	return &outbox.Event{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		Status:    outbox.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatcherMarksProcessed(t *testing.T) {
	builder := &stubBuilder{
		eventType: outbox.EventSaleCompleted,
		result:    Result{Status: StatusProcessed, DocumentID: uuid.New()},
	}
	ev := testEvent(outbox.EventSaleCompleted)
	source := &queueSource{events: []*outbox.Event{ev}}

	d := NewDispatcher(source, DefaultDispatcherConfig(), zap.NewNop(), builder)
	d.drain(context.Background())

	assert.Equal(t, 1, builder.calls)
	assert.Equal(t, outbox.StatusProcessed, ev.Status)
	require.NotNil(t, ev.ProcessedAt)
	assert.Nil(t, ev.NextAttemptAt)
}

func TestDispatcherSchedulesRetryOnFailure(t *testing.T) {
	builder := &stubBuilder{
		eventType: outbox.EventSaleCompleted,
		err:       errors.New("db unavailable"),
	}
	ev := testEvent(outbox.EventSaleCompleted)
	source := &queueSource{events: []*outbox.Event{ev}}

	d := NewDispatcher(source, DefaultDispatcherConfig(), zap.NewNop(), builder)
	d.drain(context.Background())

	assert.Equal(t, outbox.StatusFailed, ev.Status)
	assert.Equal(t, 1, ev.AttemptCount)
	assert.Equal(t, "db unavailable", ev.ErrorMessage)
	require.NotNil(t, ev.NextAttemptAt)
	assert.True(t, ev.NextAttemptAt.After(time.Now().UTC()))
}

func TestDispatcherDeadLettersAtAttemptBudget(t *testing.T) {
	builder := &stubBuilder{
		eventType: outbox.EventSaleCompleted,
		err:       errors.New("permanently broken"),
	}
	ev := testEvent(outbox.EventSaleCompleted)
	ev.AttemptCount = outbox.DefaultMaxAttempts - 1
	source := &queueSource{events: []*outbox.Event{ev}}

	d := NewDispatcher(source, DefaultDispatcherConfig(), zap.NewNop(), builder)
	d.drain(context.Background())

	assert.Equal(t, outbox.StatusDead, ev.Status)
	assert.Nil(t, ev.NextAttemptAt)
}

func TestDispatcherRejectsUnknownEventType(t *testing.T) {
	ev := testEvent("device.heartbeat")
	source := &queueSource{events: []*outbox.Event{ev}}

	d := NewDispatcher(source, DefaultDispatcherConfig(), zap.NewNop())
	d.drain(context.Background())

	assert.Equal(t, outbox.StatusFailed, ev.Status)
	assert.Equal(t, 1, ev.AttemptCount)
	assert.Contains(t, ev.ErrorMessage, "device.heartbeat")
}

func TestDispatcherDrainHonorsBatchSize(t *testing.T) {
	builder := &stubBuilder{
		eventType: outbox.EventSaleCompleted,
		result:    Result{Status: StatusProcessed},
	}
	var events []*outbox.Event
	for i := 0; i < 5; i++ {
		events = append(events, testEvent(outbox.EventSaleCompleted))
	}
	source := &queueSource{events: events}

	config := DefaultDispatcherConfig()
	config.BatchSize = 3
	d := NewDispatcher(source, config, zap.NewNop(), builder)
	d.drain(context.Background())

	assert.Equal(t, 3, builder.calls)
	assert.Len(t, source.events, 2)
}

func TestDispatcherStartStop(t *testing.T) {
	builder := &stubBuilder{
		eventType: outbox.EventSaleCompleted,
		result:    Result{Status: StatusProcessed},
	}
	source := &queueSource{}

	config := DefaultDispatcherConfig()
	config.PollInterval = 10 * time.Millisecond
	d := NewDispatcher(source, config, zap.NewNop(), builder)

	require.NoError(t, d.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Stop(ctx))
}

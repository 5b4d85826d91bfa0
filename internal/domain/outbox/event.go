// Package outbox models the durable event queue written by device sync
// ingestion and drained by the dispatcher.
package outbox

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the dispatcher-visible lifecycle state of an event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// EventType identifies the payload variant carried by an event.
type EventType string

const (
	EventSaleCompleted    EventType = "sale.completed"
	EventSaleReturned     EventType = "sale.returned"
	EventPurchaseReceived EventType = "purchase.received"
	EventPurchaseInvoice  EventType = "purchase.invoice"
	EventCashMovement     EventType = "pos.cash_movement"
)

// DefaultMaxAttempts is the attempt budget before an event goes dead.
const DefaultMaxAttempts = 5

const maxBackoff = 300 * time.Second

// Event is one queued POS event. It is created by ingestion, mutated only
// by the dispatcher, and never deleted; dead is terminal.
type Event struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	DeviceID      *uuid.UUID
	EventType     EventType
	Payload       json.RawMessage
	Status        Status
	AttemptCount  int
	ErrorMessage  string
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// MarkProcessed transitions the event to processed.
func (e *Event) MarkProcessed(now time.Time) {
	e.Status = StatusProcessed
	e.ErrorMessage = ""
	e.NextAttemptAt = nil
	e.ProcessedAt = &now
}

// MarkFailed records a failed attempt. The event becomes dead once the
// attempt budget is exhausted, otherwise it schedules the next retry.
func (e *Event) MarkFailed(now time.Time, cause error, maxAttempts int) {
	e.AttemptCount++
	e.ErrorMessage = cause.Error()
	if e.AttemptCount >= maxAttempts {
		e.Status = StatusDead
		e.NextAttemptAt = nil
		return
	}
	e.Status = StatusFailed
	next := now.Add(RetryDelay(e.AttemptCount, e.ID))
	e.NextAttemptAt = &next
}

// IsDead reports whether the event reached its terminal failure state.
func (e *Event) IsDead() bool {
	return e.Status == StatusDead
}

// RetryDelay computes the backoff before the given attempt number may run
// again: exponential, capped at five minutes, plus a deterministic
// per-event jitter to break up synchronized retry storms.
func RetryDelay(attemptCount int, eventID uuid.UUID) time.Duration {
	exp := attemptCount - 1
	if exp < 0 {
		exp = 0
	}
	delay := maxBackoff
	if exp < 9 { // 2^9s already exceeds the cap
		delay = time.Duration(1<<uint(exp)) * time.Second
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}

	window := delay / (5 * time.Second)
	if window < 1 {
		window = 1
	}
	if window > 30 {
		window = 30
	}
	digest := sha1.Sum([]byte(fmt.Sprintf("%s:%d", eventID, attemptCount)))
	jitter := time.Duration(binary.BigEndian.Uint32(digest[:4])%(uint32(window)+1)) * time.Second

	if delay+jitter > maxBackoff {
		return maxBackoff
	}
	return delay + jitter
}

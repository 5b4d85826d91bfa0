package processor

import (
	"context"
	"slices"
	"strings"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// CashMovementBuilder records a pos.cash_movement event on the shift's
// operational cash ledger. Cash movements never post to the GL.
type CashMovementBuilder struct {
	ref  ReferenceStore
	docs DocumentStore
}

func NewCashMovementBuilder(ref ReferenceStore, docs DocumentStore) *CashMovementBuilder {
	return &CashMovementBuilder{ref: ref, docs: docs}
}

func (b *CashMovementBuilder) EventType() outbox.EventType { return outbox.EventCashMovement }

func (b *CashMovementBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	decoded, err := payload.Decode(ev.EventType, ev.Payload)
	if err != nil {
		return Result{}, err
	}
	p := decoded.(*payload.CashMovement)

	movementType := strings.ToLower(strings.TrimSpace(p.MovementType))
	if !slices.Contains(payload.CashMovementTypes, movementType) {
		return Result{}, shared.ErrInvalidMovementType
	}

	amount := money.NewDualAmount(p.AmountUSD, p.AmountLBP)
	if amount.IsNegative() {
		return Result{}, shared.ErrNegativeAmount
	}
	if amount.IsZero() {
		return Result{}, shared.ErrAmountRequired
	}

	if ev.DeviceID == nil {
		return Result{}, shared.ErrNoOpenShift
	}
	shiftID, err := b.ref.ResolveOpenShift(ctx, ev.CompanyID, *ev.DeviceID, p.ShiftID)
	if err != nil {
		return Result{}, err
	}
	if shiftID == nil {
		return Result{}, shared.ErrNoOpenShift
	}

	notes := p.Notes
	if notes == "" {
		notes = p.Reference
	}

	// The event id doubles as the row id so redelivery collapses to a
	// no-op insert.
	if err := b.docs.InsertCashMovement(ctx, CashMovementDoc{
		ID:           ev.ID,
		CompanyID:    ev.CompanyID,
		ShiftID:      *shiftID,
		DeviceID:     ev.DeviceID,
		MovementType: movementType,
		Amount:       amount,
		Notes:        notes,
		CashierID:    p.CashierID,
	}); err != nil {
		return Result{}, err
	}

	if err := b.docs.EmitEvent(ctx, ev.CompanyID, EmittedEvent{
		EventType:  "pos.cash_movement",
		SourceType: "cash_movement",
		SourceID:   ev.ID,
		Payload: map[string]any{
			"movement_type": movementType,
			"amount_usd":    amount.USD().String(),
			"amount_lbp":    amount.LBP().String(),
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusProcessed, DocumentID: ev.ID}, nil
}

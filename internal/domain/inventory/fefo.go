// Package inventory holds the batch allocation strategy. Outbound stock is
// drawn first-expired-first-out: soonest expiry first, unexpiring batches
// and the unbatched pool last.
package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/domain/shared"
)

// BatchStock is one batch's on-hand position at a warehouse. A nil BatchID
// is the unbatched pool for items without lot tracking.
type BatchStock struct {
	BatchID    *uuid.UUID
	BatchNo    string
	ExpiryDate *time.Time
	OnHand     decimal.Decimal
}

// Allocation is one slice of an outbound quantity taken from a batch.
// A nil BatchID means the quantity moves from the unbatched pool.
type Allocation struct {
	BatchID *uuid.UUID
	Qty     decimal.Decimal
}

// AllocateRequest describes one outbound allocation.
type AllocateRequest struct {
	Qty decimal.Decimal

	// MinExpiry excludes batches expiring before the given date. Batches
	// without an expiry date always qualify.
	MinExpiry *time.Time

	// AllowUnbatchedRemainder lets unexhausted demand fall onto the
	// unbatched pool, preserving behavior for items without lot tracking.
	AllowUnbatchedRemainder bool

	// AllowNegativeStock permits the remainder allocation to drive the
	// pool below zero.
	AllowNegativeStock bool
}

// Allocate splits the requested quantity across eligible batches in FEFO
// order. Eligible means positive on-hand and not excluded by MinExpiry.
func Allocate(req AllocateRequest, stock []BatchStock) ([]Allocation, error) {
	if !req.Qty.IsPositive() {
		return nil, shared.NewValidationError("INVALID_QTY", fmt.Sprintf("allocation quantity must be positive, got %s", req.Qty))
	}

	eligible := make([]BatchStock, 0, len(stock))
	for _, b := range stock {
		if !b.OnHand.IsPositive() {
			continue
		}
		if req.MinExpiry != nil && b.ExpiryDate != nil && b.ExpiryDate.Before(*req.MinExpiry) {
			continue
		}
		eligible = append(eligible, b)
	}

	// Soonest expiry first; nil expiries (including the unbatched pool)
	// drain last.
	sort.SliceStable(eligible, func(i, j int) bool {
		ei, ej := eligible[i].ExpiryDate, eligible[j].ExpiryDate
		switch {
		case ei == nil:
			return false
		case ej == nil:
			return true
		default:
			return ei.Before(*ej)
		}
	})

	remaining := req.Qty
	allocations := make([]Allocation, 0, len(eligible))
	for _, b := range eligible {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.OnHand)
		allocations = append(allocations, Allocation{BatchID: b.BatchID, Qty: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		switch {
		case req.AllowUnbatchedRemainder && req.AllowNegativeStock:
			allocations = append(allocations, Allocation{BatchID: nil, Qty: remaining})
		case !req.AllowNegativeStock:
			return nil, shared.ErrInsufficientStock
		default:
			return nil, shared.ErrInsufficientBatchStock
		}
	}

	return allocations, nil
}

// ValidateExplicitPick checks a manually selected batch instead of running
// FEFO. Explicit selection always wins over automatic allocation, but the
// batch must still carry the quantity and meet the shelf-life floor.
func ValidateExplicitPick(batch BatchStock, qty decimal.Decimal, minExpiry *time.Time, allowNegativeStock bool) error {
	if !qty.IsPositive() {
		return shared.NewValidationError("INVALID_QTY", fmt.Sprintf("allocation quantity must be positive, got %s", qty))
	}
	if minExpiry != nil && batch.ExpiryDate != nil && batch.ExpiryDate.Before(*minExpiry) {
		return shared.ErrBatchBelowMinShelfLife
	}
	if !allowNegativeStock && batch.OnHand.LessThan(qty) {
		return shared.ErrInsufficientBatchStock
	}
	return nil
}

// NegativeStockPolicy carries the per-scope overrides for driving stock
// below zero. The most specific non-nil value wins; the company default is
// permissive when unset.
type NegativeStockPolicy struct {
	Warehouse *bool
	Item      *bool
	Company   *bool
}

// Allow resolves the effective policy.
func (p NegativeStockPolicy) Allow() bool {
	if p.Warehouse != nil {
		return *p.Warehouse
	}
	if p.Item != nil {
		return *p.Item
	}
	if p.Company != nil {
		return *p.Company
	}
	return true
}

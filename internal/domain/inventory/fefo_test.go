package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtrading/posledger/internal/domain/shared"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func batch(expiry *time.Time, onHand string) BatchStock {
	id := uuid.New()
	return BatchStock{BatchID: &id, ExpiryDate: expiry, OnHand: qty(onHand)}
}

func TestAllocateFEFOOrdering(t *testing.T) {
	jan := batch(day("2024-01-01"), "5")
	feb := batch(day("2024-02-01"), "10")

	allocs, err := Allocate(AllocateRequest{Qty: qty("7")}, []BatchStock{feb, jan})
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, *jan.BatchID, *allocs[0].BatchID)
	assert.True(t, qty("5").Equal(allocs[0].Qty))
	assert.Equal(t, *feb.BatchID, *allocs[1].BatchID)
	assert.True(t, qty("2").Equal(allocs[1].Qty))
}

func TestAllocateNilExpiryDrainsLast(t *testing.T) {
	noExpiry := batch(nil, "100")
	mar := batch(day("2024-03-01"), "3")

	allocs, err := Allocate(AllocateRequest{Qty: qty("4")}, []BatchStock{noExpiry, mar})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, *mar.BatchID, *allocs[0].BatchID)
	assert.Equal(t, *noExpiry.BatchID, *allocs[1].BatchID)
	assert.True(t, qty("1").Equal(allocs[1].Qty))
}

func TestAllocateMinExpiryFilter(t *testing.T) {
	soon := batch(day("2024-01-10"), "5")
	later := batch(day("2024-06-01"), "5")

	allocs, err := Allocate(AllocateRequest{
		Qty:       qty("5"),
		MinExpiry: day("2024-02-01"),
	}, []BatchStock{soon, later})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, *later.BatchID, *allocs[0].BatchID)
}

func TestAllocateSkipsNonPositiveOnHand(t *testing.T) {
	empty := batch(day("2024-01-01"), "0")
	negative := batch(day("2024-01-02"), "-3")
	good := batch(day("2024-02-01"), "10")

	allocs, err := Allocate(AllocateRequest{Qty: qty("4")}, []BatchStock{empty, negative, good})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, *good.BatchID, *allocs[0].BatchID)
}

func TestAllocateNegativeStockGating(t *testing.T) {
	onHand := []BatchStock{batch(day("2024-02-01"), "4")}

	t.Run("disallowed raises insufficient stock", func(t *testing.T) {
		_, err := Allocate(AllocateRequest{
			Qty:                     qty("10"),
			AllowUnbatchedRemainder: true,
			AllowNegativeStock:      false,
		}, onHand)
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})

	t.Run("allowed emits unbatched remainder", func(t *testing.T) {
		allocs, err := Allocate(AllocateRequest{
			Qty:                     qty("10"),
			AllowUnbatchedRemainder: true,
			AllowNegativeStock:      true,
		}, onHand)
		require.NoError(t, err)
		require.Len(t, allocs, 2)
		assert.Nil(t, allocs[1].BatchID)
		assert.True(t, qty("6").Equal(allocs[1].Qty))
	})

	t.Run("batch-tracked remainder not allowed unbatched", func(t *testing.T) {
		_, err := Allocate(AllocateRequest{
			Qty:                     qty("10"),
			AllowUnbatchedRemainder: false,
			AllowNegativeStock:      true,
		}, onHand)
		assert.ErrorIs(t, err, shared.ErrInsufficientBatchStock)
	})
}

func TestAllocateRejectsNonPositiveQty(t *testing.T) {
	_, err := Allocate(AllocateRequest{Qty: qty("0")}, nil)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestValidateExplicitPick(t *testing.T) {
	b := batch(day("2024-01-15"), "5")

	t.Run("sufficient stock passes", func(t *testing.T) {
		assert.NoError(t, ValidateExplicitPick(b, qty("5"), nil, false))
	})

	t.Run("short batch fails without negative stock", func(t *testing.T) {
		err := ValidateExplicitPick(b, qty("6"), nil, false)
		assert.ErrorIs(t, err, shared.ErrInsufficientBatchStock)
	})

	t.Run("short batch passes with negative stock", func(t *testing.T) {
		assert.NoError(t, ValidateExplicitPick(b, qty("6"), nil, true))
	})

	t.Run("shelf life floor enforced", func(t *testing.T) {
		err := ValidateExplicitPick(b, qty("1"), day("2024-02-01"), true)
		assert.ErrorIs(t, err, shared.ErrBatchBelowMinShelfLife)
	})
}

func TestNegativeStockPolicyPrecedence(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name   string
		policy NegativeStockPolicy
		want   bool
	}{
		{"warehouse override wins", NegativeStockPolicy{Warehouse: &no, Item: &yes, Company: &yes}, false},
		{"item override when warehouse unset", NegativeStockPolicy{Item: &no, Company: &yes}, false},
		{"company default when others unset", NegativeStockPolicy{Company: &no}, false},
		{"permissive when nothing set", NegativeStockPolicy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Allow())
		})
	}
}

package payload

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

func TestDecodeSaleCompleted(t *testing.T) {
	raw := json.RawMessage(`{
		"invoice_no": "INV-001",
		"exchange_rate": "89500",
		"settlement_currency": "USD",
		"warehouse_id": "3e6f4041-95a0-471f-a6ee-6e2a2c2d3f61",
		"customer_id": "b2a4a4dd-0e4f-4f9d-9a63-5a4b71c5c111",
		"lines": [
			{"item_id": "8478b9b7-1f41-4b86-bbd6-0f3b7dbb2a10", "qty": "2",
			 "unit_price_usd": "10", "line_total_usd": "20", "line_total_lbp": "1790000",
			 "expiry_date": "2024-06-01T00:00:00Z"}
		],
		"tax": {"tax_code_id": "6a0ff0cf-55aa-4a96-b4a7-06a3a3b7c222",
		        "base_usd": "20", "tax_usd": "1", "tax_lbp": "89500"},
		"payments": [
			{"method": "cash", "amount_usd": "19"},
			{"method": "credit", "amount_usd": "2"}
		]
	}`)

	got, err := Decode(outbox.EventSaleCompleted, raw)
	require.NoError(t, err)

	sale, ok := got.(*SaleCompleted)
	require.True(t, ok)
	assert.Equal(t, "INV-001", sale.InvoiceNo)
	assert.True(t, decimal.RequireFromString("89500").Equal(sale.ExchangeRate))
	require.Len(t, sale.Lines, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(sale.Lines[0].Qty))
	require.NotNil(t, sale.Lines[0].ExpiryDate)
	assert.Equal(t, "2024-06-01", sale.Lines[0].ExpiryDate.Format("2006-01-02"))
	require.Len(t, sale.Payments, 2)
	assert.Equal(t, "credit", sale.Payments[1].Method)
	require.NotNil(t, sale.Tax)
	assert.True(t, decimal.NewFromInt(1).Equal(sale.Tax.TaxUSD))
}

func TestDecodeSaleReturned(t *testing.T) {
	raw := json.RawMessage(`{
		"warehouse_id": "3e6f4041-95a0-471f-a6ee-6e2a2c2d3f61",
		"invoice_id": "71b6f3a3-7c0e-4b3e-b9ff-226de4a3ab01",
		"refund_method": "cash",
		"restocking_fee_usd": "1.50",
		"lines": [{"item_id": "8478b9b7-1f41-4b86-bbd6-0f3b7dbb2a10", "qty": "1",
		           "line_total_usd": "10", "line_total_lbp": "895000"}],
		"payments": []
	}`)

	got, err := Decode(outbox.EventSaleReturned, raw)
	require.NoError(t, err)

	ret, ok := got.(*SaleReturned)
	require.True(t, ok)
	require.NotNil(t, ret.InvoiceID)
	assert.Equal(t, "cash", ret.RefundMethod)
	require.NotNil(t, ret.RestockingFeeUSD)
	assert.True(t, decimal.RequireFromString("1.5").Equal(*ret.RestockingFeeUSD))
}

func TestDecodeCashMovement(t *testing.T) {
	t.Run("valid movement", func(t *testing.T) {
		// Devices send this type name on the wire; it must stay routable.
		raw := json.RawMessage(`{"movement_type": "safe_drop", "amount_usd": "50", "notes": "end of shift"}`)
		got, err := Decode(outbox.EventType("pos.cash_movement"), raw)
		require.NoError(t, err)
		mv := got.(*CashMovement)
		assert.Equal(t, "safe_drop", mv.MovementType)
	})

	t.Run("mixed-case movement type decodes", func(t *testing.T) {
		raw := json.RawMessage(`{"movement_type": "Cash_In", "amount_usd": "50"}`)
		got, err := Decode(outbox.EventCashMovement, raw)
		require.NoError(t, err)
		mv := got.(*CashMovement)
		assert.Equal(t, "Cash_In", mv.MovementType)
	})

	t.Run("missing movement type rejected", func(t *testing.T) {
		raw := json.RawMessage(`{"amount_usd": "50"}`)
		_, err := Decode(outbox.EventCashMovement, raw)
		require.Error(t, err)
		assert.True(t, shared.IsValidation(err))
	})
}

func TestDecodePurchaseInvoice(t *testing.T) {
	raw := json.RawMessage(`{
		"warehouse_id": "3e6f4041-95a0-471f-a6ee-6e2a2c2d3f61",
		"supplier_id": "f0a7c7de-8f7e-4c44-86a2-0f6f3bb7d333",
		"invoice_date": "2024-03-15",
		"lines": [{"item_id": "8478b9b7-1f41-4b86-bbd6-0f3b7dbb2a10", "qty": "10",
		           "unit_cost_usd": "4", "unit_cost_lbp": "358000", "line_total_usd": "40"}],
		"tax": {"tax_code_id": "6a0ff0cf-55aa-4a96-b4a7-06a3a3b7c222", "tax_usd": "4.4"}
	}`)

	got, err := Decode(outbox.EventPurchaseInvoice, raw)
	require.NoError(t, err)

	inv := got.(*PurchaseInvoice)
	require.NotNil(t, inv.SupplierID)
	require.NotNil(t, inv.Tax)
	assert.True(t, decimal.RequireFromString("4.4").Equal(inv.Tax.TaxUSD))
	require.NotNil(t, inv.InvoiceDate)
	assert.Equal(t, "2024-03-15", inv.InvoiceDate.Format("2006-01-02"))
}

func TestDecodeRejectsMalformedAndUnknown(t *testing.T) {
	_, err := Decode(outbox.EventSaleCompleted, json.RawMessage(`{"lines": "nope"`))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = Decode(outbox.EventType("inventory.counted"), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

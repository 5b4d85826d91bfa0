package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalize(t *testing.T) {
	rate := d("89500")

	tests := []struct {
		name        string
		usd, lbp    string
		rate        decimal.Decimal
		wantUSD     string
		wantLBP     string
	}{
		{
			name: "derive LBP from USD",
			usd:  "10", lbp: "0", rate: rate,
			wantUSD: "10", wantLBP: "895000",
		},
		{
			name: "derive USD from LBP",
			usd:  "0", lbp: "895000", rate: rate,
			wantUSD: "10", wantLBP: "895000",
		},
		{
			name: "both sides present stay untouched",
			usd:  "10", lbp: "900000", rate: rate,
			wantUSD: "10", wantLBP: "900000",
		},
		{
			name: "zero rate leaves single-sided amount alone",
			usd:  "10", lbp: "0", rate: decimal.Zero,
			wantUSD: "10", wantLBP: "0",
		},
		{
			name: "both zero stays zero",
			usd:  "0", lbp: "0", rate: rate,
			wantUSD: "0", wantLBP: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usd, lbp := Normalize(d(tt.usd), d(tt.lbp), tt.rate)
			assert.True(t, d(tt.wantUSD).Equal(usd), "usd: want %s got %s", tt.wantUSD, usd)
			assert.True(t, d(tt.wantLBP).Equal(lbp), "lbp: want %s got %s", tt.wantLBP, lbp)
		})
	}
}

func TestApplyTender(t *testing.T) {
	rate := d("89500")

	t.Run("mixed tender on USD invoice", func(t *testing.T) {
		// $20 cash plus 89,500 LBP covers a $21 invoice exactly.
		applied, err := ApplyTender(d("20"), d("89500"), rate, USD)
		require.NoError(t, err)
		assert.True(t, d("21").Equal(applied.USD()), "got %s", applied.USD())
		assert.True(t, d("1879500").Equal(applied.LBP()), "got %s", applied.LBP())
	})

	t.Run("mixed tender on LBP invoice", func(t *testing.T) {
		applied, err := ApplyTender(d("1"), d("10500"), rate, LBP)
		require.NoError(t, err)
		assert.True(t, d("100000").Equal(applied.LBP()), "got %s", applied.LBP())
	})

	t.Run("LBP tender without rate on USD invoice fails", func(t *testing.T) {
		_, err := ApplyTender(decimal.Zero, d("89500"), decimal.Zero, USD)
		require.Error(t, err)
	})

	t.Run("zero tender fails", func(t *testing.T) {
		_, err := ApplyTender(decimal.Zero, decimal.Zero, rate, USD)
		require.Error(t, err)
	})

	t.Run("negative tender fails", func(t *testing.T) {
		_, err := ApplyTender(d("-5"), decimal.Zero, rate, USD)
		require.Error(t, err)
	})

	t.Run("unknown settlement currency fails", func(t *testing.T) {
		_, err := ApplyTender(d("5"), decimal.Zero, rate, Currency("EUR"))
		require.Error(t, err)
	})
}

func TestDualAmountArithmetic(t *testing.T) {
	a := NewDualAmount(d("10"), d("895000"))
	b := NewDualAmount(d("2.5"), d("223750"))

	sum := a.Add(b)
	assert.True(t, d("12.5").Equal(sum.USD()))
	assert.True(t, d("1118750").Equal(sum.LBP()))

	diff := a.Sub(b)
	assert.True(t, d("7.5").Equal(diff.USD()))

	scaled := b.MulQty(d("4"))
	assert.True(t, d("10").Equal(scaled.USD()))

	assert.True(t, a.Sub(a).IsZero())
	assert.True(t, a.Neg().IsNegative())
	assert.True(t, a.IsPositive())
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, "1.2346", QuantizeUSD(d("1.23456")).String())
	assert.Equal(t, "89500.46", QuantizeLBP(d("89500.456")).String())
	assert.Equal(t, "0.1235", QuantizePoints(d("0.12345")).String())
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	c, err = ParseCurrency("LBP")
	require.NoError(t, err)
	assert.Equal(t, LBP, c)

	_, err = ParseCurrency("EUR")
	require.Error(t, err)
}

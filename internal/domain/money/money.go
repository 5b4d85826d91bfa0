// Package money models the dual-currency amounts used across the ledger.
// Every monetary fact is carried simultaneously in USD and LBP; the two
// sides are reconciled through an exchange rate when a caller supplied
// only one of them.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a supported settlement currency.
type Currency string

const (
	USD Currency = "USD"
	LBP Currency = "LBP"
)

// ParseCurrency validates and normalizes a currency code. Empty defaults
// to USD for backward compatibility with older POS clients.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case "":
		return USD, nil
	case USD, LBP:
		return Currency(s), nil
	default:
		return "", fmt.Errorf("unsupported currency %q (expected USD or LBP)", s)
	}
}

// Ledger quantization: USD amounts are stored at 4 decimal places,
// LBP at 2, loyalty points at 4.
const (
	usdPlaces    int32 = 4
	lbpPlaces    int32 = 2
	pointsPlaces int32 = 4
)

// Settlement tolerance when deciding whether an invoice is fully paid.
var (
	EpsilonUSD = decimal.RequireFromString("0.01")
	EpsilonLBP = decimal.NewFromInt(100)
)

// QuantizeUSD rounds a USD amount to ledger precision.
func QuantizeUSD(v decimal.Decimal) decimal.Decimal {
	return v.Round(usdPlaces)
}

// QuantizeLBP rounds an LBP amount to ledger precision.
func QuantizeLBP(v decimal.Decimal) decimal.Decimal {
	return v.Round(lbpPlaces)
}

// QuantizePoints rounds a loyalty points quantity to ledger precision.
func QuantizePoints(v decimal.Decimal) decimal.Decimal {
	return v.Round(pointsPlaces)
}

// DualAmount is an immutable USD/LBP amount pair.
type DualAmount struct {
	usd decimal.Decimal
	lbp decimal.Decimal
}

// NewDualAmount creates a DualAmount from both sides.
func NewDualAmount(usd, lbp decimal.Decimal) DualAmount {
	return DualAmount{usd: usd, lbp: lbp}
}

// Zero returns a zero-valued DualAmount.
func Zero() DualAmount {
	return DualAmount{usd: decimal.Zero, lbp: decimal.Zero}
}

// USD returns the USD side.
func (a DualAmount) USD() decimal.Decimal { return a.usd }

// LBP returns the LBP side.
func (a DualAmount) LBP() decimal.Decimal { return a.lbp }

// IsZero reports whether both sides are zero.
func (a DualAmount) IsZero() bool { return a.usd.IsZero() && a.lbp.IsZero() }

// IsNegative reports whether either side is negative.
func (a DualAmount) IsNegative() bool { return a.usd.IsNegative() || a.lbp.IsNegative() }

// IsPositive reports whether either side is positive.
func (a DualAmount) IsPositive() bool { return a.usd.IsPositive() || a.lbp.IsPositive() }

// Add returns the element-wise sum.
func (a DualAmount) Add(other DualAmount) DualAmount {
	return DualAmount{usd: a.usd.Add(other.usd), lbp: a.lbp.Add(other.lbp)}
}

// Sub returns the element-wise difference.
func (a DualAmount) Sub(other DualAmount) DualAmount {
	return DualAmount{usd: a.usd.Sub(other.usd), lbp: a.lbp.Sub(other.lbp)}
}

// Neg returns the amount with both signs reversed.
func (a DualAmount) Neg() DualAmount {
	return DualAmount{usd: a.usd.Neg(), lbp: a.lbp.Neg()}
}

// MulQty scales both sides by a quantity.
func (a DualAmount) MulQty(qty decimal.Decimal) DualAmount {
	return DualAmount{usd: a.usd.Mul(qty), lbp: a.lbp.Mul(qty)}
}

// String renders the pair for logs and error messages.
func (a DualAmount) String() string {
	return fmt.Sprintf("USD %s / LBP %s", a.usd.StringFixed(2), a.lbp.StringFixed(2))
}

// Normalize reconciles a pair where only one side was supplied. When the
// exchange rate is zero the pair is returned untouched; single-sided
// amounts then stay single-sided, matching legacy client behavior.
func Normalize(usd, lbp, exchangeRate decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if exchangeRate.IsZero() {
		return usd, lbp
	}
	if usd.IsZero() && !lbp.IsZero() {
		usd = lbp.Div(exchangeRate)
	} else if lbp.IsZero() && !usd.IsZero() {
		lbp = usd.Mul(exchangeRate)
	}
	return usd, lbp
}

// NormalizeDual is Normalize over a DualAmount.
func NormalizeDual(a DualAmount, exchangeRate decimal.Decimal) DualAmount {
	usd, lbp := Normalize(a.usd, a.lbp, exchangeRate)
	return DualAmount{usd: usd, lbp: lbp}
}

// ApplyTender converts a received tender (what the cashier physically took,
// possibly in both currencies) into the applied settlement value of the
// invoice. The settlement currency side is authoritative; the other side is
// derived through the exchange rate.
func ApplyTender(tenderUSD, tenderLBP, exchangeRate decimal.Decimal, settle Currency) (DualAmount, error) {
	if settle != USD && settle != LBP {
		return DualAmount{}, fmt.Errorf("unsupported settlement currency %q", settle)
	}
	if tenderUSD.IsNegative() || tenderLBP.IsNegative() {
		return DualAmount{}, errors.New("tender amounts must be >= 0")
	}
	if tenderUSD.IsZero() && tenderLBP.IsZero() {
		return DualAmount{}, errors.New("tender amount is required")
	}
	if settle == USD && !tenderLBP.IsZero() && exchangeRate.IsZero() {
		return DualAmount{}, errors.New("exchange rate is required for LBP tender on a USD invoice")
	}
	if settle == LBP && !tenderUSD.IsZero() && exchangeRate.IsZero() {
		return DualAmount{}, errors.New("exchange rate is required for USD tender on an LBP invoice")
	}

	if settle == USD {
		applied := tenderUSD
		if !exchangeRate.IsZero() {
			applied = applied.Add(tenderLBP.Div(exchangeRate))
		}
		usd, lbp := Normalize(QuantizeUSD(applied), decimal.Zero, exchangeRate)
		return DualAmount{usd: usd, lbp: QuantizeLBP(lbp)}, nil
	}

	applied := tenderLBP.Add(tenderUSD.Mul(exchangeRate))
	usd, lbp := Normalize(decimal.Zero, QuantizeLBP(applied), exchangeRate)
	return DualAmount{usd: QuantizeUSD(usd), lbp: lbp}, nil
}

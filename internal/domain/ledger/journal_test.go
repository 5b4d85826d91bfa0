package ledger

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

type stubResolver struct {
	accounts map[AccountRole]uuid.UUID
}

func newStubResolver(roles ...AccountRole) *stubResolver {
	m := make(map[AccountRole]uuid.UUID, len(roles))
	for _, r := range roles {
		m[r] = uuid.New()
	}
	return &stubResolver{accounts: m}
}

func (s *stubResolver) AccountFor(_ uuid.UUID, role AccountRole) (uuid.UUID, error) {
	id, ok := s.accounts[role]
	if !ok {
		return uuid.Nil, shared.ErrMissingAccountMapping
	}
	return id, nil
}

func dual(usd, lbp string) money.DualAmount {
	return money.NewDualAmount(decimal.RequireFromString(usd), decimal.RequireFromString(lbp))
}

func TestBuilderBalancedJournal(t *testing.T) {
	resolver := newStubResolver(RoleCash, RoleSales, RoleVATPayable)
	companyID := uuid.New()

	j, err := NewBuilder(resolver, companyID, "sales_invoice", uuid.New(), "INV-001").
		Debit(RoleCash, dual("11", "984500"), "payment").
		Credit(RoleSales, dual("10", "895000"), "net sales").
		Credit(RoleVATPayable, dual("1", "89500"), "vat 10%").
		Build()

	require.NoError(t, err)
	assert.Len(t, j.Entries, 3)
	assert.True(t, j.TotalDebit().USD().Equal(j.TotalCredit().USD()))
	assert.True(t, j.TotalDebit().LBP().Equal(j.TotalCredit().LBP()))
	assert.Equal(t, companyID, j.CompanyID)
	assert.Equal(t, resolver.accounts[RoleCash], j.Entries[0].AccountID)
}

func TestBuilderRejectsUnbalanced(t *testing.T) {
	resolver := newStubResolver(RoleCash, RoleSales)

	t.Run("unbalanced USD", func(t *testing.T) {
		_, err := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").
			Debit(RoleCash, dual("11", "895000"), "").
			Credit(RoleSales, dual("10", "895000"), "").
			Build()
		require.Error(t, err)
		assert.True(t, shared.IsBusinessRule(err))
	})

	t.Run("unbalanced LBP only", func(t *testing.T) {
		_, err := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").
			Debit(RoleCash, dual("10", "900000"), "").
			Credit(RoleSales, dual("10", "895000"), "").
			Build()
		require.Error(t, err)
		assert.True(t, shared.IsBusinessRule(err))
	})
}

func TestBuilderDropsZeroLegs(t *testing.T) {
	resolver := newStubResolver(RoleCash, RoleSales, RoleVATPayable)

	j, err := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").
		Debit(RoleCash, dual("10", "895000"), "").
		Credit(RoleSales, dual("10", "895000"), "").
		Credit(RoleVATPayable, money.Zero(), "no vat").
		Build()

	require.NoError(t, err)
	assert.Len(t, j.Entries, 2)
}

func TestBuilderMissingMapping(t *testing.T) {
	resolver := newStubResolver(RoleCash) // no SALES mapping

	_, err := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").
		Debit(RoleCash, dual("10", "895000"), "").
		Credit(RoleSales, dual("10", "895000"), "").
		Build()

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrMissingAccountMapping)
}

func TestBuilderRejectsEmptyAndNegative(t *testing.T) {
	resolver := newStubResolver(RoleCash)

	_, err := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").Build()
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "").
		Debit(RoleCash, dual("-5", "0"), "").
		Build()
	require.Error(t, err)
}

// Journals assembled from randomized line sets must balance whenever every
// debit leg has a matching credit total, regardless of line count or scale.
func TestBuilderBalanceProperty(t *testing.T) {
	resolver := newStubResolver(RoleCash, RoleSales)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(8)
		total := money.Zero()
		b := NewBuilder(resolver, uuid.New(), "sales_invoice", uuid.New(), "")
		for k := 0; k < n; k++ {
			amt := dual(
				decimal.NewFromInt(int64(rng.Intn(100000))).Div(decimal.NewFromInt(100)).String(),
				decimal.NewFromInt(int64(rng.Intn(10000000))).String(),
			)
			b.Debit(RoleCash, amt, "")
			total = total.Add(quantize(amt))
		}
		b.Credit(RoleSales, total, "")

		if total.IsZero() {
			_, err := b.Build()
			require.Error(t, err)
			continue
		}
		j, err := b.Build()
		require.NoError(t, err)
		assert.True(t, j.TotalDebit().USD().Equal(j.TotalCredit().USD()))
		assert.True(t, j.TotalDebit().LBP().Equal(j.TotalCredit().LBP()))
	}
}

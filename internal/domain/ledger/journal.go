// Package ledger provides the double-entry journal model. A journal is
// balanced by construction: the builder rejects any journal whose debits
// and credits disagree in either currency.
package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// AccountRole names a posting slot that company configuration maps to a
// concrete GL account.
type AccountRole string

const (
	RoleAccountsReceivable AccountRole = "AR"
	RoleCash               AccountRole = "CASH"
	RoleSales              AccountRole = "SALES"
	RoleSalesReturns       AccountRole = "SALES_RETURNS"
	RoleVATPayable         AccountRole = "VAT_PAYABLE"
	RoleVATRecoverable     AccountRole = "VAT_RECOVERABLE"
	RoleInventory          AccountRole = "INVENTORY"
	RoleCOGS               AccountRole = "COGS"
	RoleAccountsPayable    AccountRole = "AP"
	RoleGRNI               AccountRole = "GRNI"
	RoleRestockFees        AccountRole = "RESTOCK_FEES"
)

// AccountResolver maps a posting role to a GL account id for a company.
// Implementations return shared.ErrMissingAccountMapping-kinded errors
// when no mapping exists; the caller never falls back to a default account.
type AccountResolver interface {
	AccountFor(companyID uuid.UUID, role AccountRole) (uuid.UUID, error)
}

// Entry is one leg of a journal. Exactly one of the debit or credit pairs
// is non-zero.
type Entry struct {
	AccountID uuid.UUID
	Role      AccountRole
	Debit     money.DualAmount
	Credit    money.DualAmount
	Memo      string
}

// Journal is a balanced set of entries posting one source document.
type Journal struct {
	CompanyID  uuid.UUID
	SourceType string
	SourceID   uuid.UUID
	Memo       string
	Entries    []Entry
}

// TotalDebit sums the debit side of all entries.
func (j *Journal) TotalDebit() money.DualAmount {
	total := money.Zero()
	for _, e := range j.Entries {
		total = total.Add(e.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all entries.
func (j *Journal) TotalCredit() money.DualAmount {
	total := money.Zero()
	for _, e := range j.Entries {
		total = total.Add(e.Credit)
	}
	return total
}

// Builder accumulates entries for one journal and verifies balance on
// Build. Amounts are quantized to ledger precision as they are added; zero
// legs are dropped so callers can post conditional amounts without guards.
type Builder struct {
	companyID  uuid.UUID
	sourceType string
	sourceID   uuid.UUID
	memo       string
	resolver   AccountResolver
	entries    []Entry
	err        error
}

// NewBuilder starts a journal for the given source document.
func NewBuilder(resolver AccountResolver, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, memo string) *Builder {
	return &Builder{
		companyID:  companyID,
		sourceType: sourceType,
		sourceID:   sourceID,
		memo:       memo,
		resolver:   resolver,
	}
}

// Debit adds a debit leg for the given role.
func (b *Builder) Debit(role AccountRole, amount money.DualAmount, memo string) *Builder {
	return b.add(role, amount, money.Zero(), memo)
}

// Credit adds a credit leg for the given role.
func (b *Builder) Credit(role AccountRole, amount money.DualAmount, memo string) *Builder {
	return b.add(role, money.Zero(), amount, memo)
}

// DebitAccount adds a debit leg against an already-resolved account, used
// for per-payment-method accounts that bypass role mapping.
func (b *Builder) DebitAccount(accountID uuid.UUID, amount money.DualAmount, memo string) *Builder {
	return b.addAccount(accountID, "", quantize(amount), money.Zero(), memo)
}

// CreditAccount adds a credit leg against an already-resolved account.
func (b *Builder) CreditAccount(accountID uuid.UUID, amount money.DualAmount, memo string) *Builder {
	return b.addAccount(accountID, "", money.Zero(), quantize(amount), memo)
}

func (b *Builder) add(role AccountRole, debit, credit money.DualAmount, memo string) *Builder {
	if b.err != nil {
		return b
	}
	debit, credit = quantize(debit), quantize(credit)
	if debit.IsZero() && credit.IsZero() {
		return b
	}
	accountID, err := b.resolver.AccountFor(b.companyID, role)
	if err != nil {
		b.err = fmt.Errorf("resolve account for role %s: %w", role, err)
		return b
	}
	return b.addAccount(accountID, role, debit, credit, memo)
}

func (b *Builder) addAccount(accountID uuid.UUID, role AccountRole, debit, credit money.DualAmount, memo string) *Builder {
	if b.err != nil {
		return b
	}
	if debit.IsZero() && credit.IsZero() {
		return b
	}
	if debit.IsNegative() || credit.IsNegative() {
		b.err = fmt.Errorf("journal leg for role %q has a negative amount (debit %s, credit %s)", role, debit, credit)
		return b
	}
	b.entries = append(b.entries, Entry{
		AccountID: accountID,
		Role:      role,
		Debit:     debit,
		Credit:    credit,
		Memo:      memo,
	})
	return b
}

// Build validates balance in both currencies and returns the journal.
func (b *Builder) Build() (*Journal, error) {
	if b.err != nil {
		return nil, b.err
	}
	j := &Journal{
		CompanyID:  b.companyID,
		SourceType: b.sourceType,
		SourceID:   b.sourceID,
		Memo:       b.memo,
		Entries:    b.entries,
	}
	if len(j.Entries) == 0 {
		return nil, shared.NewValidationError("EMPTY_JOURNAL", "journal has no entries")
	}
	debit, credit := j.TotalDebit(), j.TotalCredit()
	if !debit.USD().Equal(credit.USD()) {
		return nil, shared.NewBusinessRuleError("UNBALANCED_JOURNAL",
			fmt.Sprintf("journal for %s %s unbalanced in USD: debit %s, credit %s",
				b.sourceType, b.sourceID, debit.USD(), credit.USD()))
	}
	if !debit.LBP().Equal(credit.LBP()) {
		return nil, shared.NewBusinessRuleError("UNBALANCED_JOURNAL",
			fmt.Sprintf("journal for %s %s unbalanced in LBP: debit %s, credit %s",
				b.sourceType, b.sourceID, debit.LBP(), credit.LBP()))
	}
	return j, nil
}

func quantize(a money.DualAmount) money.DualAmount {
	return money.NewDualAmount(money.QuantizeUSD(a.USD()), money.QuantizeLBP(a.LBP()))
}

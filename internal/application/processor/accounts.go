package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// accountMap adapts the company account-default rows to the journal
// builder's resolver port.
type accountMap map[ledger.AccountRole]uuid.UUID

func (m accountMap) AccountFor(_ uuid.UUID, role ledger.AccountRole) (uuid.UUID, error) {
	id, ok := m[role]
	if !ok || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("role %s: %w", role, shared.ErrMissingAccountMapping)
	}
	return id, nil
}

func loadAccountMap(ctx context.Context, ref ReferenceStore, companyID uuid.UUID) (accountMap, error) {
	defaults, err := ref.AccountDefaults(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load account defaults: %w", err)
	}
	return accountMap(defaults), nil
}

// paymentAccount resolves a payment method to its mapped GL account.
func paymentAccount(methods map[string]uuid.UUID, method string) (uuid.UUID, error) {
	id, ok := methods[method]
	if !ok || id == uuid.Nil {
		return uuid.Nil, shared.NewBusinessRuleError("MISSING_PAYMENT_MAPPING",
			fmt.Sprintf("missing payment method mapping for %q", method))
	}
	return id, nil
}

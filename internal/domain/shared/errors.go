package shared

import "errors"

// ErrorKind classifies a failure for the dispatcher's retry policy.
type ErrorKind string

const (
	// KindValidation marks malformed or missing payload data. Retrying the
	// same payload cannot succeed, but the attempt budget still applies.
	KindValidation ErrorKind = "VALIDATION"
	// KindBusinessRule marks a violated business invariant that may be
	// transient (e.g. stock arrives before the next attempt).
	KindBusinessRule ErrorKind = "BUSINESS_RULE"
	// KindInfrastructure marks storage or transport failures.
	KindInfrastructure ErrorKind = "INFRASTRUCTURE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error with the given code
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: message}
}

// NewBusinessRuleError creates a business-rule violation with the given code
func NewBusinessRuleError(code, message string) *DomainError {
	return &DomainError{Kind: KindBusinessRule, Code: code, Message: message}
}

// Common domain errors
var (
	ErrNoLines                 = NewValidationError("NO_LINES", "document has no lines")
	ErrInvalidMovementType     = NewValidationError("INVALID_MOVEMENT_TYPE", "invalid cash movement type")
	ErrAmountRequired          = NewValidationError("AMOUNT_REQUIRED", "a non-zero amount is required")
	ErrNegativeAmount          = NewValidationError("NEGATIVE_AMOUNT", "amounts must be >= 0")
	ErrPeriodLocked            = NewBusinessRuleError("PERIOD_LOCKED", "accounting period is locked for the posting date")
	ErrInsufficientStock       = NewBusinessRuleError("INSUFFICIENT_STOCK", "insufficient stock for allocation (negative stock disabled)")
	ErrInsufficientBatchStock  = NewBusinessRuleError("INSUFFICIENT_BATCH_STOCK", "insufficient eligible batch stock for FEFO allocation")
	ErrCreditLimitExceeded     = NewBusinessRuleError("CREDIT_LIMIT_EXCEEDED", "customer credit limit exceeded")
	ErrOverpayment             = NewBusinessRuleError("OVERPAYMENT", "payments exceed invoice total")
	ErrCustomerRequired        = NewBusinessRuleError("CUSTOMER_REQUIRED", "credit sale requires a customer")
	ErrCustomerNotFound        = NewBusinessRuleError("CUSTOMER_NOT_FOUND", "customer not found for credit sale")
	ErrNoOpenShift             = NewBusinessRuleError("NO_OPEN_SHIFT", "no open shift for cash movement")
	ErrBatchNotFound           = NewBusinessRuleError("BATCH_NOT_FOUND", "specified batch/expiry not found for item")
	ErrBatchBelowMinShelfLife  = NewBusinessRuleError("BATCH_BELOW_MIN_SHELF_LIFE", "specified batch does not meet min shelf-life requirement")
	ErrManualLotRequired       = NewBusinessRuleError("MANUAL_LOT_REQUIRED", "manual lot selection is required for this item")
	ErrMissingAccountMapping   = NewBusinessRuleError("MISSING_ACCOUNT_MAPPING", "missing account mapping for posting")
	ErrCreditRefundRequired    = NewBusinessRuleError("CREDIT_REFUND_REQUIRED", "cannot refund cash/bank for an unpaid credit sale")
	ErrRestockingFeeExceedsDoc = NewBusinessRuleError("RESTOCKING_FEE_EXCEEDS_DOCUMENT", "restocking fee cannot exceed return amount")
)

// KindOf reports the error kind; undomained errors count as infrastructure
// so the dispatcher retries them.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsBusinessRule reports whether err is a business-rule violation.
func IsBusinessRule(err error) bool {
	return KindOf(err) == KindBusinessRule
}

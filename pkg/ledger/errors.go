package ledger

import "errors"

// Validation and lookup failures. Callers match them with errors.Is.
var (
	ErrInvalidLoanTerms        = errors.New("invalid loan terms")
	ErrInvalidPaymentAmount    = errors.New("payment amount must be positive")
	ErrInvalidInput            = errors.New("invalid input")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrInvalidStatusTransition = errors.New("invalid loan status transition")
)

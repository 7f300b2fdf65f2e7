package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EMIFrequency governs how often a payment is expected on a loan.
type EMIFrequency string

const (
	EMIFrequencyDaily   EMIFrequency = "DAILY"
	EMIFrequencyMonthly EMIFrequency = "MONTHLY"
)

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusCompleted LoanStatus = "COMPLETED"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusCancelled LoanStatus = "CANCELLED"
)

type Loan struct {
	ID                   uuid.UUID       `json:"id"`
	CustomerID           uuid.UUID       `json:"customer_id"`
	Principal            decimal.Decimal `json:"principal"`
	InterestRatePercent  decimal.Decimal `json:"interest_rate_percent"` // As entered, e.g. 2 for 2% per 30 days
	MonthlyInterestRate  decimal.Decimal `json:"monthly_interest_rate"` // Fraction, e.g. 0.02
	TermMonths           int             `json:"term_months"`
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	EMIFrequency         EMIFrequency    `json:"emi_frequency"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	ScheduledInstallment decimal.Decimal `json:"scheduled_installment"`
	Status               LoanStatus      `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

type PaymentStatus string

const (
	PaymentStatusDue     PaymentStatus = "DUE"
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusLate    PaymentStatus = "LATE"
)

// Payment is immutable once stored.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	LoanID    uuid.UUID       `json:"loan_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Method    PaymentMethod   `json:"method"`
	Status    PaymentStatus   `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func ParseEMIFrequency(s string) (EMIFrequency, error) {
	switch f := EMIFrequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case EMIFrequencyDaily, EMIFrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown emi frequency %q", s)
}

func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case LoanStatusPending, LoanStatusActive, LoanStatusCompleted, LoanStatusDefaulted, LoanStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentMethodCash, PaymentMethodOnline:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentStatusDue, PaymentStatusPending, PaymentStatusPaid, PaymentStatusLate:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// CanTransition reports whether a loan may move from one status to another.
// Allowed: PENDING->ACTIVE, ACTIVE->COMPLETED, ACTIVE->DEFAULTED and any
// status to CANCELLED. Cancelling a cancelled loan is a no-op.
func (from LoanStatus) CanTransition(to LoanStatus) bool {
	switch to {
	case LoanStatusActive:
		return from == LoanStatusPending
	case LoanStatusCompleted, LoanStatusDefaulted:
		return from == LoanStatusActive
	case LoanStatusCancelled:
		return true
	}
	return false
}

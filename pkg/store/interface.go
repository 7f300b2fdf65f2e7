package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SortOrder values accepted by the list filters.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

type CustomerFilter struct {
	Search    string // Matches name, email or phone
	SortBy    string // name, email, created_at
	SortOrder string
	Limit     int // 0 means no limit
	Offset    int
}

type LoanFilter struct {
	CustomerID *uuid.UUID
	Status     models.LoanStatus
	Search     string // Matches customer name, status or exact principal
	SortBy     string // created_at, principal, total_amount, start_date, status, term_months
	SortOrder  string
	Limit      int
	Offset     int
}

type PaymentFilter struct {
	LoanID    *uuid.UUID
	Search    string // Matches customer name, status or exact amount
	SortBy    string // date, amount, created_at, status
	SortOrder string
	Limit     int
	Offset    int
}

// Storage defines the persistence operations the ledger depends on.
// Loans and payments are never deleted.
type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]*models.Customer, error)
	CountCustomers(ctx context.Context, filter CustomerFilter) (int, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error)
	CountLoans(ctx context.Context, filter LoanFilter) (int, error)
	UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	ListAllPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error)
	CountPayments(ctx context.Context, filter PaymentFilter) (int, error)

	Close() error
}

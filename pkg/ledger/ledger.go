package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/observability"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger handles the business logic for loans and payments.
type Ledger struct {
	storage        store.Storage
	clock          Clock
	logger         *zap.Logger
	metrics        *observability.Metrics
	currencySymbol string
}

type Option func(*Ledger)

func WithClock(c Clock) Option { return func(l *Ledger) { l.clock = c } }

func WithLogger(logger *zap.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func WithMetrics(m *observability.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

// WithCurrencySymbol sets the symbol used in log summaries.
func WithCurrencySymbol(symbol string) Option { return func(l *Ledger) { l.currencySymbol = symbol } }

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		clock:   SystemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now is the ledger clock's current time.
func (l *Ledger) Now() time.Time { return l.clock.Now() }

// LoanInput is the typed request for originating a loan.
type LoanInput struct {
	CustomerID          uuid.UUID
	Principal           decimal.Decimal
	InterestRatePercent decimal.Decimal
	TermMonths          int
	StartDate           time.Time // Zero means today
	EMIFrequency        models.EMIFrequency
}

// PaymentInput is the typed request for recording a payment.
type PaymentInput struct {
	LoanID uuid.UUID
	Amount decimal.Decimal
	Date   time.Time            // Zero means now
	Method models.PaymentMethod // Empty means CASH
	Status models.PaymentStatus // Empty means PAID
	Notes  string
}

// LoanDetail is a loan with its payment history and derived totals.
type LoanDetail struct {
	Loan             *models.Loan      `json:"loan"`
	Customer         *models.Customer  `json:"customer,omitempty"`
	Payments         []*models.Payment `json:"payments"` // Newest first
	TotalPaid        decimal.Decimal   `json:"total_paid"`
	RemainingBalance decimal.Decimal   `json:"remaining_balance"`
}

// CreateCustomer adds a customer to the directory.
func (l *Ledger) CreateCustomer(ctx context.Context, name, email, phone string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	now := l.clock.Now()
	c := &models.Customer{
		ID:        uuid.New(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.storage.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return c, nil
}

// GetCustomer retrieves a customer by its ID.
func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := l.storage.GetCustomer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c, err
}

// CustomerUpdate carries the contact fields to change. Nil fields are left as they are.
type CustomerUpdate struct {
	Name  *string
	Email *string
	Phone *string
}

// UpdateCustomer changes a customer's contact details. The name cannot be
// cleared.
func (l *Ledger) UpdateCustomer(ctx context.Context, id uuid.UUID, u CustomerUpdate) (*models.Customer, error) {
	current, err := l.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
		}
		updated.Name = name
	}
	if u.Email != nil {
		updated.Email = strings.TrimSpace(*u.Email)
	}
	if u.Phone != nil {
		updated.Phone = strings.TrimSpace(*u.Phone)
	}
	updated.UpdatedAt = l.clock.Now()

	if err := l.storage.UpdateCustomer(ctx, &updated); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
		}
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	l.logger.Info("customer updated", zap.String("customer_id", id.String()))
	return &updated, nil
}

// ListCustomers returns one page of customers and the total matching the filter.
func (l *Ledger) ListCustomers(ctx context.Context, f store.CustomerFilter) ([]*models.Customer, int, error) {
	customers, err := l.storage.ListCustomers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.storage.CountCustomers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// CreateLoan originates a loan. All derived fields are computed here, once,
// and persisted; the loan starts out PENDING.
func (l *Ledger) CreateLoan(ctx context.Context, in LoanInput) (*models.Loan, error) {
	freq, err := models.ParseEMIFrequency(string(in.EMIFrequency))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLoanTerms, err)
	}
	start := in.StartDate
	if start.IsZero() {
		start = startOfDay(l.clock.Now())
	}
	sched, err := ComputeSchedule(in.Principal, in.InterestRatePercent, in.TermMonths, start)
	if err != nil {
		return nil, err
	}
	if _, err := l.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	loan := &models.Loan{
		ID:                   uuid.New(),
		CustomerID:           in.CustomerID,
		Principal:            in.Principal,
		InterestRatePercent:  in.InterestRatePercent,
		MonthlyInterestRate:  sched.MonthlyInterestRate,
		TermMonths:           in.TermMonths,
		StartDate:            start,
		EndDate:              sched.EndDate,
		EMIFrequency:         freq,
		TotalAmount:          sched.TotalAmount,
		ScheduledInstallment: sched.ScheduledInstallment,
		Status:               models.LoanStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.metrics.LoanOriginated()
	l.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("customer_id", loan.CustomerID.String()),
		zap.String("principal", FormatAmount(loan.Principal, l.currencySymbol)),
		zap.String("total_amount", FormatAmount(loan.TotalAmount, l.currencySymbol)),
		zap.String("installment", loan.ScheduledInstallment.StringFixed(2)),
	)
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
	}
	return loan, err
}

// ListLoans returns one page of loans and the total matching the filter.
func (l *Ledger) ListLoans(ctx context.Context, f store.LoanFilter) ([]*models.Loan, int, error) {
	loans, err := l.storage.ListLoans(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.storage.CountLoans(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// UpdateLoanStatus moves a loan to a new status if the transition is allowed.
func (l *Ledger) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	to, err := models.ParseLoanStatus(string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	loan, err := l.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !loan.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, loan.Status, to)
	}

	updated, err := l.storage.UpdateLoanStatus(ctx, id, to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
		}
		return nil, fmt.Errorf("failed to update loan status: %w", err)
	}

	l.metrics.StatusChanged(string(to))
	l.logger.Info("loan status changed",
		zap.String("loan_id", id.String()),
		zap.String("from", string(loan.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// RecordPayment appends a payment to a loan. The loan record itself is not
// touched: totals are always recomputed from the payment history.
func (l *Ledger) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidPaymentAmount, in.Amount)
	}
	method := models.PaymentMethodCash
	if in.Method != "" {
		m, err := models.ParsePaymentMethod(string(in.Method))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		method = m
	}
	status := models.PaymentStatusPaid
	if in.Status != "" {
		st, err := models.ParsePaymentStatus(string(in.Status))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		status = st
	}

	loan, err := l.GetLoan(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	payment := &models.Payment{
		ID:        uuid.New(),
		LoanID:    loan.ID,
		Amount:    in.Amount,
		Date:      date,
		Method:    method,
		Status:    status,
		Notes:     strings.TrimSpace(in.Notes),
		CreatedAt: now,
	}
	if err := l.storage.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	l.metrics.PaymentRecorded(string(method), in.Amount)
	l.logger.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("loan_id", loan.ID.String()),
		zap.String("amount", FormatAmount(payment.Amount, l.currencySymbol)),
		zap.String("method", string(method)),
	)
	return payment, nil
}

// ListPayments returns the payments of one loan, oldest first.
func (l *Ledger) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.ListPayments(ctx, loanID)
}

// ListAllPayments returns one page of payments across loans and the total matching the filter.
func (l *Ledger) ListAllPayments(ctx context.Context, f store.PaymentFilter) ([]*models.Payment, int, error) {
	payments, err := l.storage.ListAllPayments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.storage.CountPayments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// LoanDetail returns a loan with its customer, payments and balance.
func (l *Ledger) LoanDetail(ctx context.Context, id uuid.UUID) (*LoanDetail, error) {
	loan, err := l.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	customer, err := l.storage.GetCustomer(ctx, loan.CustomerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	newestFirst := make([]*models.Payment, len(payments))
	copy(newestFirst, payments)
	sort.SliceStable(newestFirst, func(i, j int) bool {
		return newestFirst[i].Date.After(newestFirst[j].Date)
	})

	return &LoanDetail{
		Loan:             loan,
		Customer:         customer,
		Payments:         newestFirst,
		TotalPaid:        TotalPaid(payments),
		RemainingBalance: RemainingBalance(loan, payments),
	}, nil
}

// TotalPaid is the sum of the payment amounts.
func TotalPaid(payments []*models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// RemainingBalance is the loan's total amount minus everything paid. It is
// negative when the loan is overpaid.
func RemainingBalance(loan *models.Loan, payments []*models.Payment) decimal.Decimal {
	return loan.TotalAmount.Sub(TotalPaid(payments))
}

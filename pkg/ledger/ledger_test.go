package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/observability"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
// Filters other than CustomerID and LoanID are ignored.
type MockStore struct {
	customers map[uuid.UUID]*models.Customer
	loans     []*models.Loan
	payments  []*models.Payment
}

func NewMockStore() *MockStore {
	return &MockStore{customers: make(map[uuid.UUID]*models.Customer)}
}

func (m *MockStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.customers[c.ID] = c
	return nil
}

func (m *MockStore) GetCustomer(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (m *MockStore) UpdateCustomer(_ context.Context, c *models.Customer) error {
	if _, ok := m.customers[c.ID]; !ok {
		return fmt.Errorf("customer %s: %w", c.ID, store.ErrNotFound)
	}
	m.customers[c.ID] = c
	return nil
}

func (m *MockStore) ListCustomers(_ context.Context, _ store.CustomerFilter) ([]*models.Customer, error) {
	customers := []*models.Customer{}
	for _, c := range m.customers {
		customers = append(customers, c)
	}
	return customers, nil
}

func (m *MockStore) CountCustomers(_ context.Context, _ store.CustomerFilter) (int, error) {
	return len(m.customers), nil
}

func (m *MockStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.loans = append(m.loans, loan)
	return nil
}

func (m *MockStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	for _, l := range m.loans {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("loan %s: %w", id, store.ErrNotFound)
}

func (m *MockStore) ListLoans(_ context.Context, f store.LoanFilter) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, l := range m.loans {
		if f.CustomerID != nil && l.CustomerID != *f.CustomerID {
			continue
		}
		loans = append(loans, l)
	}
	return loans, nil
}

func (m *MockStore) CountLoans(ctx context.Context, f store.LoanFilter) (int, error) {
	loans, _ := m.ListLoans(ctx, f)
	return len(loans), nil
}

func (m *MockStore) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	loan, err := m.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	loan.Status = status
	return loan, nil
}

func (m *MockStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.payments = append(m.payments, p)
	return nil
}

func (m *MockStore) ListPayments(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	for _, p := range m.payments {
		if p.LoanID == loanID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (m *MockStore) ListAllPayments(_ context.Context, f store.PaymentFilter) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	for _, p := range m.payments {
		if f.LoanID != nil && p.LoanID != *f.LoanID {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (m *MockStore) CountPayments(ctx context.Context, f store.PaymentFilter) (int, error) {
	payments, _ := m.ListAllPayments(ctx, f)
	return len(payments), nil
}

func (m *MockStore) Close() error {
	return nil
}

func date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func newTestLedger(t *testing.T, now time.Time) (*Ledger, *MockStore, *models.Customer) {
	t.Helper()
	s := NewMockStore()
	l := NewLedger(s, WithClock(FixedClock{T: now}))
	c, err := l.CreateCustomer(context.Background(), "Lakshmi", "lakshmi@example.com", "9000000001")
	require.NoError(t, err)
	return l, s, c
}

func createLoan(t *testing.T, l *Ledger, customerID uuid.UUID, freq models.EMIFrequency, start time.Time) *models.Loan {
	t.Helper()
	loan, err := l.CreateLoan(context.Background(), LoanInput{
		CustomerID:          customerID,
		Principal:           decimal.NewFromInt(10000),
		InterestRatePercent: decimal.NewFromInt(2),
		TermMonths:          10,
		StartDate:           start,
		EMIFrequency:        freq,
	})
	require.NoError(t, err)
	return loan
}

func pay(t *testing.T, l *Ledger, loanID uuid.UUID, amount string, on time.Time) *models.Payment {
	t.Helper()
	p, err := l.RecordPayment(context.Background(), PaymentInput{
		LoanID: loanID,
		Amount: decimal.RequireFromString(amount),
		Date:   on,
	})
	require.NoError(t, err)
	return p
}

func TestCreateLoan(t *testing.T) {
	l, s, c := newTestLedger(t, date(2024, 1, 1))

	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2024, 1, 1))

	if !loan.TotalAmount.Equal(decimal.NewFromInt(12000)) {
		t.Errorf("Expected total amount 12000, got %s", loan.TotalAmount)
	}
	if !loan.ScheduledInstallment.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected installment 40.00, got %s", loan.ScheduledInstallment)
	}
	assert.True(t, loan.MonthlyInterestRate.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, date(2024, 11, 1), loan.EndDate)
	assert.Equal(t, models.LoanStatusPending, loan.Status)
	assert.Len(t, s.loans, 1)
	assert.Empty(t, s.payments, "origination records no payment")
}

func TestCreateLoan_DefaultsStartDateToToday(t *testing.T) {
	l, _, c := newTestLedger(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC))

	loan := createLoan(t, l, c.ID, models.EMIFrequencyMonthly, time.Time{})
	assert.Equal(t, date(2024, 3, 15), loan.StartDate)
	assert.Equal(t, date(2025, 1, 15), loan.EndDate)
}

func TestCreateLoan_Rejections(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 1, 1))
	ctx := context.Background()

	tests := []struct {
		name string
		in   LoanInput
		want error
	}{
		{"zero term", LoanInput{CustomerID: c.ID, Principal: decimal.NewFromInt(100), TermMonths: 0, EMIFrequency: models.EMIFrequencyDaily}, ErrInvalidLoanTerms},
		{"negative term", LoanInput{CustomerID: c.ID, Principal: decimal.NewFromInt(100), TermMonths: -3, EMIFrequency: models.EMIFrequencyDaily}, ErrInvalidLoanTerms},
		{"negative rate", LoanInput{CustomerID: c.ID, Principal: decimal.NewFromInt(100), InterestRatePercent: decimal.NewFromInt(-1), TermMonths: 1, EMIFrequency: models.EMIFrequencyDaily}, ErrInvalidLoanTerms},
		{"negative principal", LoanInput{CustomerID: c.ID, Principal: decimal.NewFromInt(-100), TermMonths: 1, EMIFrequency: models.EMIFrequencyDaily}, ErrInvalidLoanTerms},
		{"bad frequency", LoanInput{CustomerID: c.ID, Principal: decimal.NewFromInt(100), TermMonths: 1, EMIFrequency: "WEEKLY"}, ErrInvalidLoanTerms},
		{"unknown customer", LoanInput{CustomerID: uuid.New(), Principal: decimal.NewFromInt(100), TermMonths: 1, EMIFrequency: models.EMIFrequencyDaily}, ErrCustomerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateLoan(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecordPayment(t *testing.T) {
	l, s, c := newTestLedger(t, date(2024, 1, 10))
	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2024, 1, 1))

	p := pay(t, l, loan.ID, "400", date(2024, 1, 5))
	assert.Equal(t, models.PaymentMethodCash, p.Method)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	online, err := l.RecordPayment(context.Background(), PaymentInput{
		LoanID: loan.ID, Amount: decimal.NewFromInt(100), Method: "online", Status: models.PaymentStatusLate, Notes: " upi ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodOnline, online.Method)
	assert.Equal(t, models.PaymentStatusLate, online.Status)
	assert.Equal(t, "upi", online.Notes)
	assert.Equal(t, date(2024, 1, 10), online.Date, "zero date defaults to now")

	// The loan record is never mutated by a payment.
	stored, _ := s.GetLoan(context.Background(), loan.ID)
	assert.Equal(t, models.LoanStatusPending, stored.Status)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(12000)))

	detail, err := l.LoanDetail(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.True(t, detail.TotalPaid.Equal(decimal.NewFromInt(500)))
	assert.True(t, detail.RemainingBalance.Equal(decimal.NewFromInt(11500)))
	require.Len(t, detail.Payments, 2)
	assert.Equal(t, online.ID, detail.Payments[0].ID, "newest payment first")
	assert.Equal(t, c.ID, detail.Customer.ID)
}

func TestRecordPayment_Rejections(t *testing.T) {
	l, s, c := newTestLedger(t, date(2024, 1, 10))
	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2024, 1, 1))
	ctx := context.Background()

	_, err := l.RecordPayment(ctx, PaymentInput{LoanID: loan.ID, Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidPaymentAmount)

	_, err = l.RecordPayment(ctx, PaymentInput{LoanID: loan.ID, Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, ErrInvalidPaymentAmount)

	_, err = l.RecordPayment(ctx, PaymentInput{LoanID: uuid.New(), Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ErrLoanNotFound)

	_, err = l.RecordPayment(ctx, PaymentInput{LoanID: loan.ID, Amount: decimal.NewFromInt(5), Method: "CHEQUE"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, s.payments, "failed operations have no effect")
}

func TestTotalPaidIgnoresInsertionOrder(t *testing.T) {
	loan := &models.Loan{TotalAmount: decimal.NewFromInt(12000)}
	amounts := []string{"0.10", "4000", "3999.95", "4000.45"}

	forward := make([]*models.Payment, 0, len(amounts))
	backward := make([]*models.Payment, 0, len(amounts))
	for i := range amounts {
		forward = append(forward, &models.Payment{Amount: decimal.RequireFromString(amounts[i])})
		backward = append(backward, &models.Payment{Amount: decimal.RequireFromString(amounts[len(amounts)-1-i])})
	}

	assert.True(t, TotalPaid(forward).Equal(TotalPaid(backward)))
	assert.True(t, TotalPaid(forward).Equal(decimal.RequireFromString("12000.50")))
	assert.True(t, RemainingBalance(loan, forward).Equal(decimal.RequireFromString("-0.50")))
}

func TestBalance_PaidInFullAndOverpaid(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 2, 1))
	ctx := context.Background()
	full := createLoan(t, l, c.ID, models.EMIFrequencyMonthly, date(2024, 1, 1))
	over := createLoan(t, l, c.ID, models.EMIFrequencyMonthly, date(2024, 1, 1))
	open := createLoan(t, l, c.ID, models.EMIFrequencyMonthly, date(2024, 1, 1))

	pay(t, l, full.ID, "6000", date(2024, 1, 10))
	pay(t, l, full.ID, "6000", date(2024, 1, 20))
	pay(t, l, over.ID, "12500", date(2024, 1, 15))
	pay(t, l, open.ID, "100", date(2024, 1, 15))

	detail, err := l.LoanDetail(ctx, full.ID)
	require.NoError(t, err)
	assert.True(t, detail.RemainingBalance.IsZero())

	detail, err = l.LoanDetail(ctx, over.ID)
	require.NoError(t, err)
	assert.True(t, detail.RemainingBalance.Equal(decimal.NewFromInt(-500)), "overpayment is surfaced, not clamped")

	o, err := l.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, o.ActiveLoans)
	assert.Equal(t, 1, o.TotalCustomers)
	assert.True(t, o.TotalDisbursed.Equal(decimal.NewFromInt(30000)))
	assert.True(t, o.TotalRecoveredWithInterest.Equal(decimal.NewFromInt(24600)))
	assert.True(t, o.TotalRecoveredWithoutInterest.Equal(decimal.NewFromInt(24600)))
}

func TestOverview_RecoveredWithoutInterestIsClamped(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 2, 1))
	loan := createLoan(t, l, c.ID, models.EMIFrequencyMonthly, date(2024, 1, 1))
	pay(t, l, loan.ID, "11000", date(2024, 1, 15))

	o, err := l.Overview(context.Background())
	require.NoError(t, err)
	assert.True(t, o.TotalRecoveredWithInterest.Equal(decimal.NewFromInt(11000)))
	assert.True(t, o.TotalRecoveredWithoutInterest.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 1, o.ActiveLoans)
}

func TestMonthlyCollections(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 6, 1))
	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2023, 12, 1))
	pay(t, l, loan.ID, "10", date(2023, 12, 31))
	pay(t, l, loan.ID, "20", date(2024, 1, 5))
	pay(t, l, loan.ID, "30", date(2024, 1, 25))
	pay(t, l, loan.ID, "40", date(2024, 3, 2))

	months, err := l.MonthlyCollections(context.Background(), 2024)
	require.NoError(t, err)
	assert.True(t, months[0].Equal(decimal.NewFromInt(50)))
	assert.True(t, months[1].IsZero())
	assert.True(t, months[2].Equal(decimal.NewFromInt(40)))
}

func TestUpdateLoanStatus(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 1, 1))
	ctx := context.Background()
	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2024, 1, 1))

	_, err := l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition, "PENDING cannot complete")

	updated, err := l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusActive, updated.Status)

	updated, err = l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusDefaulted)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDefaulted, updated.Status)

	updated, err = l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCancelled, updated.Status)

	updated, err = l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusCancelled)
	require.NoError(t, err, "cancelling twice is allowed")
	assert.Equal(t, models.LoanStatusCancelled, updated.Status)

	_, err = l.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusActive)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition, "CANCELLED is terminal")

	_, err = l.UpdateLoanStatus(ctx, loan.ID, "ARCHIVED")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.UpdateLoanStatus(ctx, uuid.New(), models.LoanStatusActive)
	assert.True(t, errors.Is(err, ErrLoanNotFound))
}

func TestMetricsAreRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	s := NewMockStore()
	l := NewLedger(s, WithClock(FixedClock{T: date(2024, 1, 3)}), WithMetrics(m))

	c, err := l.CreateCustomer(context.Background(), "Farah", "", "")
	require.NoError(t, err)
	loan := createLoan(t, l, c.ID, models.EMIFrequencyDaily, date(2024, 1, 1))
	pay(t, l, loan.ID, "40", date(2024, 1, 1))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoansOriginated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecorded.WithLabelValues("CASH")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.PaymentAmount))

	n, err := l.ScanOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OverdueLoans))
}

func TestCreateCustomerRequiresName(t *testing.T) {
	l := NewLedger(NewMockStore())
	_, err := l.CreateCustomer(context.Background(), "  ", "x@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateCustomer(t *testing.T) {
	l, _, c := newTestLedger(t, date(2024, 3, 1))
	ctx := context.Background()

	phone := " 90000 11111 "
	updated, err := l.UpdateCustomer(ctx, c.ID, CustomerUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, c.Name, updated.Name, "unset fields are kept")
	assert.Equal(t, "90000 11111", updated.Phone)
	assert.Equal(t, date(2024, 3, 1), updated.UpdatedAt)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "90000 11111", got.Phone)

	blank := "  "
	_, err = l.UpdateCustomer(ctx, c.ID, CustomerUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)

	name := "Ghost"
	_, err = l.UpdateCustomer(ctx, uuid.New(), CustomerUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

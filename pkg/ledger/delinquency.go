package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/shopspring/decimal"
)

// PeriodStart returns the beginning of the payment period containing now:
// midnight today for DAILY loans, midnight on the 1st for MONTHLY loans.
// ok is false for an unknown frequency.
func PeriodStart(freq models.EMIFrequency, now time.Time) (start time.Time, ok bool) {
	switch freq {
	case models.EMIFrequencyDaily:
		return startOfDay(now), true
	case models.EMIFrequencyMonthly:
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

// IsOverdue reports whether no payment has landed in the loan's current
// period. A loan whose first period has not yet elapsed is never overdue.
//
// Only the presence of a payment counts, not its size: a monthly borrower who
// pays once early in the month is current until the next month starts.
func IsOverdue(loan *models.Loan, payments []*models.Payment, now time.Time) bool {
	start, ok := PeriodStart(loan.EMIFrequency, now)
	if !ok {
		return false
	}
	if !loan.StartDate.Before(start) {
		return false
	}
	for _, p := range payments {
		if !p.Date.Before(start) {
			return false
		}
	}
	return true
}

// LastPaymentDate returns the date of the most recent payment, or the loan's
// start date when nothing has been paid.
func LastPaymentDate(loan *models.Loan, payments []*models.Payment) time.Time {
	if len(payments) == 0 {
		return loan.StartDate
	}
	last := payments[0].Date
	for _, p := range payments[1:] {
		if p.Date.After(last) {
			last = p.Date
		}
	}
	return last
}

// DaysPastDue is the number of whole days between the last payment (or the
// start date) and the beginning of today.
func DaysPastDue(loan *models.Loan, payments []*models.Payment, now time.Time) int {
	elapsed := startOfDay(now).Sub(LastPaymentDate(loan, payments))
	return int(math.Floor(elapsed.Hours() / 24))
}

// OverdueEntry is one row of the overdue report.
type OverdueEntry struct {
	Loan        *models.Loan     `json:"loan"`
	Customer    *models.Customer `json:"customer,omitempty"`
	Amount      decimal.Decimal  `json:"amount"`   // The scheduled installment
	DueDate     time.Time        `json:"due_date"` // Last payment date, or start date
	DaysPastDue int              `json:"days_past_due"`
}

// Sort keys accepted by OverdueOptions.SortBy.
const (
	SortDaysPastDue = "daysPastDue"
	SortAmount      = "amount"
	SortDueDate     = "dueDate"
	SortCustomer    = "customer"
)

type OverdueOptions struct {
	MaxDaysPastDue *int                // Keep entries with DaysPastDue <= this
	SortBy         string              // One of the Sort* keys; empty keeps store order
	SortOrder      string              // store.SortAsc or store.SortDesc (default)
	Search         string              // Customer name or loan id, case-insensitive
	Statuses       []models.LoanStatus // Empty means every loan
}

// OverdueReport classifies every loan as of the clock's current time and
// returns the overdue ones.
func (l *Ledger) OverdueReport(ctx context.Context, opts OverdueOptions) ([]OverdueEntry, error) {
	now := l.clock.Now()
	loans, err := l.storage.ListLoans(ctx, store.LoanFilter{SortBy: "created_at", SortOrder: store.SortAsc})
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	customers := make(map[uuid.UUID]*models.Customer)
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	entries := []OverdueEntry{}

	for _, loan := range loans {
		if !statusIncluded(loan.Status, opts.Statuses) {
			continue
		}
		payments, err := l.storage.ListPayments(ctx, loan.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments for loan %s: %w", loan.ID, err)
		}
		if !IsOverdue(loan, payments, now) {
			continue
		}

		entry := OverdueEntry{
			Loan:        loan,
			Amount:      loan.ScheduledInstallment,
			DueDate:     LastPaymentDate(loan, payments),
			DaysPastDue: DaysPastDue(loan, payments, now),
		}
		if opts.MaxDaysPastDue != nil && entry.DaysPastDue > *opts.MaxDaysPastDue {
			continue
		}

		customer, ok := customers[loan.CustomerID]
		if !ok {
			customer, err = l.storage.GetCustomer(ctx, loan.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("failed to get customer for loan %s: %w", loan.ID, err)
			}
			customers[loan.CustomerID] = customer
		}
		entry.Customer = customer

		if search != "" && !strings.Contains(strings.ToLower(customer.Name), search) &&
			!strings.Contains(loan.ID.String(), search) {
			continue
		}
		entries = append(entries, entry)
	}

	sortOverdue(entries, opts.SortBy, opts.SortOrder)
	return entries, nil
}

func statusIncluded(status models.LoanStatus, statuses []models.LoanStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortOverdue(entries []OverdueEntry, sortBy, order string) {
	var less func(a, b OverdueEntry) bool
	switch sortBy {
	case SortDaysPastDue:
		less = func(a, b OverdueEntry) bool { return a.DaysPastDue < b.DaysPastDue }
	case SortAmount:
		less = func(a, b OverdueEntry) bool { return a.Amount.LessThan(b.Amount) }
	case SortDueDate:
		less = func(a, b OverdueEntry) bool { return a.DueDate.Before(b.DueDate) }
	case SortCustomer:
		less = func(a, b OverdueEntry) bool {
			return strings.ToLower(a.Customer.Name) < strings.ToLower(b.Customer.Name)
		}
	default:
		return
	}
	asc := strings.EqualFold(order, store.SortAsc)
	sort.SliceStable(entries, func(i, j int) bool {
		if asc {
			return less(entries[i], entries[j])
		}
		return less(entries[j], entries[i])
	})
}

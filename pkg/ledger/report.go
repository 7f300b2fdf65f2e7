package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/shopspring/decimal"
)

// Overview is the portfolio summary shown on the dashboard.
type Overview struct {
	TotalDisbursed                decimal.Decimal `json:"total_disbursed"`
	TotalRecoveredWithoutInterest decimal.Decimal `json:"total_recovered_without_interest"`
	TotalRecoveredWithInterest    decimal.Decimal `json:"total_recovered_with_interest"`
	ActiveLoans                   int             `json:"active_loans"`
	TotalCustomers                int             `json:"total_customers"`
}

// Overview recomputes the portfolio totals from every loan and payment. A
// loan counts as active while its payments are below its total amount,
// whatever its status field says.
func (l *Ledger) Overview(ctx context.Context) (*Overview, error) {
	loans, err := l.storage.ListLoans(ctx, store.LoanFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	o := &Overview{
		TotalDisbursed:             decimal.Zero,
		TotalRecoveredWithInterest: decimal.Zero,
	}
	for _, loan := range loans {
		payments, err := l.storage.ListPayments(ctx, loan.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments for loan %s: %w", loan.ID, err)
		}
		paid := TotalPaid(payments)
		o.TotalDisbursed = o.TotalDisbursed.Add(loan.Principal)
		o.TotalRecoveredWithInterest = o.TotalRecoveredWithInterest.Add(paid)
		if paid.LessThan(loan.TotalAmount) {
			o.ActiveLoans++
		}
	}
	o.TotalRecoveredWithoutInterest = decimal.Min(o.TotalRecoveredWithInterest, o.TotalDisbursed)

	if o.TotalCustomers, err = l.storage.CountCustomers(ctx, store.CustomerFilter{}); err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	return o, nil
}

// MonthlyCollections sums payments by calendar month of year, in the clock's
// location. Index 0 is January.
func (l *Ledger) MonthlyCollections(ctx context.Context, year int) ([12]decimal.Decimal, error) {
	var months [12]decimal.Decimal
	for i := range months {
		months[i] = decimal.Zero
	}

	payments, err := l.storage.ListAllPayments(ctx, store.PaymentFilter{SortBy: "date", SortOrder: store.SortAsc})
	if err != nil {
		return months, fmt.Errorf("failed to list payments: %w", err)
	}
	loc := l.clock.Now().Location()
	for _, p := range payments {
		d := p.Date.In(loc)
		if d.Year() != year {
			continue
		}
		months[d.Month()-time.January] = months[d.Month()-time.January].Add(p.Amount)
	}
	return months, nil
}

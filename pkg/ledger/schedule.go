package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// daysPerMonth is the fixed month length used to spread a loan's total over
// its term, regardless of calendar month lengths.
const daysPerMonth = 30

// MaxTermMonths is the longest loan term accepted, 100 years.
const MaxTermMonths = 1200

var hundred = decimal.NewFromInt(100)

// Schedule holds the fields derived once at loan origination.
type Schedule struct {
	MonthlyInterestRate  decimal.Decimal // Fraction per 30-day period
	Interest             decimal.Decimal
	TotalAmount          decimal.Decimal
	ScheduledInstallment decimal.Decimal
	EndDate              time.Time
}

// ComputeSchedule derives a loan's simple-interest schedule. ratePercent is
// the operator-entered monthly rate, 2 meaning 2%.
//
//	interest    = principal * ratePercent/100 * termMonths
//	total       = principal + interest
//	installment = ceil(total / (termMonths*30), 2 places)
//	endDate     = startDate + termMonths calendar months
func ComputeSchedule(principal, ratePercent decimal.Decimal, termMonths int, startDate time.Time) (Schedule, error) {
	if termMonths <= 0 || termMonths > MaxTermMonths {
		return Schedule{}, fmt.Errorf("%w: term must be between 1 and %d months, got %d", ErrInvalidLoanTerms, MaxTermMonths, termMonths)
	}
	if !principal.IsPositive() {
		return Schedule{}, fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidLoanTerms, principal)
	}
	if ratePercent.IsNegative() {
		return Schedule{}, fmt.Errorf("%w: interest rate must not be negative, got %s", ErrInvalidLoanTerms, ratePercent)
	}

	term := decimal.NewFromInt(int64(termMonths))
	rate := ratePercent.Div(hundred)
	interest := principal.Mul(rate).Mul(term)
	total := principal.Add(interest)

	days := term.Mul(decimal.NewFromInt(daysPerMonth))
	installment := RoundUpToCents(total.Div(days))
	// Div truncates far below a cent, so one extra cent always covers the total.
	if installment.Mul(days).LessThan(total) {
		installment = installment.Add(oneCent)
	}

	return Schedule{
		MonthlyInterestRate:  rate,
		Interest:             interest,
		TotalAmount:          total,
		ScheduledInstallment: installment,
		EndDate:              startDate.AddDate(0, termMonths, 0),
	}, nil
}

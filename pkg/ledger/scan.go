package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ScanOverdue runs one overdue classification pass, logs a summary and
// updates the overdue gauge. It returns the number of overdue loans.
func (l *Ledger) ScanOverdue(ctx context.Context) (int, error) {
	entries, err := l.OverdueReport(ctx, OverdueOptions{})
	if err != nil {
		return 0, err
	}

	due := decimal.Zero
	for _, e := range entries {
		due = due.Add(e.Amount)
	}
	l.metrics.SetOverdue(len(entries))
	l.logger.Info("overdue scan complete",
		zap.Int("overdue_loans", len(entries)),
		zap.String("installments_due", FormatAmount(due, l.currencySymbol)),
	)
	return len(entries), nil
}

// RunOverdueScan calls ScanOverdue every interval until ctx is cancelled.
func (l *Ledger) RunOverdueScan(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.ScanOverdue(ctx); err != nil {
				l.logger.Error("overdue scan failed", zap.Error(err))
			}
		}
	}
}

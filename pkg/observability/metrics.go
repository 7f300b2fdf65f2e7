package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	LoansOriginated   prometheus.Counter
	PaymentsRecorded  *prometheus.CounterVec
	PaymentAmount     prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	OverdueLoans      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoansOriginated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lendbook",
			Name:      "loans_originated_total",
			Help:      "Number of loans created.",
		}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendbook",
			Name:      "payments_recorded_total",
			Help:      "Number of payments recorded, by method.",
		}, []string{"method"}),
		PaymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lendbook",
			Name:      "payment_amount_total",
			Help:      "Sum of recorded payment amounts.",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendbook",
			Name:      "loan_status_transitions_total",
			Help:      "Loan status changes, by target status.",
		}, []string{"status"}),
		OverdueLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lendbook",
			Name:      "overdue_loans",
			Help:      "Loans classified overdue by the last scan.",
		}),
	}
	reg.MustRegister(m.LoansOriginated, m.PaymentsRecorded, m.PaymentAmount, m.StatusTransitions, m.OverdueLoans)
	return m
}

// Handler returns the /metrics handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) LoanOriginated() {
	if m == nil {
		return
	}
	m.LoansOriginated.Inc()
}

func (m *Metrics) PaymentRecorded(method string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.PaymentsRecorded.WithLabelValues(method).Inc()
	m.PaymentAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetOverdue(n int) {
	if m == nil {
		return
	}
	m.OverdueLoans.Set(float64(n))
}

// Package audit records who did what to which record.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mcclellann/lendbook/pkg/auth"
	"go.uber.org/zap"
)

// Actions
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
)

// Entities
const (
	EntityCustomer = "Customer"
	EntityLoan     = "Loan"
	EntityPayment  = "Payment"
)

type Entry struct {
	Action    string
	Entity    string
	EntityID  string
	Details   string
	IPAddress string
}

// Logger writes audit entries as structured log records.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("audit")}
}

// Log records e, attributing it to the operator in ctx if there is one.
// It never fails: an audit record must not break the action it describes.
func (a *Logger) Log(ctx context.Context, e Entry) {
	fields := []zap.Field{
		zap.String("action", e.Action),
		zap.String("entity", e.Entity),
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		fields = append(fields,
			zap.String("user_id", claims.UserID.String()),
			zap.String("username", claims.Username),
		)
	}
	if e.EntityID != "" {
		fields = append(fields, zap.String("entity_id", e.EntityID))
	}
	if e.Details != "" {
		fields = append(fields, zap.String("details", e.Details))
	}
	if e.IPAddress != "" {
		fields = append(fields, zap.String("ip", e.IPAddress))
	}
	a.logger.Info("audit", fields...)
}

// ClientIP returns the first X-Forwarded-For address, else X-Real-IP, else
// the host part of the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

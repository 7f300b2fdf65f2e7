package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/lendbook/pkg/audit"
	"github.com/mcclellann/lendbook/pkg/auth"
	"github.com/mcclellann/lendbook/pkg/ledger"
	"github.com/mcclellann/lendbook/pkg/observability"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	auditor *audit.Logger
	logger  *zap.Logger
}

func NewServer(l *ledger.Ledger, s store.Storage, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger:  l,
		storage: s,
		auditor: audit.NewLogger(logger),
		logger:  logger,
	}
}

// Close releases the storage behind the server.
func (s *Server) Close() error {
	return s.storage.Close()
}

type RouterConfig struct {
	JWT               *auth.JWTService
	Gatherer          prometheus.Gatherer
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Routes builds the HTTP router. Everything except /healthz and /metrics
// requires a valid token; /admin additionally requires the ADMIN role.
func (s *Server) Routes(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestLogger)
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
		router.Use(newIPRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow).Middleware)
	}

	router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	if cfg.Gatherer != nil {
		router.Handle("/metrics", observability.Handler(cfg.Gatherer)).Methods("GET")
	}

	api := router.NewRoute().Subrouter()
	api.Use(auth.Middleware(cfg.JWT))

	api.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	api.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	api.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	api.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	api.HandleFunc("/customers/{id}/loans", s.customerLoansHandler).Methods("GET")

	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/status", s.updateLoanStatusHandler).Methods("PUT")
	api.HandleFunc("/loans/{id}/payments", s.listLoanPaymentsHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/payments", s.recordLoanPaymentHandler).Methods("POST")

	api.HandleFunc("/payments", s.listPaymentsHandler).Methods("GET")
	api.HandleFunc("/payments", s.recordPaymentHandler).Methods("POST")

	api.HandleFunc("/dashboard/overview", s.overviewHandler).Methods("GET")
	api.HandleFunc("/dashboard/collections", s.collectionsHandler).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/overdue-payments", s.overduePaymentsHandler).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLedgerError maps a ledger error to its HTTP status.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrLoanNotFound), errors.Is(err, ledger.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidLoanTerms),
		errors.Is(err, ledger.ErrInvalidPaymentAmount),
		errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

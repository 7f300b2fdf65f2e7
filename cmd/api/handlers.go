package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lendbook/pkg/audit"
	"github.com/mcclellann/lendbook/pkg/ledger"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/mcclellann/lendbook/pkg/pagination"
	"github.com/mcclellann/lendbook/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// parseDate accepts a calendar date (2006-01-02), taken as midnight in loc,
// or a full RFC 3339 timestamp. Empty input yields the zero time.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t, nil
}

func (s *Server) recordAudit(r *http.Request, action, entity, id, details string) {
	s.auditor.Log(r.Context(), audit.Entry{
		Action:    action,
		Entity:    entity,
		EntityID:  id,
		Details:   details,
		IPAddress: audit.ClientIP(r),
	})
}

// Customers

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	customer, err := s.ledger.CreateCustomer(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.recordAudit(r, audit.ActionCreate, audit.EntityCustomer, customer.ID.String(), "Created customer "+customer.Name)
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromQuery(r.URL.Query())
	customers, total, err := s.ledger.ListCustomers(r.Context(), store.CustomerFilter{
		Search:    p.Search,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
		Limit:     p.Limit,
		Offset:    p.Offset(),
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewPage(customers, total, p))
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}
	customer, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}
	var req struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
		Phone *string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	customer, err := s.ledger.UpdateCustomer(r.Context(), id, ledger.CustomerUpdate{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.recordAudit(r, audit.ActionUpdate, audit.EntityCustomer, customer.ID.String(), "Updated customer "+customer.Name)
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) customerLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}
	if _, err := s.ledger.GetCustomer(r.Context(), id); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeLoanPage(w, r, &id)
}

// Loans

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID   uuid.UUID       `json:"customer_id"`
		Principal    decimal.Decimal `json:"principal"`
		InterestRate decimal.Decimal `json:"interest_rate"` // Percent per month
		TermMonths   int             `json:"term_months"`
		StartDate    string          `json:"start_date"`
		EMIFrequency string          `json:"emi_frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDate(req.StartDate, s.ledger.Now().Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), ledger.LoanInput{
		CustomerID:          req.CustomerID,
		Principal:           req.Principal,
		InterestRatePercent: req.InterestRate,
		TermMonths:          req.TermMonths,
		StartDate:           start,
		EMIFrequency:        models.EMIFrequency(req.EMIFrequency),
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.recordAudit(r, audit.ActionCreate, audit.EntityLoan, loan.ID.String(),
		fmt.Sprintf("Created loan of %s for %d months", loan.Principal.StringFixed(2), loan.TermMonths))
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	s.writeLoanPage(w, r, nil)
}

func (s *Server) writeLoanPage(w http.ResponseWriter, r *http.Request, customerID *uuid.UUID) {
	q := r.URL.Query()
	p := pagination.FromQuery(q)
	f := store.LoanFilter{
		CustomerID: customerID,
		Search:     p.Search,
		SortBy:     p.SortBy,
		SortOrder:  p.SortOrder,
		Limit:      p.Limit,
		Offset:     p.Offset(),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseLoanStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}

	loans, total, err := s.ledger.ListLoans(r.Context(), f)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewPage(loans, total, p))
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}
	detail, err := s.ledger.LoanDetail(r.Context(), loanID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) updateLoanStatusHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.ledger.UpdateLoanStatus(r.Context(), loanID, models.LoanStatus(req.Status))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.recordAudit(r, audit.ActionUpdate, audit.EntityLoan, loan.ID.String(), "Status set to "+string(loan.Status))
	writeJSON(w, http.StatusOK, loan)
}

// Payments

type paymentRequest struct {
	LoanID uuid.UUID       `json:"loan_id"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Method string          `json:"method"`
	Status string          `json:"status"`
	Notes  string          `json:"notes"`
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.recordPayment(w, r, req)
}

func (s *Server) recordLoanPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.LoanID = loanID
	s.recordPayment(w, r, req)
}

func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request, req paymentRequest) {
	date, err := parseDate(req.Date, s.ledger.Now().Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := s.ledger.RecordPayment(r.Context(), ledger.PaymentInput{
		LoanID: req.LoanID,
		Amount: req.Amount,
		Date:   date,
		Method: models.PaymentMethod(req.Method),
		Status: models.PaymentStatus(req.Status),
		Notes:  req.Notes,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.recordAudit(r, audit.ActionCreate, audit.EntityPayment, payment.ID.String(),
		fmt.Sprintf("Recorded %s payment of %s on loan %s", payment.Method, payment.Amount.StringFixed(2), payment.LoanID))
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listLoanPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), loanID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pagination.FromQuery(q)
	f := store.PaymentFilter{
		Search:    p.Search,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
		Limit:     p.Limit,
		Offset:    p.Offset(),
	}
	if raw := q.Get("loanId"); raw != "" {
		loanID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid loan ID")
			return
		}
		f.LoanID = &loanID
	}

	payments, total, err := s.ledger.ListAllPayments(r.Context(), f)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewPage(payments, total, p))
}

// Dashboard

func (s *Server) overviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := s.ledger.Overview(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type monthlyCollection struct {
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) collectionsHandler(w http.ResponseWriter, r *http.Request) {
	year := s.ledger.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = y
	}

	totals, err := s.ledger.MonthlyCollections(r.Context(), year)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	months := make([]monthlyCollection, 0, len(totals))
	for i, amount := range totals {
		months = append(months, monthlyCollection{Month: i + 1, Amount: amount})
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "months": months})
}

// Admin

func (s *Server) overduePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ledger.OverdueOptions{
		SortBy:    q.Get("sortBy"),
		SortOrder: strings.ToLower(q.Get("sortOrder")),
		Search:    q.Get("search"),
	}
	if opts.SortBy == "" {
		opts.SortBy = ledger.SortDaysPastDue
	}
	if raw := q.Get("maxDaysPastDue"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid maxDaysPastDue")
			return
		}
		opts.MaxDaysPastDue = &n
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseLoanStatus(part)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			opts.Statuses = append(opts.Statuses, status)
		}
	}

	entries, err := s.ledger.OverdueReport(r.Context(), opts)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries, "total": len(entries)})
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path and initializes the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Foreign keys and journal mode are per connection, so they go in the DSN.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("database connection established", zap.String("path", path))
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate_percent TEXT NOT NULL,
		monthly_interest_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		emi_frequency TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		scheduled_installment TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_customer ON loans(customer_id);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCustomer inserts a new customer.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, email, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.Email, c.Phone, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, phone, created_at, updated_at FROM customers WHERE id = ?`, id.String())
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// UpdateCustomer overwrites a customer's contact details.
func (s *SQLiteStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE customers SET name = ?, email = ?, phone = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.UpdatedAt.UTC(), c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("customer %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

var customerSortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

func customerWhere(f CustomerFilter) (string, []any) {
	if f.Search == "" {
		return "", nil
	}
	like := likePattern(f.Search)
	return ` WHERE (name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`, []any{like, like, like}
}

// ListCustomers returns customers matching the filter.
func (s *SQLiteStore) ListCustomers(ctx context.Context, f CustomerFilter) ([]*models.Customer, error) {
	where, args := customerWhere(f)
	query := `SELECT id, name, email, phone, created_at, updated_at FROM customers` + where +
		orderBy(customerSortColumns, f.SortBy, f.SortOrder, "created_at") + limitOffset(f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// CountCustomers counts customers matching the filter, ignoring limit and offset.
func (s *SQLiteStore) CountCustomers(ctx context.Context, f CustomerFilter) (int, error) {
	where, args := customerWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

const loanColumns = `l.id, l.customer_id, l.principal, l.interest_rate_percent, l.monthly_interest_rate, l.term_months, l.start_date, l.end_date, l.emi_frequency, l.total_amount, l.scheduled_installment, l.status, l.created_at, l.updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (id, customer_id, principal, interest_rate_percent, monthly_interest_rate, term_months, start_date, end_date, emi_frequency, total_amount, scheduled_installment, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID.String(), loan.Principal, loan.InterestRatePercent, loan.MonthlyInterestRate, loan.TermMonths,
		loan.StartDate.UTC(), loan.EndDate.UTC(), string(loan.EMIFrequency), loan.TotalAmount, loan.ScheduledInstallment, string(loan.Status),
		loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans l WHERE l.id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

var loanSortColumns = map[string]string{
	"created_at":   "l.created_at",
	"principal":    "CAST(l.principal AS REAL)",
	"total_amount": "CAST(l.total_amount AS REAL)",
	"start_date":   "l.start_date",
	"status":       "l.status",
	"term_months":  "l.term_months",
}

func loanWhere(f LoanFilter) (string, []any) {
	var conds []string
	var args []any
	if f.CustomerID != nil {
		conds = append(conds, "l.customer_id = ?")
		args = append(args, f.CustomerID.String())
	}
	if f.Status != "" {
		conds = append(conds, "l.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		conds = append(conds, `(c.name LIKE ? ESCAPE '\' OR l.status = ? OR l.principal = ?)`)
		args = append(args, likePattern(f.Search), strings.ToUpper(f.Search), exactAmount(f.Search))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListLoans returns loans matching the filter.
func (s *SQLiteStore) ListLoans(ctx context.Context, f LoanFilter) ([]*models.Loan, error) {
	where, args := loanWhere(f)
	query := `SELECT ` + loanColumns + ` FROM loans l JOIN customers c ON c.id = l.customer_id` + where +
		orderBy(loanSortColumns, f.SortBy, f.SortOrder, "l.created_at") + limitOffset(f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CountLoans counts loans matching the filter, ignoring limit and offset.
func (s *SQLiteStore) CountLoans(ctx context.Context, f LoanFilter) (int, error) {
	where, args := loanWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans l JOIN customers c ON c.id = l.customer_id`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return n, nil
}

// UpdateLoanStatus sets the status of a loan and returns the updated record.
func (s *SQLiteStore) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE loans SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update loan status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return s.GetLoan(ctx, id)
}

const paymentColumns = `p.id, p.loan_id, p.amount, p.date, p.method, p.status, p.notes, p.created_at`

// CreatePayment inserts a new payment into the database.
func (s *SQLiteStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, loan_id, amount, date, method, status, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Amount, p.Date.UTC(), string(p.Method), string(p.Status), p.Notes, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListPayments retrieves all payments for a given loan ID, oldest first.
func (s *SQLiteStore) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.loan_id = ? ORDER BY p.date ASC, p.created_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

var paymentSortColumns = map[string]string{
	"date":       "p.date",
	"amount":     "CAST(p.amount AS REAL)",
	"created_at": "p.created_at",
	"status":     "p.status",
}

func paymentWhere(f PaymentFilter) (string, []any) {
	var conds []string
	var args []any
	if f.LoanID != nil {
		conds = append(conds, "p.loan_id = ?")
		args = append(args, f.LoanID.String())
	}
	if f.Search != "" {
		like := likePattern(f.Search)
		conds = append(conds, `(c.name LIKE ? ESCAPE '\' OR p.status LIKE ? ESCAPE '\' OR p.amount = ?)`)
		args = append(args, like, like, exactAmount(f.Search))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const paymentJoins = ` FROM payments p JOIN loans l ON l.id = p.loan_id JOIN customers c ON c.id = l.customer_id`

// ListAllPayments returns payments across loans matching the filter.
func (s *SQLiteStore) ListAllPayments(ctx context.Context, f PaymentFilter) ([]*models.Payment, error) {
	where, args := paymentWhere(f)
	query := `SELECT ` + paymentColumns + paymentJoins + where +
		orderBy(paymentSortColumns, f.SortBy, f.SortOrder, "p.created_at") + limitOffset(f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// CountPayments counts payments matching the filter, ignoring limit and offset.
func (s *SQLiteStore) CountPayments(ctx context.Context, f PaymentFilter) (int, error) {
	where, args := paymentWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+paymentJoins+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var idStr string
	if err := row.Scan(&idStr, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("bad customer id %q: %w", idStr, err)
	}
	c.ID = id
	return &c, nil
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerIDStr, freq, status string
	err := row.Scan(&idStr, &customerIDStr, &loan.Principal, &loan.InterestRatePercent, &loan.MonthlyInterestRate, &loan.TermMonths,
		&loan.StartDate, &loan.EndDate, &freq, &loan.TotalAmount, &loan.ScheduledInstallment, &status, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if loan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad loan id %q: %w", idStr, err)
	}
	if loan.CustomerID, err = uuid.Parse(customerIDStr); err != nil {
		return nil, fmt.Errorf("bad customer id %q: %w", customerIDStr, err)
	}
	loan.EMIFrequency = models.EMIFrequency(freq)
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

func scanPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var idStr, loanIDStr, method, status string
		if err := rows.Scan(&idStr, &loanIDStr, &p.Amount, &p.Date, &method, &status, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		var err error
		if p.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("bad payment id %q: %w", idStr, err)
		}
		if p.LoanID, err = uuid.Parse(loanIDStr); err != nil {
			return nil, fmt.Errorf("bad loan id %q: %w", loanIDStr, err)
		}
		p.Method = models.PaymentMethod(method)
		p.Status = models.PaymentStatus(status)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

// orderBy builds an ORDER BY clause from a whitelisted column map.
func orderBy(columns map[string]string, sortBy, sortOrder, fallback string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = fallback
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, SortAsc) {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir
}

func limitOffset(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// exactAmount renders a search term the way decimals are stored, or a value
// that matches nothing when the term is not a number.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches search as a literal substring in a LIKE ... ESCAPE '\' clause.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

func exactAmount(search string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(search))
	if err != nil {
		return "\x00"
	}
	return d.String()
}

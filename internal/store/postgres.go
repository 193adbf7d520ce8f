package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fbibank/backend/internal/models"
)

const (
	accountColumns     = "id, customer_id, account_number, balance, account_type, status, version, created_at, updated_at"
	customerColumns    = "id, full_name, dob, gender, email, phone, address, id_proof, nominee, password_hash, created_at"
	transactionColumns = "id, seq, account_id, type, amount, balance_after, correlation_id, counterparty, description, created_at"
	loanColumns        = "id, account_id, scheme_id, loan_name, description, type, amount, interest_rate, duration_months, remaining_months, emi_amount, amount_paid, next_due_date, status, applied_at, approved_at, approved_by, rejected_at, rejected_by, completed_at, updated_at"
	paymentColumns     = "id, loan_id, account_id, transaction_id, amount, kind, installment, remaining_months, paid_at"
	schemeColumns      = "id, name, description, interest_rate, max_amount, status, created_at, updated_at"
)

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	pgReader
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgres wraps an open connection pool. A positive lockTimeout is applied to every
// unit of work with SET LOCAL lock_timeout.
func NewPostgres(db *sql.DB, lockTimeout time.Duration) *Postgres {
	return &Postgres{pgReader: pgReader{q: db}, db: db, lockTimeout: lockTimeout}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if p.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}

	if err := fn(&pgTx{pgReader: pgReader{q: tx}, tx: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// mapError translates driver errors into the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "55P03": // lock_not_available
			return ErrLockTimeout
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ErrConflict
		}
	}
	return err
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type pgReader struct {
	q queryer
}

func (r pgReader) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r pgReader) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	return scanAccount(row)
}

func (r pgReader) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, mapError(rows.Err())
}

func (r pgReader) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	var nominee []byte
	err := r.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id).Scan(
		&c.ID, &c.FullName, &c.DOB, &c.Gender, &c.Email, &c.Phone,
		&c.Address, &c.IDProof, &nominee, &c.PasswordHash, &c.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if len(nominee) > 0 && string(nominee) != "null" {
		c.Nominee = &models.Nominee{}
		if err := json.Unmarshal(nominee, c.Nominee); err != nil {
			return nil, fmt.Errorf("decode nominee: %w", err)
		}
	}
	return &c, nil
}

func (r pgReader) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = $1 ORDER BY seq DESC`, accountID)
}

func (r pgReader) ListTransactionsByCorrelation(ctx context.Context, correlationID string) ([]models.Transaction, error) {
	if correlationID == "" {
		return []models.Transaction{}, nil
	}
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE correlation_id = $1 ORDER BY seq`, correlationID)
}

func (r pgReader) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Seq, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.CorrelationID, &t.Counterparty, &t.Description, &t.Timestamp); err != nil {
			return nil, mapError(err)
		}
		txs = append(txs, t)
	}
	return txs, mapError(rows.Err())
}

func (r pgReader) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

func (r pgReader) ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error) {
	var conds []string
	var args []any
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY applied_at DESC, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, mapError(rows.Err())
}

func (r pgReader) ListLoanPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM loan_payments WHERE loan_id = $1 ORDER BY installment`, loanID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	payments := []models.LoanPayment{}
	for rows.Next() {
		var p models.LoanPayment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.AccountID, &p.TransactionID, &p.Amount,
			&p.Kind, &p.Installment, &p.RemainingMonths, &p.PaidAt); err != nil {
			return nil, mapError(err)
		}
		payments = append(payments, p)
	}
	return payments, mapError(rows.Err())
}

func (r pgReader) GetScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM loan_schemes WHERE id = $1`, id)
	return scanScheme(row)
}

func (r pgReader) ListSchemes(ctx context.Context, status models.SchemeStatus) ([]models.LoanScheme, error) {
	query := `SELECT ` + schemeColumns + ` FROM loan_schemes`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	schemes := []models.LoanScheme{}
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, *s)
	}
	return schemes, mapError(rows.Err())
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CustomerID, &a.AccountNumber, &a.Balance, &a.AccountType,
		&a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func scanLoan(row scanner) (*models.Loan, error) {
	var l models.Loan
	err := row.Scan(&l.ID, &l.AccountID, &l.SchemeID, &l.LoanName, &l.Description, &l.Type,
		&l.Amount, &l.InterestRate, &l.DurationMonths, &l.RemainingMonths, &l.EMIAmount,
		&l.AmountPaid, &l.NextDueDate, &l.Status, &l.AppliedAt, &l.ApprovedAt, &l.ApprovedBy,
		&l.RejectedAt, &l.RejectedBy, &l.CompletedAt, &l.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func scanScheme(row scanner) (*models.LoanScheme, error) {
	var s models.LoanScheme
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.InterestRate, &s.MaxAmount,
		&s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

type pgTx struct {
	pgReader
	tx *sql.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (t *pgTx) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
	return scanLoan(row)
}

func (t *pgTx) LockScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM loan_schemes WHERE id = $1 FOR UPDATE`, id)
	return scanScheme(row)
}

func (t *pgTx) ShareScheme(ctx context.Context, id string) (*models.LoanScheme, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM loan_schemes WHERE id = $1 FOR SHARE`, id)
	return scanScheme(row)
}

func (t *pgTx) InsertCustomer(ctx context.Context, c *models.Customer) error {
	var nominee any
	if c.Nominee != nil {
		b, err := json.Marshal(c.Nominee)
		if err != nil {
			return err
		}
		nominee = b
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.FullName, c.DOB, c.Gender, c.Email, c.Phone,
		c.Address, c.IDProof, nominee, c.PasswordHash, c.CreatedAt)
	return mapError(err)
}

func (t *pgTx) InsertAccount(ctx context.Context, a *models.Account) error {
	if a.Version == 0 {
		a.Version = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.CustomerID, a.AccountNumber, a.Balance, a.AccountType,
		a.Status, a.Version, a.CreatedAt, a.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) AccountNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, number).Scan(&exists)
	return exists, mapError(err)
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *models.Account) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, status = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		a.Balance, a.Status, a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %s", ErrConflict, a.ID)
	}
	a.Version++
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, balance_after, correlation_id, counterparty, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		tr.ID, tr.AccountID, tr.Type, tr.Amount, tr.BalanceAfter,
		tr.CorrelationID, tr.Counterparty, tr.Description, tr.Timestamp).Scan(&tr.Seq)
	return mapError(err)
}

func (t *pgTx) InsertLoan(ctx context.Context, l *models.Loan) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		l.ID, l.AccountID, l.SchemeID, l.LoanName, l.Description, l.Type,
		l.Amount, l.InterestRate, l.DurationMonths, l.RemainingMonths, l.EMIAmount,
		l.AmountPaid, l.NextDueDate, l.Status, l.AppliedAt, l.ApprovedAt, l.ApprovedBy,
		l.RejectedAt, l.RejectedBy, l.CompletedAt, l.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) UpdateLoan(ctx context.Context, l *models.Loan) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE loans
		SET remaining_months = $1, amount_paid = $2, next_due_date = $3, status = $4,
		    approved_at = $5, approved_by = $6, rejected_at = $7, rejected_by = $8,
		    completed_at = $9, updated_at = $10
		WHERE id = $11`,
		l.RemainingMonths, l.AmountPaid, l.NextDueDate, l.Status,
		l.ApprovedAt, l.ApprovedBy, l.RejectedAt, l.RejectedBy,
		l.CompletedAt, l.UpdatedAt, l.ID)
	return expectOneRow(result, err)
}

func (t *pgTx) InsertLoanPayment(ctx context.Context, p *models.LoanPayment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loan_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.LoanID, p.AccountID, p.TransactionID, p.Amount,
		p.Kind, p.Installment, p.RemainingMonths, p.PaidAt)
	return mapError(err)
}

func (t *pgTx) InsertScheme(ctx context.Context, s *models.LoanScheme) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loan_schemes (`+schemeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.Description, s.InterestRate, s.MaxAmount,
		s.Status, s.CreatedAt, s.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) UpdateScheme(ctx context.Context, s *models.LoanScheme) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE loan_schemes
		SET description = $1, interest_rate = $2, max_amount = $3, status = $4, updated_at = $5
		WHERE id = $6`,
		s.Description, s.InterestRate, s.MaxAmount, s.Status, s.UpdatedAt, s.ID)
	return expectOneRow(result, err)
}

func expectOneRow(result sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

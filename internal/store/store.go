// Package store is the persistence boundary of the engine. All writes happen inside a
// unit of work opened with Store.WithTx; the unit commits only if the callback returns nil.
package store

import (
	"context"
	"errors"

	"github.com/fbibank/backend/internal/models"
)

var (
	ErrNotFound    = errors.New("store: record not found")
	ErrDuplicate   = errors.New("store: duplicate key")
	ErrConflict    = errors.New("store: concurrent modification")
	ErrLockTimeout = errors.New("store: row lock not available")
)

// LoanFilter selects loans; zero values match everything
type LoanFilter struct {
	AccountID string
	Statuses  []models.LoanStatus
}

func (f LoanFilter) Matches(l *models.Loan) bool {
	if f.AccountID != "" && l.AccountID != f.AccountID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if l.Status == s {
			return true
		}
	}
	return false
}

// Reader holds the read operations available both inside and outside a unit of work.
type Reader interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)

	// ListTransactions returns an account's rows newest first.
	ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	ListTransactionsByCorrelation(ctx context.Context, correlationID string) ([]models.Transaction, error)

	GetLoan(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, error)
	ListLoanPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error)

	GetScheme(ctx context.Context, id string) (*models.LoanScheme, error)
	ListSchemes(ctx context.Context, status models.SchemeStatus) ([]models.LoanScheme, error)
}

// Tx is a unit of work. Lock* methods take a row lock held until commit or rollback.
type Tx interface {
	Reader

	LockAccount(ctx context.Context, id string) (*models.Account, error)
	LockLoan(ctx context.Context, id string) (*models.Loan, error)
	// LockScheme takes an exclusive row lock. ShareScheme takes a shared one that only
	// conflicts with LockScheme.
	LockScheme(ctx context.Context, id string) (*models.LoanScheme, error)
	ShareScheme(ctx context.Context, id string) (*models.LoanScheme, error)

	InsertCustomer(ctx context.Context, c *models.Customer) error
	InsertAccount(ctx context.Context, a *models.Account) error
	AccountNumberExists(ctx context.Context, number string) (bool, error)
	// UpdateAccount writes balance and status if the stored version equals a.Version,
	// then increments a.Version.
	UpdateAccount(ctx context.Context, a *models.Account) error
	InsertTransaction(ctx context.Context, t *models.Transaction) error

	InsertLoan(ctx context.Context, l *models.Loan) error
	UpdateLoan(ctx context.Context, l *models.Loan) error
	InsertLoanPayment(ctx context.Context, p *models.LoanPayment) error

	InsertScheme(ctx context.Context, s *models.LoanScheme) error
	UpdateScheme(ctx context.Context, s *models.LoanScheme) error
}

type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

// AdminApprovalWorkflow holds the back-office operations. It drives loan transitions
// through LoanServicingEngine and account status through AccountLedger; it never posts
// to balances.
type AdminApprovalWorkflow struct {
	store  store.Store
	ledger *AccountLedger
	loans  *LoanServicingEngine
	audit  *AuditLogger
	now    func() time.Time
}

func NewAdminApprovalWorkflow(st store.Store, ledger *AccountLedger, loans *LoanServicingEngine, audit *AuditLogger) *AdminApprovalWorkflow {
	return &AdminApprovalWorkflow{
		store:  st,
		ledger: ledger,
		loans:  loans,
		audit:  audit,
		now:    time.Now,
	}
}

func (a *AdminApprovalWorkflow) Approve(ctx context.Context, loanID, admin string) (*models.Loan, error) {
	return a.loans.Activate(ctx, loanID, admin)
}

func (a *AdminApprovalWorkflow) Reject(ctx context.Context, loanID, admin string) (*models.Loan, error) {
	return a.loans.Reject(ctx, loanID, admin)
}

// Block deactivates an account. Blocking a blocked account succeeds without change.
func (a *AdminApprovalWorkflow) Block(ctx context.Context, accountID string) (bool, error) {
	changed, err := a.ledger.SetStatus(ctx, accountID, models.AccountStatusInactive)
	if err == nil {
		log.Printf("[ADMIN] Block account %s (changed=%t)", accountID, changed)
	}
	return changed, err
}

// Unblock reactivates an account. Unblocking an active account succeeds without change.
func (a *AdminApprovalWorkflow) Unblock(ctx context.Context, accountID string) (bool, error) {
	changed, err := a.ledger.SetStatus(ctx, accountID, models.AccountStatusActive)
	if err == nil {
		log.Printf("[ADMIN] Unblock account %s (changed=%t)", accountID, changed)
	}
	return changed, err
}

// LaunchScheme publishes a new active loan scheme
func (a *AdminApprovalWorkflow) LaunchScheme(ctx context.Context, req models.SchemeRequest) (*models.LoanScheme, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: scheme name is required", ErrInvalidInput)
	}
	if err := validateInterestRate(req.InterestRate); err != nil {
		return nil, err
	}
	if err := validateAmount(req.MaxAmount); err != nil {
		return nil, fmt.Errorf("%w: max amount", err)
	}

	now := a.now().UTC()
	scheme := &models.LoanScheme{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		InterestRate: req.InterestRate,
		MaxAmount:    req.MaxAmount,
		Status:       models.SchemeStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.InsertScheme(ctx, scheme)
		if errors.Is(err, store.ErrDuplicate) {
			return ErrSchemeExists
		}
		return err
	})
	if err != nil {
		return nil, translate(err, nil)
	}

	a.audit.LogOperation("SCHEME_LAUNCHED", scheme.ID, "", scheme.Name)
	log.Printf("[ADMIN] Launched scheme %q at %s%% up to %s", scheme.Name, scheme.InterestRate.String(), scheme.MaxAmount.StringFixed(2))
	return scheme, nil
}

// SetSchemeStatus retires or reactivates a scheme. Existing loans are not affected.
func (a *AdminApprovalWorkflow) SetSchemeStatus(ctx context.Context, schemeID string, status models.SchemeStatus) (*models.LoanScheme, error) {
	if status != models.SchemeStatusActive && status != models.SchemeStatusRetired {
		return nil, fmt.Errorf("%w: scheme status %q", ErrInvalidInput, status)
	}

	var scheme *models.LoanScheme
	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		scheme, err = tx.LockScheme(ctx, schemeID)
		if err != nil {
			return translate(err, ErrSchemeNotFound)
		}
		if scheme.Status == status {
			return nil
		}
		scheme.Status = status
		scheme.UpdatedAt = a.now().UTC()
		return tx.UpdateScheme(ctx, scheme)
	})
	if err != nil {
		return nil, translate(err, ErrSchemeNotFound)
	}

	a.audit.LogOperation("SCHEME_STATUS", scheme.ID, "", string(status))
	return scheme, nil
}

func (a *AdminApprovalWorkflow) CreateAccount(ctx context.Context, req models.AccountOpening) (*models.Account, error) {
	return a.ledger.OpenAccount(ctx, req)
}

func (a *AdminApprovalWorkflow) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return a.ledger.ListAccounts(ctx)
}

// ListLoans lists every loan, optionally narrowed to one status
func (a *AdminApprovalWorkflow) ListLoans(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	filter := store.LoanFilter{}
	if status != "" {
		switch status {
		case models.LoanStatusPending, models.LoanStatusApproved, models.LoanStatusRejected,
			models.LoanStatusActive, models.LoanStatusCompleted:
		default:
			return nil, fmt.Errorf("%w: loan status %q", ErrInvalidInput, status)
		}
		filter.Statuses = []models.LoanStatus{status}
	}
	return a.store.ListLoans(ctx, filter)
}

// ListSchemes returns schemes in every status
func (a *AdminApprovalWorkflow) ListSchemes(ctx context.Context) ([]models.LoanScheme, error) {
	return a.store.ListSchemes(ctx, "")
}

func (a *AdminApprovalWorkflow) Reconcile(ctx context.Context, accountID string) (*models.Reconciliation, error) {
	return a.ledger.Reconcile(ctx, accountID)
}

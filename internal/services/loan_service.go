package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

// LoanServicingEngine owns loans and their repayment. It never writes balances itself;
// EMI debits are posted through AccountLedger.PostTx.
type LoanServicingEngine struct {
	store  store.Store
	locks  lock.Locker
	ledger *AccountLedger
	audit  *AuditLogger
	now    func() time.Time
}

func NewLoanServicingEngine(st store.Store, locks lock.Locker, ledger *AccountLedger, audit *AuditLogger) *LoanServicingEngine {
	return &LoanServicingEngine{
		store:  st,
		locks:  locks,
		ledger: ledger,
		audit:  audit,
		now:    time.Now,
	}
}

func validateDuration(months int) error {
	if months < MinLoanMonths || months > MaxLoanMonths {
		return ErrInvalidDuration
	}
	return nil
}

// ApplyLoan creates a pending loan against a published scheme. The scheme is read under
// a shared row lock in the same unit of work as the insert, so a concurrent retirement
// either precedes the check or waits for the loan to commit.
func (e *LoanServicingEngine) ApplyLoan(ctx context.Context, accountID string, req models.LoanApplication) (*models.Loan, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := validateDuration(req.DurationMonths); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		AccountID:      accountID,
		Type:           models.LoanTypeScheme,
		Amount:         req.Amount,
		DurationMonths: req.DurationMonths,
	}
	return e.createLoan(ctx, loan, func(tx store.Tx) error {
		scheme, err := tx.ShareScheme(ctx, req.SchemeID)
		if err != nil {
			return translate(err, ErrSchemeNotFound)
		}
		if scheme.Status != models.SchemeStatusActive {
			return ErrSchemeInactive
		}
		if req.Amount.GreaterThan(scheme.MaxAmount) {
			return fmt.Errorf("%w: maximum is %s", ErrAmountExceedsSchemeLimit, scheme.MaxAmount.StringFixed(2))
		}

		schemeID := scheme.ID
		loan.SchemeID = &schemeID
		loan.LoanName = scheme.Name
		loan.Description = scheme.Description
		loan.InterestRate = scheme.InterestRate
		loan.EMIAmount = ComputeEMI(req.Amount, scheme.InterestRate, req.DurationMonths)
		return nil
	})
}

// ApplyCustomLoan creates a pending interest-free loan outside the scheme catalog
func (e *LoanServicingEngine) ApplyCustomLoan(ctx context.Context, accountID string, req models.CustomLoanApplication) (*models.Loan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: loan name is required", ErrInvalidInput)
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := validateDuration(req.DurationMonths); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		AccountID:      accountID,
		LoanName:       name,
		Description:    strings.TrimSpace(req.Description),
		Type:           models.LoanTypeCustom,
		Amount:         req.Amount,
		InterestRate:   decimal.Zero,
		DurationMonths: req.DurationMonths,
		EMIAmount:      ComputeEMI(req.Amount, decimal.Zero, req.DurationMonths),
	}
	return e.createLoan(ctx, loan, nil)
}

// createLoan inserts loan as pending. prepare, when set, runs first inside the unit of
// work and may fill in loan fields.
func (e *LoanServicingEngine) createLoan(ctx context.Context, loan *models.Loan, prepare func(tx store.Tx) error) (*models.Loan, error) {
	now := e.now().UTC()
	loan.ID = uuid.NewString()
	loan.RemainingMonths = loan.DurationMonths
	loan.AmountPaid = decimal.Zero
	loan.Status = models.LoanStatusPending
	loan.AppliedAt = now
	loan.UpdatedAt = now

	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		if prepare != nil {
			if err := prepare(tx); err != nil {
				return err
			}
		}
		account, err := tx.GetAccount(ctx, loan.AccountID)
		if err != nil {
			return translate(err, ErrAccountNotFound)
		}
		if !account.IsActive() {
			return ErrAccountInactive
		}
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		err = translate(err, nil)
		e.audit.LogFailure("LOAN_APPLY", loan.AccountID, err)
		return nil, err
	}

	e.audit.LogLoan("LOAN_APPLIED", loan, loan.AccountID)
	log.Printf("[LOAN] %s loan %s applied by %s: %s over %d months, EMI %s",
		loan.Type, loan.ID, loan.AccountID, loan.Amount.StringFixed(2), loan.DurationMonths, loan.EMIAmount.StringFixed(2))
	return loan, nil
}

// PayEMI settles the next installment of an active loan owned by accountID
func (e *LoanServicingEngine) PayEMI(ctx context.Context, loanID, accountID string) (*models.Loan, *models.LoanPayment, error) {
	return e.pay(ctx, loanID, accountID, models.PaymentRegular)
}

// PayAdvance settles an installment ahead of schedule. It is refused when only the
// final installment remains.
func (e *LoanServicingEngine) PayAdvance(ctx context.Context, loanID, accountID string) (*models.Loan, *models.LoanPayment, error) {
	return e.pay(ctx, loanID, accountID, models.PaymentAdvance)
}

func (e *LoanServicingEngine) pay(ctx context.Context, loanID, accountID string, kind models.PaymentKind) (*models.Loan, *models.LoanPayment, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, translate(err, ErrLoanNotFound)
	}
	if loan.AccountID != accountID {
		return nil, nil, ErrForbidden
	}

	release, err := e.locks.Acquire(ctx, lock.LoanKey(loanID), lock.AccountKey(accountID))
	if err != nil {
		return nil, nil, translate(err, nil)
	}
	defer release()

	var payment *models.LoanPayment
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return translate(err, ErrLoanNotFound)
		}
		if loan.AccountID != accountID {
			return ErrForbidden
		}
		if loan.Status != models.LoanStatusActive || loan.RemainingMonths <= 0 {
			return ErrLoanNotActive
		}
		if kind == models.PaymentAdvance && loan.RemainingMonths <= 1 {
			return ErrAdvanceNotAllowed
		}

		_, debit, err := e.ledger.PostTx(ctx, tx, LedgerEntry{
			AccountID:   accountID,
			Type:        models.TxWithdraw,
			Amount:      loan.EMIAmount,
			Description: fmt.Sprintf("EMI payment for %s (%s)", loan.LoanName, loan.ID),
		})
		if err != nil {
			return err
		}

		now := e.now().UTC()
		loan.RemainingMonths--
		loan.AmountPaid = loan.AmountPaid.Add(loan.EMIAmount)
		loan.UpdatedAt = now
		if loan.RemainingMonths == 0 {
			loan.Status = models.LoanStatusCompleted
			loan.CompletedAt = &now
			loan.NextDueDate = nil
		} else {
			anchor := now
			if loan.ApprovedAt != nil {
				anchor = *loan.ApprovedAt
			}
			due := addMonths(anchor, loan.InstallmentsPaid()+1)
			loan.NextDueDate = &due
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		payment = &models.LoanPayment{
			ID:              uuid.NewString(),
			LoanID:          loan.ID,
			AccountID:       accountID,
			TransactionID:   debit.ID,
			Amount:          debit.Amount,
			Kind:            kind,
			Installment:     loan.InstallmentsPaid(),
			RemainingMonths: loan.RemainingMonths,
			PaidAt:          now,
		}
		return tx.InsertLoanPayment(ctx, payment)
	})
	if err != nil {
		err = translate(err, ErrLoanNotFound)
		e.audit.LogFailure("LOAN_PAYMENT", accountID, err)
		return nil, nil, err
	}

	e.audit.LogLoanPayment(payment)
	if loan.Status == models.LoanStatusCompleted {
		e.audit.LogLoan("LOAN_COMPLETED", loan, accountID)
	}
	log.Printf("[LOAN] %s payment %d/%d on loan %s, %d remaining",
		kind, payment.Installment, loan.DurationMonths, loan.ID, loan.RemainingMonths)
	return loan, payment, nil
}

// Activate approves a pending loan and starts its repayment schedule. The loan passes
// through approved and is stored active.
func (e *LoanServicingEngine) Activate(ctx context.Context, loanID, approver string) (*models.Loan, error) {
	return e.transition(ctx, loanID, "LOAN_APPROVED", approver, func(loan *models.Loan, now time.Time) {
		loan.Status = models.LoanStatusApproved
		loan.ApprovedAt = &now
		loan.ApprovedBy = approver

		due := addMonths(now, 1)
		loan.RemainingMonths = loan.DurationMonths
		loan.NextDueDate = &due
		loan.Status = models.LoanStatusActive
	})
}

// Reject closes a pending loan
func (e *LoanServicingEngine) Reject(ctx context.Context, loanID, rejector string) (*models.Loan, error) {
	return e.transition(ctx, loanID, "LOAN_REJECTED", rejector, func(loan *models.Loan, now time.Time) {
		loan.Status = models.LoanStatusRejected
		loan.RejectedAt = &now
		loan.RejectedBy = rejector
	})
}

func (e *LoanServicingEngine) transition(ctx context.Context, loanID, event, actor string, apply func(*models.Loan, time.Time)) (*models.Loan, error) {
	if _, err := e.store.GetLoan(ctx, loanID); err != nil {
		return nil, translate(err, ErrLoanNotFound)
	}

	release, err := e.locks.Acquire(ctx, lock.LoanKey(loanID))
	if err != nil {
		return nil, translate(err, nil)
	}
	defer release()

	var loan *models.Loan
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return translate(err, ErrLoanNotFound)
		}
		if loan.Status != models.LoanStatusPending {
			return fmt.Errorf("%w: loan is %s", ErrInvalidStateTransition, loan.Status)
		}

		now := e.now().UTC()
		apply(loan, now)
		loan.UpdatedAt = now
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		err = translate(err, ErrLoanNotFound)
		e.audit.LogFailure(event, actor, err)
		return nil, err
	}

	e.audit.LogLoan(event, loan, actor)
	log.Printf("[LOAN] Loan %s is now %s (by %s)", loan.ID, loan.Status, actor)
	return loan, nil
}

func (e *LoanServicingEngine) ListActiveLoans(ctx context.Context, accountID string) ([]models.Loan, error) {
	return e.store.ListLoans(ctx, store.LoanFilter{
		AccountID: accountID,
		Statuses:  []models.LoanStatus{models.LoanStatusActive},
	})
}

func (e *LoanServicingEngine) ListMyLoans(ctx context.Context, accountID string) ([]models.Loan, error) {
	return e.store.ListLoans(ctx, store.LoanFilter{AccountID: accountID})
}

// ListSchemes returns the schemes customers can apply for
func (e *LoanServicingEngine) ListSchemes(ctx context.Context) ([]models.LoanScheme, error) {
	return e.store.ListSchemes(ctx, models.SchemeStatusActive)
}

// Payments returns the payment history of a loan owned by accountID
func (e *LoanServicingEngine) Payments(ctx context.Context, loanID, accountID string) ([]models.LoanPayment, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, translate(err, ErrLoanNotFound)
	}
	if loan.AccountID != accountID {
		return nil, ErrForbidden
	}
	return e.store.ListLoanPayments(ctx, loanID)
}

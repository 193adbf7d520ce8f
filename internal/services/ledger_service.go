package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

const accountNumberAttempts = 5

// LedgerEntry is one balance movement posted through AccountLedger.PostTx
type LedgerEntry struct {
	AccountID     string
	Type          models.TransactionType
	Amount        decimal.Decimal
	CorrelationID string
	Counterparty  string
	Description   string
}

// History is an account's filtered transaction list
type History struct {
	AccountNumber     string               `json:"account_number"`
	TotalTransactions int                  `json:"total_transactions"`
	Transactions      []models.Transaction `json:"transactions"`
}

// AccountLedger owns balances and the append-only transaction log. Every balance change
// in the engine goes through PostTx.
type AccountLedger struct {
	store    store.Store
	locks    lock.Locker
	audit    *AuditLogger
	password Argon2Params
	now      func() time.Time
}

func NewAccountLedger(st store.Store, locks lock.Locker, audit *AuditLogger, password Argon2Params) *AccountLedger {
	return &AccountLedger{
		store:    st,
		locks:    locks,
		audit:    audit,
		password: password,
		now:      time.Now,
	}
}

func (l *AccountLedger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Account, *models.Transaction, error) {
	return l.post(ctx, "DEPOSIT", LedgerEntry{AccountID: accountID, Type: models.TxDeposit, Amount: amount})
}

func (l *AccountLedger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Account, *models.Transaction, error) {
	return l.post(ctx, "WITHDRAW", LedgerEntry{AccountID: accountID, Type: models.TxWithdraw, Amount: amount})
}

func (l *AccountLedger) post(ctx context.Context, operation string, entry LedgerEntry) (*models.Account, *models.Transaction, error) {
	if err := validateAmount(entry.Amount); err != nil {
		return nil, nil, err
	}
	if _, err := l.store.GetAccount(ctx, entry.AccountID); err != nil {
		return nil, nil, translate(err, ErrAccountNotFound)
	}

	release, err := l.locks.Acquire(ctx, lock.AccountKey(entry.AccountID))
	if err != nil {
		return nil, nil, translate(err, nil)
	}
	defer release()

	var account *models.Account
	var txn *models.Transaction
	err = l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		account, txn, err = l.PostTx(ctx, tx, entry)
		return err
	})
	if err != nil {
		err = translate(err, ErrAccountNotFound)
		l.audit.LogFailure(operation, entry.AccountID, err)
		return nil, nil, err
	}

	l.audit.LogLedgerEntry(txn)
	log.Printf("[LEDGER] %s of %s on account %s, balance %s", txn.Type, txn.Amount.StringFixed(2), account.ID, account.Balance.StringFixed(2))
	return account, txn, nil
}

// PostTx applies entry inside the caller's unit of work: it row-locks the account, checks
// it is active and stays non-negative, updates the balance and appends the Transaction.
// The caller must hold the account's Locker key.
func (l *AccountLedger) PostTx(ctx context.Context, tx store.Tx, entry LedgerEntry) (*models.Account, *models.Transaction, error) {
	if err := validateAmount(entry.Amount); err != nil {
		return nil, nil, err
	}
	if !entry.Type.Valid() {
		return nil, nil, fmt.Errorf("%w: transaction type %q", ErrInvalidInput, entry.Type)
	}

	account, err := tx.LockAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, nil, translate(err, ErrAccountNotFound)
	}
	if !account.IsActive() {
		return nil, nil, ErrAccountInactive
	}

	delta := entry.Amount
	if entry.Type.IsDebit() {
		delta = delta.Neg()
	}
	balance := account.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, nil, ErrInsufficientFunds
	}

	now := l.now().UTC()
	account.Balance = balance
	account.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, account); err != nil {
		return nil, nil, err
	}

	txn := &models.Transaction{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Type:          entry.Type,
		Amount:        entry.Amount,
		BalanceAfter:  balance,
		CorrelationID: entry.CorrelationID,
		Counterparty:  entry.Counterparty,
		Description:   entry.Description,
		Timestamp:     now,
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, nil, err
	}
	return account, txn, nil
}

// History lists an account's transactions newest first, filtered and paginated
func (l *AccountLedger) History(ctx context.Context, accountID string, filter models.HistoryFilter) (*History, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset cannot be negative", ErrInvalidInput)
	}

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err, ErrAccountNotFound)
	}

	all, err := l.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Transaction, 0, len(all))
	for i := range all {
		if filter.Matches(&all[i]) {
			matched = append(matched, all[i])
		}
	}

	page := matched
	if filter.Offset >= len(page) {
		page = []models.Transaction{}
	} else {
		page = page[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(page) {
		page = page[:filter.Limit]
	}

	return &History{
		AccountNumber:     account.AccountNumber,
		TotalTransactions: len(matched),
		Transactions:      page,
	}, nil
}

// OpenAccount creates the customer, the account and the optional initial deposit in one
// unit of work.
func (l *AccountLedger) OpenAccount(ctx context.Context, req models.AccountOpening) (*models.Account, error) {
	if err := validateOpeningDeposit(req.InitialDeposit); err != nil {
		return nil, fmt.Errorf("%w: initial deposit", err)
	}
	switch req.AccountType {
	case models.AccountTypeSavings, models.AccountTypeCurrent, models.AccountTypeFixed:
	default:
		return nil, fmt.Errorf("%w: account type %q", ErrInvalidInput, req.AccountType)
	}

	passwordHash, err := l.password.Hash(req.Customer.Password)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	profile := req.Customer
	customer := &models.Customer{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(profile.FullName),
		DOB:          profile.DOB,
		Gender:       profile.Gender,
		Email:        strings.ToLower(strings.TrimSpace(profile.Email)),
		Phone:        profile.Phone,
		Address:      profile.Address,
		IDProof:      profile.IDProof,
		Nominee:      profile.Nominee,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	var account *models.Account
	err = l.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertCustomer(ctx, customer); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrCustomerExists
			}
			return err
		}

		number, err := l.allocateAccountNumber(ctx, tx)
		if err != nil {
			return err
		}

		account = &models.Account{
			ID:            uuid.NewString(),
			CustomerID:    customer.ID,
			AccountNumber: number,
			Balance:       decimal.Zero,
			AccountType:   req.AccountType,
			Status:        models.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertAccount(ctx, account); err != nil {
			return err
		}

		if req.InitialDeposit.IsPositive() {
			// nobody else can see the account before commit, no Locker key needed
			account, _, err = l.PostTx(ctx, tx, LedgerEntry{
				AccountID:   account.ID,
				Type:        models.TxDeposit,
				Amount:      req.InitialDeposit,
				Description: "Initial deposit",
			})
			return err
		}
		return nil
	})
	if err != nil {
		err = translate(err, nil)
		l.audit.LogFailure("OPEN_ACCOUNT", "", err)
		return nil, err
	}

	l.audit.LogOperation("OPEN_ACCOUNT", account.AccountNumber, account.ID, "account type "+account.AccountType)
	log.Printf("[LEDGER] Opened account %s for customer %s", account.AccountNumber, customer.ID)
	return account, nil
}

func (l *AccountLedger) allocateAccountNumber(ctx context.Context, tx store.Tx) (string, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		number := generateAccountNumber()
		exists, err := tx.AccountNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrAccountNumberExhausted
}

// generateAccountNumber returns ACC followed by 10 random digits
func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return "ACC" + string(b)
}

// SetStatus activates or deactivates an account and reports whether anything changed
func (l *AccountLedger) SetStatus(ctx context.Context, accountID string, status models.AccountStatus) (bool, error) {
	if status != models.AccountStatusActive && status != models.AccountStatusInactive {
		return false, fmt.Errorf("%w: account status %q", ErrInvalidInput, status)
	}
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return false, translate(err, ErrAccountNotFound)
	}

	release, err := l.locks.Acquire(ctx, lock.AccountKey(accountID))
	if err != nil {
		return false, translate(err, nil)
	}
	defer release()

	changed := false
	err = l.store.WithTx(ctx, func(tx store.Tx) error {
		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == status {
			return nil
		}
		account.Status = status
		account.UpdatedAt = l.now().UTC()
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, translate(err, ErrAccountNotFound)
	}

	if changed {
		l.audit.LogOperation("ACCOUNT_STATUS", accountID, accountID, string(status))
	}
	return changed, nil
}

func (l *AccountLedger) Account(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	return account, translate(err, ErrAccountNotFound)
}

func (l *AccountLedger) AccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	account, err := l.store.GetAccountByNumber(ctx, number)
	return account, translate(err, ErrAccountNotFound)
}

// AccountDetails returns the account with its customer profile
func (l *AccountLedger) AccountDetails(ctx context.Context, accountID string) (*models.AccountDetails, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err, ErrAccountNotFound)
	}

	details := &models.AccountDetails{Account: *account}
	customer, err := l.store.GetCustomer(ctx, account.CustomerID)
	switch {
	case err == nil:
		details.Customer = customer
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return details, nil
}

func (l *AccountLedger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return l.store.ListAccounts(ctx)
}

// Reconcile replays the account's transaction log from zero and compares the result with
// the stored balance. The account lock keeps writers out while both are read.
func (l *AccountLedger) Reconcile(ctx context.Context, accountID string) (*models.Reconciliation, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return nil, translate(err, ErrAccountNotFound)
	}

	release, err := l.locks.Acquire(ctx, lock.AccountKey(accountID))
	if err != nil {
		return nil, translate(err, nil)
	}
	defer release()

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translate(err, ErrAccountNotFound)
	}
	txns, err := l.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	replayed := decimal.Zero
	for i := len(txns) - 1; i >= 0; i-- {
		replayed = replayed.Add(txns[i].SignedAmount())
	}

	result := &models.Reconciliation{
		AccountID:       accountID,
		StoredBalance:   account.Balance,
		ReplayedBalance: replayed,
		Transactions:    len(txns),
		Consistent:      replayed.Equal(account.Balance),
	}
	if !result.Consistent {
		log.Printf("[LEDGER] Reconciliation mismatch on %s: stored %s, replayed %s",
			accountID, account.Balance.StringFixed(2), replayed.StringFixed(2))
	}
	return result, nil
}

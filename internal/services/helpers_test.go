package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

var testArgon2 = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLength: 16, SaltLength: 8}

type testEnv struct {
	store     *store.Memory
	locks     *lock.Memory
	ledger    *AccountLedger
	transfers *TransferCoordinator
	loans     *LoanServicingEngine
	admin     *AdminApprovalWorkflow
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithTimeout(t, 2*time.Second)
}

func newTestEnvWithTimeout(t *testing.T, lockTimeout time.Duration) *testEnv {
	t.Helper()
	st := store.NewMemory()
	locks := lock.NewMemory(lockTimeout)
	audit := NewAuditLogger()

	ledger := NewAccountLedger(st, locks, audit, testArgon2)
	loans := NewLoanServicingEngine(st, locks, ledger, audit)
	return &testEnv{
		store:     st,
		locks:     locks,
		ledger:    ledger,
		transfers: NewTransferCoordinator(st, locks, ledger, audit),
		loans:     loans,
		admin:     NewAdminApprovalWorkflow(st, ledger, loans, audit),
	}
}

var emailSeq atomic.Int64

func (e *testEnv) openAccount(t *testing.T, initial string) *models.Account {
	t.Helper()
	n := emailSeq.Add(1)
	account, err := e.admin.CreateAccount(context.Background(), models.AccountOpening{
		Customer: models.CustomerProfile{
			FullName: "Test Customer",
			DOB:      "1990-05-17",
			Gender:   "female",
			Email:    fmt.Sprintf("customer%d@example.com", n),
			Password: "secret123",
			Phone:    "+910000000000",
			Address:  models.Address{Street: "1 Main Rd", City: "Pune", State: "MH", Zip: "411001", Country: "IN"},
			IDProof:  models.IDProof{Type: "pan", Number: fmt.Sprintf("PAN%05d", n)},
		},
		AccountType:    models.AccountTypeSavings,
		InitialDeposit: dec(initial),
	})
	require.NoError(t, err)
	return account
}

func (e *testEnv) launchScheme(t *testing.T, name, rate, max string) *models.LoanScheme {
	t.Helper()
	scheme, err := e.admin.LaunchScheme(context.Background(), models.SchemeRequest{
		Name:         name,
		InterestRate: dec(rate),
		MaxAmount:    dec(max),
	})
	require.NoError(t, err)
	return scheme
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := e.ledger.Account(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func (e *testEnv) setClock(now time.Time) {
	clock := func() time.Time { return now }
	e.ledger.now = clock
	e.loans.now = clock
	e.admin.now = clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

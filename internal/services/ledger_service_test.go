package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/models"
)

func TestAccountLedger_Deposit(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit on top of an initial balance", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "1000")

		updated, txn, err := env.ledger.Deposit(ctx, acct.ID, dec("5000"))
		require.NoError(t, err)
		assert.True(t, updated.Balance.Equal(dec("6000")))
		assert.Equal(t, models.TxDeposit, txn.Type)
		assert.True(t, txn.BalanceAfter.Equal(dec("6000")))

		history, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, history.Transactions, 2)
		assert.True(t, history.Transactions[0].Amount.Equal(dec("5000")))
		assert.True(t, history.Transactions[1].Amount.Equal(dec("1000")))
	})

	t.Run("rejects bad amounts before touching the account", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "0")

		for _, amount := range []string{"0", "-5", "10.005"} {
			_, _, err := env.ledger.Deposit(ctx, acct.ID, dec(amount))
			assert.ErrorIs(t, err, ErrInvalidAmount, amount)
			assert.Equal(t, KindValidation, KindOf(err))
		}

		history, _ := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		assert.Empty(t, history.Transactions)
	})

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.ledger.Deposit(ctx, "missing", dec("10"))
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("blocked account", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "10")
		_, err := env.admin.Block(ctx, acct.ID)
		require.NoError(t, err)

		_, _, err = env.ledger.Deposit(ctx, acct.ID, dec("10"))
		assert.ErrorIs(t, err, ErrAccountInactive)
		assert.True(t, env.balance(t, acct.ID).Equal(dec("10")))
	})
}

func TestAccountLedger_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "100")

		_, _, err := env.ledger.Withdraw(ctx, acct.ID, dec("200"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, env.balance(t, acct.ID).Equal(dec("100")))

		history, _ := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		require.Len(t, history.Transactions, 1)
		assert.Equal(t, models.TxDeposit, history.Transactions[0].Type)
	})

	t.Run("withdraw the whole balance", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "250.50")

		updated, txn, err := env.ledger.Withdraw(ctx, acct.ID, dec("250.50"))
		require.NoError(t, err)
		assert.True(t, updated.Balance.IsZero())
		assert.Equal(t, models.TxWithdraw, txn.Type)
	})

	t.Run("concurrent withdrawals never overdraw", func(t *testing.T) {
		env := newTestEnv(t)
		acct := env.openAccount(t, "100")

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, refused := 0, 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := env.ledger.Withdraw(ctx, acct.ID, dec("10"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case assert.ErrorIs(t, err, ErrInsufficientFunds):
					refused++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		assert.Equal(t, 10, refused)
		assert.True(t, env.balance(t, acct.ID).IsZero())
	})
}

func TestAccountLedger_RejectsUnboundedAmounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "100")

	for _, raw := range []string{"1e99999999", "1e-99999999", "1e19"} {
		t.Run(raw, func(t *testing.T) {
			done := make(chan error, 1)
			go func() {
				_, _, err := env.ledger.Deposit(ctx, acct.ID, dec(raw))
				done <- err
			}()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrInvalidAmount)
			case <-time.After(5 * time.Second):
				t.Fatalf("Deposit(%s) did not return", raw)
			}
		})
	}
	assert.True(t, env.balance(t, acct.ID).Equal(dec("100")))
}

func TestAccountLedger_ConcurrentPostingIsConserved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "1000")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := env.ledger.Deposit(ctx, acct.ID, dec("10"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, _, err := env.ledger.Withdraw(ctx, acct.ID, dec("7.5"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, env.balance(t, acct.ID).Equal(dec("1125")))

	rec, err := env.admin.Reconcile(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 101, rec.Transactions)

	// every row's balance_after continues the previous one
	history, _ := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
	txns := history.Transactions
	for i := len(txns) - 2; i >= 0; i-- {
		expected := txns[i+1].BalanceAfter.Add(txns[i].SignedAmount())
		assert.True(t, expected.Equal(txns[i].BalanceAfter))
	}
}

func TestAccountLedger_LockTimeout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithTimeout(t, 30*time.Millisecond)
	acct := env.openAccount(t, "100")

	release, err := env.locks.Acquire(ctx, lock.AccountKey(acct.ID))
	require.NoError(t, err)
	defer release()

	_, _, err = env.ledger.Withdraw(ctx, acct.ID, dec("50"))
	assert.ErrorIs(t, err, ErrConcurrencyTimeout)
	assert.Equal(t, KindConcurrencyTimeout, KindOf(err))
	assert.True(t, env.balance(t, acct.ID).Equal(dec("100")))
}

func TestAccountLedger_History(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "1000")
	other := env.openAccount(t, "0")

	_, _, err := env.ledger.Withdraw(ctx, acct.ID, dec("200"))
	require.NoError(t, err)
	_, _, err = env.transfers.Transfer(ctx, acct.ID, other.AccountNumber, dec("300"))
	require.NoError(t, err)

	t.Run("unfiltered", func(t *testing.T) {
		h, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Type: "all"})
		require.NoError(t, err)
		assert.Equal(t, acct.AccountNumber, h.AccountNumber)
		assert.Equal(t, 3, h.TotalTransactions)
		assert.Equal(t, models.TxTransferSent, h.Transactions[0].Type)
	})

	t.Run("type substring ignores case", func(t *testing.T) {
		h, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Type: "TRANSFER"})
		require.NoError(t, err)
		require.Len(t, h.Transactions, 1)
		assert.Equal(t, other.AccountNumber, h.Transactions[0].Counterparty)
	})

	t.Run("search by amount", func(t *testing.T) {
		h, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Search: "200"})
		require.NoError(t, err)
		require.Len(t, h.Transactions, 1)
		assert.Equal(t, models.TxWithdraw, h.Transactions[0].Type)
	})

	t.Run("search by timestamp", func(t *testing.T) {
		all, _ := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		day := all.Transactions[0].Timestamp.UTC().Format("2006-01-02")
		h, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Search: day})
		require.NoError(t, err)
		assert.Len(t, h.Transactions, 3)
	})

	t.Run("pagination keeps the total", func(t *testing.T) {
		h, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, h.TotalTransactions)
		require.Len(t, h.Transactions, 1)
		assert.Equal(t, models.TxWithdraw, h.Transactions[0].Type)

		h, err = env.ledger.History(ctx, acct.ID, models.HistoryFilter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, h.Transactions)

		_, err = env.ledger.History(ctx, acct.ID, models.HistoryFilter{Limit: -1})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("reads are idempotent", func(t *testing.T) {
		first, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		require.NoError(t, err)
		second, err := env.ledger.History(ctx, acct.ID, models.HistoryFilter{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestAccountLedger_OpenAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req := models.AccountOpening{
		Customer: models.CustomerProfile{
			FullName: " Asha Rao ",
			DOB:      "1988-02-11",
			Gender:   "female",
			Email:    "Asha.Rao@Example.com",
			Password: "hunter22",
			Phone:    "+919999999999",
			Nominee:  &models.Nominee{Name: "Ravi Rao", Relation: "spouse", Phone: "+918888888888"},
		},
		AccountType:    models.AccountTypeCurrent,
		InitialDeposit: dec("500"),
	}

	acct, err := env.admin.CreateAccount(ctx, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(acct.AccountNumber, "ACC"))
	assert.Len(t, acct.AccountNumber, 13)
	assert.True(t, acct.Balance.Equal(dec("500")))

	details, err := env.ledger.AccountDetails(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, details.Customer)
	assert.Equal(t, "asha.rao@example.com", details.Customer.Email)
	assert.Equal(t, "Asha Rao", details.Customer.FullName)
	assert.NotEqual(t, "hunter22", details.Customer.PasswordHash)
	assert.Equal(t, "spouse", details.Customer.Nominee.Relation)

	byNumber, err := env.ledger.AccountByNumber(ctx, acct.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byNumber.ID)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.admin.CreateAccount(ctx, req)
		assert.ErrorIs(t, err, ErrCustomerExists)
		accounts, _ := env.admin.ListAccounts(ctx)
		assert.Len(t, accounts, 1)
	})

	t.Run("negative initial deposit", func(t *testing.T) {
		bad := req
		bad.Customer.Email = "other@example.com"
		bad.InitialDeposit = dec("-1")
		_, err := env.admin.CreateAccount(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown account type", func(t *testing.T) {
		bad := req
		bad.Customer.Email = "third@example.com"
		bad.AccountType = "crypto"
		_, err := env.admin.CreateAccount(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

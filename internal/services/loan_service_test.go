package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

func TestComputeEMI(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		months    int
		want      string
	}{
		{"reducing balance", "100000", "12", 12, "8884.88"},
		{"fractional rate", "500000", "8.5", 240, "4339.12"},
		{"zero rate spreads evenly", "12000", "0", 12, "1000"},
		{"zero rate rounds half up", "1000", "0", 3, "333.33"},
		{"single month", "1000", "12", 1, "1010"},
		{"no months", "1000", "12", 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEMI(dec(tt.principal), dec(tt.rate), tt.months)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestAddMonths(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 29, 9, 30, 0, 0, time.UTC), addMonths(jan31, 1))
	assert.Equal(t, time.Date(2024, time.March, 31, 9, 30, 0, 0, time.UTC), addMonths(jan31, 2))
	assert.Equal(t, time.Date(2025, time.February, 28, 9, 30, 0, 0, time.UTC), addMonths(jan31, 13))

	mid := time.Date(2024, time.November, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), addMonths(mid, 2))
}

func TestLoanServicingEngine_ApplyLoan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "0")
	scheme := env.launchScheme(t, "Personal Loan", "12", "50000")

	t.Run("amount over the scheme cap", func(t *testing.T) {
		_, err := env.loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{
			SchemeID: scheme.ID, Amount: dec("60000"), DurationMonths: 12,
		})
		assert.ErrorIs(t, err, ErrAmountExceedsSchemeLimit)
		assert.Equal(t, KindValidation, KindOf(err))

		loans, _ := env.loans.ListMyLoans(ctx, acct.ID)
		assert.Empty(t, loans)
	})

	t.Run("creates a pending scheme loan", func(t *testing.T) {
		loan, err := env.loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{
			SchemeID: scheme.ID, Amount: dec("50000"), DurationMonths: 12,
		})
		require.NoError(t, err)
		assert.Equal(t, models.LoanStatusPending, loan.Status)
		assert.Equal(t, models.LoanTypeScheme, loan.Type)
		assert.Equal(t, "Personal Loan", loan.LoanName)
		assert.Equal(t, scheme.ID, *loan.SchemeID)
		assert.True(t, loan.EMIAmount.Equal(dec("4442.44")))
		assert.Nil(t, loan.NextDueDate)
	})

	t.Run("rejected inputs", func(t *testing.T) {
		cases := []struct {
			req  models.LoanApplication
			want error
		}{
			{models.LoanApplication{SchemeID: "missing", Amount: dec("10"), DurationMonths: 12}, ErrSchemeNotFound},
			{models.LoanApplication{SchemeID: scheme.ID, Amount: dec("0"), DurationMonths: 12}, ErrInvalidAmount},
			{models.LoanApplication{SchemeID: scheme.ID, Amount: dec("10"), DurationMonths: 0}, ErrInvalidDuration},
			{models.LoanApplication{SchemeID: scheme.ID, Amount: dec("10"), DurationMonths: 361}, ErrInvalidDuration},
		}
		for _, c := range cases {
			_, err := env.loans.ApplyLoan(ctx, acct.ID, c.req)
			assert.ErrorIs(t, err, c.want)
		}
	})

	t.Run("blocked account cannot borrow", func(t *testing.T) {
		blocked := env.openAccount(t, "0")
		_, err := env.admin.Block(ctx, blocked.ID)
		require.NoError(t, err)

		_, err = env.loans.ApplyLoan(ctx, blocked.ID, models.LoanApplication{
			SchemeID: scheme.ID, Amount: dec("100"), DurationMonths: 2,
		})
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("retired scheme", func(t *testing.T) {
		retired := env.launchScheme(t, "Old Scheme", "10", "1000")
		_, err := env.admin.SetSchemeStatus(ctx, retired.ID, models.SchemeStatusRetired)
		require.NoError(t, err)

		_, err = env.loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{
			SchemeID: retired.ID, Amount: dec("100"), DurationMonths: 2,
		})
		assert.ErrorIs(t, err, ErrSchemeInactive)
	})
}

// beforeTxStore runs hook once, just before the next unit of work opens.
type beforeTxStore struct {
	store.Store
	hook func()
}

func (s *beforeTxStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return s.Store.WithTx(ctx, fn)
}

func TestLoanServicingEngine_ApplyLoanSeesSchemeRetirement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "0")
	scheme := env.launchScheme(t, "Seasonal Loan", "10", "5000")

	hooked := &beforeTxStore{Store: env.store}
	loans := NewLoanServicingEngine(hooked, env.locks, env.ledger, NewAuditLogger())

	hooked.hook = func() {
		_, err := env.admin.SetSchemeStatus(ctx, scheme.ID, models.SchemeStatusRetired)
		require.NoError(t, err)
	}
	_, err := loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{
		SchemeID: scheme.ID, Amount: dec("1000"), DurationMonths: 6,
	})
	assert.ErrorIs(t, err, ErrSchemeInactive)

	mine, err := env.loans.ListMyLoans(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	hooked.hook = func() {
		_, err := env.admin.SetSchemeStatus(ctx, scheme.ID, models.SchemeStatusActive)
		require.NoError(t, err)
	}
	loan, err := loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{
		SchemeID: scheme.ID, Amount: dec("1000"), DurationMonths: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, "Seasonal Loan", loan.LoanName)
	assert.True(t, loan.InterestRate.Equal(dec("10")))
}

func TestLoanServicingEngine_ApplyCustomLoan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "0")

	loan, err := env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{
		Name: "  Laptop  ", Amount: dec("1000"), DurationMonths: 3, Description: "work laptop",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanTypeCustom, loan.Type)
	assert.Equal(t, "Laptop", loan.LoanName)
	assert.Nil(t, loan.SchemeID)
	assert.True(t, loan.InterestRate.IsZero())
	assert.True(t, loan.EMIAmount.Equal(dec("333.33")))

	_, err = env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{Name: " ", Amount: dec("10"), DurationMonths: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.loans.ApplyCustomLoan(ctx, "missing", models.CustomLoanApplication{Name: "x", Amount: dec("10"), DurationMonths: 1})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLoanServicingEngine_Repayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	approvedAt := time.Date(2025, time.January, 31, 10, 0, 0, 0, time.UTC)
	env.setClock(approvedAt)

	acct := env.openAccount(t, "10000")
	loan, err := env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{
		Name: "Bike", Amount: dec("3000"), DurationMonths: 3,
	})
	require.NoError(t, err)

	_, _, err = env.loans.PayEMI(ctx, loan.ID, acct.ID)
	assert.ErrorIs(t, err, ErrLoanNotActive, "pending loans cannot be paid")

	loan, err = env.admin.Approve(ctx, loan.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.February, 28, 10, 0, 0, 0, time.UTC), *loan.NextDueDate)

	t.Run("someone else's loan", func(t *testing.T) {
		other := env.openAccount(t, "10000")
		_, _, err := env.loans.PayEMI(ctx, loan.ID, other.ID)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = env.loans.Payments(ctx, loan.ID, other.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	wantDue := []time.Time{
		time.Date(2025, time.March, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 30, 10, 0, 0, 0, time.UTC),
	}
	remaining := loan.RemainingMonths
	for i := 0; i < 3; i++ {
		paid, payment, err := env.loans.PayEMI(ctx, loan.ID, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, remaining-1, paid.RemainingMonths)
		remaining = paid.RemainingMonths

		assert.Equal(t, i+1, payment.Installment)
		assert.Equal(t, models.PaymentRegular, payment.Kind)
		assert.True(t, payment.Amount.Equal(dec("1000")))

		if remaining > 0 {
			assert.Equal(t, models.LoanStatusActive, paid.Status)
			assert.Equal(t, wantDue[i], *paid.NextDueDate)
		} else {
			assert.Equal(t, models.LoanStatusCompleted, paid.Status)
			assert.NotNil(t, paid.CompletedAt)
			assert.True(t, paid.AmountPaid.Equal(dec("3000")))
		}
	}

	assert.True(t, env.balance(t, acct.ID).Equal(dec("7000")))

	_, _, err = env.loans.PayEMI(ctx, loan.ID, acct.ID)
	assert.ErrorIs(t, err, ErrLoanNotActive)

	payments, err := env.loans.Payments(ctx, loan.ID, acct.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, 0, payments[2].RemainingMonths)

	h, _ := env.ledger.History(ctx, acct.ID, models.HistoryFilter{Search: "Bike"})
	assert.Empty(t, h.Transactions, "search does not look at descriptions")
	h, _ = env.ledger.History(ctx, acct.ID, models.HistoryFilter{Type: "withdraw"})
	require.Len(t, h.Transactions, 3)
	assert.Equal(t, payments[2].TransactionID, h.Transactions[0].ID)
}

func TestLoanServicingEngine_PayAdvance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "1000")

	loan, err := env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{
		Name: "Phone", Amount: dec("200"), DurationMonths: 2,
	})
	require.NoError(t, err)
	_, err = env.admin.Approve(ctx, loan.ID, "admin-1")
	require.NoError(t, err)

	paid, payment, err := env.loans.PayAdvance(ctx, loan.ID, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, paid.RemainingMonths)
	assert.Equal(t, models.PaymentAdvance, payment.Kind)

	// one installment left: advance is refused, the regular EMI closes the loan
	_, _, err = env.loans.PayAdvance(ctx, loan.ID, acct.ID)
	assert.ErrorIs(t, err, ErrAdvanceNotAllowed)
	assert.True(t, env.balance(t, acct.ID).Equal(dec("900")))

	paid, _, err = env.loans.PayEMI(ctx, loan.ID, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, paid.RemainingMonths)
	assert.Equal(t, models.LoanStatusCompleted, paid.Status)
}

func TestLoanServicingEngine_PaymentWithoutFunds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "50")

	loan, err := env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{
		Name: "Fridge", Amount: dec("600"), DurationMonths: 6,
	})
	require.NoError(t, err)
	_, err = env.admin.Approve(ctx, loan.ID, "admin-1")
	require.NoError(t, err)

	_, _, err = env.loans.PayEMI(ctx, loan.ID, acct.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	after, err := env.store.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, after.RemainingMonths)
	assert.True(t, after.AmountPaid.IsZero())

	payments, _ := env.loans.Payments(ctx, loan.ID, acct.ID)
	assert.Empty(t, payments)
	assert.True(t, env.balance(t, acct.ID).Equal(dec("50")))
}

func TestLoanServicingEngine_Listings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.openAccount(t, "0")
	active := env.launchScheme(t, "Gold Loan", "9", "100000")
	retired := env.launchScheme(t, "Festival Loan", "11", "20000")
	_, err := env.admin.SetSchemeStatus(ctx, retired.ID, models.SchemeStatusRetired)
	require.NoError(t, err)

	first, err := env.loans.ApplyLoan(ctx, acct.ID, models.LoanApplication{SchemeID: active.ID, Amount: dec("1000"), DurationMonths: 10})
	require.NoError(t, err)
	_, err = env.loans.ApplyCustomLoan(ctx, acct.ID, models.CustomLoanApplication{Name: "Tuition", Amount: dec("500"), DurationMonths: 5})
	require.NoError(t, err)
	_, err = env.admin.Approve(ctx, first.ID, "admin-1")
	require.NoError(t, err)

	schemes, err := env.loans.ListSchemes(ctx)
	require.NoError(t, err)
	require.Len(t, schemes, 1)
	assert.Equal(t, active.ID, schemes[0].ID)

	mine, err := env.loans.ListMyLoans(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	activeLoans, err := env.loans.ListActiveLoans(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, activeLoans, 1)
	assert.Equal(t, first.ID, activeLoans[0].ID)
}

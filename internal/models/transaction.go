package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

// TransactionType values
const (
	TxDeposit          TransactionType = "deposit"
	TxWithdraw         TransactionType = "withdraw"
	TxTransferSent     TransactionType = "transfer_sent"
	TxTransferReceived TransactionType = "transfer_received"
)

// IsDebit reports whether the entry reduces the account balance
func (t TransactionType) IsDebit() bool {
	return t == TxWithdraw || t == TxTransferSent
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdraw, TxTransferSent, TxTransferReceived:
		return true
	}
	return false
}

// HistoryTimeLayout is the timestamp rendering the history search matches against
const HistoryTimeLayout = "2006-01-02 15:04:05"

// Transaction is one immutable ledger row
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	Seq           int64           `json:"-" db:"seq"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	CorrelationID string          `json:"correlation_id,omitempty" db:"correlation_id"`
	Counterparty  string          `json:"counterparty,omitempty" db:"counterparty"`
	Description   string          `json:"description,omitempty" db:"description"`
	Timestamp     time.Time       `json:"timestamp" db:"created_at"`
}

// SignedAmount is the balance delta this row applied
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type.IsDebit() {
		return t.Amount.Neg()
	}
	return t.Amount
}

// HistoryFilter narrows an account's transaction history
type HistoryFilter struct {
	Type   string
	Search string
	Limit  int
	Offset int
}

// Matches applies the type filter and free-text search to one row
func (f HistoryFilter) Matches(t *Transaction) bool {
	typ := strings.ToLower(string(t.Type))
	if ft := strings.ToLower(strings.TrimSpace(f.Type)); ft != "" && ft != "all" {
		if !strings.Contains(typ, ft) {
			return false
		}
	}

	term := strings.TrimSpace(f.Search)
	if term == "" {
		return true
	}
	return strings.Contains(typ, strings.ToLower(term)) ||
		strings.Contains(t.Amount.String(), term) ||
		strings.Contains(t.Amount.StringFixed(2), term) ||
		strings.Contains(t.Timestamp.UTC().Format(HistoryTimeLayout), term)
}

// TransferReceipt holds both legs of a committed transfer
type TransferReceipt struct {
	CorrelationID string       `json:"correlation_id"`
	Sent          *Transaction `json:"sent"`
	Received      *Transaction `json:"received"`
}

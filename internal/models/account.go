package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

// AccountStatus values
const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account types accepted at account opening
const (
	AccountTypeSavings = "savings"
	AccountTypeCurrent = "current"
	AccountTypeFixed   = "fixed"
)

// Account represents a customer deposit account
type Account struct {
	ID            string          `json:"id" db:"id"`
	CustomerID    string          `json:"customer_id" db:"customer_id"`
	AccountNumber string          `json:"account_number" db:"account_number"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	AccountType   string          `json:"account_type" db:"account_type"`
	Status        AccountStatus   `json:"status" db:"status"`
	Version       int             `json:"-" db:"version"` // for optimistic locking
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// AccountDetails is the account as shown to its owner, with the customer profile
type AccountDetails struct {
	Account
	Customer *Customer `json:"customer,omitempty"`
}

// Reconciliation is the result of replaying an account's transaction log
type Reconciliation struct {
	AccountID       string          `json:"account_id"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	Transactions    int             `json:"transactions"`
	Consistent      bool            `json:"consistent"`
}

// AccountOpening is the admin request that opens an account for a new customer
type AccountOpening struct {
	Customer       CustomerProfile `json:"customer"`
	AccountType    string          `json:"account_type" validate:"required,oneof=savings current fixed"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

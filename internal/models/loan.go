package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

// LoanStatus values
const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
)

// Terminal reports whether no further transition is possible
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusRejected || s == LoanStatusCompleted
}

type LoanType string

const (
	LoanTypeScheme LoanType = "scheme"
	LoanTypeCustom LoanType = "custom"
)

type SchemeStatus string

const (
	SchemeStatusActive  SchemeStatus = "active"
	SchemeStatusRetired SchemeStatus = "retired"
)

// LoanScheme is a published loan product with a fixed rate and cap
type LoanScheme struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description,omitempty" db:"description"`
	InterestRate decimal.Decimal `json:"interest_rate" db:"interest_rate"` // annual, percent
	MaxAmount    decimal.Decimal `json:"max_amount" db:"max_amount"`
	Status       SchemeStatus    `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Loan is a scheme-based or custom loan and its repayment schedule
type Loan struct {
	ID              string          `json:"id" db:"id"`
	AccountID       string          `json:"account_id" db:"account_id"`
	SchemeID        *string         `json:"scheme_id" db:"scheme_id"`
	LoanName        string          `json:"loan_name" db:"loan_name"`
	Description     string          `json:"description,omitempty" db:"description"`
	Type            LoanType        `json:"type" db:"type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	InterestRate    decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	DurationMonths  int             `json:"duration_months" db:"duration_months"`
	RemainingMonths int             `json:"remaining_months" db:"remaining_months"`
	EMIAmount       decimal.Decimal `json:"emi_amount" db:"emi_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	NextDueDate     *time.Time      `json:"next_due_date" db:"next_due_date"`
	Status          LoanStatus      `json:"status" db:"status"`
	AppliedAt       time.Time       `json:"applied_at" db:"applied_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy      string          `json:"approved_by,omitempty" db:"approved_by"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectedBy      string          `json:"rejected_by,omitempty" db:"rejected_by"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// InstallmentsPaid is the number of EMIs settled so far
func (l *Loan) InstallmentsPaid() int {
	if l.Status == LoanStatusPending || l.Status == LoanStatusRejected {
		return 0
	}
	return l.DurationMonths - l.RemainingMonths
}

type PaymentKind string

const (
	PaymentRegular PaymentKind = "regular"
	PaymentAdvance PaymentKind = "advance"
)

// LoanPayment records one EMI paid against a loan
type LoanPayment struct {
	ID              string          `json:"id" db:"id"`
	LoanID          string          `json:"loan_id" db:"loan_id"`
	AccountID       string          `json:"account_id" db:"account_id"`
	TransactionID   string          `json:"transaction_id" db:"transaction_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Kind            PaymentKind     `json:"kind" db:"kind"`
	Installment     int             `json:"installment" db:"installment"`
	RemainingMonths int             `json:"remaining_months" db:"remaining_months"`
	PaidAt          time.Time       `json:"paid_at" db:"paid_at"`
}

// LoanApplication is a request to borrow against a published scheme
type LoanApplication struct {
	SchemeID       string          `json:"scheme_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	DurationMonths int             `json:"duration_months" validate:"required,gt=0,lte=360"`
}

// CustomLoanApplication is a request for a loan outside the scheme catalog
type CustomLoanApplication struct {
	Name           string          `json:"name" validate:"required,min=2,max=100"`
	Amount         decimal.Decimal `json:"amount"`
	DurationMonths int             `json:"duration_months" validate:"required,gt=0,lte=360"`
	Description    string          `json:"description" validate:"max=500"`
}

// SchemeRequest launches a new loan scheme
type SchemeRequest struct {
	Name         string          `json:"name" validate:"required,min=2,max=100"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	Description  string          `json:"description" validate:"max=500"`
}

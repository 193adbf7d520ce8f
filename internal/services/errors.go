package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/store"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindStateConflict
	KindConcurrencyTimeout
)

// EngineError is a classified failure of a ledger or loan operation. The package-level
// values are sentinels; callers may wrap them with detail and test with errors.Is.
type EngineError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput             = newError(KindValidation, "INVALID_INPUT", "invalid input")
	ErrInvalidAmount            = newError(KindValidation, "INVALID_AMOUNT", "amount must be a positive value up to 1000000000000000 with at most two decimal places")
	ErrInvalidDuration          = newError(KindValidation, "INVALID_DURATION", "duration must be between 1 and 360 months")
	ErrInvalidInterestRate      = newError(KindValidation, "INVALID_INTEREST_RATE", "interest rate must be between 0 and 100 with at most four decimal places")
	ErrAmountExceedsSchemeLimit = newError(KindValidation, "AMOUNT_EXCEEDS_SCHEME_LIMIT", "amount exceeds the scheme's maximum")
	ErrSameAccountTransfer      = newError(KindValidation, "SAME_ACCOUNT_TRANSFER", "cannot transfer to the same account")

	ErrUnauthorized = newError(KindAuth, "UNAUTHORIZED", "authentication required")
	ErrForbidden    = newError(KindAuth, "FORBIDDEN", "not permitted")

	ErrAccountNotFound  = newError(KindNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	ErrLoanNotFound     = newError(KindNotFound, "LOAN_NOT_FOUND", "loan not found")
	ErrSchemeNotFound   = newError(KindNotFound, "SCHEME_NOT_FOUND", "loan scheme not found")
	ErrTransferNotFound = newError(KindNotFound, "TRANSFER_NOT_FOUND", "transfer not found")

	ErrAccountInactive        = newError(KindStateConflict, "ACCOUNT_INACTIVE", "account is inactive")
	ErrInsufficientFunds      = newError(KindStateConflict, "INSUFFICIENT_FUNDS", "insufficient balance")
	ErrSchemeInactive         = newError(KindStateConflict, "SCHEME_INACTIVE", "loan scheme is not active")
	ErrInvalidStateTransition = newError(KindStateConflict, "INVALID_STATE_TRANSITION", "loan is not pending")
	ErrAdvanceNotAllowed      = newError(KindStateConflict, "ADVANCE_NOT_ALLOWED", "advance payment needs more than one remaining installment")
	ErrLoanNotActive          = newError(KindStateConflict, "LOAN_NOT_ACTIVE", "loan is not active")
	ErrCustomerExists         = newError(KindStateConflict, "CUSTOMER_EXISTS", "a customer with this email already exists")
	ErrSchemeExists           = newError(KindStateConflict, "SCHEME_EXISTS", "a loan scheme with this name already exists")
	ErrAccountNumberExhausted = newError(KindInternal, "ACCOUNT_NUMBER_UNAVAILABLE", "could not allocate an account number")
	ErrConcurrencyTimeout     = newError(KindConcurrencyTimeout, "CONCURRENCY_TIMEOUT", "resource is busy, retry the request")
)

// KindOf classifies err; anything that is not an EngineError is internal.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an engine failure to its response status
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		if errors.Is(err, ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindConcurrencyTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// translate turns store and lock failures into engine errors. notFound is returned for
// store.ErrNotFound. A cancelled request is reported as a concurrency timeout since it
// committed nothing. Other storage errors pass through unchanged and end up as 500s.
func translate(err error, notFound *EngineError) error {
	var e *EngineError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return err
	case errors.Is(err, store.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, lock.ErrTimeout),
		errors.Is(err, store.ErrLockTimeout),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrConcurrencyTimeout, err)
	}
	return err
}

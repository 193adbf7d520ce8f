package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code"`              // Machine readable error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message, Code: codeForStatus(statusCode)}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	writeError(w, statusCode, errorResp)
}

// SendEngineError renders an engine failure. Internal errors are logged and replaced by a
// generic message.
func SendEngineError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)

	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Kind == KindInternal {
		log.Printf("[HTTP] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{
			Error: "An Internal Error Occurred",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	message := err.Error()
	if engineErr.Kind == KindConcurrencyTimeout {
		w.Header().Set("Retry-After", strconv.Itoa(1))
		message = engineErr.Message
	}
	writeError(w, status, ErrorResponse{Error: message, Code: engineErr.Code})
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func codeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "CONCURRENCY_TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// MaxAmount bounds every money value accepted from a caller. Balances are stored as
// NUMERIC(20,2).
var MaxAmount = decimal.New(1, 15)

// MaxInterestRate is the largest annual percentage a scheme may charge.
var MaxInterestRate = decimal.NewFromInt(100)

// maxExponent limits the scale of caller input. Rounding or comparing a decimal rescales
// its coefficient by 10^|exponent|, so this check must run before any arithmetic.
const maxExponent = 18

func boundedScale(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxExponent && exp <= maxExponent
}

// validateAmount accepts strictly positive amounts up to MaxAmount with at most two
// decimal places
func validateAmount(amount decimal.Decimal) error {
	if !boundedScale(amount) || !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// validateOpeningDeposit is validateAmount that also allows zero
func validateOpeningDeposit(amount decimal.Decimal) error {
	if boundedScale(amount) && amount.IsZero() {
		return nil
	}
	return validateAmount(amount)
}

// validateInterestRate accepts 0..MaxInterestRate with at most four decimal places
func validateInterestRate(rate decimal.Decimal) error {
	if !boundedScale(rate) || rate.IsNegative() || rate.GreaterThan(MaxInterestRate) {
		return ErrInvalidInterestRate
	}
	if !rate.Equal(rate.Round(4)) {
		return ErrInvalidInterestRate
	}
	return nil
}

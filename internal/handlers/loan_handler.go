package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/services"
)

type LoanHandler struct {
	loans     *services.LoanServicingEngine
	validator *services.ValidationHelper
}

func NewLoanHandler(loans *services.LoanServicingEngine) *LoanHandler {
	return &LoanHandler{
		loans:     loans,
		validator: services.NewValidationHelper(),
	}
}

// Apply requests a loan against a published scheme
// @Summary Apply for a scheme loan
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.LoanApplication true "Loan application"
// @Success 201 {object} object{message=string,loan=models.Loan}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/apply [post]
func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req models.LoanApplication
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	loan, err := h.loans.ApplyLoan(r.Context(), accountID, req)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Loan application submitted",
		"loan":    loan,
	})
}

// CustomApply requests an interest-free loan outside the scheme catalog
// @Summary Apply for a custom loan
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CustomLoanApplication true "Custom loan application"
// @Success 201 {object} object{message=string,loan=models.Loan}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/custom-apply [post]
func (h *LoanHandler) CustomApply(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req models.CustomLoanApplication
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	loan, err := h.loans.ApplyCustomLoan(r.Context(), accountID, req)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Custom loan application submitted",
		"loan":    loan,
	})
}

// MyLoans lists every loan of the caller
// @Summary My loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{loans=[]models.Loan}
// @Router /loans/my-loans [get]
func (h *LoanHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	loans, err := h.loans.ListMyLoans(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loans})
}

// Active lists the caller's loans under repayment
// @Summary Active loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{active_loans=[]models.Loan}
// @Router /loans/active [get]
func (h *LoanHandler) Active(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	loans, err := h.loans.ListActiveLoans(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_loans": loans})
}

// Payments lists the EMIs paid on one of the caller's loans
// @Summary Loan payment history
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{payments=[]models.LoanPayment}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{id}/payments [get]
func (h *LoanHandler) Payments(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	payments, err := h.loans.Payments(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

type paymentFunc func(ctx context.Context, loanID, accountID string) (*models.Loan, *models.LoanPayment, error)

// PayEMI pays the next installment
// @Summary Pay EMI
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{message=string,remaining_months=int,next_due_date=string,status=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /loans/pay-emi/{id} [post]
func (h *LoanHandler) PayEMI(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, "EMI paid successfully", h.loans.PayEMI)
}

// PayAdvance pays an installment ahead of schedule
// @Summary Pay EMI in advance
// @Description Refused when only the final installment remains
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{message=string,remaining_months=int,next_due_date=string,status=string}
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/pay-advance/{id} [post]
func (h *LoanHandler) PayAdvance(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, "Advance EMI paid successfully", h.loans.PayAdvance)
}

func (h *LoanHandler) pay(w http.ResponseWriter, r *http.Request, message string, fn paymentFunc) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	loan, _, err := fn(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	if loan.Status == models.LoanStatusCompleted {
		message = "Loan fully repaid"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          message,
		"remaining_months": loan.RemainingMonths,
		"next_due_date":    loan.NextDueDate,
		"status":           loan.Status,
	})
}

// Schemes lists the schemes open for applications
// @Summary Loan schemes
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{total_schemes=int,loan_schemes=[]models.LoanScheme}
// @Router /loans/schemes [get]
func (h *LoanHandler) Schemes(w http.ResponseWriter, r *http.Request) {
	schemes, err := h.loans.ListSchemes(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_schemes": len(schemes),
		"loan_schemes":  schemes,
	})
}

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/services"
)

type AdminHandler struct {
	admin     *services.AdminApprovalWorkflow
	validator *services.ValidationHelper
}

func NewAdminHandler(admin *services.AdminApprovalWorkflow) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		validator: services.NewValidationHelper(),
	}
}

// ApproveLoan approves a pending loan and starts repayment
// @Summary Approve loan
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{message=string,loan=models.Loan}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/loans/approve/{id} [put]
func (h *AdminHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "Loan approved", h.admin.Approve)
}

// RejectLoan rejects a pending loan
// @Summary Reject loan
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} object{message=string,loan=models.Loan}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/loans/reject/{id} [put]
func (h *AdminHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "Loan rejected", h.admin.Reject)
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, message string, fn func(ctx context.Context, loanID, admin string) (*models.Loan, error)) {
	loan, err := fn(r.Context(), chi.URLParam(r, "id"), callerSubject(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "loan": loan})
}

// Block deactivates an account
// @Summary Block account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/block/{id} [put]
func (h *AdminHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "blocked", h.admin.Block)
}

// Unblock reactivates an account
// @Summary Unblock account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/unblock/{id} [put]
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "unblocked", h.admin.Unblock)
}

func (h *AdminHandler) setStatus(w http.ResponseWriter, r *http.Request, verb string, fn func(ctx context.Context, accountID string) (bool, error)) {
	changed, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	message := fmt.Sprintf("Account %s", verb)
	if !changed {
		message = fmt.Sprintf("Account already %s", verb)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message})
}

// LaunchScheme publishes a loan scheme
// @Summary Launch loan scheme
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SchemeRequest true "Scheme"
// @Success 201 {object} object{message=string,loan_scheme=models.LoanScheme}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/loans/launch [post]
func (h *AdminHandler) LaunchScheme(w http.ResponseWriter, r *http.Request) {
	var req models.SchemeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	scheme, err := h.admin.LaunchScheme(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "Loan scheme launched",
		"loan_scheme": scheme,
	})
}

type schemeStatusRequest struct {
	Status models.SchemeStatus `json:"status" validate:"required,oneof=active retired"`
}

// SetSchemeStatus retires or reactivates a scheme
// @Summary Set scheme status
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scheme ID"
// @Param request body object{status=string} true "active or retired"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/loans/schemes/{id}/status [put]
func (h *AdminHandler) SetSchemeStatus(w http.ResponseWriter, r *http.Request) {
	var req schemeStatusRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	scheme, err := h.admin.SetSchemeStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Loan scheme %q is now %s", scheme.Name, scheme.Status),
	})
}

// Schemes lists schemes in every status
// @Summary All loan schemes
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{total_schemes=int,loan_schemes=[]models.LoanScheme}
// @Router /admin/loans/schemes [get]
func (h *AdminHandler) Schemes(w http.ResponseWriter, r *http.Request) {
	schemes, err := h.admin.ListSchemes(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_schemes": len(schemes),
		"loan_schemes":  schemes,
	})
}

// Loans lists loans, optionally by status
// @Summary All loans
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved, rejected, active or completed"
// @Success 200 {object} object{total_loans=int,loans=[]models.Loan}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/loans [get]
func (h *AdminHandler) Loans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.admin.ListLoans(r.Context(), models.LoanStatus(r.URL.Query().Get("status")))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_loans": len(loans),
		"loans":       loans,
	})
}

// Accounts lists every account
// @Summary All accounts
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{total_accounts=int,accounts=[]models.Account}
// @Router /admin/accounts [get]
func (h *AdminHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.ListAccounts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_accounts": len(accounts),
		"accounts":       accounts,
	})
}

// Reconcile replays an account's transactions against its balance
// @Summary Reconcile account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.Reconciliation
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/accounts/{id}/reconcile [get]
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.admin.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateAccount opens an account for a new customer
// @Summary Create account
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.AccountOpening true "Customer and account"
// @Success 201 {object} object{message=string,account_number=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/create [post]
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.AccountOpening
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	account, err := h.admin.CreateAccount(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":        "Account created successfully",
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
	})
}

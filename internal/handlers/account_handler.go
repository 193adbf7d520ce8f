package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/services"
)

type AccountHandler struct {
	ledger    *services.AccountLedger
	transfers *services.TransferCoordinator
	iso       *services.ISO20022Service
	validator *services.ValidationHelper
}

func NewAccountHandler(ledger *services.AccountLedger, transfers *services.TransferCoordinator, iso *services.ISO20022Service) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		transfers: transfers,
		iso:       iso,
		validator: services.NewValidationHelper(),
	}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type postingFunc func(ctx context.Context, accountID string, amount decimal.Decimal) (*models.Account, *models.Transaction, error)

// Deposit credits the caller's account
// @Summary Deposit
// @Description Credit the authenticated customer's account
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=number} true "Deposit request"
// @Success 200 {object} object{message=string,new_balance=number,transaction=models.Transaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/deposit [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "Deposit successful", h.ledger.Deposit)
}

// Withdraw debits the caller's account
// @Summary Withdraw
// @Description Debit the authenticated customer's account; the balance never goes negative
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=number} true "Withdrawal request"
// @Success 200 {object} object{message=string,new_balance=number,transaction=models.Transaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/withdraw [post]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "Withdrawal successful", h.ledger.Withdraw)
}

func (h *AccountHandler) post(w http.ResponseWriter, r *http.Request, message string, fn postingFunc) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	account, txn, err := fn(r.Context(), accountID, req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     message,
		"new_balance": account.Balance,
		"transaction": txn,
	})
}

// Transfer moves money to another account
// @Summary Transfer
// @Description Move money from the caller's account to another account, named by number or receive QR payload
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.TransferRequest true "Transfer request"
// @Success 200 {object} object{message=string,correlation_id=string,sender_new_balance=number}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/transfer [post]
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req services.TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	receiver, err := req.Receiver()
	if err != nil {
		respondError(w, err)
		return
	}

	receipt, sender, err := h.transfers.Transfer(r.Context(), accountID, receiver, req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "Transfer successful",
		"correlation_id":     receipt.CorrelationID,
		"sender_new_balance": sender.Balance,
	})
}

// Transactions lists the caller's transaction history
// @Summary Transaction history
// @Description Newest first; type matches a substring of the transaction type, search matches type, amount or timestamp
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param type query string false "Type filter (all, deposit, withdraw, transfer...)"
// @Param search query string false "Free text search"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.History
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts/transactions [get]
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	limit, okLimit := queryInt(r, "limit")
	offset, okOffset := queryInt(r, "offset")
	if !okLimit || !okOffset {
		services.SendErrorResponse(w, "limit and offset must be non-negative integers", http.StatusBadRequest, nil)
		return
	}

	history, err := h.ledger.History(r.Context(), accountID, models.HistoryFilter{
		Type:   r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Me returns the caller's account and customer profile
// @Summary Account details
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{account_details=models.AccountDetails}
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	details, err := h.ledger.AccountDetails(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"account_details": details})
}

// TransferAdvice renders one of the caller's transfers as a pacs.008 message
// @Summary Transfer advice (ISO 20022)
// @Description pacs.008.001.08 FIToFICustomerCreditTransfer for a transfer the caller sent or received
// @Tags Accounts
// @Produce xml
// @Security BearerAuth
// @Param correlationId path string true "Transfer correlation id"
// @Success 200 {string} string "pacs.008 XML"
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/transfers/{correlationId}/advice [get]
func (h *AccountHandler) TransferAdvice(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	receipt, err := h.transfers.TransferLegs(r.Context(), accountID, chi.URLParam(r, "correlationId"))
	if err != nil {
		respondError(w, err)
		return
	}

	doc, err := h.iso.TransferAdvice(receipt)
	if err != nil {
		respondError(w, err)
		return
	}
	xmlData, err := h.iso.ConvertToXML(doc)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xmlData))
}

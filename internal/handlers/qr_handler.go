package handlers

import (
	"log"
	"net/http"

	"github.com/fbibank/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
	ledger  *services.AccountLedger
}

func NewQRHandler(service *services.QRService, ledger *services.AccountLedger) *QRHandler {
	return &QRHandler{
		service: service,
		ledger:  ledger,
	}
}

// MyQR generates the caller's receive-transfer QR code
// @Summary Receive QR code
// @Description QR code a sender can scan to fill in this account as the transfer receiver
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.AccountQR
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/me/qr [get]
func (h *QRHandler) MyQR(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerAccount(w, r)
	if !ok {
		return
	}

	account, err := h.ledger.Account(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	qr, err := h.service.ReceiveQR(account)
	if err != nil {
		log.Printf("[QR] Failed to generate QR for %s: %v", account.AccountNumber, err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, qr)
}

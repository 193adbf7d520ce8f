package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/fbibank/backend/internal/models"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per committed or failed mutation.
type AuditLogger struct {
	logger *log.Logger
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: log.Default()}
}

func (a *AuditLogger) LogLedgerEntry(t *models.Transaction) {
	a.log(AuditEvent{
		EventType: "LEDGER_" + string(t.Type),
		Reference: t.ID,
		AccountID: t.AccountID,
		Amount:    t.Amount.StringFixed(2),
		Status:    "SUCCESS",
		Details: map[string]string{
			"balance_after":  t.BalanceAfter.StringFixed(2),
			"correlation_id": t.CorrelationID,
			"counterparty":   t.Counterparty,
		},
	})
}

func (a *AuditLogger) LogTransfer(receipt *models.TransferReceipt) {
	a.log(AuditEvent{
		EventType: "TRANSFER",
		Reference: receipt.CorrelationID,
		AccountID: receipt.Sent.AccountID,
		Amount:    receipt.Sent.Amount.StringFixed(2),
		Status:    "SUCCESS",
		Details: map[string]string{
			"from_account": receipt.Received.Counterparty,
			"to_account":   receipt.Sent.Counterparty,
		},
	})
}

func (a *AuditLogger) LogLoan(eventType string, loan *models.Loan, actor string) {
	a.log(AuditEvent{
		EventType: eventType,
		Reference: loan.ID,
		AccountID: loan.AccountID,
		Amount:    loan.Amount.StringFixed(2),
		Status:    string(loan.Status),
		Details: map[string]string{
			"loan_name": loan.LoanName,
			"actor":     actor,
		},
	})
}

func (a *AuditLogger) LogLoanPayment(p *models.LoanPayment) {
	a.log(AuditEvent{
		EventType: "LOAN_PAYMENT",
		Reference: p.LoanID,
		AccountID: p.AccountID,
		Amount:    p.Amount.StringFixed(2),
		Status:    "SUCCESS",
		Details: map[string]any{
			"kind":             p.Kind,
			"installment":      p.Installment,
			"remaining_months": p.RemainingMonths,
			"transaction_id":   p.TransactionID,
		},
	})
}

func (a *AuditLogger) LogOperation(operation, reference, accountID, details string) {
	a.log(AuditEvent{
		EventType: operation,
		Reference: reference,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *AuditLogger) LogFailure(operation, accountID string, err error) {
	a.log(AuditEvent{
		EventType: operation,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}

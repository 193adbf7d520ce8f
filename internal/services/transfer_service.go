package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fbibank/backend/internal/lock"
	"github.com/fbibank/backend/internal/models"
	"github.com/fbibank/backend/internal/store"
)

// TransferRequest moves money from the caller's account to another account. The receiver
// is named by account number or by the payload of their receive QR code.
type TransferRequest struct {
	ReceiverAccountNumber string          `json:"receiver_account_number" validate:"required_without=ReceiverQR"`
	ReceiverQR            string          `json:"receiver_qr,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
}

// Receiver resolves the receiving account number
func (r TransferRequest) Receiver() (string, error) {
	if r.ReceiverAccountNumber != "" {
		return r.ReceiverAccountNumber, nil
	}
	number, err := DecodeReceiveQR(r.ReceiverQR)
	if err != nil {
		return "", fmt.Errorf("%w: unreadable receiver QR", ErrInvalidInput)
	}
	return number, nil
}

// TransferCoordinator moves value between two accounts atomically.
type TransferCoordinator struct {
	store  store.Store
	locks  lock.Locker
	ledger *AccountLedger
	audit  *AuditLogger
}

func NewTransferCoordinator(st store.Store, locks lock.Locker, ledger *AccountLedger, audit *AuditLogger) *TransferCoordinator {
	return &TransferCoordinator{store: st, locks: locks, ledger: ledger, audit: audit}
}

// Transfer debits senderID and credits the account numbered receiverNumber. Both legs
// share a fresh correlation id and commit together or not at all. The sender's account
// after the debit is returned with the receipt.
func (c *TransferCoordinator) Transfer(ctx context.Context, senderID, receiverNumber string, amount decimal.Decimal) (*models.TransferReceipt, *models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return nil, nil, err
	}

	receiver, err := c.store.GetAccountByNumber(ctx, receiverNumber)
	if err != nil {
		return nil, nil, translate(err, ErrAccountNotFound)
	}
	sender, err := c.store.GetAccount(ctx, senderID)
	if err != nil {
		return nil, nil, translate(err, ErrAccountNotFound)
	}
	if sender.ID == receiver.ID {
		return nil, nil, ErrSameAccountTransfer
	}

	release, err := c.locks.Acquire(ctx, lock.AccountKey(sender.ID), lock.AccountKey(receiver.ID))
	if err != nil {
		return nil, nil, translate(err, nil)
	}
	defer release()

	receipt := &models.TransferReceipt{CorrelationID: uuid.NewString()}
	var debited *models.Account
	err = c.store.WithTx(ctx, func(tx store.Tx) error {
		// row locks in the same ascending order as the Locker keys
		first, second := sender.ID, receiver.ID
		if first > second {
			first, second = second, first
		}
		if _, err := tx.LockAccount(ctx, first); err != nil {
			return err
		}
		if _, err := tx.LockAccount(ctx, second); err != nil {
			return err
		}

		var err error
		debited, receipt.Sent, err = c.ledger.PostTx(ctx, tx, LedgerEntry{
			AccountID:     sender.ID,
			Type:          models.TxTransferSent,
			Amount:        amount,
			CorrelationID: receipt.CorrelationID,
			Counterparty:  receiver.AccountNumber,
			Description:   "Transfer to " + receiver.AccountNumber,
		})
		if err != nil {
			return err
		}

		_, receipt.Received, err = c.ledger.PostTx(ctx, tx, LedgerEntry{
			AccountID:     receiver.ID,
			Type:          models.TxTransferReceived,
			Amount:        amount,
			CorrelationID: receipt.CorrelationID,
			Counterparty:  sender.AccountNumber,
			Description:   "Transfer from " + sender.AccountNumber,
		})
		return err
	})
	if err != nil {
		err = translate(err, ErrAccountNotFound)
		c.audit.LogFailure("TRANSFER", sender.ID, err)
		log.Printf("[TRANSFER] %s -> %s failed: %v", sender.AccountNumber, receiver.AccountNumber, err)
		return nil, nil, err
	}

	c.audit.LogTransfer(receipt)
	log.Printf("[TRANSFER] %s moved %s -> %s", receipt.CorrelationID, sender.AccountNumber, receiver.AccountNumber)
	return receipt, debited, nil
}

// TransferLegs returns both legs of a transfer accountID took part in
func (c *TransferCoordinator) TransferLegs(ctx context.Context, accountID, correlationID string) (*models.TransferReceipt, error) {
	legs, err := c.store.ListTransactionsByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	receipt := &models.TransferReceipt{CorrelationID: correlationID}
	party := false
	for i := range legs {
		leg := legs[i]
		switch leg.Type {
		case models.TxTransferSent:
			receipt.Sent = &leg
		case models.TxTransferReceived:
			receipt.Received = &leg
		}
		if leg.AccountID == accountID {
			party = true
		}
	}

	if receipt.Sent == nil || receipt.Received == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, correlationID)
	}
	// a transfer the caller is not part of is reported as missing
	if !party {
		return nil, ErrTransferNotFound
	}
	return receipt, nil
}

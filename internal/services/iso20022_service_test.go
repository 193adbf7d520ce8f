package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbibank/backend/internal/models"
)

func TestISO20022Service_TransferAdvice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.openAccount(t, "900")
	b := env.openAccount(t, "0")

	receipt, _, err := env.transfers.Transfer(ctx, a.ID, b.AccountNumber, dec("250.75"))
	require.NoError(t, err)

	service := NewISO20022Service("FBIBINBB", "INR")
	service.now = func() time.Time { return time.Date(2025, time.May, 2, 8, 0, 0, 0, time.UTC) }

	t.Run("builds a pacs.008 for both legs", func(t *testing.T) {
		doc, err := service.TransferAdvice(receipt)
		require.NoError(t, err)

		assert.Equal(t, "1", string(doc.GrpHdr.NbOfTxs))
		assert.Equal(t, 250.75, doc.GrpHdr.TtlIntrBkSttlmAmt.Value)
		assert.Equal(t, "INR", string(doc.GrpHdr.TtlIntrBkSttlmAmt.Ccy))
		require.Len(t, doc.CdtTrfTxInf, 1)

		tx := doc.CdtTrfTxInf[0]
		assert.Equal(t, string(max35(receipt.CorrelationID)), string(tx.PmtId.EndToEndId))
		assert.Len(t, string(tx.PmtId.EndToEndId), 32)
		assert.Equal(t, a.AccountNumber, string(*tx.Dbtr.Nm))
		assert.Equal(t, b.AccountNumber, string(*tx.Cdtr.Nm))
		assert.Equal(t, "FBIBINBB", string(*tx.DbtrAgt.FinInstnId.BICFI))
	})

	t.Run("renders as XML", func(t *testing.T) {
		doc, err := service.TransferAdvice(receipt)
		require.NoError(t, err)

		xmlData, err := service.ConvertToXML(doc)
		require.NoError(t, err)
		assert.Contains(t, xmlData, "<?xml")
		assert.Contains(t, xmlData, "INDA")
		assert.Contains(t, xmlData, "SLEV")
		assert.Contains(t, xmlData, a.AccountNumber)
		assert.Contains(t, xmlData, b.AccountNumber)
	})

	t.Run("needs both legs", func(t *testing.T) {
		_, err := service.TransferAdvice(&models.TransferReceipt{CorrelationID: "c", Sent: receipt.Sent})
		assert.Error(t, err)
		_, err = service.TransferAdvice(nil)
		assert.Error(t, err)
	})

	t.Run("legs must agree", func(t *testing.T) {
		received := *receipt.Received
		received.Amount = dec("1")
		_, err := service.TransferAdvice(&models.TransferReceipt{
			CorrelationID: receipt.CorrelationID,
			Sent:          receipt.Sent,
			Received:      &received,
		})
		assert.ErrorContains(t, err, "legs disagree")
	})
}

func TestMax35(t *testing.T) {
	assert.Equal(t, "abc", string(max35("a-b-c")))
	long := "0123456789012345678901234567890123456789"
	assert.Len(t, string(max35(long)), 35)
}

package services

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbibank/backend/internal/models"
)

func TestQRService_ReceiveQR(t *testing.T) {
	service := NewQRService("FBIBINBB")
	account := &models.Account{AccountNumber: "ACC4455667788"}

	qr, err := service.ReceiveQR(account)
	require.NoError(t, err)
	assert.Equal(t, "ACC4455667788", qr.AccountNumber)

	t.Run("qr code is a png", func(t *testing.T) {
		img, err := base64.StdEncoding.DecodeString(qr.QRCode)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG\r\n\x1a\n")))
	})

	t.Run("payload decodes back to the account", func(t *testing.T) {
		number, err := DecodeReceiveQR(qr.Payload)
		require.NoError(t, err)
		assert.Equal(t, account.AccountNumber, number)
	})
}

func TestDecodeReceiveQR(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "***"},
		{"not json", base64.URLEncoding.EncodeToString([]byte("hello"))},
		{"no account number", base64.URLEncoding.EncodeToString([]byte(`{"bic":"FBIBINBB"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeReceiveQR(tt.payload)
			assert.Error(t, err)
		})
	}
}

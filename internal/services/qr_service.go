package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"

	"github.com/skip2/go-qrcode"

	"github.com/fbibank/backend/internal/models"
)

// AccountQR is a scannable code that identifies an account as a transfer receiver
type AccountQR struct {
	AccountNumber string `json:"account_number"`
	Payload       string `json:"payload"`
	QRCode        string `json:"qr_code"` // base64 PNG
}

type QRService struct {
	bic  string
	size int
}

func NewQRService(bic string) *QRService {
	return &QRService{bic: bic, size: 256}
}

// ReceiveQR encodes the account number and bank code for a sender's transfer form
func (s *QRService) ReceiveQR(account *models.Account) (*AccountQR, error) {
	jsonData, err := json.Marshal(map[string]string{
		"account_number": account.AccountNumber,
		"bic":            s.bic,
		"intent":         "transfer",
	})
	if err != nil {
		return nil, err
	}
	payload := base64.URLEncoding.EncodeToString(jsonData)

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.size)); err != nil {
		return nil, err
	}

	return &AccountQR{
		AccountNumber: account.AccountNumber,
		Payload:       payload,
		QRCode:        base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// DecodeReceiveQR reads the account number back out of a payload produced by ReceiveQR
func DecodeReceiveQR(payload string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return "", err
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", err
	}
	if data["account_number"] == "" {
		return "", ErrInvalidInput
	}
	return data["account_number"], nil
}

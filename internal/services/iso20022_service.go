package services

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/fbibank/backend/internal/models"
)

// ISO20022Service renders committed transfers as ISO 20022 messages.
type ISO20022Service struct {
	bic      string
	currency string
	now      func() time.Time
}

func NewISO20022Service(bic, currency string) *ISO20022Service {
	return &ISO20022Service{bic: bic, currency: currency, now: time.Now}
}

// max35 fits a uuid into a Max35Text field
func max35(id string) common.Max35Text {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 35 {
		id = id[:35]
	}
	return common.Max35Text(id)
}

// TransferAdvice builds a pacs.008 FIToFICustomerCreditTransfer for an on-us transfer.
// Both agents are this bank; debtor and creditor are identified by account number.
func (iso *ISO20022Service) TransferAdvice(receipt *models.TransferReceipt) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if receipt == nil || receipt.Sent == nil || receipt.Received == nil {
		return nil, errors.New("transfer advice needs both legs")
	}
	sent, received := receipt.Sent, receipt.Received
	if !sent.Amount.Equal(received.Amount) {
		return nil, fmt.Errorf("transfer %s legs disagree: %s vs %s",
			receipt.CorrelationID, sent.Amount.StringFixed(2), received.Amount.StringFixed(2))
	}

	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(iso.currency),
		Value: sent.Amount.InexactFloat64(),
	}
	settlementDate := sent.Timestamp.UTC()
	bic := common.BICFIDec2014Identifier(iso.bic)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             max35(uuid.NewString()),
			CreDtTm:           common.ISODateTime(iso.now().UTC()),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // book transfer on our own ledger
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{max35(sent.ID)}[0],
					EndToEndId: max35(receipt.CorrelationID),
					TxId:       &[]common.Max35Text{max35(received.ID)}[0],
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(received.Counterparty)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{BICFI: &bic},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(sent.Counterparty)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestHistoryFilter_Matches(t *testing.T) {
	row := &Transaction{
		Type:        TxDeposit,
		Amount:      decimal.RequireFromString("5000.00"),
		Description: "salary",
		Timestamp:   time.Date(2025, time.March, 4, 10, 15, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter HistoryFilter
		want   bool
	}{
		{"no filter", HistoryFilter{}, true},
		{"type", HistoryFilter{Type: "DEPOSIT"}, true},
		{"all types", HistoryFilter{Type: "all"}, true},
		{"other type", HistoryFilter{Type: "withdraw"}, false},
		{"amount as rendered", HistoryFilter{Search: "5000.00"}, true},
		{"amount without decimals", HistoryFilter{Search: "5000"}, true},
		{"timestamp", HistoryFilter{Search: "2025-03-04 10:15"}, true},
		{"description is not searched", HistoryFilter{Search: "salary"}, false},
		{"type and search", HistoryFilter{Type: "deposit", Search: "4999"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(row))
		})
	}
}

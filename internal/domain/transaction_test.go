package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionUnmarshalID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"string id", `{"id":"abc","amount":"1"}`, "abc"},
		{"numeric id", `{"id":1709280000000,"amount":1}`, "1709280000000"},
		{"missing id", `{"amount":"1"}`, ""},
		{"null id", `{"id":null,"amount":"1"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx Transaction
			require.NoError(t, json.Unmarshal([]byte(tt.input), &tx))
			assert.Equal(t, tt.wantID, tx.ID)
			assert.True(t, tx.Amount.Equal(decimal.NewFromInt(1)))
		})
	}
}

func TestTransactionUnmarshalKeepsFields(t *testing.T) {
	var tx Transaction
	err := json.Unmarshal([]byte(`{
		"id": "x", "date": "2024-03-01", "time": "10:15", "amount": "12.34",
		"category": "food", "place": "Deli", "memo": "lunch", "payment": "card",
		"auto": true, "refunded": true, "photo": "p.jpg"
	}`), &tx)
	require.NoError(t, err)

	assert.Equal(t, Transaction{
		ID: "x", Date: "2024-03-01", Time: "10:15", Amount: tx.Amount,
		Category: "food", Place: "Deli", Memo: "lunch", Payment: "card",
		Auto: true, Refunded: true, Photo: "p.jpg",
	}, tx)
	assert.Equal(t, "12.34", tx.Amount.String())
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{Date: "2024-02-29", Time: "23:59", Category: "food"}
	require.NoError(t, valid.Validate())

	noTime := valid
	noTime.Time = ""
	require.NoError(t, noTime.Validate())

	for name, tx := range map[string]Transaction{
		"bad date":       {Date: "2023-02-29", Category: "food"},
		"bad time":       {Date: "2024-01-01", Time: "25:00", Category: "food"},
		"blank category": {Date: "2024-01-01", Category: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tx.Validate(), ErrInvalidTransaction)
		})
	}
}

func TestSameEntryComparesAmountNumerically(t *testing.T) {
	a := Transaction{Date: "2024-03-01", Amount: decimal.RequireFromString("10.0"), Category: "food"}
	b := Transaction{Date: "2024-03-01", Amount: decimal.RequireFromString("10"), Category: "food", Place: "x"}
	assert.True(t, a.SameEntry(b))

	b.Category = "fun"
	assert.False(t, a.SameEntry(b))
}

func TestPatchApply(t *testing.T) {
	orig := Transaction{ID: "1", Date: "2024-03-01", Category: "food", Memo: "old"}
	memo := "new"
	auto := true

	got := TransactionPatch{Memo: &memo, Auto: &auto}.Apply(orig)

	assert.Equal(t, "new", got.Memo)
	assert.True(t, got.Auto)
	assert.Equal(t, "food", got.Category)
	assert.Equal(t, "old", orig.Memo)
}

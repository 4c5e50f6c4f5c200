package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedExpenseUnmarshalID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"string id", `{"id":"rent","name":"Rent","amount":"900","day":1}`, "rent"},
		{"numeric id", `{"id":1700000000000,"name":"Rent","amount":"900","day":1}`, "1700000000000"},
		{"missing id", `{"name":"Rent","amount":"900","day":1}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fe FixedExpense
			require.NoError(t, json.Unmarshal([]byte(tt.input), &fe))
			assert.Equal(t, tt.wantID, fe.ID)
			assert.Equal(t, "Rent", fe.Name)
			assert.Equal(t, "900", fe.Amount.String())
			assert.Equal(t, 1, fe.Day)
		})
	}
}

func TestFixedExpenseUnmarshalRejectsBadID(t *testing.T) {
	var fe FixedExpense
	assert.Error(t, json.Unmarshal([]byte(`{"id":{"x":1}}`), &fe))
}

package bigquery

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketbook/internal/domain"
)

func TestRowFromTransaction(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	row, err := RowFromTransaction("u1", domain.Transaction{
		ID:       "tx1",
		Date:     "2024-03-01",
		Time:     "08:15",
		Amount:   decimal.RequireFromString("-12.345"),
		Category: "food",
		Place:    "Deli",
		Refunded: true,
	}, at)
	require.NoError(t, err)

	assert.Equal(t, "tx1", row.TransactionID)
	assert.Equal(t, "u1", row.UID)
	assert.Equal(t, "2024-03-01", row.Date.String())
	assert.Equal(t, bigquery.NullString{StringVal: "08:15", Valid: true}, row.Time)
	assert.Equal(t, "-12.345", row.Amount.FloatString(3))
	assert.True(t, row.Place.Valid)
	assert.False(t, row.Memo.Valid)
	assert.False(t, row.Payment.Valid)
	assert.True(t, row.Refunded)
	assert.Equal(t, time.UTC, row.ExportedTS.Location())
}

func TestRowFromTransactionBadDate(t *testing.T) {
	_, err := RowFromTransaction("u1", domain.Transaction{ID: "tx1", Date: "March 1st"}, time.Now())
	assert.Error(t, err)
}

func TestTransactionRowJSON(t *testing.T) {
	row, err := RowFromTransaction("u1", domain.Transaction{
		ID: "tx1", Date: "2024-03-01", Amount: decimal.RequireFromString("3.5"), Category: "fun",
	}, time.Unix(0, 0))
	require.NoError(t, err)

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"3.50"`)
	assert.Contains(t, string(data), `"transaction_id":"tx1"`)
}

func TestTransactionRowSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	require.NoError(t, err)

	types := map[string]bigquery.FieldType{}
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bigquery.NumericFieldType, types["amount"])
	assert.Equal(t, bigquery.DateFieldType, types["date"])
	assert.Equal(t, bigquery.TimestampFieldType, types["exported_ts"])
	assert.Equal(t, bigquery.StringFieldType, types["place"])
	assert.Len(t, schema, 12)
}

package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketbook/internal/domain"
)

// TransactionSink provides an interface for transaction backup storage.
// This interface enables mocking and testing of backup functionality.
type TransactionSink interface {
	// ExportedIDs returns the ids of the transactions already backed up for uid.
	ExportedIDs(ctx context.Context, uid string) (map[string]bool, error)

	// InsertTransactions appends a batch of rows.
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error
}

// TransactionRow is one backed-up transaction.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id" json:"transaction_id"` // REQUIRED
	UID           string `bigquery:"uid" json:"uid"`                       // REQUIRED

	Date civil.Date          `bigquery:"date" json:"date"`
	Time bigquery.NullString `bigquery:"time" json:"time,omitempty"`

	Amount   *big.Rat `bigquery:"amount" json:"amount"` // NUMERIC
	Category string   `bigquery:"category" json:"category"`

	Place   bigquery.NullString `bigquery:"place" json:"place,omitempty"`
	Memo    bigquery.NullString `bigquery:"memo" json:"memo,omitempty"`
	Payment bigquery.NullString `bigquery:"payment" json:"payment,omitempty"`

	Auto     bool `bigquery:"auto" json:"auto"`
	Refunded bool `bigquery:"refunded" json:"refunded"`

	ExportedTS time.Time `bigquery:"exported_ts" json:"exported_ts"`
}

// MarshalJSON renders the amount as a decimal string.
func (t TransactionRow) MarshalJSON() ([]byte, error) {
	type Alias TransactionRow
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		*Alias
	}{
		Amount: func() string {
			if t.Amount == nil {
				return "0"
			}
			return t.Amount.FloatString(2)
		}(),
		Alias: (*Alias)(&t),
	})
}

// RowFromTransaction converts a document transaction into a backup row.
func RowFromTransaction(uid string, tx domain.Transaction, exportedAt time.Time) (*TransactionRow, error) {
	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: date %q: %w", tx.ID, tx.Date, err)
	}
	return &TransactionRow{
		TransactionID: tx.ID,
		UID:           uid,
		Date:          date,
		Time:          nullString(tx.Time),
		Amount:        tx.Amount.Rat(),
		Category:      tx.Category,
		Place:         nullString(tx.Place),
		Memo:          nullString(tx.Memo),
		Payment:       nullString(tx.Payment),
		Auto:          tx.Auto,
		Refunded:      tx.Refunded,
		ExportedTS:    exportedAt.UTC(),
	}, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

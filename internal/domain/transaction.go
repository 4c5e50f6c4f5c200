package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the layout of Transaction.Date.
	DateLayout = "2006-01-02"
	// TimeLayout is the layout of Transaction.Time.
	TimeLayout = "15:04"
)

// ErrInvalidTransaction is returned when a transaction fails validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is one entry of the transactions field.
// The list is kept most-recent-insert-first, independent of Date.
type Transaction struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"` // YYYY-MM-DD
	Time     string          `json:"time"` // HH:MM, may be empty
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Place    string          `json:"place"`
	Memo     string          `json:"memo"`
	Payment  string          `json:"payment"`
	Auto     bool            `json:"auto"`
	Refunded bool            `json:"refunded,omitempty"`
	Photo    string          `json:"photo,omitempty"`
}

// UnmarshalJSON accepts numeric ids as well as strings. Older data generated
// ids from millisecond timestamps and stored them as numbers.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var aux struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Transaction(aux.plain)

	id, err := decodeID(aux.ID)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	t.ID = id
	return nil
}

// decodeID reads an id stored either as a JSON string or as a number.
func decodeID(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return "", nil
	case strings.HasPrefix(trimmed, `"`):
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		return id, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

// Validate checks the fields a transaction must carry before insertion.
func (t Transaction) Validate() error {
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return fmt.Errorf("%w: date %q: expected YYYY-MM-DD", ErrInvalidTransaction, t.Date)
	}
	if t.Time != "" {
		if _, err := time.Parse(TimeLayout, t.Time); err != nil {
			return fmt.Errorf("%w: time %q: expected HH:MM", ErrInvalidTransaction, t.Time)
		}
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTransaction)
	}
	return nil
}

// SameEntry reports whether t and other look like the same purchase:
// identical date, amount and category.
func (t Transaction) SameEntry(other Transaction) bool {
	return t.Date == other.Date &&
		t.Amount.Equal(other.Amount) &&
		t.Category == other.Category
}

// TransactionPatch holds the fields to shallow-merge into an existing
// transaction. Nil fields are left untouched; the id cannot be patched.
type TransactionPatch struct {
	Date     *string          `json:"date,omitempty"`
	Time     *string          `json:"time,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Category *string          `json:"category,omitempty"`
	Place    *string          `json:"place,omitempty"`
	Memo     *string          `json:"memo,omitempty"`
	Payment  *string          `json:"payment,omitempty"`
	Auto     *bool            `json:"auto,omitempty"`
	Refunded *bool            `json:"refunded,omitempty"`
	Photo    *string          `json:"photo,omitempty"`
}

// Apply returns a copy of t with the patch merged in.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Time != nil {
		t.Time = *p.Time
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Place != nil {
		t.Place = *p.Place
	}
	if p.Memo != nil {
		t.Memo = *p.Memo
	}
	if p.Payment != nil {
		t.Payment = *p.Payment
	}
	if p.Auto != nil {
		t.Auto = *p.Auto
	}
	if p.Refunded != nil {
		t.Refunded = *p.Refunded
	}
	if p.Photo != nil {
		t.Photo = *p.Photo
	}
	return t
}

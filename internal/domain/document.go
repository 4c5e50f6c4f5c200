package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Field names one entry of the Document.
type Field string

// Canonical document fields.
const (
	FieldProfile           Field = "profile"
	FieldGoals             Field = "goals"
	FieldBudget            Field = "budget"
	FieldPortfolio         Field = "portfolio"
	FieldDividends         Field = "dividends"
	FieldFixedExpenses     Field = "fixedExpenses"
	FieldTransactions      Field = "transactions"
	FieldBadges            Field = "badges"
	FieldSettings          Field = "settings"
	FieldTheme             Field = "theme"
	FieldWatchlist         Field = "watchlist"
	FieldHideAmounts       Field = "hideAmounts"
	FieldCustomQuickInputs Field = "customQuickInputs"
	FieldCustomCategories  Field = "customCategories"
	FieldPaymentMethods    Field = "paymentMethods"
	FieldLastBackup        Field = "lastBackup"
)

// Fields lists every canonical field in snapshot order.
var Fields = []Field{
	FieldProfile,
	FieldGoals,
	FieldBudget,
	FieldPortfolio,
	FieldDividends,
	FieldFixedExpenses,
	FieldTransactions,
	FieldBadges,
	FieldSettings,
	FieldTheme,
	FieldWatchlist,
	FieldHideAmounts,
	FieldCustomQuickInputs,
	FieldCustomCategories,
	FieldPaymentMethods,
	FieldLastBackup,
}

// ErrUnknownField is returned for names outside the canonical set.
var ErrUnknownField = errors.New("unknown document field")

// ErrInvalidValue is returned when a value does not fit its field.
var ErrInvalidValue = errors.New("invalid field value")

// defaults holds the JSON default of every field.
var defaults = map[Field]string{
	FieldProfile:           `{}`,
	FieldGoals:             `[]`,
	FieldBudget:            `{}`,
	FieldPortfolio:         `[]`,
	FieldDividends:         `[]`,
	FieldFixedExpenses:     `[]`,
	FieldTransactions:      `[]`,
	FieldBadges:            `[]`,
	FieldSettings:          `{}`,
	FieldTheme:             `"dark"`,
	FieldWatchlist:         `[]`,
	FieldHideAmounts:       `false`,
	FieldCustomQuickInputs: `[]`,
	FieldCustomCategories:  `[]`,
	FieldPaymentMethods:    `["cash","card"]`,
	FieldLastBackup:        `null`,
}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if _, ok := defaults[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

// DefaultRaw returns the JSON default of f.
func DefaultRaw(f Field) json.RawMessage {
	return json.RawMessage(defaults[f])
}

// Document is the full set of persisted fields for one user.
// UI-owned structures are carried as compact JSON and never mutated in place.
type Document struct {
	Profile           json.RawMessage `json:"profile"`
	Goals             json.RawMessage `json:"goals"`
	Budget            json.RawMessage `json:"budget"`
	Portfolio         json.RawMessage `json:"portfolio"`
	Dividends         json.RawMessage `json:"dividends"`
	FixedExpenses     []FixedExpense  `json:"fixedExpenses"`
	Transactions      []Transaction   `json:"transactions"`
	Badges            json.RawMessage `json:"badges"`
	Settings          json.RawMessage `json:"settings"`
	Theme             string          `json:"theme"`
	Watchlist         json.RawMessage `json:"watchlist"`
	HideAmounts       bool            `json:"hideAmounts"`
	CustomQuickInputs json.RawMessage `json:"customQuickInputs"`
	CustomCategories  json.RawMessage `json:"customCategories"`
	PaymentMethods    json.RawMessage `json:"paymentMethods"`
	LastBackup        *time.Time      `json:"lastBackup"`
}

// Default returns a Document with every field at its default.
func Default() Document {
	var d Document
	for _, f := range Fields {
		if err := d.Set(f, DefaultRaw(f)); err != nil {
			panic(fmt.Sprintf("domain: bad default for %s: %v", f, err))
		}
	}
	return d
}

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	c := d
	c.Transactions = append(make([]Transaction, 0, len(d.Transactions)), d.Transactions...)
	c.FixedExpenses = append(make([]FixedExpense, 0, len(d.FixedExpenses)), d.FixedExpenses...)
	if d.LastBackup != nil {
		t := *d.LastBackup
		c.LastBackup = &t
	}
	return c
}

// opaque returns a pointer to the raw slot of a UI-owned field and the
// JSON kind it must hold ('{' or '[').
func (d *Document) opaque(f Field) (*json.RawMessage, byte, bool) {
	switch f {
	case FieldProfile:
		return &d.Profile, '{', true
	case FieldGoals:
		return &d.Goals, '[', true
	case FieldBudget:
		return &d.Budget, '{', true
	case FieldPortfolio:
		return &d.Portfolio, '[', true
	case FieldDividends:
		return &d.Dividends, '[', true
	case FieldBadges:
		return &d.Badges, '[', true
	case FieldSettings:
		return &d.Settings, '{', true
	case FieldWatchlist:
		return &d.Watchlist, '[', true
	case FieldCustomQuickInputs:
		return &d.CustomQuickInputs, '[', true
	case FieldCustomCategories:
		return &d.CustomCategories, '[', true
	case FieldPaymentMethods:
		return &d.PaymentMethods, '[', true
	}
	return nil, 0, false
}

// Raw returns the JSON encoding of a single field.
func (d Document) Raw(f Field) (json.RawMessage, error) {
	if slot, _, ok := d.opaque(f); ok {
		return append(json.RawMessage(nil), *slot...), nil
	}
	var v any
	switch f {
	case FieldFixedExpenses:
		v = d.FixedExpenses
	case FieldTransactions:
		v = d.Transactions
	case FieldTheme:
		v = d.Theme
	case FieldHideAmounts:
		v = d.HideAmounts
	case FieldLastBackup:
		v = d.LastBackup
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return data, nil
}

// Set decodes raw into field f. An empty or null value resets the field to
// its default. On error d is left unchanged.
func (d *Document) Set(f Field, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (bytes.Equal(raw, []byte("null")) && f != FieldLastBackup) {
		raw = DefaultRaw(f)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: %s is not valid JSON", ErrInvalidValue, f)
	}

	if slot, kind, ok := d.opaque(f); ok {
		if raw[0] != kind {
			return fmt.Errorf("%w: %s must be a JSON %s", ErrInvalidValue, f, kindName(kind))
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		*slot = buf.Bytes()
		return nil
	}

	switch f {
	case FieldFixedExpenses:
		var v []FixedExpense
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		if v == nil {
			v = []FixedExpense{}
		}
		d.FixedExpenses = v
	case FieldTransactions:
		var v []Transaction
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		if v == nil {
			v = []Transaction{}
		}
		d.Transactions = v
	case FieldTheme:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		d.Theme = v
	case FieldHideAmounts:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		d.HideAmounts = v
	case FieldLastBackup:
		var v *time.Time
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, f, err)
		}
		d.LastBackup = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return nil
}

func kindName(kind byte) string {
	if kind == '{' {
		return "object"
	}
	return "array"
}

// ToMap returns the document as canonical field name -> JSON value.
func (d Document) ToMap() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(Fields))
	for _, f := range Fields {
		raw, err := d.Raw(f)
		if err != nil {
			return nil, err
		}
		out[string(f)] = raw
	}
	return out, nil
}

// Rejection describes a field value that was not adopted as received.
type Rejection struct {
	Field Field
	// Raw is the value as received.
	Raw json.RawMessage
	// Entries holds the list elements that failed to decode when the
	// remaining elements of a list field were adopted.
	Entries []json.RawMessage
}

// FromMap builds a fully populated Document from a field map. Keys outside
// the canonical set are ignored and missing fields take their default. A
// list field keeps the elements that decode; any other undecodable field
// takes its default. The returned slice names every field that was not
// adopted as received.
func FromMap(m map[string]json.RawMessage) (Document, []Field) {
	d, rejections := Salvage(m)
	var rejected []Field
	for _, r := range rejections {
		rejected = append(rejected, r.Field)
	}
	return d, rejected
}

// Salvage is FromMap with the rejected values kept.
func Salvage(m map[string]json.RawMessage) (Document, []Rejection) {
	d := Default()
	var rejected []Rejection
	for _, f := range Fields {
		raw, ok := m[string(f)]
		if !ok {
			continue
		}
		if err := d.Set(f, raw); err == nil {
			continue
		}
		rejected = append(rejected, Rejection{
			Field:   f,
			Raw:     append(json.RawMessage(nil), raw...),
			Entries: d.salvageList(f, raw),
		})
	}
	return d, rejected
}

// salvageList adopts the decodable elements of a list field and returns the
// others. It returns nil, leaving d untouched, when f is not a list field or
// raw is not an array.
func (d *Document) salvageList(f Field, raw json.RawMessage) []json.RawMessage {
	if f != FieldTransactions && f != FieldFixedExpenses {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	var bad []json.RawMessage
	if f == FieldTransactions {
		d.Transactions, bad = decodeEach[Transaction](elems)
	} else {
		d.FixedExpenses, bad = decodeEach[FixedExpense](elems)
	}
	return bad
}

func decodeEach[T any](elems []json.RawMessage) ([]T, []json.RawMessage) {
	good := make([]T, 0, len(elems))
	var bad []json.RawMessage
	for _, e := range elems {
		var v T
		if err := json.Unmarshal(e, &v); err != nil {
			bad = append(bad, append(json.RawMessage(nil), e...))
			continue
		}
		good = append(good, v)
	}
	return good, bad
}

// AppendEntries appends raw elements to a JSON array.
func AppendEntries(list json.RawMessage, entries []json.RawMessage) (json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrInvalidValue, err)
	}
	elems = append(elems, entries...)
	data, err := json.Marshal(elems)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return data, nil
}

// Encode serializes d as a snapshot.
func Encode(d Document) ([]byte, error) {
	d = normalized(d)
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot with FromMap. Fields that are missing or fail
// to decode individually are defaulted; only a snapshot that is not a JSON
// object is an error.
func Decode(data []byte) (Document, []Field, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Document{}, nil, fmt.Errorf("decode document: %w", err)
	}
	if m == nil {
		return Document{}, nil, fmt.Errorf("decode document: snapshot is null")
	}
	d, rejected := FromMap(m)
	return d, rejected, nil
}

// normalized fills zero-valued slots so an in-memory Document built by hand
// still encodes as a fully populated snapshot.
func normalized(d Document) Document {
	for _, f := range Fields {
		if slot, _, ok := d.opaque(f); ok && len(*slot) == 0 {
			*slot = DefaultRaw(f)
		}
	}
	if d.Transactions == nil {
		d.Transactions = []Transaction{}
	}
	if d.FixedExpenses == nil {
		d.FixedExpenses = []FixedExpense{}
	}
	return d
}

// Normalize returns d with every absent field set to its default.
func Normalize(d Document) Document {
	d = normalized(d)
	if d.Theme == "" {
		d.Theme = "dark"
	}
	return d
}

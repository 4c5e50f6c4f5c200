package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsFullyPopulated(t *testing.T) {
	d := Default()

	m, err := d.ToMap()
	require.NoError(t, err)
	require.Len(t, m, len(Fields))
	for _, f := range Fields {
		assert.JSONEq(t, string(DefaultRaw(f)), string(m[string(f)]), "field %s", f)
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField("hideAmounts")
	require.NoError(t, err)
	assert.Equal(t, FieldHideAmounts, f)

	_, err = ParseField("HideAmounts")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSetCompactsOpaqueValues(t *testing.T) {
	d := Default()
	require.NoError(t, d.Set(FieldSettings, json.RawMessage("{ \"currency\" :\n \"EUR\" }")))
	assert.Equal(t, `{"currency":"EUR"}`, string(d.Settings))
}

func TestSetRejectsWrongKind(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value string
	}{
		{"object field given array", FieldBudget, `[]`},
		{"array field given object", FieldWatchlist, `{}`},
		{"array field given string", FieldBadges, `"gold"`},
		{"theme given number", FieldTheme, `1`},
		{"lastBackup given garbage", FieldLastBackup, `"yesterday"`},
		{"transactions given object", FieldTransactions, `{"id":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Default()
			before, err := Encode(d)
			require.NoError(t, err)

			err = d.Set(tt.field, json.RawMessage(tt.value))
			require.ErrorIs(t, err, ErrInvalidValue)

			after, err := Encode(d)
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after))
		})
	}
}

func TestSetNullLastBackupClearsIt(t *testing.T) {
	d := Default()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	d.LastBackup = &now

	require.NoError(t, d.Set(FieldLastBackup, json.RawMessage(`null`)))
	assert.Nil(t, d.LastBackup)
}

func TestFromMapIgnoresUnknownKeys(t *testing.T) {
	d, rejected := FromMap(map[string]json.RawMessage{
		"theme":     json.RawMessage(`"light"`),
		"updatedAt": json.RawMessage(`"2024-01-01T00:00:00Z"`),
		"goals":     json.RawMessage(`42`),
	})

	assert.Equal(t, "light", d.Theme)
	assert.JSONEq(t, `[]`, string(d.Goals))
	assert.Equal(t, []Field{FieldGoals}, rejected)
}

func TestSalvageKeepsDecodableListEntries(t *testing.T) {
	d, rejected := Salvage(map[string]json.RawMessage{
		"transactions":  json.RawMessage(`[{"id":"a","amount":""},{"id":"b","amount":"2"}]`),
		"fixedExpenses": json.RawMessage(`[{"id":1700000000000,"name":"Gym","amount":"30","day":5}]`),
		"theme":         json.RawMessage(`true`),
	})

	require.Len(t, d.Transactions, 1)
	assert.Equal(t, "b", d.Transactions[0].ID)
	require.Len(t, d.FixedExpenses, 1)
	assert.Equal(t, "1700000000000", d.FixedExpenses[0].ID)
	assert.Equal(t, "dark", d.Theme)

	require.Len(t, rejected, 2)
	assert.Equal(t, FieldTransactions, rejected[0].Field)
	require.Len(t, rejected[0].Entries, 1)
	assert.JSONEq(t, `{"id":"a","amount":""}`, string(rejected[0].Entries[0]))
	assert.Equal(t, FieldTheme, rejected[1].Field)
	assert.JSONEq(t, `true`, string(rejected[1].Raw))
	assert.Empty(t, rejected[1].Entries)
}

func TestAppendEntries(t *testing.T) {
	out, err := AppendEntries(json.RawMessage(`[{"id":"b"}]`), []json.RawMessage{json.RawMessage(`{"id":"a","amount":""}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"b"},{"id":"a","amount":""}]`, string(out))

	_, err = AppendEntries(json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDecodeRequiresObject(t *testing.T) {
	for _, in := range []string{``, `null`, `[]`, `"x"`, `{`} {
		_, _, err := Decode([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestEncodeDecodePreservesDocument(t *testing.T) {
	d := Default()
	d.Theme = "light"
	d.HideAmounts = true
	d.Transactions = []Transaction{{
		ID: "t1", Date: "2024-03-01", Time: "09:00",
		Amount: decimal.RequireFromString("-15.20"), Category: "food",
	}}
	d.FixedExpenses = []FixedExpense{{ID: "f1", Name: "Gym", Amount: decimal.NewFromInt(30), Day: 5}}
	backup := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	d.LastBackup = &backup

	data, err := Encode(d)
	require.NoError(t, err)

	got, rejected, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	again, err := Encode(got)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestEncodeFillsZeroDocument(t *testing.T) {
	data, err := Encode(Document{Theme: "dark"})
	require.NoError(t, err)

	want, err := Encode(Default())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(data))
}

func TestNormalizeDefaultsTheme(t *testing.T) {
	assert.Equal(t, "dark", Normalize(Document{}).Theme)
	assert.Equal(t, "light", Normalize(Document{Theme: "light"}).Theme)
}

func TestCloneIsIndependent(t *testing.T) {
	d := Default()
	d.Transactions = []Transaction{{ID: "a"}}
	backup := time.Now()
	d.LastBackup = &backup

	c := d.Clone()
	c.Transactions[0].ID = "b"
	*c.LastBackup = c.LastBackup.Add(time.Hour)

	assert.Equal(t, "a", d.Transactions[0].ID)
	assert.True(t, d.LastBackup.Equal(backup))
}

func TestFingerprint(t *testing.T) {
	a := Default()
	b := Default()

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	b.HideAmounts = true
	fb, err = Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

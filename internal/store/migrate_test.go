package store

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/localstore"
	"github.com/dvloznov/pocketbook/internal/localstore/inmemory"
	"github.com/dvloznov/pocketbook/internal/logger"
)

func encoded(t *testing.T, d domain.Document) string {
	t.Helper()
	data, err := domain.Encode(d)
	require.NoError(t, err)
	return string(data)
}

func TestFreshDeviceGetsDefaults(t *testing.T) {
	kv := inmemory.NewStore()
	s := newTestStore(t, kv)

	assert.Equal(t, OriginDefaults, s.Origin())
	assert.JSONEq(t, encoded(t, domain.Default()), encoded(t, s.Get()))

	data, err := kv.Read(UnifiedKey)
	require.NoError(t, err, "defaults are written to the unified key")
	assert.JSONEq(t, encoded(t, domain.Default()), string(data))
}

func TestLegacyMigrationAdoptsPresentFields(t *testing.T) {
	kv := inmemory.NewStore()
	require.NoError(t, kv.Write(LegacyKey(domain.FieldProfile), []byte(`{"name":"Ana","age":31}`)))
	require.NoError(t, kv.Write(LegacyKey(domain.FieldTransactions),
		[]byte(`[{"id":1709280000000,"date":"2024-03-01","time":"08:15","amount":4.5,"category":"cafe","place":"Bean","memo":"","payment":"card","auto":false}]`)))

	s := newTestStore(t, kv)
	doc := s.Get()

	assert.Equal(t, OriginLegacy, s.Origin())
	assert.JSONEq(t, `{"name":"Ana","age":31}`, string(doc.Profile))
	require.Len(t, doc.Transactions, 1)
	assert.Equal(t, "1709280000000", doc.Transactions[0].ID)
	assert.Equal(t, "4.5", doc.Transactions[0].Amount.String())

	want := domain.Default()
	want.Profile = doc.Profile
	want.Transactions = doc.Transactions
	assert.JSONEq(t, encoded(t, want), encoded(t, doc), "every other field is at default")
}

func TestLegacyMigrationSkipsUnparseableField(t *testing.T) {
	kv := inmemory.NewStore()
	require.NoError(t, kv.Write(LegacyKey(domain.FieldGoals), []byte(`{not json`)))
	require.NoError(t, kv.Write(LegacyKey(domain.FieldTheme), []byte(`"light"`)))
	require.NoError(t, kv.Write(LegacyKey(domain.FieldHideAmounts), []byte(`"maybe"`)))

	s := newTestStore(t, kv)
	doc := s.Get()

	assert.Equal(t, "light", doc.Theme)
	assert.JSONEq(t, `[]`, string(doc.Goals))
	assert.False(t, doc.HideAmounts)
}

func TestMigrationLeavesLegacyKeysUntouched(t *testing.T) {
	kv := inmemory.NewStore()
	legacy := []byte(`{"name":"Ana"}`)
	require.NoError(t, kv.Write(LegacyKey(domain.FieldProfile), legacy))

	newTestStore(t, kv)

	got, err := kv.Read(LegacyKey(domain.FieldProfile))
	require.NoError(t, err)
	assert.Equal(t, legacy, got)
}

func TestMigrationIsIdempotent(t *testing.T) {
	kv := inmemory.NewStore()
	require.NoError(t, kv.Write(LegacyKey(domain.FieldProfile), []byte(`{"name":"Ana"}`)))
	log := logger.NewWithWriter(io.Discard)

	first, origin, err := Resolve(kv, log)
	require.NoError(t, err)
	assert.Equal(t, OriginLegacy, origin)
	snapshot, err := kv.Read(UnifiedKey)
	require.NoError(t, err)

	second, origin, err := Resolve(kv, log)
	require.NoError(t, err)
	assert.Equal(t, OriginSnapshot, origin)
	after, err := kv.Read(UnifiedKey)
	require.NoError(t, err)

	assert.Equal(t, snapshot, after, "second run must not rewrite the unified document")
	assert.JSONEq(t, encoded(t, first), encoded(t, second))
}

func TestMigrationRerunsWhenUnifiedKeyCleared(t *testing.T) {
	kv := inmemory.NewStore()
	require.NoError(t, kv.Write(LegacyKey(domain.FieldTheme), []byte(`"light"`)))
	require.NoError(t, kv.Write(LegacyKey(domain.FieldWatchlist), []byte(`["VWCE"]`)))
	log := logger.NewWithWriter(io.Discard)

	first, _, err := Resolve(kv, log)
	require.NoError(t, err)

	kv.Delete(UnifiedKey)
	second, origin, err := Resolve(kv, log)
	require.NoError(t, err)

	assert.Equal(t, OriginLegacy, origin)
	assert.JSONEq(t, encoded(t, first), encoded(t, second))
}

func TestCorruptSnapshotIsPreserved(t *testing.T) {
	kv := inmemory.NewStore()
	require.NoError(t, kv.Write(UnifiedKey, []byte(`{{{garbage`)))
	require.NoError(t, kv.Write(LegacyKey(domain.FieldTheme), []byte(`"light"`)))

	s := newTestStore(t, kv)
	assert.Equal(t, "light", s.Get().Theme)

	kept, err := kv.Read(UnifiedKey + corruptSuffix)
	require.NoError(t, err)
	assert.Equal(t, `{{{garbage`, string(kept))
}

func TestSnapshotWithBadFieldKeepsTheRest(t *testing.T) {
	kv := inmemory.NewStore()
	snapshot := map[string]json.RawMessage{
		"theme":        json.RawMessage(`"light"`),
		"transactions": json.RawMessage(`"not a list"`),
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, kv.Write(UnifiedKey, data))

	s := newTestStore(t, kv)
	assert.Equal(t, OriginSnapshot, s.Origin())
	assert.Equal(t, "light", s.Get().Theme)
	assert.Empty(t, s.Get().Transactions)

	_, err = kv.Read(UnifiedKey + corruptSuffix)
	assert.NoError(t, err)
}

type failingKV struct {
	localstore.KV
	readErr error
	writes  int
}

func (f *failingKV) Read(key string) ([]byte, error) { return nil, f.readErr }

func (f *failingKV) Write(key string, value []byte) error {
	f.writes++
	return nil
}

func TestUnreadableStoreIsNotOverwritten(t *testing.T) {
	kv := &failingKV{readErr: errors.New("disk on fire")}

	_, err := New(kv, WithLogger(logger.NewWithWriter(io.Discard)))
	require.Error(t, err)

	var ioErr *LocalIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.Zero(t, kv.writes)
}

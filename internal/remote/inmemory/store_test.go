package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketbook/internal/remote"
)

func TestStore_GetMissing(t *testing.T) {
	s := NewStore()
	_, err := s.Get(context.Background(), "u1")
	require.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, []string{"u1"}, s.Gets())
}

func TestStore_MergeUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Merge(ctx, "u1", remote.Fields{
		"theme":     json.RawMessage(`"dark"`),
		"createdAt": json.RawMessage(`"2024-01-01T00:00:00Z"`),
	}))
	require.NoError(t, s.Merge(ctx, "u1", remote.Fields{"theme": json.RawMessage(`"light"`)}))

	doc, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, `"light"`, string(doc["theme"]))
	assert.Contains(t, doc, "createdAt")

	var theme string
	ok, err := s.Field("u1", "theme", &theme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", theme)

	assert.Len(t, s.Merges(), 2)
	uids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, uids)
}

func TestStore_MergeFuncFailure(t *testing.T) {
	s := NewStore()
	boom := errors.New("unavailable")
	s.MergeFunc = func(context.Context, string, remote.Fields) error { return boom }

	err := s.Merge(context.Background(), "u1", remote.Fields{"theme": json.RawMessage(`"x"`)})
	require.ErrorIs(t, err, boom)

	_, ok := s.Document("u1")
	assert.False(t, ok)
	assert.Len(t, s.Merges(), 1, "failed calls are still recorded")
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	s.Put("u1", remote.Fields{"theme": json.RawMessage(`"dark"`)})

	doc, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	doc["theme"] = json.RawMessage(`"mutated"`)

	again, _ := s.Document("u1")
	assert.Equal(t, `"dark"`, string(again["theme"]))
}

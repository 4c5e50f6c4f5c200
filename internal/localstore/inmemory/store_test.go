package inmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketbook/internal/localstore"
)

func TestStore_ReadWrite(t *testing.T) {
	s := NewStore()

	_, err := s.Read("missing")
	require.ErrorIs(t, err, localstore.ErrNotFound)

	value := []byte("hello")
	require.NoError(t, s.Write("k", value))
	value[0] = 'j'

	got, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got), "stored value must not alias the caller's slice")

	got[0] = 'y'
	again, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
}

func TestStore_Overwrite(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Write("k", []byte("1")))
	require.NoError(t, s.Write("k", []byte("2")))

	got, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
	assert.Equal(t, []string{"k"}, s.Keys())
}

func TestStore_FailWrites(t *testing.T) {
	s := NewStore()
	s.FailWrites = true
	assert.Error(t, s.Write("k", []byte("v")))

	_, err := s.Read("k")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestStore_Closed(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Close())

	assert.Error(t, s.Write("k", nil))
	_, err := s.Read("k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, localstore.ErrNotFound)
}

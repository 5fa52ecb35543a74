package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Apply(t *testing.T) {
	s := New()
	data, err := Request{Key: "k", Value: "v"}.Encode()
	require.NoError(t, err)

	resp, err := s.Apply(5, data)
	require.NoError(t, err)
	r, err := DecodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "v", r.Value)

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, uint64(5), s.LastApplied())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ApplyInvalid(t *testing.T) {
	s := New()
	_, err := s.Apply(3, []byte("not json"))
	assert.Error(t, err)
	assert.Equal(t, uint64(3), s.LastApplied())

	_, err = s.Apply(4, []byte(`{"key":"","value":"x"}`))
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := New()
	for i, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"a", "3"}} {
		data, _ := Request{Key: kv[0], Value: kv[1]}.Encode()
		_, err := s.Apply(uint64(i+1), data)
		require.NoError(t, err)
	}
	snap, err := s.Snapshot()
	require.NoError(t, err)

	s2 := New()
	require.NoError(t, s2.Restore(snap))
	assert.Equal(t, uint64(3), s2.LastApplied())
	v, _ := s2.Get("a")
	assert.Equal(t, "3", v)
	assert.Equal(t, 2, s2.Len())

	assert.Error(t, s2.Restore([]byte("{")))
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock = clock.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss, "entry should expire at its TTL")

	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))
	clock = clock.Add(24 * time.Hour)
	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemorySetCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'
	got, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

func TestMemoryDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"lb:global:10", "lb:challenge:1", "other"} {
		require.NoError(t, m.Set(ctx, k, []byte("1"), time.Minute))
	}
	require.NoError(t, m.DeletePrefix(ctx, "lb:"))

	_, err := m.Get(ctx, "lb:global:10")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "lb:challenge:1")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "other")
	assert.NoError(t, err)
}

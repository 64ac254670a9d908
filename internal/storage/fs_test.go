package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put(ctx, "exports/tpl-1.csv", strings.NewReader("a,b\n"), 4, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "exports/tpl-1.csv", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(b))

	u, err := s.URL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"), u)
	assert.True(t, strings.HasSuffix(u, "/exports/tpl-1.csv"), u)
}

func TestFSStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "", strings.NewReader("x"), 1, "")
	assert.Error(t, err)

	// Traversal is confined to the base directory.
	key, err := s.Put(ctx, "../../escape.csv", strings.NewReader("x"), 1, "")
	require.NoError(t, err)
	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	rc.Close()
}

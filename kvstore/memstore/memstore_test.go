package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnibrand/go-session-kit/kvstore/memstore"
)

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", "1"))
	value, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", value)

	require.NoError(t, store.Remove(ctx, "a"))
	_, ok, err = store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMultiRemove(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))
	require.NoError(t, store.Set(ctx, "c", "3"))

	require.NoError(t, store.MultiRemove(ctx, []string{"a", "c", "never-existed"}))
	require.Equal(t, 1, store.Len())

	value, ok, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", value)
}

// Package kvtest is a backend-agnostic conformance suite for kv.Store
// implementations. Both boltkv and etcd3kv are exercised through it so the
// balancer and config store tests only need to be written once.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv"
)

// Run exercises the full kv.Store contract against a freshly opened store.
func Run(t *testing.T, store kv.Store) {
	ctx := context.Background()

	t.Run("get absent", func(t *testing.T) {
		_, err := store.Get(ctx, []byte("nope"))
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("multi put makes every pair visible", func(t *testing.T) {
		require.NoError(t, store.MultiPut(ctx, []kv.Pair{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		}))

		v, err := store.Get(ctx, []byte("a"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), v)

		v, err = store.Get(ctx, []byte("b"))
		require.NoError(t, err)
		require.Equal(t, []byte("2"), v)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.MultiPut(ctx, []kv.Pair{{Key: []byte("c"), Value: []byte("3")}}))
		require.NoError(t, store.Remove(ctx, []byte("c")))
		_, err := store.Get(ctx, []byte("c"))
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("scan is ordered by key", func(t *testing.T) {
		require.NoError(t, store.MultiPut(ctx, []kv.Pair{
			{Key: []byte("scan/2"), Value: []byte("y")},
			{Key: []byte("scan/1"), Value: []byte("x")},
			{Key: []byte("scan/3"), Value: []byte("z")},
		}))

		pairs, err := store.Scan(ctx, []byte("scan/"), kv.PrefixRangeEnd([]byte("scan/")))
		require.NoError(t, err)
		require.Len(t, pairs, 3)
		require.Equal(t, "scan/1", string(pairs[0].Key))
		require.Equal(t, "scan/2", string(pairs[1].Key))
		require.Equal(t, "scan/3", string(pairs[2].Key))
	})

	t.Run("remove range", func(t *testing.T) {
		require.NoError(t, store.MultiPut(ctx, []kv.Pair{
			{Key: []byte("rr/1"), Value: []byte("x")},
			{Key: []byte("rr/2"), Value: []byte("y")},
		}))
		require.NoError(t, store.RemoveRange(ctx, []byte("rr/"), kv.PrefixRangeEnd([]byte("rr/"))))

		pairs, err := store.Scan(ctx, []byte("rr/"), kv.PrefixRangeEnd([]byte("rr/")))
		require.NoError(t, err)
		require.Empty(t, pairs)
	})
}

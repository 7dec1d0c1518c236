package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv/boltkv"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	kvStore, err := boltkv.Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })
	return NewStore(kvStore)
}

// TestConfigLifecycle mirrors the original ConfigManTest.cpp scenario and
// spec §8 scenario 5: set before register fails, register then set/get
// round-trips, and an immutable item rejects further sets.
func TestConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// set before register -> error.
	err := store.Set(ctx, Item{Module: Meta, Name: "k1", Type: Int64, Value: EncodeInt64(1)})
	require.Error(t, err)

	// get before register -> empty, not an error.
	_, ok, err := store.Get(ctx, Meta, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	// register k1 (mutable, int64=100).
	require.NoError(t, store.Register(ctx, []Item{
		{Module: Meta, Name: "k1", Type: Int64, Mode: Mutable, Value: EncodeInt64(100)},
	}))

	item, ok, err := store.Get(ctx, Meta, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	v, err := DecodeInt64(item.Value)
	require.NoError(t, err)
	require.EqualValues(t, 100, v)

	// set k1=102 -> OK, then get -> 102.
	require.NoError(t, store.Set(ctx, Item{Module: Meta, Name: "k1", Type: Int64, Value: EncodeInt64(102)}))
	item, ok, err = store.Get(ctx, Meta, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	v, err = DecodeInt64(item.Value)
	require.NoError(t, err)
	require.EqualValues(t, 102, v)

	// register k1 again as IMMUTABLE -- already present, so register is a
	// no-op and k1 stays MUTABLE with value 102.
	require.NoError(t, store.Register(ctx, []Item{
		{Module: Meta, Name: "k1", Type: Int64, Mode: Immutable, Value: EncodeInt64(900)},
	}))
	item, _, err = store.Get(ctx, Meta, "k1")
	require.NoError(t, err)
	require.Equal(t, Mutable, item.Mode)

	// register a genuinely new immutable item and confirm set fails on it.
	require.NoError(t, store.Register(ctx, []Item{
		{Module: Meta, Name: "k2", Type: Int64, Mode: Immutable, Value: EncodeInt64(103)},
	}))
	err = store.Set(ctx, Item{Module: Meta, Name: "k2", Type: Int64, Value: EncodeInt64(200)})
	require.Error(t, err)
	item, _, err = store.Get(ctx, Meta, "k2")
	require.NoError(t, err)
	v, err = DecodeInt64(item.Value)
	require.NoError(t, err)
	require.EqualValues(t, 103, v)
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := []Item{
		{Module: Storage, Name: "a", Type: String, Mode: Mutable, Value: EncodeString("v1")},
		{Module: Storage, Name: "b", Type: String, Mode: Mutable, Value: EncodeString("v2")},
	}

	require.NoError(t, store.Register(ctx, batch))
	require.NoError(t, store.Register(ctx, batch))

	items, err := store.List(ctx, Storage)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestSetTypeMismatchRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Register(ctx, []Item{
		{Module: Graph, Name: "x", Type: Bool, Mode: Mutable, Value: EncodeBool(false)},
	}))

	err := store.Set(ctx, Item{Module: Graph, Name: "x", Type: Int64, Value: EncodeInt64(1)})
	require.Error(t, err)
}

func TestListAllModules(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Register(ctx, []Item{
		{Module: Graph, Name: "g1", Type: String, Mode: Mutable, Value: EncodeString("g")},
		{Module: Meta, Name: "m1", Type: String, Mode: Mutable, Value: EncodeString("m")},
		{Module: Storage, Name: "s1", Type: String, Mode: Mutable, Value: EncodeString("s")},
	}))

	items, err := store.List(ctx, All)
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestGetAndSetRejectAllModule(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, _, err := store.Get(ctx, All, "anything")
	require.Error(t, err)

	err = store.Set(ctx, Item{Module: All, Name: "anything", Type: String, Value: EncodeString("x")})
	require.Error(t, err)
}

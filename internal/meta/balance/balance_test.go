package balance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/kv/boltkv"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
)

var errTestAdminFailure = errors.New("balance test: forced admin client failure")

// fakeAdmin is an AdminClient double that records every move it was asked
// to perform and succeeds unless the "src->dst" pair is marked in fail.
type fakeAdmin struct {
	fail  map[string]bool
	calls []string
}

func newFakeAdmin() *fakeAdmin { return &fakeAdmin{fail: make(map[string]bool)} }

func (a *fakeAdmin) MovePartition(_ context.Context, space cluster.SpaceID, partition cluster.PartitionID, src, dst cluster.HostAddr) error {
	key := src.String() + "->" + dst.String()
	a.calls = append(a.calls, key)
	if a.fail[key] {
		return errTestAdminFailure
	}
	return nil
}

func newTestKV(t *testing.T) kv.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := boltkv.Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustHost(t *testing.T, ip string, port uint32) cluster.HostAddr {
	t.Helper()
	h, err := cluster.NewHostAddr(ip, port)
	require.NoError(t, err)
	return h
}

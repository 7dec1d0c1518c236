package balance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
)

func singleSpace(id cluster.SpaceID, partitionCount, replicaFactor int32) func(context.Context) ([]cluster.Space, error) {
	return func(context.Context) ([]cluster.Space, error) {
		return []cluster.Space{{ID: id, Name: "s", PartitionCount: partitionCount, ReplicaFactor: replicaFactor}}, nil
	}
}

func seedAllocation(t *testing.T, ctx context.Context, store kv.Store, space cluster.SpaceID, assignments map[cluster.PartitionID][]cluster.HostAddr) {
	t.Helper()
	var pairs []kv.Pair
	for partition, hosts := range assignments {
		pairs = append(pairs, kv.Pair{
			Key:   keys.AllocationKey(space, partition),
			Value: keys.EncodeAllocationValue(hosts),
		})
	}
	require.NoError(t, store.MultiPut(ctx, pairs))
}

func heartbeatAll(t *testing.T, ctx context.Context, registry *cluster.Registry, hosts ...cluster.HostAddr) {
	t.Helper()
	for _, h := range hosts {
		require.NoError(t, registry.Heartbeat(ctx, h, time.Now()))
	}
}

// TestBalanceHostLoss mirrors spec §8 scenario 1: three hosts hold three
// partitions 1:1:1; one host is lost (no fresh heartbeat); balance() must
// emit a task moving each of the lost host's partitions to a live host.
func TestBalanceHostLoss(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)
	registry := cluster.NewRegistry(store)
	admin := newFakeAdmin()

	h1 := mustHost(t, "10.0.0.1", 9000)
	h2 := mustHost(t, "10.0.0.2", 9000)
	h3 := mustHost(t, "10.0.0.3", 9000)

	seedAllocation(t, ctx, store, 1, map[cluster.PartitionID][]cluster.HostAddr{
		1: {h1}, 2: {h2}, 3: {h3},
	})
	// h3 never heartbeats -> lost.
	heartbeatAll(t, ctx, registry, h1, h2)

	b := NewBalancer(store, alloc, registry, admin, 2, singleSpace(1, 3, 1))
	planID, err := b.Balance(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := b.Status()
		return ok && !s.InProgress
	}, 2*time.Second, 5*time.Millisecond)

	status, ok := b.Status()
	require.True(t, ok)
	require.EqualValues(t, planID, status.PlanID)
	require.Equal(t, 1, status.TaskCount)
	require.Equal(t, 1, status.SucceededTasks)

	peers, err := alloc.Get(ctx, cluster.PartitionKey{Space: 1, Partition: 3})
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.NotEqual(t, h3, peers[0])
}

// TestBalanceRebalanceOneNewHost mirrors spec §8 scenario 2: a new host
// joins an otherwise balanced cluster; balance() must move partitions onto
// it until counts are within one of the average.
func TestBalanceRebalanceOneNewHost(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)
	registry := cluster.NewRegistry(store)
	admin := newFakeAdmin()

	h1 := mustHost(t, "10.0.0.1", 9000)
	h2 := mustHost(t, "10.0.0.2", 9000)
	h3 := mustHost(t, "10.0.0.3", 9000) // newly added, currently idle

	seedAllocation(t, ctx, store, 1, map[cluster.PartitionID][]cluster.HostAddr{
		1: {h1}, 2: {h1}, 3: {h2}, 4: {h2},
	})
	heartbeatAll(t, ctx, registry, h1, h2, h3)

	b := NewBalancer(store, alloc, registry, admin, 2, singleSpace(1, 4, 1))
	_, err := b.Balance(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := b.Status()
		return ok && !s.InProgress
	}, 2*time.Second, 5*time.Millisecond)

	loaded, err := alloc.Load(ctx, 1)
	require.NoError(t, err)
	counts := map[cluster.HostAddr]int{}
	for _, peers := range loaded {
		for _, h := range peers {
			counts[h]++
		}
	}
	require.NotZero(t, counts[h3], "new host should have received at least one partition")
	for _, c := range counts {
		require.LessOrEqual(t, c, 2)
	}
}

// TestBalanceExclusivity mirrors spec §8 scenario 3: a second concurrent
// balance() call is rejected with BALANCER_RUNNING while one is in flight.
func TestBalanceExclusivity(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)
	registry := cluster.NewRegistry(store)
	admin := newFakeAdmin()

	h1 := mustHost(t, "10.0.0.1", 9000)
	seedAllocation(t, ctx, store, 1, map[cluster.PartitionID][]cluster.HostAddr{1: {h1}})
	heartbeatAll(t, ctx, registry, h1)

	b := NewBalancer(store, alloc, registry, admin, 1, singleSpace(1, 1, 1))

	// Simulate a plan already in flight by holding the exclusivity flag
	// directly, the same state a slow-running Run would leave it in.
	require.True(t, atomic.CompareAndSwapInt32(&b.running, 0, 1))
	_, err := b.Balance(ctx)
	require.ErrorIs(t, err, errcode.ErrBalancerRunning)
}

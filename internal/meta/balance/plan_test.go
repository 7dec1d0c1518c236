package balance

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
	"github.com/fgr-araujo/nebula/internal/metrics"
)

func TestPlanPersistThenRunSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)
	admin := newFakeAdmin()

	h1 := mustHost(t, "10.0.0.1", 9000)
	h2 := mustHost(t, "10.0.0.2", 9000)
	h3 := mustHost(t, "10.0.0.3", 9000)

	require.NoError(t, store.MultiPut(ctx, []kv.Pair{
		{Key: keys.AllocationKey(1, 1), Value: keys.EncodeAllocationValue([]cluster.HostAddr{h1})},
		{Key: keys.AllocationKey(1, 2), Value: keys.EncodeAllocationValue([]cluster.HostAddr{h2})},
	}))

	plan := NewPlan(42, []*Task{
		NewTask(42, 0, 1, 1, h1, h3),
		NewTask(42, 1, 1, 2, h2, h3),
	}, 4)

	plansBefore := testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("succeeded"))
	tasksBefore := testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("succeeded"))

	require.NoError(t, plan.Persist(ctx, store))
	require.NoError(t, plan.Run(ctx, store, admin, alloc))

	raw, err := store.Get(ctx, keys.PlanHeaderKey(42))
	require.NoError(t, err)
	status, taskCount, err := keys.DecodePlanHeaderValue(raw)
	require.NoError(t, err)
	require.Equal(t, keys.PlanSucceeded, status)
	require.EqualValues(t, 2, taskCount)

	require.Equal(t, plansBefore+1, testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("succeeded")))
	require.Equal(t, tasksBefore+2, testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("succeeded")))
}

func TestPlanRunFailsWhenATaskFails(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)
	admin := newFakeAdmin()

	h1 := mustHost(t, "10.0.0.1", 9000)
	h2 := mustHost(t, "10.0.0.2", 9000)
	admin.fail[h1.String()+"->"+h2.String()] = true

	require.NoError(t, store.MultiPut(ctx, []kv.Pair{
		{Key: keys.AllocationKey(1, 1), Value: keys.EncodeAllocationValue([]cluster.HostAddr{h1})},
	}))

	plan := NewPlan(7, []*Task{NewTask(7, 0, 1, 1, h1, h2)}, 1)

	plansBefore := testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("failed"))
	tasksBefore := testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("failed"))

	require.NoError(t, plan.Persist(ctx, store))
	require.Error(t, plan.Run(ctx, store, admin, alloc))

	raw, err := store.Get(ctx, keys.PlanHeaderKey(7))
	require.NoError(t, err)
	status, _, err := keys.DecodePlanHeaderValue(raw)
	require.NoError(t, err)
	require.Equal(t, keys.PlanFailed, status)

	require.Equal(t, plansBefore+1, testutil.ToFloat64(metrics.PlansTotal.WithLabelValues("failed")))
	require.Equal(t, tasksBefore+1, testutil.ToFloat64(metrics.TasksTotal.WithLabelValues("failed")))
}

func TestLoadPlanAndRecoverLatestResumeAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := newTestKV(t)
	alloc := cluster.NewAllocation(store)

	h1 := mustHost(t, "10.0.0.1", 9000)
	h2 := mustHost(t, "10.0.0.2", 9000)
	require.NoError(t, store.MultiPut(ctx, []kv.Pair{
		{Key: keys.AllocationKey(1, 1), Value: keys.EncodeAllocationValue([]cluster.HostAddr{h1})},
	}))

	plan := NewPlan(99, []*Task{NewTask(99, 0, 1, 1, h1, h2)}, 1)
	require.NoError(t, plan.Persist(ctx, store))

	id, found, err := RecoverLatest(ctx, store)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 99, id)

	reloaded, err := LoadPlan(ctx, store, id, 1)
	require.NoError(t, err)
	require.Len(t, reloaded.Tasks, 1)

	admin := newFakeAdmin()
	require.NoError(t, reloaded.Run(ctx, store, admin, alloc))

	_, found, err = RecoverLatest(ctx, store)
	require.NoError(t, err)
	require.False(t, found, "a succeeded plan must no longer be recoverable as in-progress")
}

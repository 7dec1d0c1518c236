package balance

import (
	"context"
	"encoding/binary"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/log"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
	"github.com/fgr-araujo/nebula/internal/metrics"
)

// Plan is one balance plan (spec §4.D): an ordered batch of tasks computed
// together, persisted together, and dispatched with two rules the teacher's
// worker pool (gm/worker.go) also follows — bound the total fan-out, but
// never run two tasks against the same partition concurrently.
type Plan struct {
	ID          uint64
	Tasks       []*Task
	runStates   []TaskRunState
	concurrency int
}

// NewPlan builds a plan from its freshly computed task list. Every task
// starts at TaskRunState zero value (START/RUNNING).
func NewPlan(id uint64, tasks []*Task, concurrency int) *Plan {
	runStates := make([]TaskRunState, len(tasks))
	for i := range runStates {
		runStates[i] = NewTaskRunState()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Plan{ID: id, Tasks: tasks, runStates: runStates, concurrency: concurrency}
}

// Persist writes the plan header and every task's initial record in a
// single multi_put (spec §4.E: "a single multi_put persists... before any
// task is dispatched"), so a crash between header and task writes can never
// leave a half-registered plan.
func (p *Plan) Persist(ctx context.Context, store kv.Store) error {
	pairs := make([]kv.Pair, 0, 1+len(p.Tasks))
	pairs = append(pairs, kv.Pair{
		Key:   keys.PlanHeaderKey(p.ID),
		Value: keys.EncodePlanHeaderValue(keys.PlanInProgress, uint32(len(p.Tasks))),
	})
	for i, t := range p.Tasks {
		pairs = append(pairs, kv.Pair{
			Key:   keys.TaskKey(t.PlanID, t.Index),
			Value: keys.EncodeTaskValue(t.record(p.runStates[i])),
		})
	}
	if err := store.MultiPut(ctx, pairs); err != nil {
		log.Error("balance: plan %d persist failed: %v", p.ID, err)
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return nil
}

// Run dispatches every task to completion, serializing tasks that share a
// partition and otherwise running up to p.concurrency tasks in parallel via
// errgroup, then writes the plan's terminal header status.
func (p *Plan) Run(ctx context.Context, store kv.Store, admin AdminClient, alloc *cluster.Allocation) error {
	groups := groupByPartition(p.Tasks, p.runStates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var failed int32
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			for _, idx := range grp {
				t := p.Tasks[idx]
				if err := t.Run(gctx, store, admin, alloc, p.runStates[idx]); err != nil {
					p.runStates[idx].status = keys.TaskFailed
					atomic.AddInt32(&failed, 1)
					// Do not abort sibling partitions: one task's failure
					// fails the plan as a whole (spec §4.C), but every
					// other partition still finishes its own move.
					return nil
				}
				p.runStates[idx].state = keys.TaskEnd
				p.runStates[idx].status = keys.TaskSucceeded
			}
			return nil
		})
	}
	_ = g.Wait()

	status := keys.PlanSucceeded
	if atomic.LoadInt32(&failed) > 0 {
		status = keys.PlanFailed
	}
	if err := store.MultiPut(ctx, []kv.Pair{{
		Key:   keys.PlanHeaderKey(p.ID),
		Value: keys.EncodePlanHeaderValue(status, uint32(len(p.Tasks))),
	}}); err != nil {
		log.Error("balance: plan %d final header write failed: %v", p.ID, err)
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	label := "succeeded"
	if status == keys.PlanFailed {
		label = "failed"
	}
	metrics.PlansTotal.WithLabelValues(label).Inc()
	log.Info("balance: plan %d finished with status %v (%d/%d tasks failed)", p.ID, status, atomic.LoadInt32(&failed), len(p.Tasks))

	if status == keys.PlanFailed {
		return errors.Wrapf(errcode.ErrUnknown, "balance: plan %d had %d failed task(s)", p.ID, atomic.LoadInt32(&failed))
	}
	return nil
}

// groupByPartition buckets task indices by partition so Run never
// dispatches two tasks of the same partition concurrently. Ordering within
// a bucket is by task index, the order the plan builder assigned them.
func groupByPartition(tasks []*Task, _ []TaskRunState) [][]int {
	buckets := make(map[cluster.PartitionKey][]int)
	var order []cluster.PartitionKey
	for i, t := range tasks {
		key := cluster.PartitionKey{Space: t.Space, Partition: t.Partition}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], i)
	}
	groups := make([][]int, 0, len(order))
	for _, key := range order {
		idxs := buckets[key]
		sort.Ints(idxs)
		groups = append(groups, idxs)
	}
	return groups
}

// LoadPlan reconstructs a plan from its persisted header and task records,
// the path taken on process restart (spec §4.D: "on restart the task
// resumes from its last persisted state").
func LoadPlan(ctx context.Context, store kv.Store, planID uint64, concurrency int) (*Plan, error) {
	headerRaw, err := store.Get(ctx, keys.PlanHeaderKey(planID))
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	_, taskCount, err := keys.DecodePlanHeaderValue(headerRaw)
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	prefix := keys.TaskPrefix(planID)
	pairs, err := store.Scan(ctx, prefix, kv.PrefixRangeEnd(prefix))
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	if len(pairs) != int(taskCount) {
		return nil, errors.Wrapf(errcode.ErrStoreFailure, "balance: plan %d header declares %d tasks, found %d", planID, taskCount, len(pairs))
	}

	tasks := make([]*Task, len(pairs))
	runStates := make([]TaskRunState, len(pairs))
	for i, pair := range pairs {
		_, index, err := decodeTaskIndex(pair.Key)
		if err != nil {
			return nil, err
		}
		rec, err := keys.DecodeTaskValue(pair.Value)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		tasks[i] = NewTask(planID, index, rec.Space, rec.Partition, rec.Src, rec.Dst)
		runStates[i] = TaskRunStateFromRecord(rec)
	}

	return &Plan{ID: planID, Tasks: tasks, runStates: runStates, concurrency: concurrency}, nil
}

func decodeTaskIndex(key []byte) (uint64, uint32, error) {
	if len(key) != 1+8+4 || key[0] != keys.TagTaskRecord {
		return 0, 0, errors.Wrapf(errcode.ErrStoreFailure, "balance: malformed task key %x", key)
	}
	planID := binary.BigEndian.Uint64(key[1:9])
	index := binary.BigEndian.Uint32(key[9:13])
	return planID, index, nil
}

// RecoverLatest scans the plan-header keyspace for the most recently
// created non-terminal plan, if any (spec §4.D restart recovery: "metad
// scans for the most recent non-terminal plan on startup").
func RecoverLatest(ctx context.Context, store kv.Store) (uint64, bool, error) {
	pairs, err := store.Scan(ctx, keys.PlanHeaderPrefix(), kv.PrefixRangeEnd(keys.PlanHeaderPrefix()))
	if err != nil {
		return 0, false, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	var latestID uint64
	found := false
	for _, pair := range pairs {
		id, err := keys.DecodePlanHeaderKey(pair.Key)
		if err != nil {
			return 0, false, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		status, _, err := keys.DecodePlanHeaderValue(pair.Value)
		if err != nil {
			return 0, false, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		if status != keys.PlanInProgress {
			continue
		}
		if !found || id > latestID {
			latestID = id
			found = true
		}
	}
	return latestID, found, nil
}

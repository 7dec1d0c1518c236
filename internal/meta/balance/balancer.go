package balance

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/log"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
)

// HeartbeatStaleAfter is the window after which a registered host without a
// fresh heartbeat is considered lost (spec §4.E step 1's "active-host set").
const HeartbeatStaleAfter = 15 * time.Second

// Status summarizes a plan for the status() surface (spec §4.E).
type Status struct {
	PlanID       uint64
	TaskCount    int
	FailedTasks  int
	SucceededTasks int
	InProgress   bool
}

// Balancer is the process-wide singleton that computes and dispatches
// balance plans (spec §4.E). Exclusivity is an atomic flag, not a lock:
// only one plan may be in flight at a time, mirroring the teacher's
// zmClientSingleDone atomic-guarded singleton pattern (gm/zm_rpc_client.go).
type Balancer struct {
	store    kv.Store
	alloc    *cluster.Allocation
	registry *cluster.Registry
	admin    AdminClient
	spaces   func(ctx context.Context) ([]cluster.Space, error)

	concurrency int

	running    int32
	recovering int32

	mu          sync.Mutex
	lastPlan    *Plan
	nextPlanID  uint64
}

// NewBalancer builds a balancer over the given dependencies. spaces lists
// every graph space to balance; the balancer reads it fresh on every
// balance() call.
func NewBalancer(store kv.Store, alloc *cluster.Allocation, registry *cluster.Registry, admin AdminClient, concurrency int, spaces func(ctx context.Context) ([]cluster.Space, error)) *Balancer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Balancer{
		store:       store,
		alloc:       alloc,
		registry:    registry,
		admin:       admin,
		spaces:      spaces,
		concurrency: concurrency,
		nextPlanID:  uint64(time.Now().UnixNano()),
	}
}

// Recover scans for the most recent non-terminal plan on startup and, if
// one is found, resumes dispatching it. balance() is rejected while
// recovery is in flight (spec §4.E).
func (b *Balancer) Recover(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.recovering, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&b.recovering, 0)

	planID, found, err := RecoverLatest(ctx, b.store)
	if err != nil {
		return err
	}
	if !found {
		log.Info("balance: no in-progress plan found at startup")
		return nil
	}

	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		return errors.Wrap(errcode.ErrBalancerRunning, "balance: recovery found a plan to resume but balancer is already running")
	}
	plan, err := LoadPlan(ctx, b.store, planID, b.concurrency)
	if err != nil {
		atomic.StoreInt32(&b.running, 0)
		return err
	}
	log.Info("balance: resuming plan %d with %d task(s) after restart", plan.ID, len(plan.Tasks))
	b.dispatch(plan)
	return nil
}

// Balance computes a fresh plan across every space returned by b.spaces,
// persists it, and dispatches it asynchronously. It returns the new plan's
// id immediately; callers poll Status for completion.
func (b *Balancer) Balance(ctx context.Context) (uint64, error) {
	if atomic.LoadInt32(&b.recovering) == 1 {
		return 0, errors.Wrap(errcode.ErrBalancerRunning, "balance: recovery in progress")
	}
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		return 0, errcode.ErrBalancerRunning
	}

	spaces, err := b.spaces(ctx)
	if err != nil {
		atomic.StoreInt32(&b.running, 0)
		return 0, err
	}

	active, err := b.registry.Active(ctx, time.Now(), HeartbeatStaleAfter)
	if err != nil {
		atomic.StoreInt32(&b.running, 0)
		return 0, err
	}

	var tasks []*Task
	planID := atomic.AddUint64(&b.nextPlanID, 1)
	var idx uint32
	for _, space := range spaces {
		spaceTasks, err := b.planSpace(ctx, planID, &idx, space, active)
		if err != nil {
			atomic.StoreInt32(&b.running, 0)
			return 0, err
		}
		tasks = append(tasks, spaceTasks...)
	}

	plan := NewPlan(planID, tasks, b.concurrency)
	if err := plan.Persist(ctx, b.store); err != nil {
		atomic.StoreInt32(&b.running, 0)
		return 0, err
	}

	log.Info("balance: plan %d computed with %d task(s) across %d space(s)", planID, len(tasks), len(spaces))
	b.dispatch(plan)
	return planID, nil
}

func (b *Balancer) dispatch(plan *Plan) {
	b.mu.Lock()
	b.lastPlan = plan
	b.mu.Unlock()

	go func() {
		defer atomic.StoreInt32(&b.running, 0)
		if err := plan.Run(context.Background(), b.store, b.admin, b.alloc); err != nil {
			log.Error("balance: plan %d ended with error: %v", plan.ID, err)
		}
	}()
}

// Status reports the in-memory state of the most recently dispatched plan.
// Returns ok == false if no plan has run since process start.
func (b *Balancer) Status() (Status, bool) {
	b.mu.Lock()
	plan := b.lastPlan
	b.mu.Unlock()
	if plan == nil {
		return Status{}, false
	}

	s := Status{PlanID: plan.ID, TaskCount: len(plan.Tasks), InProgress: atomic.LoadInt32(&b.running) == 1}
	for _, rs := range plan.runStates {
		switch rs.Status() {
		case keys.TaskSucceeded:
			s.SucceededTasks++
		case keys.TaskFailed:
			s.FailedTasks++
		}
	}
	return s, true
}

// Rollback is reserved (spec §4.E): "rollback(plan_id) — reserved; not
// specified here beyond returning unimplemented".
func (b *Balancer) Rollback(_ context.Context, _ uint64) error {
	return errors.Wrap(errcode.ErrInvalidArgument, "balance: rollback is unimplemented")
}

// planSpace runs the plan-construction algorithm of spec §4.E for one
// space and appends its tasks starting at *idx.
func (b *Balancer) planSpace(ctx context.Context, planID uint64, idx *uint32, space cluster.Space, active []cluster.HostAddr) ([]*Task, error) {
	allocMap, err := b.alloc.Load(ctx, space.ID)
	if err != nil {
		return nil, err
	}

	st := newPlannerState(allocMap, space.ID, active)

	var tasks []*Task
	for _, lost := range st.lost {
		for _, partition := range append([]cluster.PartitionID(nil), st.hostParts[lost]...) {
			key := cluster.PartitionKey{Space: space.ID, Partition: partition}
			dst, ok := st.pickMinLoaded(key)
			if !ok {
				return nil, errors.Wrapf(errcode.ErrNoValidHost, "balance: no destination host available for partition %d/%d (src lost %v)", space.ID, partition, lost)
			}
			tasks = append(tasks, NewTask(planID, *idx, space.ID, partition, lost, dst))
			*idx++
			st.move(key, lost, dst)
		}
	}

	tasks = append(tasks, b.rebalance(planID, idx, space.ID, st)...)
	return tasks, nil
}

func (b *Balancer) rebalance(planID uint64, idx *uint32, spaceID cluster.SpaceID, st *plannerState) []*Task {
	if len(st.active) == 0 {
		return nil
	}

	total := 0
	for _, h := range st.active {
		total += st.counts[h]
	}
	avg := float64(total) / float64(len(st.active))
	ceilAvg := int(math.Ceil(avg))
	floorAvg := int(math.Floor(avg))

	var tasks []*Task
	for {
		hosts := append([]cluster.HostAddr(nil), st.active...)
		sort.Slice(hosts, func(i, j int) bool {
			if st.counts[hosts[i]] != st.counts[hosts[j]] {
				return st.counts[hosts[i]] > st.counts[hosts[j]]
			}
			return hosts[i].Less(hosts[j])
		})

		top, bottom := hosts[0], hosts[len(hosts)-1]
		if st.counts[top] <= ceilAvg || st.counts[bottom] >= floorAvg {
			break
		}

		partition, ok := st.pickMovable(top, bottom)
		if !ok {
			break
		}

		key := cluster.PartitionKey{Space: spaceID, Partition: partition}
		tasks = append(tasks, NewTask(planID, *idx, spaceID, partition, top, bottom))
		*idx++
		st.move(key, top, bottom)
	}
	return tasks
}

// plannerState tracks the mutable host_parts / peer-set view the
// loss and rebalance passes both read and update in place (spec §4.E step
// 4: "update host_parts as if the move had happened").
type plannerState struct {
	active    []cluster.HostAddr
	activeSet map[cluster.HostAddr]bool
	lost      []cluster.HostAddr

	hostParts map[cluster.HostAddr][]cluster.PartitionID
	peers     map[cluster.PartitionID][]cluster.HostAddr
	counts    map[cluster.HostAddr]int

	loadTree *btree.BTreeG[hostCount]
}

type hostCount struct {
	Host  cluster.HostAddr
	Count int
}

func lessHostCount(a, b hostCount) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.Host.Less(b.Host)
}

func newPlannerState(allocMap cluster.AllocationMap, space cluster.SpaceID, active []cluster.HostAddr) *plannerState {
	activeSet := make(map[cluster.HostAddr]bool, len(active))
	for _, h := range active {
		activeSet[h] = true
	}

	hostParts := allocMap.HostPartitions(space)
	peers := make(map[cluster.PartitionID][]cluster.HostAddr)
	for key, hs := range allocMap {
		if key.Space != space {
			continue
		}
		peers[key.Partition] = append([]cluster.HostAddr(nil), hs...)
	}

	var lost []cluster.HostAddr
	for h := range hostParts {
		if !activeSet[h] {
			lost = append(lost, h)
		}
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].Less(lost[j]) })

	counts := make(map[cluster.HostAddr]int, len(active))
	tree := btree.NewG(32, lessHostCount)
	for _, h := range active {
		c := len(hostParts[h])
		counts[h] = c
		tree.ReplaceOrInsert(hostCount{Host: h, Count: c})
	}

	return &plannerState{
		active:    active,
		activeSet: activeSet,
		lost:      lost,
		hostParts: hostParts,
		peers:     peers,
		counts:    counts,
		loadTree:  tree,
	}
}

// pickMinLoaded finds the active host with the minimal partition count that
// does not already hold this partition (spec §4.E loss path).
func (s *plannerState) pickMinLoaded(key cluster.PartitionKey) (cluster.HostAddr, bool) {
	var chosen cluster.HostAddr
	found := false
	s.loadTree.Ascend(func(hc hostCount) bool {
		if s.hasPeer(key.Partition, hc.Host) {
			return true
		}
		chosen = hc.Host
		found = true
		return false
	})
	return chosen, found
}

// pickMovable finds a partition top hosts that bottom does not (spec §4.E
// rebalance path).
func (s *plannerState) pickMovable(top, bottom cluster.HostAddr) (cluster.PartitionID, bool) {
	parts := append([]cluster.PartitionID(nil), s.hostParts[top]...)
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	for _, p := range parts {
		if !s.hasPeer(p, bottom) {
			return p, true
		}
	}
	return 0, false
}

func (s *plannerState) hasPeer(partition cluster.PartitionID, host cluster.HostAddr) bool {
	for _, h := range s.peers[partition] {
		if h == host {
			return true
		}
	}
	return false
}

// move updates host_parts, peer sets, and the load tree as if (src -> dst)
// had already happened, so subsequent choices in the same plan see the
// effect (spec §4.E step 4).
func (s *plannerState) move(key cluster.PartitionKey, src, dst cluster.HostAddr) {
	s.hostParts[src] = removePartition(s.hostParts[src], key.Partition)
	s.hostParts[dst] = append(s.hostParts[dst], key.Partition)

	peers := s.peers[key.Partition]
	for i, h := range peers {
		if h == src {
			peers[i] = dst
			break
		}
	}
	s.peers[key.Partition] = peers

	if s.activeSet[src] {
		old := s.counts[src]
		s.loadTree.Delete(hostCount{Host: src, Count: old})
		s.counts[src] = old - 1
		s.loadTree.ReplaceOrInsert(hostCount{Host: src, Count: old - 1})
	}
	oldDst := s.counts[dst]
	s.loadTree.Delete(hostCount{Host: dst, Count: oldDst})
	s.counts[dst] = oldDst + 1
	s.loadTree.ReplaceOrInsert(hostCount{Host: dst, Count: oldDst + 1})
}

func removePartition(parts []cluster.PartitionID, target cluster.PartitionID) []cluster.PartitionID {
	out := parts[:0]
	for _, p := range parts {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

package cluster

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
)

// Allocation is the KV-backed view of the allocation map (spec §3): the
// authoritative (space_id, partition_id) -> peer set mapping every reader
// in the cluster consults to route requests.
type Allocation struct {
	kv kv.Store
}

// NewAllocation wraps a KV substrate as an allocation map accessor.
func NewAllocation(store kv.Store) *Allocation {
	return &Allocation{kv: store}
}

// Load reads the whole allocation map for one space.
func (a *Allocation) Load(ctx context.Context, space SpaceID) (AllocationMap, error) {
	prefix := keys.AllocationPrefix(space)
	pairs, err := a.kv.Scan(ctx, prefix, kv.PrefixRangeEnd(prefix))
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	m := make(AllocationMap, len(pairs))
	for _, p := range pairs {
		spaceID, partitionID, err := keys.DecodeAllocationKey(p.Key)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		peers, err := keys.DecodeAllocationValue(p.Value)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		m[PartitionKey{Space: spaceID, Partition: partitionID}] = peers
	}
	return m, nil
}

// Get reads one partition's peer set.
func (a *Allocation) Get(ctx context.Context, key PartitionKey) ([]HostAddr, error) {
	raw, err := a.kv.Get(ctx, keys.AllocationKey(key.Space, key.Partition))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return keys.DecodeAllocationValue(raw)
}

// ApplyMove builds the kv.Pair that flips a partition's peer set from
// src-holding to dst-holding. It is meant to be folded into the same
// multi_put as the task state transition that commits the move (spec
// §4.C: "the allocation map is flipped atomically ... in one write"), not
// applied on its own.
func ApplyMove(key PartitionKey, peers []HostAddr, src, dst HostAddr) (kv.Pair, error) {
	next := make([]HostAddr, 0, len(peers))
	replaced := false
	for _, h := range peers {
		if h == src {
			next = append(next, dst)
			replaced = true
			continue
		}
		next = append(next, h)
	}
	if !replaced {
		return kv.Pair{}, errors.Wrapf(errcode.ErrInvalidArgument, "cluster: src %v is not a peer of %v/%v", src, key.Space, key.Partition)
	}
	return kv.Pair{
		Key:   keys.AllocationKey(key.Space, key.Partition),
		Value: keys.EncodeAllocationValue(next),
	}, nil
}

package cluster

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
)

// Registry is the KV-backed view of §6's 0x02 host registration keys: which
// hosts have checked in, and when they last did.
type Registry struct {
	kv kv.Store
}

// NewRegistry wraps a KV substrate as a host registry.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{kv: store}
}

// Heartbeat records host as alive at the given instant.
func (r *Registry) Heartbeat(ctx context.Context, host HostAddr, at time.Time) error {
	pair := kv.Pair{Key: keys.HostKey(host), Value: keys.EncodeHeartbeatValue(at.UnixNano())}
	if err := r.kv.MultiPut(ctx, []kv.Pair{pair}); err != nil {
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return nil
}

// Active returns every registered host whose last heartbeat is within
// staleAfter of now — the active-host set the balancer's plan-construction
// algorithm reads in step 1 (spec §4.E).
func (r *Registry) Active(ctx context.Context, now time.Time, staleAfter time.Duration) ([]HostAddr, error) {
	pairs, err := r.kv.Scan(ctx, keys.HostPrefix(), kv.PrefixRangeEnd(keys.HostPrefix()))
	if err != nil {
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	var active []HostAddr
	for _, p := range pairs {
		host, err := keys.DecodeHostKey(p.Key)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		lastNanos, err := keys.DecodeHeartbeatValue(p.Value)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		if now.Sub(time.Unix(0, lastNanos)) <= staleAfter {
			active = append(active, host)
		}
	}
	return active, nil
}

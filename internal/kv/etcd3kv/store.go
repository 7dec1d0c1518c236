// Package etcd3kv is the clustered implementation of kv.Store, backed by
// go.etcd.io/etcd/client/v3. multi_put is an etcd transaction with no
// comparisons and one OpPut per pair, so all pairs land in the same
// revision or none do — the same shape as the teacher's etcd3topo
// transaction wrapper, minus the per-key version compares that package
// used for optimistic locking (the KV contract here needs none: the
// balancer and config store already serialize writes at a higher level).
package etcd3kv

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/fgr-araujo/nebula/internal/kv"
)

// Store is a kv.Store backed by an etcd3 cluster.
type Store struct {
	cli *clientv3.Client
}

// Dial connects to the given etcd endpoints.
func Dial(endpoints []string, dialTimeout time.Duration) (*Store, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Store{cli: cli}, nil
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	resp, err := s.cli.Get(ctx, string(key))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, kv.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (s *Store) MultiPut(ctx context.Context, pairs []kv.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	ops := make([]clientv3.Op, 0, len(pairs))
	for _, p := range pairs {
		ops = append(ops, clientv3.OpPut(string(p.Key), string(p.Value)))
	}

	_, err := s.cli.Txn(ctx).Then(ops...).Commit()
	return err
}

func (s *Store) Remove(ctx context.Context, key []byte) error {
	_, err := s.cli.Delete(ctx, string(key))
	return err
}

func (s *Store) RemoveRange(ctx context.Context, begin, end []byte) error {
	opts := []clientv3.OpOption{}
	if end == nil {
		opts = append(opts, clientv3.WithFromKey())
	} else {
		opts = append(opts, clientv3.WithRange(string(end)))
	}
	_, err := s.cli.Delete(ctx, string(begin), opts...)
	return err
}

func (s *Store) Scan(ctx context.Context, begin, end []byte) ([]kv.Pair, error) {
	opts := []clientv3.OpOption{clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend)}
	if end == nil {
		opts = append(opts, clientv3.WithFromKey())
	} else {
		opts = append(opts, clientv3.WithRange(string(end)))
	}

	resp, err := s.cli.Get(ctx, string(begin), opts...)
	if err != nil {
		return nil, err
	}

	pairs := make([]kv.Pair, 0, len(resp.Kvs))
	for _, kvPair := range resp.Kvs {
		pairs = append(pairs, kv.Pair{Key: kvPair.Key, Value: kvPair.Value})
	}
	return pairs, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}

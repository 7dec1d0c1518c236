// Package kv defines the transactional key/value contract the metadata
// control plane is built on (spec §4.A): snapshot reads, atomic multi-key
// writes, and ordered prefix scans. It intentionally says nothing about
// replication or consensus — every Store implementation is assumed to offer
// linearizable single-key semantics on its own.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Pair is a single key/value entry, used both for multi_put input and scan
// output.
type Pair struct {
	Key   []byte
	Value []byte
}

// Store is the substrate every domain package (allocation map, balance plan,
// config store) is built against. Implementations: boltkv (embedded,
// single-process) and etcd3kv (clustered).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// MultiPut writes all pairs atomically: either all become visible or
	// none do.
	MultiPut(ctx context.Context, pairs []Pair) error

	// Remove deletes a single key. Removing an absent key is not an error.
	Remove(ctx context.Context, key []byte) error

	// RemoveRange deletes every key in [begin, end).
	RemoveRange(ctx context.Context, begin, end []byte) error

	// Scan returns every pair with key in [begin, end), ordered
	// lexicographically by key.
	Scan(ctx context.Context, begin, end []byte) ([]Pair, error)

	// Close releases the resources backing the store.
	Close() error
}

// PrefixRangeEnd returns the exclusive end key of the range containing every
// key with the given prefix, for use with Scan/RemoveRange.
func PrefixRangeEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	// prefix was all 0xff: there is no exclusive end, scan to the top of
	// the keyspace.
	return nil
}

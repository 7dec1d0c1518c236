// Package boltkv is the embedded, single-process implementation of
// kv.Store, backed by github.com/boltdb/bolt. A single bucket holds every
// key the metadata control plane writes; bolt's transaction gives multi_put
// its atomicity for free.
package boltkv

import (
	"bytes"
	"context"
	"time"

	"github.com/boltdb/bolt"

	"github.com/fgr-araujo/nebula/internal/kv"
)

var metaBucket = []byte("meta")

// Store is a kv.Store backed by a single bolt.DB file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bolt file at path and prepares the
// meta bucket.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0664, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	var value []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(key)
		if v != nil {
			value = cloneBytes(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kv.ErrNotFound
	}
	return value, nil
}

func (s *Store) MultiPut(_ context.Context, pairs []kv.Pair) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		for _, p := range pairs {
			if err := b.Put(p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Remove(_ context.Context, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Delete(key)
	})
}

func (s *Store) RemoveRange(_ context.Context, begin, end []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(begin); k != nil && (end == nil || bytes.Compare(k, end) < 0); k, _ = c.Next() {
			keys = append(keys, cloneBytes(k))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Scan(_ context.Context, begin, end []byte) ([]kv.Pair, error) {
	var pairs []kv.Pair
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(metaBucket).Cursor()
		for k, v := c.Seek(begin); k != nil && (end == nil || bytes.Compare(k, end) < 0); k, v = c.Next() {
			pairs = append(pairs, kv.Pair{Key: cloneBytes(k), Value: cloneBytes(v)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

package config

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/log"
	"github.com/fgr-araujo/nebula/internal/meta/errcode"
	"github.com/fgr-araujo/nebula/internal/meta/keys"
)

// Store is the metad-side config item CRUD surface (spec §4.F), backed
// directly by kv.Store. It also implements Client so a node-side Manager
// can be wired straight to a co-located Store without an RPC hop, the same
// shortcut the teacher takes wherever a client and its server share a
// process (e.g. GetIdGeneratorSingle calling topoServer in-process).
type Store struct {
	kv kv.Store
}

// NewStore builds a config item store over the given KV substrate.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

func moduleByte(m Module) byte { return byte(m) }

func itemToKV(item Item) (kv.Pair, error) {
	if item.Module == All {
		return kv.Pair{}, errors.Wrap(errcode.ErrInvalidArgument, "config: ALL is a query wildcard, not a storable module")
	}
	return kv.Pair{
		Key: keys.ConfigKey(moduleByte(item.Module), item.Name),
		Value: keys.EncodeConfigValue(keys.ConfigValue{
			Type:  byte(item.Type),
			Mode:  byte(item.Mode),
			Value: item.Value,
		}),
	}, nil
}

func kvToItem(module Module, name string, value []byte) (Item, error) {
	cv, err := keys.DecodeConfigValue(value)
	if err != nil {
		return Item{}, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return Item{
		Module: module,
		Name:   name,
		Type:   Type(cv.Type),
		Mode:   Mode(cv.Mode),
		Value:  cv.Value,
	}, nil
}

// Register inserts each item whose (module,name) is absent; items already
// present are left untouched (spec §4.F). Idempotent: applying the same
// batch twice yields the same store state as applying it once.
func (s *Store) Register(ctx context.Context, items []Item) error {
	var toInsert []kv.Pair
	for _, item := range items {
		if item.Module == All {
			return errors.Wrap(errcode.ErrInvalidArgument, "config: cannot register an item under module ALL")
		}

		existingRaw, err := s.kv.Get(ctx, keys.ConfigKey(moduleByte(item.Module), item.Name))
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			log.Error("config store: get failed for %v/%v: %v", item.Module, item.Name, err)
			return errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		if existingRaw != nil {
			// Already registered: register is a no-op for this item.
			continue
		}

		pair, err := itemToKV(item)
		if err != nil {
			return err
		}
		toInsert = append(toInsert, pair)
	}

	if len(toInsert) == 0 {
		return nil
	}
	if err := s.kv.MultiPut(ctx, toInsert); err != nil {
		log.Error("config store: register multi_put failed: %v", err)
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return nil
}

// Set overwrites a registered item's value. It fails if the item is not
// registered, if item.Type differs from the stored type, or if the stored
// mode is Immutable (spec §4.F).
func (s *Store) Set(ctx context.Context, item Item) error {
	if item.Module == All {
		return errors.Wrap(errcode.ErrInvalidArgument, "config: ALL is not a valid module for set")
	}

	raw, err := s.kv.Get(ctx, keys.ConfigKey(moduleByte(item.Module), item.Name))
	if errors.Is(err, kv.ErrNotFound) {
		return errors.Wrap(errcode.ErrInvalidArgument, "config: set on unregistered item")
	}
	if err != nil {
		log.Error("config store: get failed for %v/%v: %v", item.Module, item.Name, err)
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	stored, err := keys.DecodeConfigValue(raw)
	if err != nil {
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	if Type(stored.Type) != item.Type {
		return errors.Wrap(errcode.ErrInvalidArgument, "config: set type mismatch")
	}
	if Mode(stored.Mode) == Immutable {
		return errors.Wrap(errcode.ErrInvalidArgument, "config: set on immutable item")
	}

	item.Mode = Mode(stored.Mode)
	pair, err := itemToKV(item)
	if err != nil {
		return err
	}
	if err := s.kv.MultiPut(ctx, []kv.Pair{pair}); err != nil {
		log.Error("config store: set multi_put failed: %v", err)
		return errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}
	return nil
}

// Get returns the stored item, or ok == false (not an error) when absent.
// Requesting module ALL is rejected with ErrInvalidArgument, as for every
// single-item op (spec §9 Open Question 3).
func (s *Store) Get(ctx context.Context, module Module, name string) (Item, bool, error) {
	if module == All {
		return Item{}, false, errors.Wrap(errcode.ErrInvalidArgument, "config: ALL is not a valid module for get")
	}

	raw, err := s.kv.Get(ctx, keys.ConfigKey(moduleByte(module), name))
	if errors.Is(err, kv.ErrNotFound) {
		return Item{}, false, nil
	}
	if err != nil {
		log.Error("config store: get failed for %v/%v: %v", module, name, err)
		return Item{}, false, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	item, err := kvToItem(module, name, raw)
	if err != nil {
		return Item{}, false, err
	}
	return item, true, nil
}

// List returns every item of the given module, or every item when
// module == All.
func (s *Store) List(ctx context.Context, module Module) ([]Item, error) {
	var pairs []kv.Pair
	var err error
	if module == All {
		pairs, err = s.kv.Scan(ctx, keys.ConfigAllPrefix(), kv.PrefixRangeEnd(keys.ConfigAllPrefix()))
	} else {
		prefix := keys.ConfigModulePrefix(moduleByte(module))
		pairs, err = s.kv.Scan(ctx, prefix, kv.PrefixRangeEnd(prefix))
	}
	if err != nil {
		log.Error("config store: list failed for module %v: %v", module, err)
		return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
	}

	items := make([]Item, 0, len(pairs))
	for _, p := range pairs {
		m, name, err := keys.DecodeConfigKey(p.Key)
		if err != nil {
			return nil, errors.Wrap(errcode.ErrStoreFailure, err.Error())
		}
		item, err := kvToItem(Module(m), name, p.Value)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

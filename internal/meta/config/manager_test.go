package config

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client double so manager tests don't need a
// real KV store.
type fakeClient struct {
	items map[string]Item
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]Item)}
}

func (f *fakeClient) Register(_ context.Context, items []Item) error {
	for _, item := range items {
		key := item.Module.String() + "/" + item.Name
		if _, ok := f.items[key]; !ok {
			f.items[key] = item
		}
	}
	return nil
}

func (f *fakeClient) List(_ context.Context, module Module) ([]Item, error) {
	var out []Item
	for _, item := range f.items {
		if module == All || item.Module == module {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeClient) set(item Item) {
	f.items[item.Module.String()+"/"+item.Name] = item
}

// TestPropagation mirrors spec §8 scenario 6: an externally set value
// reaches the locally bound variable within one poll tick.
func TestPropagation(t *testing.T) {
	client := newFakeClient()
	mgr := NewManager(client, Meta, 10*time.Millisecond)

	var bound atomic.Value
	bound.Store("v0")

	mgr.Declare(Item{Name: "string_key", Type: String, Mode: Mutable, Value: EncodeString("v0")}, func(value []byte) error {
		s, err := DecodeString(value)
		if err != nil {
			return err
		}
		bound.Store(s)
		return nil
	})

	require.NoError(t, mgr.Start())
	defer mgr.Close()

	client.set(Item{Module: Meta, Name: "string_key", Type: String, Mode: Mutable, Value: EncodeString("abc")})

	require.Eventually(t, func() bool {
		return bound.Load().(string) == "abc"
	}, time.Second, 5*time.Millisecond)
}

func TestManagerSkipsSetterWhenValueUnchanged(t *testing.T) {
	client := newFakeClient()
	mgr := NewManager(client, Meta, 10*time.Millisecond)

	var calls int32
	mgr.Declare(Item{Name: "k", Type: Int64, Mode: Mutable, Value: EncodeInt64(1)}, func(value []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, mgr.Start())
	defer mgr.Close()

	time.Sleep(50 * time.Millisecond)
	// No changes were ever pushed, so the setter should never have been
	// invoked past the initial declared value.
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

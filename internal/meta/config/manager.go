package config

import (
	"bytes"
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fgr-araujo/nebula/internal/log"
	"github.com/fgr-araujo/nebula/internal/metrics"
)

// Client is what a node-side Manager needs from the config store: register
// its declarations and poll for the current values of its module. A Store
// satisfies this directly for co-located deployments; a remote deployment
// would back it with an RPC stub instead, without the Manager knowing the
// difference.
type Client interface {
	Register(ctx context.Context, items []Item) error
	List(ctx context.Context, module Module) ([]Item, error)
}

// Setter rebinds a process-local variable to a newly observed value. The
// manager never interprets value itself beyond dispatch; each setter
// decodes it with the §6 encoding appropriate to the item's declared Type.
// This is the registration-table-of-closures design called for by spec §9
// Design Note 3, standing in for the source's reflective gflag binding.
type Setter func(value []byte) error

type declaration struct {
	item   Item
	setter Setter
}

// Manager is the node-side half of the config manager (spec §4.G): it
// declares the config items this process owns, registers them once at
// startup, and polls the store on an interval, rebinding local variables
// when a value changes. Declarations are written once before Start and
// read-only after, matching the concurrency model of spec §5 (the
// declarations table is single-writer-at-startup, read-only thereafter;
// the tick goroutine is the single writer of the observed-value cache).
type Manager struct {
	client Client
	module Module
	interval time.Duration

	declMu       sync.Mutex
	declarations map[string]declaration

	observed map[string][]byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a config manager for one module, polling client every
// interval.
func NewManager(client Client, module Module, interval time.Duration) *Manager {
	m := &Manager{
		client:       client,
		module:       module,
		interval:     interval,
		declarations: make(map[string]declaration),
		observed:     make(map[string][]byte),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Declare adds one config item this process governs, with the setter to
// invoke when the remote value changes. Call before Start.
func (m *Manager) Declare(item Item, setter Setter) {
	m.declMu.Lock()
	defer m.declMu.Unlock()
	item.Module = m.module
	m.declarations[item.Name] = declaration{item: item, setter: setter}
}

// Start registers every declaration (idempotent: safe across restarts) and
// launches the polling loop.
func (m *Manager) Start() error {
	m.declMu.Lock()
	items := make([]Item, 0, len(m.declarations))
	for _, d := range m.declarations {
		items = append(items, d.item)
		m.observed[d.item.Name] = d.item.Value
	}
	m.declMu.Unlock()

	if len(items) > 0 {
		if err := m.client.Register(m.ctx, items); err != nil {
			log.Error("config manager: register declarations failed: %v", err)
			return err
		}
	}

	m.wg.Add(1)
	go m.run()

	log.Info("config manager for module[%v] has started, poll interval[%v]", m.module, m.interval)
	return nil
}

// Close stops the polling loop and waits for it to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			m.tick()
			timer.Reset(m.interval)
		}
	}
}

func (m *Manager) tick() {
	defer func() {
		if e := recover(); e != nil {
			log.Error("config manager: recovered from panic in tick. e[%v]\nstack:[%s]", e, debug.Stack())
		}
	}()

	start := time.Now()
	items, err := m.client.List(m.ctx, m.module)
	metrics.ConfigPollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Spec §4.G / §7: failure to contact the config store is logged
		// and retried next tick; the last known value is retained.
		metrics.ConfigPollFailuresTotal.Inc()
		log.Warn("config manager: list failed, retaining last known values. err[%v]", err)
		return
	}

	m.declMu.Lock()
	defer m.declMu.Unlock()

	for _, item := range items {
		decl, ok := m.declarations[item.Name]
		if !ok {
			continue
		}
		last := m.observed[item.Name]
		if bytes.Equal(last, item.Value) {
			continue
		}
		if decl.setter != nil {
			if err := decl.setter(item.Value); err != nil {
				log.Error("config manager: setter for %v failed: %v", item.Name, err)
				continue
			}
		}
		m.observed[item.Name] = item.Value
		log.Info("config manager: rebound %v/%v", m.module, item.Name)
	}
}

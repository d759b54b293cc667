// Package pool implements the bounded, asynchronously-refilled proxy pool
// ("Proxy" in the design's shorthand). It is the core of the system: it
// serves acquisitions under an exclusivity discipline without blocking on
// slow provider APIs, and hands off to the orchestrator for replenishment
// and source-release notification.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/validate"
	"proxyfleet/internal/shared/events"
	"proxyfleet/internal/shared/logger"
)

// Replenisher is the surface PoolManager needs from the orchestrator. The
// orchestrator package satisfies it; PoolManager only depends on this
// narrow interface so it can be tested against a fake.
type Replenisher interface {
	Replenish(ctx context.Context, n int) ([]*model.ProxyItem, error)
	// Release notifies sources the item with id was dropped. A non-nil
	// error means at least one capable source's release failed; Discard
	// turns that into a proxy.release.failed event.
	Release(ctx context.Context, id string) error
}

var (
	// ErrNotInitialized is returned by any pool operation called before
	// Init has succeeded.
	ErrNotInitialized = errors.New("pool not initialized")
	// ErrPoolExhausted is returned when no unused item exists.
	ErrPoolExhausted = errors.New("pool exhausted")
)

// InitError wraps the orchestrator failure that caused Init to fail. Init
// remains retryable: Initialized stays false.
type InitError struct {
	Cause error
}

func (e *InitError) Error() string { return fmt.Sprintf("[pool] init failed: %v", e.Cause) }
func (e *InitError) Unwrap() error { return e.Cause }

// Config is the construction-time configuration surface.
type Config struct {
	// TargetSize is the pool's target cardinality. Default 20.
	TargetSize int
	// LowWaterFraction trips a background refill when unused count drops
	// to or below TargetSize * LowWaterFraction. Default 0.3.
	LowWaterFraction float64
}

func (c Config) withDefaults() Config {
	if c.TargetSize <= 0 {
		c.TargetSize = 20
	}
	if c.LowWaterFraction <= 0 {
		c.LowWaterFraction = 0.3
	}
	return c
}

func (c Config) lowWaterMark() int {
	return int(float64(c.TargetSize) * c.LowWaterFraction)
}

// Manager is the bounded proxy pool. All pool-sequence mutations go
// through it; no other component holds a reference to the underlying
// slice.
type Manager struct {
	cfg          Config
	orchestrator Replenisher
	validator    validate.Validator
	bus          *events.Bus

	mu          sync.Mutex
	items       []*model.ProxyItem
	initialized bool
	refilling   bool
	lastRefresh time.Time
}

// New constructs a Manager. validator defaults to validate.StubValidator
// when nil. bus may be nil (events are then simply not published).
func New(cfg Config, orchestrator Replenisher, validator validate.Validator, bus *events.Bus) *Manager {
	if validator == nil {
		validator = validate.StubValidator{}
	}
	return &Manager{
		cfg:          cfg.withDefaults(),
		orchestrator: orchestrator,
		validator:    validator,
		bus:          bus,
	}
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

// Init is idempotent: if already initialized it returns immediately.
// Otherwise it replenishes target_size items from the orchestrator,
// installs them as the initial pool, and flips the initialized latch.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	target := m.cfg.TargetSize
	m.mu.Unlock()

	l := logger.WithComponent("pool")

	items, err := m.orchestrator.Replenish(ctx, target)
	if err != nil {
		m.publish(events.New(events.PoolInitFailed).WithError(err))
		l.Error().Err(err).Msg("pool init failed")
		return &InitError{Cause: err}
	}

	m.mu.Lock()
	// Another caller may have raced us to this point; the idempotence
	// guarantee is about observable effect, not about wasted work, so we
	// simply keep whichever replenish result arrives first under the lock
	// and discard a concurrent loser's batch.
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.items = items
	m.initialized = true
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	m.publish(events.New(events.PoolInitialized))
	l.Info().Int("count", len(items)).Msg("pool initialized")
	return nil
}

// Acquire is a non-exclusive peek: it returns the projection of the first
// unused item without mutating state. Supports "inspect before commit"
// patterns without consuming a slot.
func (m *Manager) Acquire() (model.ProxyConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return model.ProxyConnection{}, fmt.Errorf("[pool] acquire: %w", ErrNotInitialized)
	}

	item := m.firstUnusedLocked()
	if item == nil {
		return model.ProxyConnection{}, fmt.Errorf("[pool] acquire: %w", ErrPoolExhausted)
	}
	return item.Connection(), nil
}

// AcquireExclusive reuses Acquire's selection, then atomically flips the
// chosen item's InUse flag. The in-use write and the low-water evaluation
// happen inside the same critical section so the refill decision always
// sees a consistent post-marking view. If the low-water condition trips
// and no refill is already outstanding, a background refill is spawned
// fire-and-forget: AcquireExclusive never waits on source I/O.
func (m *Manager) AcquireExclusive(ctx context.Context) (model.ProxyConnection, error) {
	m.mu.Lock()

	if !m.initialized {
		m.mu.Unlock()
		return model.ProxyConnection{}, fmt.Errorf("[pool] acquire_exclusive: %w", ErrNotInitialized)
	}

	item := m.firstUnusedLocked()
	if item == nil {
		m.mu.Unlock()
		return model.ProxyConnection{}, fmt.Errorf("[pool] acquire_exclusive: %w", ErrPoolExhausted)
	}
	item.InUse = true
	conn := item.Connection()

	shouldRefill := m.unusedCountLocked() <= m.cfg.lowWaterMark() && !m.refilling
	if shouldRefill {
		m.refilling = true
	}
	m.mu.Unlock()

	if shouldRefill {
		go m.refill(ctx)
	}

	return conn, nil
}

// firstUnusedLocked returns the first unused item in insertion order, or
// nil. Caller must hold m.mu.
func (m *Manager) firstUnusedLocked() *model.ProxyItem {
	for _, it := range m.items {
		if !it.InUse {
			return it
		}
	}
	return nil
}

func (m *Manager) unusedCountLocked() int {
	n := 0
	for _, it := range m.items {
		if !it.InUse {
			n++
		}
	}
	return n
}

// Reject removes the item with matching id from the pool. It does not
// notify sources: a freshly-failed proxy leaves the pool instantly to
// protect subsequent callers, but punishing the provider with a release
// call for what might be a client-side symptom is not done here. Reject
// never fails and never emits an event, matching the design's pinned
// reject-vs-discard distinction.
func (m *Manager) Reject(conn model.ProxyConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(conn.ID)
}

// Discard removes the item from the pool and dispatches
// orchestrator.Release(id), fire-and-forget. A non-nil return from Release
// (at least one source's release failed) is turned into a
// proxy.release.failed event; it never surfaces as a Discard error —
// Discard itself never fails.
func (m *Manager) Discard(ctx context.Context, conn model.ProxyConnection) {
	m.mu.Lock()
	m.removeLocked(conn.ID)
	m.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.publish(events.New(events.ProxyReleaseFailed).
					WithField("proxy_id", conn.ID).
					WithError(fmt.Errorf("release panicked: %v", r)))
			}
		}()
		if err := m.orchestrator.Release(ctx, conn.ID); err != nil {
			m.publish(events.New(events.ProxyReleaseFailed).
				WithField("proxy_id", conn.ID).
				WithError(err))
		}
	}()
}

// removeLocked deletes the item with id from the pool, if present. Caller
// must hold m.mu. A missing id is a silent no-op, matching the design's
// "discard of an id not in the pool" boundary behavior.
func (m *Manager) removeLocked(id string) {
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

// Validate delegates to the injected Validator. Reserved for future active
// health checks; the default StubValidator always returns false.
func (m *Manager) Validate(conn model.ProxyConnection) bool {
	m.mu.Lock()
	var item *model.ProxyItem
	for _, it := range m.items {
		if it.ID == conn.ID {
			item = it
			break
		}
	}
	m.mu.Unlock()

	if item == nil {
		item = &model.ProxyItem{ID: conn.ID, Endpoint: conn.Endpoint}
	}
	return m.validator.Validate(item)
}

// refill runs on a background goroutine, gated by the refilling latch set
// by its caller. It always clears the latch before returning, even on
// panic, so a fault during refill never permanently blocks future refills.
func (m *Manager) refill(ctx context.Context) {
	l := logger.WithComponent("pool")
	defer func() {
		m.mu.Lock()
		m.refilling = false
		m.mu.Unlock()
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("refill panicked; refilling latch cleared")
		}
	}()

	m.mu.Lock()
	deficit := m.cfg.TargetSize - len(m.items)
	m.mu.Unlock()

	if deficit <= 0 {
		// A discard or reject after the low-water trip may have already
		// been reversed by another thread; nothing to do.
		return
	}

	items, err := m.orchestrator.Replenish(ctx, deficit)
	if err != nil {
		m.publish(events.New(events.PoolReplenishFailed).WithError(err))
		l.Warn().Err(err).Msg("background refill failed")
		return
	}

	m.mu.Lock()
	m.items = append(m.items, items...)
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	m.publish(events.New(events.PoolReplenished).WithField("added", len(items)))
	l.Info().Int("added", len(items)).Msg("background refill succeeded")
}

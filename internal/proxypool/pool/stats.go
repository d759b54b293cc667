package pool

import "time"

// Stats is the read-only numeric snapshot returned by Manager.Stats.
type Stats struct {
	TargetSize  int
	PoolSize    int
	UnusedCount int
	InUseCount  int
	Refilling   bool
	LastRefresh time.Time
}

// Stats returns a point-in-time numeric snapshot of the pool.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	unused := m.unusedCountLocked()
	return Stats{
		TargetSize:  m.cfg.TargetSize,
		PoolSize:    len(m.items),
		UnusedCount: unused,
		InUseCount:  len(m.items) - unused,
		Refilling:   m.refilling,
		LastRefresh: m.lastRefresh,
	}
}

// ItemStatus is a single item's diagnostic row within Status.
type ItemStatus struct {
	ID     string
	Source string
	InUse  bool
	Age    time.Duration
}

// Status is the read-only introspection snapshot returned by
// Manager.Status: per-item detail plus the manager's latches.
type Status struct {
	Initialized bool
	Refilling   bool
	LastRefresh time.Time
	Items       []ItemStatus
}

// Status returns a point-in-time detailed snapshot of the pool.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]ItemStatus, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, ItemStatus{
			ID:     it.ID,
			Source: it.Source,
			InUse:  it.InUse,
			Age:    it.Age(),
		})
	}

	return Status{
		Initialized: m.initialized,
		Refilling:   m.refilling,
		LastRefresh: m.lastRefresh,
		Items:       items,
	}
}

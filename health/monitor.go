package health

import (
	"sort"
	"sync"
)

// Monitor is a thread-safe store of component statuses. A nil Monitor
// is valid and ignores all updates, so callers that run without health
// reporting do not need to branch.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update stores a status under its component name.
func (m *Monitor) Update(s Status) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.Component] = s
}

// SetHealthy marks a component healthy.
func (m *Monitor) SetHealthy(component, message string) {
	m.Update(NewHealthy(component, message))
}

// SetDegraded marks a component degraded.
func (m *Monitor) SetDegraded(component, message string) {
	m.Update(NewDegraded(component, message))
}

// SetUnhealthy marks a component unhealthy with the causing error.
func (m *Monitor) SetUnhealthy(component string, err error) {
	m.Update(NewUnhealthy(component, err))
}

// Get returns a component's status. The second result is false when
// the component never reported.
func (m *Monitor) Get(component string) (Status, bool) {
	if m == nil {
		return Status{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[component]
	return s, ok
}

// All returns every stored status, sorted by component name.
func (m *Monitor) All() []Status {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]Status, 0, len(m.statuses))
	for _, s := range m.statuses {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Component < all[j].Component
	})
	return all
}

// Remove drops a component from the monitor, for example a sink that
// was shut down on purpose and should not count against the aggregate.
func (m *Monitor) Remove(component string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, component)
}

// Count returns the number of tracked components.
func (m *Monitor) Count() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Aggregate summarizes all tracked components under the system name.
func (m *Monitor) Aggregate(system string) Status {
	return Aggregate(system, m.All())
}

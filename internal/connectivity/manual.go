package connectivity

import "sync"

// Manual is a monitor whose state is set explicitly. It backs headless and
// test targets where no platform network signal exists, and CLI flags that
// force offline behavior.
type Manual struct {
	mu        sync.Mutex
	reachable bool
	subs      subscribers
}

func NewManual(reachable bool) *Manual {
	return &Manual{reachable: reachable}
}

func (m *Manual) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Set updates the state and notifies subscribers if it changed.
func (m *Manual) Set(reachable bool) {
	m.mu.Lock()
	changed := m.reachable != reachable
	m.reachable = reachable
	m.mu.Unlock()

	if changed {
		m.subs.notify(reachable)
	}
}

func (m *Manual) Subscribe(fn func(bool)) func() {
	return m.subs.add(fn)
}

// Package connectivity tracks whether the remote service is believed to be
// callable. Reachability is a hint: "unreachable" is authoritative only for
// skipping a sync run, never for blocking local writes, and "reachable" does
// not excuse callers from handling remote failures.
package connectivity

import "sync"

// Monitor reports the current reachability state and notifies subscribers
// on transitions.
type Monitor interface {
	// Reachable returns the current best-effort state synchronously.
	Reachable() bool

	// Subscribe registers fn to be called on every transition with the new
	// state. The returned func unsubscribes.
	Subscribe(fn func(reachable bool)) (unsubscribe func())
}

// subscribers is the shared transition-callback bookkeeping used by the
// monitor implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(bool))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify calls every subscriber outside the lock.
func (s *subscribers) notify(reachable bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(reachable)
	}
}

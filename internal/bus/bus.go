// Package bus is a lightweight in-process publish/subscribe channel for sync
// lifecycle events. Delivery is synchronous and best-effort: no persistence,
// no replay for late subscribers. It exists so the UI can show live progress
// without polling; it is not part of the sync correctness contract.
package bus

import (
	"sync"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

// EventKind enumerates the sync lifecycle events.
type EventKind string

const (
	EventStart      EventKind = "start"
	EventItemSynced EventKind = "item_synced"
	EventItemFailed EventKind = "item_failed"
	EventComplete   EventKind = "complete"
	EventOffline    EventKind = "offline"
)

// Event is one sync lifecycle notification. Only the fields relevant to the
// kind are populated.
type Event struct {
	Kind     EventKind
	Record   domain.RecordKind // item_synced, item_failed
	LocalID  int64             // item_synced, item_failed
	ServerID int64             // item_synced
	Err      error             // item_failed
	Outcome  *domain.Outcome   // complete
}

type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func New() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for all future events. The returned func
// unsubscribes; it is safe to call during delivery.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers ev to every current subscriber, synchronously, on the
// caller's goroutine.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

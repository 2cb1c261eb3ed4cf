package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := New()

	var first, second []EventKind
	b.Subscribe(func(ev Event) { first = append(first, ev.Kind) })
	b.Subscribe(func(ev Event) { second = append(second, ev.Kind) })

	b.Publish(Event{Kind: EventStart})
	b.Publish(Event{Kind: EventItemSynced, Record: domain.KindPlacement, LocalID: 1, ServerID: 501})

	assert.Equal(t, []EventKind{EventStart, EventItemSynced}, first)
	assert.Equal(t, []EventKind{EventStart, EventItemSynced}, second)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	var got []EventKind
	unsubscribe := b.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	b.Publish(Event{Kind: EventStart})
	unsubscribe()
	b.Publish(Event{Kind: EventComplete})

	assert.Equal(t, []EventKind{EventStart}, got)
}

func TestBusNoReplayForLateSubscribers(t *testing.T) {
	b := New()
	b.Publish(Event{Kind: EventStart})

	var got []EventKind
	b.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	assert.Empty(t, got)
}

func TestBusDeliveryIsSynchronous(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe(func(Event) { delivered = true })

	b.Publish(Event{Kind: EventOffline})
	// No goroutines, no channels: delivery happens on the publisher's stack.
	assert.True(t, delivered)
}

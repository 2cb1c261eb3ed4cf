package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualReportsState(t *testing.T) {
	m := NewManual(false)
	assert.False(t, m.Reachable())

	m.Set(true)
	assert.True(t, m.Reachable())
}

func TestManualNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewManual(false)

	var transitions []bool
	m.Subscribe(func(reachable bool) { transitions = append(transitions, reachable) })

	m.Set(true)
	m.Set(true) // no change, no notification
	m.Set(false)

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestManualUnsubscribe(t *testing.T) {
	m := NewManual(false)

	var count int
	unsubscribe := m.Subscribe(func(bool) { count++ })

	m.Set(true)
	unsubscribe()
	m.Set(false)

	assert.Equal(t, 1, count)
}

func TestProberDetectsReachability(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewProber(srv.URL, time.Minute, time.Second, nil)
	require.False(t, p.Reachable(), "prober starts unreachable")

	var transitions []bool
	p.Subscribe(func(reachable bool) { transitions = append(transitions, reachable) })

	ctx := context.Background()
	p.Probe(ctx)
	assert.True(t, p.Reachable())

	healthy.Store(false)
	p.Probe(ctx)
	assert.False(t, p.Reachable())

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestProberUnreachableOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewProber(url, time.Minute, time.Second, nil)
	p.Probe(context.Background())
	assert.False(t, p.Reachable())
}

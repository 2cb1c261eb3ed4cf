package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Prober derives reachability from a periodic HTTP probe against the remote
// service's health endpoint. It starts unreachable and flips on the first
// successful probe.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu        sync.Mutex
	reachable bool
	subs      subscribers
}

func NewProber(url string, interval time.Duration, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (p *Prober) Reachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}

func (p *Prober) Subscribe(fn func(bool)) func() {
	return p.subs.add(fn)
}

// Run probes immediately and then on every interval tick until ctx is done.
// It blocks; callers run it in a goroutine.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe performs one synchronous reachability check and updates the state.
// One-shot commands call it directly instead of running the loop.
func (p *Prober) Probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.set(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.set(false)
		return
	}
	_ = resp.Body.Close()

	p.set(resp.StatusCode < 500)
}

func (p *Prober) set(reachable bool) {
	p.mu.Lock()
	changed := p.reachable != reachable
	p.reachable = reachable
	p.mu.Unlock()

	if changed {
		if p.logger != nil {
			p.logger.Info("connectivity transition", "reachable", reachable)
		}
		p.subs.notify(reachable)
	}
}

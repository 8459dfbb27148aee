package scraper

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Pacer spaces out navigations to the same host. One Pacer is shared by
// every session so the pool as a whole respects the per-host rate.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewPacer allows perSecond navigations per host with a burst of one.
// A non-positive rate disables pacing.
func NewPacer(perSecond float64) *Pacer {
	r := rate.Limit(perSecond)
	if perSecond <= 0 {
		r = rate.Inf
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		burst:    1,
	}
}

// Wait blocks until a navigation to rawURL's host is allowed.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	if p == nil || p.r == rate.Inf {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return p.limiter(strings.ToLower(u.Hostname())).Wait(ctx)
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(p.r, p.burst)
		p.limiters[host] = l
	}
	return l
}

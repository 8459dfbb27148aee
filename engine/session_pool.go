// Package engine owns the browser sessions shared by comparison calls.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/scraper"
)

// Handle is a checked-out session plus its health bookkeeping.
type Handle struct {
	ID   int64
	sess scraper.Session

	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
	lastUsed time.Time
	released bool
}

func newHandle(id int64, sess scraper.Session) *Handle {
	now := time.Now()
	return &Handle{ID: id, sess: sess, created: now, lastUsed: now}
}

// Session returns the session the holder has exclusive use of.
func (h *Handle) Session() scraper.Session {
	return h.sess
}

// RecordSuccess decreases the error score (min 0).
func (h *Handle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
	h.lastUsed = time.Now()
	h.released = false
}

// RecordFailure increases the error score.
func (h *Handle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
	h.lastUsed = time.Now()
	h.released = false
}

// shouldRetire applies the error score, use count and age limits.
func (h *Handle) shouldRetire(cfg config.PoolConfig) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cfg.MaxErrorScore > 0 && h.errScore >= cfg.MaxErrorScore {
		return true
	}
	if cfg.MaxUses > 0 && h.useCount >= cfg.MaxUses {
		return true
	}
	if cfg.MaxAge > 0 && time.Since(h.created) >= cfg.MaxAge {
		return true
	}
	return false
}

// release disposes the session's browser once it has been idle for at
// least timeout. The handle stays usable; the next EnsureReady relaunches.
func (h *Handle) release(timeout time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || time.Since(h.lastUsed) < timeout {
		return false
	}
	h.sess.Dispose()
	h.released = true
	return true
}

// SessionFactory returns a new, unstarted session. Browsers launch lazily
// on the session's first EnsureReady.
type SessionFactory func() scraper.Session

// SessionPool hands out at most maxSessions sessions, one holder at a time.
// Unhealthy sessions are retired on return and replaced by fresh ones; idle
// sessions have their browser released after cfg.IdleTimeout.
type SessionPool struct {
	cfg         config.PoolConfig
	maxSessions int
	engineName  string
	factory     SessionFactory

	idle     chan *Handle
	mu       sync.Mutex
	all      map[int64]*Handle
	nextID   atomic.Int64
	active   atomic.Int32
	retired  atomic.Int64
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSessionPool creates the pool and starts its idle reaper.
func NewSessionPool(maxSessions int, cfg config.PoolConfig, engineName string, factory SessionFactory) *SessionPool {
	if maxSessions < 1 {
		maxSessions = 1
	}
	sp := &SessionPool{
		cfg:         cfg,
		maxSessions: maxSessions,
		engineName:  engineName,
		factory:     factory,
		idle:        make(chan *Handle, maxSessions),
		all:         make(map[int64]*Handle),
		stopped:     make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go sp.reapLoop()
	}
	return sp
}

// Get checks out a session, creating one if the pool is below its cap and
// otherwise blocking until a holder returns one or ctx ends.
func (sp *SessionPool) Get(ctx context.Context) (*Handle, error) {
	select {
	case <-sp.stopped:
		return nil, models.NewScrapeError(models.ErrCodeInternal, "session pool stopped", nil)
	default:
	}

	// Try non-blocking first.
	select {
	case h := <-sp.idle:
		sp.active.Add(1)
		return h, nil
	default:
	}

	sp.mu.Lock()
	if len(sp.all) < sp.maxSessions {
		h := sp.createLocked()
		sp.mu.Unlock()
		sp.active.Add(1)
		return h, nil
	}
	sp.mu.Unlock()

	select {
	case h := <-sp.idle:
		sp.active.Add(1)
		return h, nil
	case <-ctx.Done():
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "waiting for a free browser session", ctx.Err())
	case <-sp.stopped:
		return nil, models.NewScrapeError(models.ErrCodeInternal, "session pool stopped", nil)
	}
}

// Put returns h to the pool. healthy reports whether the holder's work
// succeeded; repeated failures retire the session.
func (sp *SessionPool) Put(h *Handle, healthy bool) {
	sp.active.Add(-1)

	if healthy {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	select {
	case <-sp.stopped:
		sp.destroy(h)
		return
	default:
	}

	if h.shouldRetire(sp.cfg) {
		slog.Debug("session_pool: retiring session", "id", h.ID,
			"errScore", h.errScore, "useCount", h.useCount)
		sp.destroy(h)
		sp.retired.Add(1)

		// Replace it so holders blocked in Get are not starved.
		sp.mu.Lock()
		fresh := sp.createLocked()
		sp.mu.Unlock()
		sp.idle <- fresh
		return
	}

	sp.idle <- h
}

// Stats reports pool occupancy.
func (sp *SessionPool) Stats() models.PoolStats {
	sp.mu.Lock()
	total := len(sp.all)
	sp.mu.Unlock()
	active := int(sp.active.Load())
	return models.PoolStats{
		MaxSessions:    sp.maxSessions,
		ActiveSessions: active,
		IdleSessions:   max(0, total-active),
		Retired:        sp.retired.Load(),
		Engine:         sp.engineName,
	}
}

// Stop disposes idle sessions and makes the pool refuse new check-outs.
// Sessions still checked out are disposed when they are returned.
func (sp *SessionPool) Stop() {
	sp.stopOnce.Do(func() {
		close(sp.stopped)
	drainLoop:
		for {
			select {
			case h := <-sp.idle:
				sp.destroy(h)
			default:
				break drainLoop
			}
		}
	})
}

// createLocked creates a handle around a fresh session. Caller must hold sp.mu.
func (sp *SessionPool) createLocked() *Handle {
	h := newHandle(sp.nextID.Add(1), sp.factory())
	sp.all[h.ID] = h
	return h
}

// destroy removes h from tracking and releases its browser.
func (sp *SessionPool) destroy(h *Handle) {
	sp.mu.Lock()
	delete(sp.all, h.ID)
	sp.mu.Unlock()
	h.sess.Dispose()
}

// reapLoop periodically releases sessions that have sat idle too long.
func (sp *SessionPool) reapLoop() {
	interval := max(sp.cfg.IdleTimeout/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sp.stopped:
			return
		case <-ticker.C:
			sp.reapIdle()
		}
	}
}

// reapIdle closes the browsers of sessions idle past IdleTimeout. Every
// handle goes back on the idle channel, so a Get blocked at the cap is
// never left waiting on a session that no longer exists.
func (sp *SessionPool) reapIdle() {
	n := len(sp.idle)
	for i := 0; i < n; i++ {
		select {
		case h := <-sp.idle:
			if h.release(sp.cfg.IdleTimeout) {
				slog.Debug("session_pool: released idle browser", "id", h.ID)
			}
			sp.idle <- h
		default:
			return
		}
	}
}

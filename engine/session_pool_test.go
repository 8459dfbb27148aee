package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/scraper"
)

// stubSession counts disposals; nothing else is exercised by the pool.
type stubSession struct {
	scraper.Session
	disposed atomic.Int32
}

func (s *stubSession) Dispose() { s.disposed.Add(1) }

type stubFactory struct {
	mu       sync.Mutex
	sessions []*stubSession
}

func (f *stubFactory) new() scraper.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &stubSession{}
	f.sessions = append(f.sessions, s)
	return s
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func TestSessionPoolReusesSessions(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(2, config.PoolConfig{}, "http", f.new)
	defer sp.Stop()
	ctx := context.Background()

	h, err := sp.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first := h.Session()
	sp.Put(h, true)

	h, _ = sp.Get(ctx)
	if h.Session() != first {
		t.Error("idle session was not reused")
	}
	sp.Put(h, true)
	if f.count() != 1 {
		t.Errorf("factory called %d times, want 1", f.count())
	}
}

func TestSessionPoolBlocksAtCap(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{}, "http", f.new)
	defer sp.Stop()

	h, _ := sp.Get(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := sp.Get(ctx); !errors.Is(err, models.ErrTimeout) {
		t.Errorf("Get at cap = %v, want timeout", err)
	}

	got := make(chan *Handle)
	go func() {
		h2, _ := sp.Get(context.Background())
		got <- h2
	}()
	time.Sleep(10 * time.Millisecond)
	sp.Put(h, true)
	select {
	case h2 := <-got:
		if h2 != h {
			t.Error("waiter did not receive the returned session")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked")
	}
	if s := sp.Stats(); s.ActiveSessions != 1 || s.MaxSessions != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestSessionPoolRetiresFailingSession(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{MaxErrorScore: 2}, "rod", f.new)
	defer sp.Stop()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		h, _ := sp.Get(ctx)
		sp.Put(h, false)
	}
	if f.sessions[0].disposed.Load() != 1 {
		t.Errorf("failing session disposed %d times, want 1", f.sessions[0].disposed.Load())
	}
	h, _ := sp.Get(ctx)
	if h.Session() == scraper.Session(f.sessions[0]) {
		t.Error("retired session handed out again")
	}
	sp.Put(h, true)
	if s := sp.Stats(); s.Retired != 1 || s.Engine != "rod" {
		t.Errorf("Stats = %+v", s)
	}
}

func TestSessionPoolRetiresByUseCount(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{MaxUses: 3}, "rod", f.new)
	defer sp.Stop()
	for i := 0; i < 3; i++ {
		h, _ := sp.Get(context.Background())
		sp.Put(h, true)
	}
	if f.count() != 2 || f.sessions[0].disposed.Load() != 1 {
		t.Errorf("sessions=%d first disposed=%d, want 2/1", f.count(), f.sessions[0].disposed.Load())
	}
}

func TestSessionPoolSuccessDecaysErrors(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{MaxErrorScore: 2}, "rod", f.new)
	defer sp.Stop()
	ctx := context.Background()
	for _, ok := range []bool{false, true, true, false} {
		h, _ := sp.Get(ctx)
		sp.Put(h, ok)
	}
	if f.count() != 1 {
		t.Errorf("healthy-enough session was retired; sessions=%d", f.count())
	}
}

func TestSessionPoolReapsIdle(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{IdleTimeout: time.Millisecond}, "rod", f.new)
	defer sp.Stop()
	h, _ := sp.Get(context.Background())
	sp.Put(h, true)
	time.Sleep(5 * time.Millisecond)
	sp.reapIdle()
	sp.reapIdle()
	if f.sessions[0].disposed.Load() != 1 {
		t.Errorf("idle browser disposed %d times, want 1", f.sessions[0].disposed.Load())
	}
	if s := sp.Stats(); s.IdleSessions != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestSessionPoolGetAfterReapAtCap(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(1, config.PoolConfig{IdleTimeout: time.Millisecond}, "rod", f.new)
	defer sp.Stop()
	h, _ := sp.Get(context.Background())
	sp.Put(h, true)
	time.Sleep(5 * time.Millisecond)
	sp.reapIdle()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	got, err := sp.Get(ctx)
	if err != nil {
		t.Fatalf("Get after reaping: %v", err)
	}
	if got.Session() != f.sessions[0] || f.count() != 1 {
		t.Error("reaped handle was not reused")
	}
	sp.Put(got, true)
	time.Sleep(5 * time.Millisecond)
	sp.reapIdle()
	if f.sessions[0].disposed.Load() != 2 {
		t.Error("browser used again was not released on the next idle period")
	}
}

func TestSessionPoolStop(t *testing.T) {
	f := &stubFactory{}
	sp := NewSessionPool(2, config.PoolConfig{}, "rod", f.new)
	idle, _ := sp.Get(context.Background())
	busy, _ := sp.Get(context.Background())
	sp.Put(idle, true)

	sp.Stop()
	sp.Stop()
	if f.sessions[0].disposed.Load() != 1 {
		t.Error("idle session not disposed on Stop")
	}
	sp.Put(busy, true)
	if f.sessions[1].disposed.Load() != 1 {
		t.Error("checked-out session not disposed when returned after Stop")
	}
	if _, err := sp.Get(context.Background()); err == nil {
		t.Error("Get after Stop succeeded")
	}
}

func TestCooldown(t *testing.T) {
	var disabled *Cooldown
	disabled.Trip("amazon")
	if disabled.Active("amazon") {
		t.Error("nil cooldown is active")
	}
	if NewCooldown(0) != nil {
		t.Error("zero ttl should disable")
	}

	c := NewCooldown(20 * time.Millisecond)
	defer c.Stop()
	c.Trip("amazon")
	if !c.Active("amazon") || c.Active("croma") {
		t.Error("cooldown state wrong after Trip")
	}
	time.Sleep(30 * time.Millisecond)
	if c.Active("amazon") {
		t.Error("cooldown did not expire")
	}
}

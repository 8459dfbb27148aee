package engine

import (
	"sync"
	"time"
)

// Cooldown remembers retailers that recently served a bot wall so callers
// can skip them instead of hitting the wall again. Entries expire after the
// configured TTL and are pruned periodically. A nil *Cooldown is disabled.
type Cooldown struct {
	store sync.Map // key (string) -> time.Time expiry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewCooldown returns nil when ttl <= 0.
func NewCooldown(ttl time.Duration) *Cooldown {
	if ttl <= 0 {
		return nil
	}
	c := &Cooldown{ttl: ttl, done: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

// Active reports whether key is cooling down.
func (c *Cooldown) Active(key string) bool {
	if c == nil {
		return false
	}
	val, ok := c.store.Load(key)
	if !ok {
		return false
	}
	if time.Now().After(val.(time.Time)) {
		c.store.Delete(key)
		return false
	}
	return true
}

// Trip starts or extends the cooldown for key.
func (c *Cooldown) Trip(key string) {
	if c == nil {
		return
	}
	c.store.Store(key, time.Now().Add(c.ttl))
}

// Stop terminates the background cleanup goroutine.
func (c *Cooldown) Stop() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

func (c *Cooldown) cleanupLoop() {
	ticker := time.NewTicker(max(c.ttl, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.store.Range(func(key, value any) bool {
				if now.After(value.(time.Time)) {
					c.store.Delete(key)
				}
				return true
			})
		}
	}
}

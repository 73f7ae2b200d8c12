package alerting

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cooldown suppresses repeat notifications for a pair inside a quiet period.
type Cooldown struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCooldown tracks up to maxPairs pairs. A non-positive ttl disables suppression.
func NewCooldown(ttl time.Duration, maxPairs int64) (*Cooldown, error) {
	if maxPairs <= 0 {
		maxPairs = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxPairs,
		MaxCost:     maxPairs,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cooldown cache: %w", err)
	}
	return &Cooldown{cache: c, ttl: ttl}, nil
}

// Allow reports whether a notification for pair may go out now, and if so
// starts a new quiet period for it.
func (c *Cooldown) Allow(pair string) bool {
	if c == nil || c.ttl <= 0 {
		return true
	}
	if _, hit := c.cache.Get(pair); hit {
		return false
	}
	c.cache.SetWithTTL(pair, struct{}{}, 1, c.ttl)
	c.cache.Wait()
	return true
}

// Close releases the cache goroutines.
func (c *Cooldown) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}

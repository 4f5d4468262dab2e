package jobs

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// SlotGuard records which job slots have already run so that a scheduler
// firing twice only pushes once. Claim reports whether the caller owns key.
type SlotGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryGuard is a process-local SlotGuard.
type MemoryGuard struct {
	Now func() time.Time

	mu    sync.Mutex
	slots map[string]time.Time // key -> expiry
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{Now: time.Now, slots: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now()
	for k, exp := range g.slots {
		if !now.Before(exp) {
			delete(g.slots, k)
		}
	}
	if _, taken := g.slots[key]; taken {
		return false, nil
	}
	g.slots[key] = now.Add(ttl)
	return true, nil
}

// RedisGuard shares slots between replicas with SET NX.
type RedisGuard struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
}

func NewRedisGuard(client redis.Cmdable) *RedisGuard {
	return &RedisGuard{
		client:  client,
		prefix:  "loadwatch:slot:",
		timeout: 250 * time.Millisecond,
	}
}

// Claim fails open: when Redis cannot be reached the slot counts as claimed
// and the error is returned for logging.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

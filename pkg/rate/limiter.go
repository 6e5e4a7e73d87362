package rate

import (
	"math"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// Limiter limits operations per key, such as a wallet address.
type Limiter interface {
	Allow(key string) (bool, error)
}

// maxTrackedKeys bounds the number of per key buckets held in memory. The
// least recently used key is evicted and starts over with a full bucket.
const maxTrackedKeys = 4096

type localRateLimiter struct {
	limit rate.Limit
	burst int

	limiters *lru.Cache
}

// NewLocalRateLimiter returns an in memory limiter allowing limit operations
// per second for each key. The burst is the limit rounded up, and at least one.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	burst := int(math.Ceil(float64(limit)))
	if burst < 1 {
		burst = 1
	}

	limiters, err := lru.New(maxTrackedKeys)
	if err != nil {
		// Only possible with a non-positive size
		panic(err)
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: limiters,
	}
}

// Allow implements limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	if existing, ok := l.limiters.Get(key); ok {
		return existing.(*rate.Limiter).Allow(), nil
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	if existing, ok, _ := l.limiters.PeekOrAdd(key, limiter); ok {
		limiter = existing.(*rate.Limiter)
	}
	return limiter.Allow(), nil
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements limiter.Allow.
func (n *NoLimiter) Allow(key string) (bool, error) {
	return true, nil
}

package rulesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter defines the interface rule sync uses to throttle per-datasource
// provider calls. Wait blocks cooperatively until a token for key is
// available or ctx is done.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// TokenBucketLimiter implements RateLimiter with one token bucket per key.
type TokenBucketLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewTokenBucketLimiter builds a limiter with rate r tokens/sec and burst b,
// lazily creating one bucket per key.
func NewTokenBucketLimiter(r float64, b int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait reserves one token for key and sleeps for the computed shortage, the
// cooperative wait spec.md §4.7 calls for, rather than failing the caller.
func (l *TokenBucketLimiter) Wait(ctx context.Context, key string) error {
	r := l.bucket(key).Reserve()
	if !r.OK() {
		r.Cancel()
		return errBurstExceeded
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errBurstExceeded = errors.New("rulesync: requested token exceeds bucket burst size")

func (l *TokenBucketLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim
}

// Package retry implements the "with_retry(n, backoff, classify)"
// combinator called for by the design notes: a small double-and-clamp
// exponential-backoff retry helper, used by the scheduler's completion-hook
// persistence write and by rulesync's provider calls.
package retry

import (
	"context"
	"time"
)

// Backoff describes an exponential backoff schedule: multiplier 1,
// starting at Min, doubling each attempt, capped at Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoff matches the persistence-retry contract in spec.md §4.5:
// exponential back-off, multiplier 1s, min 1s, max 10s.
var DefaultBackoff = Backoff{Min: 1 * time.Second, Max: 10 * time.Second}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Min
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > b.Max {
			return b.Max
		}
	}
	return d
}

// Classify reports whether err is worth retrying.
type Classify func(err error) bool

// AlwaysRetry retries any non-nil error.
func AlwaysRetry(err error) bool { return err != nil }

// Do calls fn up to attempts times. Between attempts it sleeps according
// to backoff, unless classify returns false for the error (in which case
// it stops retrying immediately). Returns the last error.
func Do(ctx context.Context, attempts int, backoff Backoff, classify Classify, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if classify != nil && !classify(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.delay(attempt)):
		}
	}
	return err
}

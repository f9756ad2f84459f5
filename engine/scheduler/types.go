package scheduler

import (
	"time"

	"github.com/volcengine/ite/engine/model"
)

// QueueItem wraps a model.TaskRequest with the bookkeeping the queue and
// worker loop need. SubmitTime records when the item was queued; FIFO
// tie-breaking within a priority class uses seq, and neither is used to age
// priority.
type QueueItem struct {
	Request    model.TaskRequest
	SubmitTime time.Time
	seq        int64 // monotonic tie-breaker, set on Push
}

// Mode defines the operating mode of the scheduler.
type Mode string

const (
	ModeNormal   Mode = "NORMAL"
	ModeDraining Mode = "DRAINING" // accept no new tasks, finish existing
	ModeReadOnly Mode = "READ_ONLY"
)

// Config holds scheduler tunables (spec.md §6).
type Config struct {
	MaxConcurrent           int           // SCHEDULER_MAX_CONCURRENT
	MaxTaskExecutionTime    time.Duration
	CircuitBreakerThreshold int
	CompletionRetry         int
}

// DefaultConfig returns the spec's production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:           5,
		MaxTaskExecutionTime:    30 * time.Minute,
		CircuitBreakerThreshold: 1000,
		CompletionRetry:         3,
	}
}

// Metrics exposes internal scheduler state for observability.
type Metrics struct {
	QueueDepth          int     `json:"queue_depth"`
	ActiveTasks         int     `json:"active_tasks"`
	MaxConcurrency      int     `json:"max_concurrency"`
	WorkerSaturation    float64 `json:"worker_saturation"`
	CircuitBreakerState string  `json:"circuit_breaker_state"`
	RuntimeMode         string  `json:"runtime_mode"`
}

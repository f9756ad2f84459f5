// Package scheduler implements C5: a strict-priority admission queue with a
// bounded-concurrency worker pool, running each admitted TaskRequest through
// an Executor and persisting the outcome through a retried completion hook.
//
// Admission is priority-only. Unlike a generic reconciliation queue there is
// no anti-starvation aging here: a High task submitted a minute after a Low
// task still runs first. Starvation of Low tasks under sustained High load
// is accepted, not mitigated.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/volcengine/ite/engine/errs"
	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/recommender"
	"github.com/volcengine/ite/engine/retry"
)

// Executor runs one TaskRequest to completion.
type Executor interface {
	CalculateThreshold(ctx context.Context, req model.TaskRequest) recommender.Result
}

// Store persists the outcome of one TaskRequest.
type Store interface {
	PersistResult(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) error
}

// Scheduler admits, queues, and dispatches TaskRequests.
type Scheduler struct {
	cfg      Config
	queue    *Queue
	breaker  *CircuitBreaker
	executor Executor
	store    Store

	mu   sync.RWMutex
	mode Mode

	active int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler in ModeNormal.
func New(cfg Config, executor Executor, store Store) *Scheduler {
	threshold := cfg.CircuitBreakerThreshold
	if threshold < 1 {
		threshold = DefaultConfig().CircuitBreakerThreshold
	}
	return &Scheduler{
		cfg:      cfg,
		queue:    NewQueue(),
		breaker:  NewCircuitBreaker(threshold),
		executor: executor,
		store:    store,
		mode:     ModeNormal,
	}
}

// SetMode changes the scheduler's admission mode.
func (s *Scheduler) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

func (s *Scheduler) getMode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Submit admits req into the queue, subject to the current mode and the
// circuit breaker's queue-depth gate.
func (s *Scheduler) Submit(req model.TaskRequest) error {
	if s.getMode() != ModeNormal {
		return errs.Newf(errs.InvalidInput, "scheduler is not accepting new tasks")
	}
	saturation := float64(atomic.LoadInt64(&s.active)) / float64(s.cfg.MaxConcurrent)
	if !s.breaker.ShouldAdmit(s.queue.Len(), saturation) {
		return errs.Newf(errs.ProviderTransient, "scheduler queue is over capacity")
	}
	s.queue.Push(&QueueItem{Request: req, SubmitTime: time.Now()})
	return nil
}

// Start runs the poller loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.poll(ctx)
}

// Stop cancels the poller loop and waits for in-flight tasks to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) poll(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for atomic.LoadInt64(&s.active) < int64(s.cfg.MaxConcurrent) {
				item := s.queue.Pop()
				if item == nil {
					break
				}
				atomic.AddInt64(&s.active, 1)
				s.wg.Add(1)
				go s.dispatch(ctx, item)
			}
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, item *QueueItem) {
	defer s.wg.Done()
	defer atomic.AddInt64(&s.active, -1)

	// A finished task hands its slot straight to the next queued request
	// instead of waiting for the poller's next tick.
	for item != nil {
		taskCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxTaskExecutionTime)
		status, errMessage, series := s.run(taskCtx, item.Request)
		cancel()

		if status == model.StatusFailed {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}

		s.complete(ctx, item.Request, status, errMessage, series)
		if ctx.Err() != nil {
			return
		}
		item = s.queue.Pop()
	}
}

// run executes the task and maps the outcome (including cancellation and
// panics) into a terminal TaskVersionStatus.
func (s *Scheduler) run(ctx context.Context, req model.TaskRequest) (status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) {
	defer func() {
		if r := recover(); r != nil {
			status, errMessage = model.StatusFailed, "recommender panicked"
		}
	}()

	result := s.executor.CalculateThreshold(ctx, req)
	if ctx.Err() == context.Canceled {
		return model.StatusFailed, fmt.Sprintf("Task %s was cancelled", req.TaskID), nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return model.StatusFailed, "task execution timed out", nil
	}
	if result.Status == model.StatusNoData {
		// NoData is never a terminal TaskVersion status; it always
		// surfaces to the store as Failed with the NoData message.
		return model.StatusFailed, result.ErrorMessage, nil
	}
	return result.Status, result.ErrorMessage, result.Series
}

// complete persists the outcome, retrying transient store failures. A
// persistence failure after exhausting retries is logged and dropped: the
// task result is lost, matching the fire-and-forget completion hook.
func (s *Scheduler) complete(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) {
	attempts := s.cfg.CompletionRetry
	if attempts < 1 {
		attempts = 1
	}
	err := retry.Do(ctx, attempts, retry.DefaultBackoff, errs.IsTransient, func() error {
		return s.store.PersistResult(ctx, req, status, errMessage, series)
	})
	if err != nil {
		slog.Error("scheduler: dropping task result after persistence retries exhausted",
			"task_id", req.TaskID, "task_version", req.TaskVersion, "error", err)
	}
}

// Metrics returns a snapshot of scheduler state.
func (s *Scheduler) Metrics() Metrics {
	active := atomic.LoadInt64(&s.active)
	return Metrics{
		QueueDepth:          s.queue.Len(),
		ActiveTasks:         int(active),
		MaxConcurrency:      s.cfg.MaxConcurrent,
		WorkerSaturation:    float64(active) / float64(s.cfg.MaxConcurrent),
		CircuitBreakerState: s.breaker.GetState().String(),
		RuntimeMode:         string(s.getMode()),
	}
}

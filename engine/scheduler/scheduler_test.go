package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/recommender"
)

type mockExecutor struct {
	mu       sync.Mutex
	order    []string
	delay    time.Duration
	statusOf func(model.TaskRequest) model.TaskVersionStatus
}

func (m *mockExecutor) CalculateThreshold(ctx context.Context, req model.TaskRequest) recommender.Result {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.order = append(m.order, req.TaskID)
	m.mu.Unlock()
	status := model.StatusSuccess
	if m.statusOf != nil {
		status = m.statusOf(req)
	}
	return recommender.Result{Status: status}
}

type mockStore struct {
	mu      sync.Mutex
	results map[string]model.TaskVersionStatus
}

func newMockStore() *mockStore { return &mockStore{results: map[string]model.TaskVersionStatus{}} }

func (m *mockStore) PersistResult(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[req.TaskID] = status
	return nil
}

// TestStrictPriorityNoAging submits a Low task well before a stream of High
// tasks and confirms the Low task is never promoted ahead of them: there is
// no wait-time aging in this scheduler.
func TestStrictPriorityNoAging(t *testing.T) {
	exec := &mockExecutor{}
	store := newMockStore()
	sched := New(Config{MaxConcurrent: 1, MaxTaskExecutionTime: time.Second, CompletionRetry: 1}, exec, store)

	low := model.TaskRequest{TaskID: "low-old", Priority: model.PriorityLow, CreatedAt: time.Now().Add(-2 * time.Minute)}
	if err := sched.Submit(low); err != nil {
		t.Fatalf("submit low: %v", err)
	}
	for i, id := range []string{"high-1", "high-3"} {
		req := model.TaskRequest{TaskID: id, Priority: model.PriorityHigh}
		if err := sched.Submit(req); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	normal := model.TaskRequest{TaskID: "normal-2", Priority: model.PriorityNormal}
	if err := sched.Submit(normal); err != nil {
		t.Fatalf("submit normal: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	time.Sleep(300 * time.Millisecond)
	sched.Stop()

	exec.mu.Lock()
	order := append([]string(nil), exec.order...)
	exec.mu.Unlock()

	if len(order) != 4 {
		t.Fatalf("expected 4 dispatches, got %v", order)
	}
	if order[0] != "high-1" || order[1] != "high-3" {
		t.Fatalf("expected both High tasks dispatched first, got %v", order)
	}
	if order[2] != "normal-2" {
		t.Fatalf("expected Normal before Low, got %v", order)
	}
	if order[3] != "low-old" {
		t.Fatalf("expected Low last despite its age, got %v", order)
	}
}

// TestConcurrencyCap confirms no more than MaxConcurrent tasks run at once.
func TestConcurrencyCap(t *testing.T) {
	var concurrent, maxSeen int64
	var mu sync.Mutex
	tracking := &trackingExecutor{delay: 50 * time.Millisecond, onStart: func() {
		mu.Lock()
		concurrent++
		if concurrent > maxSeen {
			maxSeen = concurrent
		}
		mu.Unlock()
	}, onEnd: func() {
		mu.Lock()
		concurrent--
		mu.Unlock()
	}}
	store := newMockStore()
	sched := New(Config{MaxConcurrent: 2, MaxTaskExecutionTime: time.Second, CompletionRetry: 1}, tracking, store)

	for i := 0; i < 6; i++ {
		_ = sched.Submit(model.TaskRequest{TaskID: string(rune('a' + i)), Priority: model.PriorityNormal})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	time.Sleep(400 * time.Millisecond)
	sched.Stop()

	if maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent dispatches, saw %d", maxSeen)
	}
}

type trackingExecutor struct {
	delay   time.Duration
	onStart func()
	onEnd   func()
}

func (t *trackingExecutor) CalculateThreshold(ctx context.Context, req model.TaskRequest) recommender.Result {
	t.onStart()
	defer t.onEnd()
	time.Sleep(t.delay)
	return recommender.Result{Status: model.StatusSuccess}
}

// TestCompletionPersisted confirms a completed task's status reaches Store.
func TestCompletionPersisted(t *testing.T) {
	exec := &mockExecutor{statusOf: func(req model.TaskRequest) model.TaskVersionStatus {
		if req.TaskID == "fails" {
			return model.StatusFailed
		}
		return model.StatusSuccess
	}}
	store := newMockStore()
	sched := New(Config{MaxConcurrent: 2, MaxTaskExecutionTime: time.Second, CompletionRetry: 1}, exec, store)

	_ = sched.Submit(model.TaskRequest{TaskID: "ok", Priority: model.PriorityNormal})
	_ = sched.Submit(model.TaskRequest{TaskID: "fails", Priority: model.PriorityNormal})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	sched.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.results["ok"] != model.StatusSuccess {
		t.Errorf("expected ok Success, got %v", store.results["ok"])
	}
	if store.results["fails"] != model.StatusFailed {
		t.Errorf("expected fails Failed, got %v", store.results["fails"])
	}
}

// TestReadOnlyModeRejectsSubmit confirms non-Normal modes reject admission.
func TestReadOnlyModeRejectsSubmit(t *testing.T) {
	exec := &mockExecutor{}
	store := newMockStore()
	sched := New(DefaultConfig(), exec, store)

	sched.SetMode(ModeReadOnly)
	if err := sched.Submit(model.TaskRequest{TaskID: "blocked", Priority: model.PriorityHigh}); err == nil {
		t.Error("expected ReadOnly mode to reject submission")
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/volcengine/ite/engine/idempotency"
	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/scheduler"
)

type mockScheduler struct {
	mu       sync.Mutex
	submits  []model.TaskRequest
	mode     scheduler.Mode
	submitFn func(model.TaskRequest) error
}

func (m *mockScheduler) Submit(req model.TaskRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits = append(m.submits, req)
	if m.submitFn != nil {
		return m.submitFn(req)
	}
	return nil
}

func (m *mockScheduler) Metrics() scheduler.Metrics { return scheduler.Metrics{} }

func (m *mockScheduler) SetMode(mode scheduler.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

func newTestAPI(sched Scheduler) *API {
	return New(sched, nil, idempotency.NewStore(nil))
}

// TestHandleAgentSubmitsAndEchoesPriority confirms a valid agent request
// reaches the scheduler and the response echoes the resolved priority name.
func TestHandleAgentSubmitsAndEchoesPriority(t *testing.T) {
	sched := &mockScheduler{}
	api := newTestAPI(sched)

	body, _ := json.Marshal(map[string]interface{}{
		"task_id":       "t1",
		"datasource_id": "ds1",
		"task_priority": "High",
	})
	req := httptest.NewRequest(http.MethodPost, "/apis/v1/intelligent-threshold/agent/", bytes.NewReader(body))
	w := httptest.NewRecorder()

	api.HandleAgent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(sched.submits) != 1 || sched.submits[0].Priority != model.PriorityHigh {
		t.Fatalf("expected one High-priority submit, got %+v", sched.submits)
	}
}

// TestHandleAgentRejectsMissingFields confirms a request missing task_id or
// datasource_id never reaches the scheduler.
func TestHandleAgentRejectsMissingFields(t *testing.T) {
	sched := &mockScheduler{}
	api := newTestAPI(sched)

	body, _ := json.Marshal(map[string]interface{}{"task_id": "t1"})
	req := httptest.NewRequest(http.MethodPost, "/apis/v1/intelligent-threshold/agent/", bytes.NewReader(body))
	w := httptest.NewRecorder()

	api.HandleAgent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(sched.submits) != 0 {
		t.Fatalf("expected no submit reaching the scheduler, got %d", len(sched.submits))
	}
}

// TestIdempotencyReplaysFirstResponse confirms a repeated request carrying
// the same X-ITE-Idempotency-Key replays the first response without
// submitting to the scheduler again.
func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	sched := &mockScheduler{}
	api := newTestAPI(sched)
	handler := api.withIdempotency(api.HandleAgent)

	body, _ := json.Marshal(map[string]interface{}{
		"task_id":       "t1",
		"datasource_id": "ds1",
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/apis/v1/intelligent-threshold/agent/", bytes.NewReader(body))
		req.Header.Set("X-ITE-Idempotency-Key", "key-123")
		w := httptest.NewRecorder()
		handler(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	if len(sched.submits) != 1 {
		t.Fatalf("expected exactly one scheduler submit across both calls, got %d", len(sched.submits))
	}
}

// TestHandleAdmissionModeRejectsUnknownMode confirms an invalid mode string
// never reaches SetMode.
func TestHandleAdmissionModeRejectsUnknownMode(t *testing.T) {
	sched := &mockScheduler{}
	api := newTestAPI(sched)

	body, _ := json.Marshal(map[string]string{"mode": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/admin/admission-mode", bytes.NewReader(body))
	w := httptest.NewRecorder()

	api.HandleAdmissionMode(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if sched.mode != "" {
		t.Fatalf("expected mode untouched, got %q", sched.mode)
	}
}

// TestHandleAdmissionModeAppliesDraining confirms a valid mode string flows
// through to the scheduler.
func TestHandleAdmissionModeAppliesDraining(t *testing.T) {
	sched := &mockScheduler{}
	api := newTestAPI(sched)

	body, _ := json.Marshal(map[string]string{"mode": "draining"})
	req := httptest.NewRequest(http.MethodPost, "/admin/admission-mode", bytes.NewReader(body))
	w := httptest.NewRecorder()

	api.HandleAdmissionMode(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sched.mode != scheduler.ModeDraining {
		t.Fatalf("expected draining mode applied, got %q", sched.mode)
	}
}

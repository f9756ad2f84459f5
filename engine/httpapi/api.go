// Package httpapi implements C8's HTTP agent surface: task submission and
// status for the scheduler, plus the auto-refresh batch driver's
// initialize/process endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/volcengine/ite/engine/autorefresh"
	"github.com/volcengine/ite/engine/errs"
	"github.com/volcengine/ite/engine/idempotency"
	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/scheduler"
)

// Scheduler is the admission boundary the agent endpoint submits to.
type Scheduler interface {
	Submit(req model.TaskRequest) error
	Metrics() scheduler.Metrics
	SetMode(m scheduler.Mode)
}

type API struct {
	scheduler   Scheduler
	controller  *autorefresh.Controller
	idempotency *idempotency.Store
}

func New(sched Scheduler, controller *autorefresh.Controller, idem *idempotency.Store) *API {
	return &API{scheduler: sched, controller: controller, idempotency: idem}
}

// responseRecorder buffers a handler's response so withIdempotency can
// replay it verbatim on a repeated request.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-ITE-Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}

		if resp, found := a.idempotency.Get(r.Context(), key); found {
			for k, vs := range resp.Headers {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(resp.StatusCode)
			w.Write(resp.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next(rec, r)

		a.idempotency.Set(r.Context(), key, idempotency.Response{
			StatusCode: rec.statusCode,
			Body:       rec.body,
			Headers:    rec.Header(),
		})
	}
}

type agentRequest struct {
	TaskID              string                    `json:"task_id"`
	TaskVersion         int                       `json:"task_version"`
	DatasourceID        string                    `json:"datasource_id"`
	MetricTemplateValue model.MetricTemplateValue `json:"metric_template_value"`
	NCount              int                       `json:"n_count"`
	Direction           model.Direction           `json:"direction"`
	Sensitivity         float64                   `json:"sensitivity"`
	TaskPriority        string                    `json:"task_priority"`
}

func parsePriority(s string) model.TaskPriority {
	switch s {
	case "High", "high":
		return model.PriorityHigh
	case "Low", "low":
		return model.PriorityLow
	default:
		return model.PriorityNormal
	}
}

// HandleAgent implements `POST /apis/v1/intelligent-threshold/agent/`.
func (a *API) HandleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" || req.DatasourceID == "" {
		http.Error(w, "task_id and datasource_id are required", http.StatusBadRequest)
		return
	}

	priority := parsePriority(req.TaskPriority)
	taskReq := model.TaskRequest{
		TaskID:              req.TaskID,
		TaskVersion:         req.TaskVersion,
		DatasourceID:        req.DatasourceID,
		MetricTemplateValue: req.MetricTemplateValue,
		Direction:           req.Direction,
		Sensitivity:         req.Sensitivity,
		Priority:            priority,
		CreatedAt:           time.Now(),
	}

	if err := a.scheduler.Submit(taskReq); err != nil {
		writeSubmitError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"task_id":       req.TaskID,
		"priority_name": priority.String(),
	})
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.InvalidInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errs.ProviderTransient:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleAgentStatus implements `GET /apis/v1/intelligent-threshold/agent/status`.
func (a *API) HandleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.scheduler.Metrics())
}

// HandleAutoRefreshInitialize implements
// `POST /apis/v1/intelligent-threshold/task/auto-refresh/initialize`.
func (a *API) HandleAutoRefreshInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	record, err := a.controller.Initialize(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(record)
}

// HandleAutoRefreshProcess implements
// `POST /apis/v1/intelligent-threshold/task/auto-refresh/process?max_iterations=&gap_time=`.
// Processing runs in the background; the endpoint returns as soon as it is
// queued, matching spec.md's "trigger background processing" contract.
// max_iterations and gap_time are parsed but not passed on: the background
// run uses the controller's own configured MaxIterations and GapTime.
func (a *API) HandleAutoRefreshProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := autorefresh.DefaultConfig()
	if v := r.URL.Query().Get("max_iterations"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxIterations = n
		}
	}
	if v := r.URL.Query().Get("gap_time"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GapTime = time.Duration(n) * time.Minute
		}
	}

	// The batch driver outlives this request by design (spec's bounded
	// iteration loop spans many gap_time waits), so it must not inherit a
	// context that dies the instant ServeHTTP returns.
	go func() {
		if err := a.controller.ScheduledProcess(context.Background()); err != nil {
			// A detached background run outlives the request; log only.
			_ = err
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "processing_started"})
}

// HandleAdmissionMode implements the scheduler kill switch used by
// spec.md §4.5's read-only/drain modes.
func (a *API) HandleAdmissionMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var mode scheduler.Mode
	switch req.Mode {
	case "normal":
		mode = scheduler.ModeNormal
	case "draining":
		mode = scheduler.ModeDraining
	case "read_only":
		mode = scheduler.ModeReadOnly
	default:
		http.Error(w, "invalid mode: use normal, draining, read_only", http.StatusBadRequest)
		return
	}
	a.scheduler.SetMode(mode)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "updated", "mode": req.Mode})
}

// Routes wires the agent surface onto mux, wrapping state-changing POSTs
// with the idempotency middleware the way the teacher wraps job/state
// submission.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/apis/v1/intelligent-threshold/agent/", a.withIdempotency(a.HandleAgent))
	mux.HandleFunc("/apis/v1/intelligent-threshold/agent/status", a.HandleAgentStatus)
	mux.HandleFunc("/apis/v1/intelligent-threshold/task/auto-refresh/initialize", a.withIdempotency(a.HandleAutoRefreshInitialize))
	mux.HandleFunc("/apis/v1/intelligent-threshold/task/auto-refresh/process", a.HandleAutoRefreshProcess)
	mux.HandleFunc("/admin/admission-mode", a.HandleAdmissionMode)
}

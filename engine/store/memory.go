package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/volcengine/ite/engine/model"
)

// MemoryStore holds the in-memory state of tasks, their versions, and
// auto-refresh bookkeeping. It implements Store and is the fallback
// main.go uses when Postgres is unreachable.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]*model.Task
	versions    map[string]*model.TaskVersion // keyed by version ID
	records     map[string]*model.AutoRefreshRecord
	details     map[string]*model.AutoRefreshDetail
	alarmSync   map[string]*model.AlarmSyncRecord // keyed by task ID
	epochs      map[string]int64
	idempotency map[string]idempotencyEntry
}

type idempotencyEntry struct {
	value    string
	expireAt time.Time
}

// NewMemoryStore initializes a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*model.Task),
		versions:    make(map[string]*model.TaskVersion),
		records:     make(map[string]*model.AutoRefreshRecord),
		details:     make(map[string]*model.AutoRefreshDetail),
		alarmSync:   make(map[string]*model.AlarmSyncRecord),
		epochs:      make(map[string]int64),
		idempotency: make(map[string]idempotencyEntry),
	}
}

// --- Task Operations ---

func (s *MemoryStore) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = newID()
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	t := task
	s.tasks[t.ID] = &t
	return t, nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok {
		return errors.New("task not found")
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = &task
	return nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *MemoryStore) ListAutoUpdateTasks(ctx context.Context) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.AutoUpdate {
			out = append(out, *t)
		}
	}
	return out, nil
}

// --- TaskVersion Operations ---

func (s *MemoryStore) CreateTaskVersion(ctx context.Context, tv model.TaskVersion) (model.TaskVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tv.ID == "" {
		tv.ID = newID()
	}
	now := time.Now()
	tv.CreatedAt, tv.UpdatedAt = now, now
	cp := tv
	s.versions[tv.ID] = &cp
	return tv, nil
}

func (s *MemoryStore) GetTaskVersion(ctx context.Context, taskID string, version int) (*model.TaskVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tv := range s.versions {
		if tv.TaskID == taskID && tv.Version == version {
			cp := *tv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetTaskVersionByID(ctx context.Context, taskVersionID string) (*model.TaskVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tv, ok := s.versions[taskVersionID]
	if !ok {
		return nil, nil
	}
	cp := *tv
	return &cp, nil
}

func (s *MemoryStore) GetLatestTaskVersion(ctx context.Context, taskID string) (*model.TaskVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.TaskVersion
	for _, tv := range s.versions {
		if tv.TaskID != taskID {
			continue
		}
		if latest == nil || tv.Version > latest.Version {
			latest = tv
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) PersistResult(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tv := range s.versions {
		if tv.TaskID == req.TaskID && tv.Version == req.TaskVersion {
			tv.Status = status
			tv.ErrorMessage = errMessage
			tv.Result = series
			tv.UpdatedAt = time.Now()
			return nil
		}
	}
	id := newID()
	now := time.Now()
	s.versions[id] = &model.TaskVersion{
		ID: id, TaskID: req.TaskID, Version: req.TaskVersion,
		MetricTemplateValue: req.MetricTemplateValue, Direction: req.Direction, Sensitivity: req.Sensitivity,
		Status: status, ErrorMessage: errMessage, Result: series,
		CreatedAt: now, UpdatedAt: now,
	}
	return nil
}

// --- AutoRefreshRecord Operations ---

func (s *MemoryStore) CreateRecord(ctx context.Context, status model.AutoRefreshRecordStatus, taskIDs []string) (model.AutoRefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	rec := model.AutoRefreshRecord{ID: newID(), Status: status, TaskAll: taskIDs, CreatedAt: now, UpdatedAt: now}
	s.records[rec.ID] = &rec
	return rec, nil
}

func (s *MemoryStore) UpdateRecordStatus(ctx context.Context, recordID string, status model.AutoRefreshRecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return errors.New("record not found")
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordID)
	return nil
}

func (s *MemoryStore) LatestRecord(ctx context.Context) (*model.AutoRefreshRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.AutoRefreshRecord
	for _, r := range s.records {
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// --- AutoRefreshDetail Operations ---

func (s *MemoryStore) CreateDetail(ctx context.Context, detail model.AutoRefreshDetail) (model.AutoRefreshDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail.ID == "" {
		detail.ID = newID()
	}
	now := time.Now()
	detail.CreatedAt, detail.UpdatedAt = now, now
	cp := detail
	s.details[detail.ID] = &cp
	return detail, nil
}

func (s *MemoryStore) DeleteDetail(ctx context.Context, detailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.details, detailID)
	return nil
}

func (s *MemoryStore) UpdateDetail(ctx context.Context, detail model.AutoRefreshDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.details[detail.ID]
	if !ok {
		return errors.New("detail not found")
	}
	detail.CreatedAt = existing.CreatedAt
	detail.UpdatedAt = time.Now()
	s.details[detail.ID] = &detail
	return nil
}

func (s *MemoryStore) ListUnfinishedDetails(ctx context.Context, recordID string) ([]model.AutoRefreshDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AutoRefreshDetail
	for _, d := range s.details {
		if d.RecordID == recordID && d.Status != model.DetailCompleted {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountProcessingDetails(ctx context.Context, recordID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, d := range s.details {
		if d.RecordID == recordID && d.Status == model.DetailProcessing {
			count++
		}
	}
	return count, nil
}

// --- AlarmSyncRecord Operations ---

func (s *MemoryStore) GetAlarmSyncRecord(ctx context.Context, taskID string) (*model.AlarmSyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.alarmSync[taskID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpsertAlarmSyncRecord(ctx context.Context, rec model.AlarmSyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.alarmSync[rec.TaskID] = &rec
	return nil
}

// --- Coordination Operations ---

func (s *MemoryStore) IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newEpoch := s.epochs[resourceID] + 1
	s.epochs[resourceID] = newEpoch
	return newEpoch, nil
}

func (s *MemoryStore) GetDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epochs[resourceID], nil
}

// --- Idempotency Operations ---

func (s *MemoryStore) GetIdempotencyRecord(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.idempotency[key]
	if !ok || time.Now().After(e.expireAt) {
		return "", errors.New("not found")
	}
	return e.value, nil
}

func (s *MemoryStore) SetIdempotencyRecord(key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[key] = idempotencyEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) SetIdempotencyRecordNX(key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.idempotency[key]; ok && time.Now().Before(e.expireAt) {
		return errors.New("key already set")
	}
	s.idempotency[key] = idempotencyEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package store

import (
	"context"
	"time"

	"github.com/volcengine/ite/engine/model"
)

// Store is the durable persistence boundary for every entity the engine
// manages: tasks, their versions, and the auto-refresh batch bookkeeping.
// PostgresStore is the production implementation; MemoryStore is the
// in-memory fallback main.go uses when Postgres is unreachable.
type Store interface {
	// Task Operations
	CreateTask(ctx context.Context, task model.Task) (model.Task, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) error
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context) ([]model.Task, error)
	ListAutoUpdateTasks(ctx context.Context) ([]model.Task, error)

	// TaskVersion Operations
	CreateTaskVersion(ctx context.Context, tv model.TaskVersion) (model.TaskVersion, error)
	GetTaskVersion(ctx context.Context, taskID string, version int) (*model.TaskVersion, error)
	GetTaskVersionByID(ctx context.Context, taskVersionID string) (*model.TaskVersion, error)
	GetLatestTaskVersion(ctx context.Context, taskID string) (*model.TaskVersion, error)
	PersistResult(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) error

	// AutoRefreshRecord Operations
	CreateRecord(ctx context.Context, status model.AutoRefreshRecordStatus, taskIDs []string) (model.AutoRefreshRecord, error)
	UpdateRecordStatus(ctx context.Context, recordID string, status model.AutoRefreshRecordStatus) error
	DeleteRecord(ctx context.Context, recordID string) error
	LatestRecord(ctx context.Context) (*model.AutoRefreshRecord, error)

	// AutoRefreshDetail Operations
	CreateDetail(ctx context.Context, detail model.AutoRefreshDetail) (model.AutoRefreshDetail, error)
	DeleteDetail(ctx context.Context, detailID string) error
	UpdateDetail(ctx context.Context, detail model.AutoRefreshDetail) error
	ListUnfinishedDetails(ctx context.Context, recordID string) ([]model.AutoRefreshDetail, error)
	CountProcessingDetails(ctx context.Context, recordID string) (int, error)

	// AlarmSyncRecord Operations
	GetAlarmSyncRecord(ctx context.Context, taskID string) (*model.AlarmSyncRecord, error)
	UpsertAlarmSyncRecord(ctx context.Context, rec model.AlarmSyncRecord) error

	// Coordination Operations
	// IncrementDurableEpoch increments the epoch for a given resource (e.g.
	// "autorefresh_leader") and returns the new epoch. Must be atomic and
	// durable even if the lease store (Redis) is flushed.
	IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error)

	// GetDurableEpoch returns the current epoch without incrementing.
	GetDurableEpoch(ctx context.Context, resourceID string) (int64, error)

	// Idempotency Operations
	GetIdempotencyRecord(key string) (string, error)
	SetIdempotencyRecord(key string, value string, ttl time.Duration) error
	SetIdempotencyRecordNX(key string, value string, ttl time.Duration) error
}

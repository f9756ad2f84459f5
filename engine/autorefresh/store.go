package autorefresh

import (
	"context"

	"github.com/volcengine/ite/engine/model"
)

// Store is the persistence boundary C6 needs: auto-update task discovery,
// record/detail bookkeeping, and the task/task-version rows it reads to
// decide what to do next.
type Store interface {
	ListAutoUpdateTasks(ctx context.Context) ([]model.Task, error)

	CreateRecord(ctx context.Context, status model.AutoRefreshRecordStatus, taskIDs []string) (model.AutoRefreshRecord, error)
	UpdateRecordStatus(ctx context.Context, recordID string, status model.AutoRefreshRecordStatus) error
	DeleteRecord(ctx context.Context, recordID string) error
	LatestRecord(ctx context.Context) (*model.AutoRefreshRecord, error)

	CreateDetail(ctx context.Context, detail model.AutoRefreshDetail) (model.AutoRefreshDetail, error)
	DeleteDetail(ctx context.Context, detailID string) error
	UpdateDetail(ctx context.Context, detail model.AutoRefreshDetail) error
	ListUnfinishedDetails(ctx context.Context, recordID string) ([]model.AutoRefreshDetail, error)
	CountProcessingDetails(ctx context.Context, recordID string) (int, error)

	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetLatestTaskVersion(ctx context.Context, taskID string) (*model.TaskVersion, error)
	GetTaskVersion(ctx context.Context, taskID string, version int) (*model.TaskVersion, error)
	GetTaskVersionByID(ctx context.Context, taskVersionID string) (*model.TaskVersion, error)
	CreateTaskVersion(ctx context.Context, tv model.TaskVersion) (model.TaskVersion, error)

	GetAlarmSyncRecord(ctx context.Context, taskID string) (*model.AlarmSyncRecord, error)
}

// Submitter is the scheduler boundary: admit a threshold calculation.
type Submitter interface {
	Submit(req model.TaskRequest) error
}

// RuleSyncer is the rule-sync boundary: push one task's alarm rules for its
// latest successful threshold result.
type RuleSyncer interface {
	SyncAlarmRules(ctx context.Context, taskID string, taskVersionID string, contactGroupIDs, alertMethods []string, alarmLevel string) error
}

package rulesync

import (
	"context"
	"fmt"

	"github.com/volcengine/ite/engine/model"
)

// TaskLookup is the read slice TaskSyncer needs from persistence to turn a
// (taskID, taskVersionID) pair into the datasource identity and computed
// series rulesync.Sync requires.
type TaskLookup interface {
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	GetTaskVersionByID(ctx context.Context, taskVersionID string) (*model.TaskVersion, error)
}

// TaskSyncer adapts Synchronizer to the autorefresh package's RuleSyncer
// boundary, resolving the task and its version's computed series before
// delegating to Sync.
type TaskSyncer struct {
	sync   *Synchronizer
	lookup TaskLookup
}

func NewTaskSyncer(sync *Synchronizer, lookup TaskLookup) *TaskSyncer {
	return &TaskSyncer{sync: sync, lookup: lookup}
}

// SyncAlarmRules satisfies autorefresh.RuleSyncer.
func (t *TaskSyncer) SyncAlarmRules(ctx context.Context, taskID string, taskVersionID string, contactGroupIDs, alertMethods []string, alarmLevel string) error {
	task, err := t.lookup.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("rulesync: task %s not found", taskID)
	}
	tv, err := t.lookup.GetTaskVersionByID(ctx, taskVersionID)
	if err != nil {
		return err
	}
	if tv == nil {
		return fmt.Errorf("rulesync: task version %s not found", taskVersionID)
	}

	result, err := t.sync.Sync(ctx, task.DatasourceID, task.Name, tv.Result, alarmLevel, contactGroupIDs, alertMethods)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("rulesync: %d rule operations failed: %v", result.Failed, result.Errors)
	}
	return nil
}

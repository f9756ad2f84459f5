// Package autorefresh implements C6: the batch controller that walks every
// auto_update task through a fresh threshold recommendation and, on
// success, a refreshed alarm-rule sync.
package autorefresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/store"
)

// Config carries the batch-loop tunables.
type Config struct {
	MaxIterations int
	GapTime       time.Duration
}

// DefaultConfig matches the original cron defaults: 100 iterations, a
// 10-minute gap between them.
func DefaultConfig() Config {
	return Config{MaxIterations: 100, GapTime: 10 * time.Minute}
}

// Controller drives one AutoRefreshRecord's Phase A/B/C state machine.
type Controller struct {
	cfg       Config
	store     Store
	submitter Submitter
	rulesync  RuleSyncer

	shards     *store.ShardRing
	shardIndex int
	publisher  Publisher
}

// Publisher is the async event-sink boundary: a completed batch gets a
// best-effort notification, mirroring the scheduler's fire-and-forget
// persistence write.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

func NewController(cfg Config, store Store, submitter Submitter, rulesync RuleSyncer) *Controller {
	return &Controller{cfg: cfg, store: store, submitter: submitter, rulesync: rulesync}
}

// WithSharding restricts this Controller to details whose TaskID hashes to
// shardIndex under ring, so horizontally-partitioned replicas split an
// auto-refresh batch's work instead of each leader driving every detail.
// Without it (the default), the controller owns every detail unconditionally.
func (c *Controller) WithSharding(ring *store.ShardRing, shardIndex int) *Controller {
	c.shards = ring
	c.shardIndex = shardIndex
	return c
}

func (c *Controller) owns(taskID string) bool {
	return c.shards == nil || c.shards.Owns(taskID, c.shardIndex)
}

// WithPublisher attaches an event sink notified when a record finishes.
func (c *Controller) WithPublisher(p Publisher) *Controller {
	c.publisher = p
	return c
}

// Initialize creates a new AutoRefreshRecord covering every task with
// auto_update=true, plus one AutoRefreshDetail per task, rolling back
// everything it created if any step fails partway through.
func (c *Controller) Initialize(ctx context.Context) (model.AutoRefreshRecord, error) {
	tasks, err := c.store.ListAutoUpdateTasks(ctx)
	if err != nil {
		return model.AutoRefreshRecord{}, err
	}
	if len(tasks) == 0 {
		return c.store.CreateRecord(ctx, model.RecordCompleted, nil)
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	record, err := c.store.CreateRecord(ctx, model.RecordPending, ids)
	if err != nil {
		return model.AutoRefreshRecord{}, err
	}

	var created []model.AutoRefreshDetail
	rollback := func() {
		for _, d := range created {
			if rerr := c.store.DeleteDetail(context.Background(), d.ID); rerr != nil {
				slog.Error("autorefresh: rollback failed to delete detail", "detail_id", d.ID, "error", rerr)
			}
		}
		if rerr := c.store.DeleteRecord(context.Background(), record.ID); rerr != nil {
			slog.Error("autorefresh: rollback failed to delete record", "record_id", record.ID, "error", rerr)
		}
	}

	for _, t := range tasks {
		detail, err := c.store.CreateDetail(ctx, model.AutoRefreshDetail{
			RecordID:     record.ID,
			TaskID:       t.ID,
			Version:      0,
			Status:       model.DetailPending,
			CalcStatus:   model.CalcPending,
			InjectStatus: model.InjectInitialized,
		})
		if err != nil {
			rollback()
			return model.AutoRefreshRecord{}, err
		}
		created = append(created, detail)
	}

	if err := c.store.UpdateRecordStatus(ctx, record.ID, model.RecordProcessing); err != nil {
		rollback()
		return model.AutoRefreshRecord{}, err
	}
	record.Status = model.RecordProcessing
	return record, nil
}

// ScheduledProcess looks up the most recent record and, if it is still
// Processing, drives it. Any other status (including no record at all) is
// a no-op: this is what makes the cron call idempotent under overlap.
func (c *Controller) ScheduledProcess(ctx context.Context) error {
	record, err := c.store.LatestRecord(ctx)
	if err != nil {
		return err
	}
	if record == nil || record.Status != model.RecordProcessing {
		return nil
	}
	return c.Process(ctx, *record)
}

// Process runs Phase A (threshold recompute), Phase B (alarm inject), and
// Phase C (overall status + loop exit) until every detail completes or
// MaxIterations is hit. Iterations are separated by GapTime, except the
// iteration right after Phase C itself fails, which retries immediately.
func (c *Controller) Process(ctx context.Context, record model.AutoRefreshRecord) error {
	maxIterations := c.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100
	}

	for i := 0; i < maxIterations; i++ {
		c.processDetailTaskStatus(ctx, record)
		c.processDetailAlarmInjectStatus(ctx, record)

		done, err := c.checkAndUpdateOverallStatus(ctx, record)
		if err != nil {
			slog.Error("autorefresh: overall status check failed, retrying without delay", "record_id", record.ID, "error", err)
			continue
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.GapTime):
		}
	}
	return nil
}

// processDetailTaskStatus is Phase A: trigger or poll each detail's
// threshold-calculation task.
func (c *Controller) processDetailTaskStatus(ctx context.Context, record model.AutoRefreshRecord) {
	details, err := c.store.ListUnfinishedDetails(ctx, record.ID)
	if err != nil {
		slog.Error("autorefresh: list unfinished details failed", "record_id", record.ID, "error", err)
		return
	}

	for _, detail := range details {
		if !c.owns(detail.TaskID) {
			continue
		}
		if fail := c.advanceCalc(ctx, &detail); fail {
			detail.Status = model.DetailCompleted
			if err := c.store.UpdateDetail(ctx, detail); err != nil {
				slog.Error("autorefresh: failed to mark detail completed", "detail_id", detail.ID, "error", err)
			}
		}
	}
}

// advanceCalc handles one detail's calc-status transition, returning true
// if the detail should be force-completed due to a missing dependency.
func (c *Controller) advanceCalc(ctx context.Context, detail *model.AutoRefreshDetail) bool {
	switch detail.CalcStatus {
	case model.CalcPending:
		task, err := c.store.GetTask(ctx, detail.TaskID)
		if err != nil || task == nil {
			return true
		}
		latest, err := c.store.GetLatestTaskVersion(ctx, detail.TaskID)
		if err != nil || latest == nil {
			return true
		}
		newVersion := latest.Version + 1
		tv, err := c.store.CreateTaskVersion(ctx, model.TaskVersion{
			TaskID:              detail.TaskID,
			Version:             newVersion,
			MetricTemplateValue: latest.MetricTemplateValue,
			NCount:              latest.NCount,
			Direction:           latest.Direction,
			Sensitivity:         latest.Sensitivity,
			Status:              model.StatusRunning,
		})
		if err != nil {
			slog.Error("autorefresh: create task version failed", "task_id", detail.TaskID, "error", err)
			return false
		}

		detail.Version = tv.Version
		detail.Status = model.DetailProcessing
		detail.CalcStatus = model.CalcProcessing
		if err := c.store.UpdateDetail(ctx, *detail); err != nil {
			slog.Error("autorefresh: update detail failed", "detail_id", detail.ID, "error", err)
			return false
		}

		if err := c.submitter.Submit(model.TaskRequest{
			TaskID:              detail.TaskID,
			TaskVersion:         tv.Version,
			DatasourceID:        task.DatasourceID,
			MetricTemplateValue: latest.MetricTemplateValue,
			Direction:           latest.Direction,
			Sensitivity:         latest.Sensitivity,
			Priority:            model.PriorityLow,
			CreatedAt:           time.Now(),
		}); err != nil {
			slog.Error("autorefresh: submit threshold calculation failed", "task_id", detail.TaskID, "error", err)
		}
		return false

	case model.CalcProcessing:
		tv, err := c.store.GetTaskVersion(ctx, detail.TaskID, detail.Version)
		if err != nil || tv == nil {
			detail.CalcStatus = model.CalcFailed
			return true
		}
		newCalc := detail.CalcStatus
		switch tv.Status {
		case model.StatusSuccess:
			newCalc = model.CalcSuccess
		case model.StatusFailed, model.StatusNoData:
			newCalc = model.CalcFailed
		}
		if newCalc != detail.CalcStatus {
			detail.CalcStatus = newCalc
			if err := c.store.UpdateDetail(ctx, *detail); err != nil {
				slog.Error("autorefresh: update detail failed", "detail_id", detail.ID, "error", err)
			}
		}
		return false

	case model.CalcSuccess:
		alarmRec, err := c.store.GetAlarmSyncRecord(ctx, detail.TaskID)
		if err != nil || alarmRec == nil {
			return true
		}
		if detail.InjectStatus == model.InjectInitialized {
			detail.InjectStatus = model.InjectPending
			if err := c.store.UpdateDetail(ctx, *detail); err != nil {
				slog.Error("autorefresh: update detail failed", "detail_id", detail.ID, "error", err)
			}
		}
		return false

	default:
		// CalcFailed: nothing to advance here. The original's matching
		// branch guards on an already-excluded detail.Status value and
		// never actually runs; preserved as a no-op rather than ported.
		return false
	}
}

// processDetailAlarmInjectStatus is Phase B: push alarm rules for details
// whose threshold calculation already succeeded.
func (c *Controller) processDetailAlarmInjectStatus(ctx context.Context, record model.AutoRefreshRecord) {
	details, err := c.store.ListUnfinishedDetails(ctx, record.ID)
	if err != nil {
		slog.Error("autorefresh: list unfinished details failed", "record_id", record.ID, "error", err)
		return
	}

	for _, detail := range details {
		if !c.owns(detail.TaskID) {
			continue
		}
		c.advanceInject(ctx, &detail)
	}
}

func (c *Controller) advanceInject(ctx context.Context, detail *model.AutoRefreshDetail) {
	switch detail.InjectStatus {
	case model.InjectInitialized:
		return

	case model.InjectPending:
		task, err := c.store.GetTask(ctx, detail.TaskID)
		if err != nil || task == nil {
			detail.InjectStatus = model.InjectFailed
			c.saveDetail(ctx, *detail)
			return
		}
		tv, err := c.store.GetTaskVersion(ctx, detail.TaskID, detail.Version)
		if err != nil || tv == nil || len(tv.Result) == 0 {
			detail.InjectStatus = model.InjectFailed
			c.saveDetail(ctx, *detail)
			return
		}
		alarmRec, err := c.store.GetAlarmSyncRecord(ctx, detail.TaskID)
		if err != nil || alarmRec == nil {
			detail.InjectStatus = model.InjectFailed
			c.saveDetail(ctx, *detail)
			return
		}
		if err := c.rulesync.SyncAlarmRules(ctx, detail.TaskID, tv.ID, alarmRec.ContactGroupIDs, alarmRec.AlertMethods, alarmRec.AlarmLevel); err != nil {
			detail.InjectStatus = model.InjectFailed
			c.saveDetail(ctx, *detail)
			return
		}
		detail.InjectStatus = model.InjectSuccess
		c.saveDetail(ctx, *detail)

	case model.InjectSuccess, model.InjectFailed:
		detail.Status = model.DetailCompleted
		c.saveDetail(ctx, *detail)
	}
}

func (c *Controller) saveDetail(ctx context.Context, detail model.AutoRefreshDetail) {
	if err := c.store.UpdateDetail(ctx, detail); err != nil {
		slog.Error("autorefresh: update detail failed", "detail_id", detail.ID, "error", err)
	}
}

// checkAndUpdateOverallStatus is Phase C: the record is Completed once no
// detail is left Processing.
func (c *Controller) checkAndUpdateOverallStatus(ctx context.Context, record model.AutoRefreshRecord) (bool, error) {
	count, err := c.store.CountProcessingDetails(ctx, record.ID)
	if err != nil {
		return false, err
	}
	status := model.RecordProcessing
	if count == 0 {
		status = model.RecordCompleted
	}
	if err := c.store.UpdateRecordStatus(ctx, record.ID, status); err != nil {
		return false, err
	}
	if status == model.RecordCompleted {
		c.publishCompletion(record)
	}
	return status == model.RecordCompleted, nil
}

// publishCompletion notifies the configured Publisher that a record
// finished. Best effort: a publish failure never fails the batch that
// already persisted.
func (c *Controller) publishCompletion(record model.AutoRefreshRecord) {
	if c.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		payload := map[string]interface{}{
			"record_id": record.ID,
			"status":    string(model.RecordCompleted),
		}
		if err := c.publisher.Publish(ctx, "ite.autorefresh.record.completed", payload); err != nil {
			slog.Warn("autorefresh: publish completion event failed (non-critical)", "record_id", record.ID, "error", err)
		}
	}()
}

package autorefresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/observability"
)

// StaleDetailMonitor periodically samples the active record's unfinished
// details, force-completing any detail that has sat in DetailProcessing
// past staleThreshold with no status change. A replica that crashed
// mid-Submit never gets a PersistResult callback to advance it otherwise.
type StaleDetailMonitor struct {
	store     Store
	interval  time.Duration
	threshold time.Duration
}

func NewStaleDetailMonitor(s Store, interval, threshold time.Duration) *StaleDetailMonitor {
	return &StaleDetailMonitor{store: s, interval: interval, threshold: threshold}
}

func (m *StaleDetailMonitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *StaleDetailMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *StaleDetailMonitor) check(ctx context.Context) {
	record, err := m.store.LatestRecord(ctx)
	if err != nil {
		slog.Error("stale-detail monitor: latest record lookup failed", "error", err)
		return
	}
	if record == nil || record.Status != model.RecordProcessing {
		return
	}

	details, err := m.store.ListUnfinishedDetails(ctx, record.ID)
	if err != nil {
		slog.Error("stale-detail monitor: list unfinished details failed", "record_id", record.ID, "error", err)
		return
	}

	now := time.Now()
	for _, d := range details {
		if d.Status != model.DetailProcessing || now.Sub(d.UpdatedAt) <= m.threshold {
			continue
		}
		slog.Warn("stale-detail monitor: force-completing stuck detail", "detail_id", d.ID, "task_id", d.TaskID, "since", d.UpdatedAt)
		d.Status = model.DetailCompleted
		d.CalcStatus = model.CalcFailed
		if err := m.store.UpdateDetail(ctx, d); err != nil {
			slog.Error("stale-detail monitor: failed to force-complete detail", "detail_id", d.ID, "error", err)
		}
	}

	observability.AutoRefreshDetailsPending.WithLabelValues(record.ID).Set(float64(len(details)))
}

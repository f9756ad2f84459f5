package autorefresh

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/volcengine/ite/engine/store"
)

// LockJanitor sweeps the leader lock namespace for entries a crashed
// replica left behind: either fenced by a newer durable epoch, or expired
// past its lease TTL without ever being released.
type LockJanitor struct {
	coordinator store.Coordinator
	durable     store.Store
	interval    time.Duration
}

func NewLockJanitor(c store.Coordinator, durable store.Store, interval time.Duration) *LockJanitor {
	return &LockJanitor{coordinator: c, durable: durable, interval: interval}
}

func (j *LockJanitor) Start(ctx context.Context) {
	go j.loop(ctx)
}

func (j *LockJanitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.clean(ctx)
		}
	}
}

func (j *LockJanitor) clean(ctx context.Context) {
	currentEpoch, err := j.durable.GetDurableEpoch(ctx, "autorefresh_leader")
	if err != nil {
		slog.Error("janitor: get durable epoch failed", "error", err)
		return
	}

	keys, err := j.coordinator.ScanLocks(ctx, "ite:lock:*")
	if err != nil {
		slog.Error("janitor: scan locks failed", "error", err)
		return
	}

	for _, key := range keys {
		if strings.HasSuffix(key, ":epoch") {
			continue
		}

		val, err := j.coordinator.GetLockOwner(ctx, key)
		if err != nil || val == "" {
			continue
		}

		var meta LockMetadata
		if err := json.Unmarshal([]byte(val), &meta); err != nil {
			slog.Warn("janitor: unreadable lock value", "key", key, "error", err)
			continue
		}

		if meta.Epoch < currentEpoch {
			slog.Warn("janitor: fencing stale-epoch lock", "key", key, "lock_epoch", meta.Epoch, "current_epoch", currentEpoch)
			if err := j.coordinator.ReleaseLease(ctx, key, val); err != nil {
				slog.Error("janitor: failed to release fenced lock", "key", key, "error", err)
			}
			continue
		}

		if time.Now().After(meta.ExpiresAt.Add(5 * time.Second)) {
			slog.Warn("janitor: reclaiming expired lock", "key", key, "expired_at", meta.ExpiresAt)
			if err := j.coordinator.ReleaseLease(ctx, key, val); err != nil {
				slog.Error("janitor: failed to release expired lock", "key", key, "error", err)
			}
		}
	}
}

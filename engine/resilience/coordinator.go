package resilience

import (
	"context"
	"fmt"
	"sync"
)

// LeaderEpoch is the leadership fact a ReconciliationCoordinator checks
// against before replaying buffered writes.
type LeaderEpoch struct {
	Epoch    int64
	LeaderID string
}

// ReconciliationCoordinator guards DegradedMode.ReconcilePendingWrites
// with a leadership check: a replica that believed itself leader at
// epoch N must not reconcile once epoch N+1 has already been granted to
// someone else, even itself a moment later.
type ReconciliationCoordinator struct {
	degraded      *DegradedMode
	redis         VersionedRedisWriter
	getLeaderInfo func() (*LeaderEpoch, error)
	nodeID        string

	mu           sync.Mutex
	currentEpoch int64
	isLeader     bool
}

func NewReconciliationCoordinator(degraded *DegradedMode, redis VersionedRedisWriter, getLeaderInfo func() (*LeaderEpoch, error), nodeID string) *ReconciliationCoordinator {
	return &ReconciliationCoordinator{degraded: degraded, redis: redis, getLeaderInfo: getLeaderInfo, nodeID: nodeID}
}

// UpdateLeadershipStatus records the epoch this replica believes it holds
// leadership under.
func (c *ReconciliationCoordinator) UpdateLeadershipStatus(epoch int64, leaderID string, isLeader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentEpoch = epoch
	c.isLeader = isLeader && leaderID == c.nodeID
}

// ReconcileIfLeader replays buffered writes only if leadership still
// matches the epoch recorded at UpdateLeadershipStatus time.
func (c *ReconciliationCoordinator) ReconcileIfLeader(ctx context.Context) error {
	c.mu.Lock()
	recordedEpoch := c.currentEpoch
	isLeader := c.isLeader
	c.mu.Unlock()

	if !isLeader {
		return fmt.Errorf("not leader, skipping reconciliation")
	}

	info, err := c.getLeaderInfo()
	if err != nil {
		return err
	}
	if info.Epoch != recordedEpoch || info.LeaderID != c.nodeID {
		return fmt.Errorf("stale leadership: epoch changed from %d to %d", recordedEpoch, info.Epoch)
	}

	return c.degraded.ReconcilePendingWrites(ctx, c.redis)
}

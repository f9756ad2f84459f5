package autorefresh

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/volcengine/ite/engine/observability"
	"github.com/volcengine/ite/engine/store"
)

// LockMetadata is the JSON value stored in the leader lease.
type LockMetadata struct {
	OwnerPod  string    `json:"owner_pod"`
	Epoch     int64     `json:"epoch"`
	ReqID     string    `json:"req_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Leader holds a Redis lease, fenced by a durable epoch, so that at most
// one replica at a time is the elected auto-refresh leader. It does not
// gate Controller.ScheduledProcess itself: nothing in the controller
// consults IsLeader or FencedContext.
type Leader struct {
	coordinator store.Coordinator
	durable     store.Store
	nodeID      string
	lockKey     string
	ttl         time.Duration

	mu           sync.RWMutex
	isLeader     bool
	currentValue string
	currentEpoch int64
	leaderCtx    context.Context
	leaderCancel context.CancelFunc
	stepDownTime time.Time
	transitions  int64

	onElected func(context.Context)
	onLost    func()

	cancel context.CancelFunc
}

// fencingKey distinguishes the fencing epoch value stashed in FencedContext.
type fencingKey string

const fencingEpochKey fencingKey = "autorefresh_fencing_epoch"

// NewLeader builds a Leader. ttl should comfortably exceed one Phase A/B/C
// iteration's gap time so a healthy driver never loses its lease mid-run.
func NewLeader(coordinator store.Coordinator, durable store.Store, nodeID string, ttl time.Duration) *Leader {
	return &Leader{
		coordinator: coordinator,
		durable:     durable,
		nodeID:      nodeID,
		lockKey:     "ite:lock:autorefresh-leader",
		ttl:         ttl,
	}
}

// SetCallbacks installs the elected/lost hooks. onElected is run in its own
// goroutine with a context cancelled the instant leadership is lost.
func (l *Leader) SetCallbacks(onElected func(ctx context.Context), onLost func()) {
	l.onElected = onElected
	l.onLost = onLost
}

// FencedContext returns the context valid only while this replica holds
// leadership; it carries the current fencing epoch.
func (l *Leader) FencedContext() context.Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.leaderCtx
}

// EpochFromContext extracts the fencing epoch stashed by FencedContext.
func EpochFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(fencingEpochKey)
	if v == nil {
		return 0, false
	}
	epoch, ok := v.(int64)
	return epoch, ok
}

func (l *Leader) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isLeader
}

// CurrentEpoch returns the fencing epoch this replica last observed,
// whether or not it currently holds leadership.
func (l *Leader) CurrentEpoch() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentEpoch
}

// Start runs the election loop until ctx is cancelled or Stop is called.
func (l *Leader) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.loop(ctx)
}

func (l *Leader) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.IsLeader() {
		l.release()
	}
}

func (l *Leader) loop(ctx context.Context) {
	interval := l.ttl / 3
	minInterval := interval
	maxInterval := 10 * l.ttl

	renewFailures := 0
	const maxRenewFailures = 3

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if l.IsLeader() {
				l.release()
			}
			return
		case <-timer.C:
			var err error
			if l.IsLeader() {
				var renewed bool
				renewed, err = l.renew(ctx)
				if err == nil {
					renewFailures = 0
					if !renewed {
						l.stepDown()
					}
				} else {
					renewFailures++
					if renewFailures >= maxRenewFailures {
						slog.Warn("autorefresh leader: too many renew failures, stepping down", "node_id", l.nodeID)
						l.stepDown()
						renewFailures = 0
					}
				}
			} else {
				var acquired bool
				acquired, err = l.acquire(ctx)
				if err == nil && acquired {
					l.becomeLeader()
					renewFailures = 0
				}
			}

			if err != nil {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			} else {
				interval = minInterval
			}
			timer.Reset(interval)
		}
	}
}

func (l *Leader) acquire(ctx context.Context) (bool, error) {
	epoch, err := l.durable.IncrementDurableEpoch(ctx, "autorefresh_leader")
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	if l.currentEpoch > 0 && epoch > l.currentEpoch+1 {
		slog.Warn("autorefresh leader: epoch drift detected", "from", l.currentEpoch, "to", epoch)
	}
	l.currentEpoch = epoch
	l.mu.Unlock()

	meta := LockMetadata{
		OwnerPod:  l.nodeID,
		Epoch:     epoch,
		ReqID:     randomID(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(l.ttl),
	}
	valBytes, _ := json.Marshal(meta)
	val := string(valBytes)

	acquired, err := l.coordinator.AcquireLease(ctx, l.lockKey, val, l.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		l.mu.Lock()
		l.currentValue = val
		l.mu.Unlock()
	}
	return acquired, nil
}

func (l *Leader) renew(ctx context.Context) (bool, error) {
	l.mu.RLock()
	val := l.currentValue
	l.mu.RUnlock()
	if val == "" {
		return false, nil
	}
	return l.coordinator.RenewLease(ctx, l.lockKey, val, l.ttl)
}

func (l *Leader) release() {
	l.mu.RLock()
	val := l.currentValue
	l.mu.RUnlock()
	if val == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.coordinator.ReleaseLease(ctx, l.lockKey, val); err != nil {
		slog.Warn("autorefresh leader: release failed", "error", err)
	}
}

func (l *Leader) becomeLeader() {
	l.mu.Lock()
	l.isLeader = true
	ctx, cancel := context.WithCancel(context.Background())
	l.leaderCancel = cancel
	l.leaderCtx = context.WithValue(ctx, fencingEpochKey, l.currentEpoch)
	l.transitions++
	if !l.stepDownTime.IsZero() {
		observability.LeadershipTransitionDuration.Observe(time.Since(l.stepDownTime).Seconds())
		l.stepDownTime = time.Time{}
	}
	l.mu.Unlock()

	observability.LeadershipTransitions.WithLabelValues(l.nodeID, "acquired").Inc()
	observability.LeadershipEpoch.WithLabelValues(l.nodeID).Set(float64(l.currentEpoch))
	observability.LeaderStatus.Set(1)

	if l.onElected != nil {
		go l.onElected(l.leaderCtx)
	}
}

func (l *Leader) stepDown() {
	l.mu.Lock()
	if !l.isLeader {
		l.mu.Unlock()
		return
	}
	l.isLeader = false
	l.transitions++
	l.stepDownTime = time.Now()
	if l.leaderCancel != nil {
		l.leaderCancel()
	}
	l.mu.Unlock()

	observability.LeaderStatus.Set(0)
	observability.LeadershipTransitions.WithLabelValues(l.nodeID, "lost").Inc()
	if l.onLost != nil {
		l.onLost()
	}
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

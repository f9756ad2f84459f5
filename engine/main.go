package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volcengine/ite/engine/autorefresh"
	"github.com/volcengine/ite/engine/config"
	"github.com/volcengine/ite/engine/datasource"
	"github.com/volcengine/ite/engine/httpapi"
	"github.com/volcengine/ite/engine/idempotency"
	"github.com/volcengine/ite/engine/middleware"
	"github.com/volcengine/ite/engine/observability"
	"github.com/volcengine/ite/engine/provider"
	"github.com/volcengine/ite/engine/recommender"
	"github.com/volcengine/ite/engine/resilience"
	"github.com/volcengine/ite/engine/rulesync"
	"github.com/volcengine/ite/engine/scheduler"
	"github.com/volcengine/ite/engine/store"
	"github.com/volcengine/ite/engine/streaming"
)

func generateNodeID() string {
	hostname, _ := os.Hostname()
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hostname + "-" + hex.EncodeToString(b)
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Durable store: Postgres in production, an in-memory fallback when the
	// database is unreachable so a single dev node still boots.
	var durable store.Store
	pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Printf("postgres unavailable, falling back to in-memory store: %v", err)
		durable = store.NewMemoryStore()
	} else {
		durable = pg
		defer pg.Close()
	}

	// Coordinator: Redis backs leader election, locks, and idempotency.
	// Its absence degrades the replica to standalone mode rather than
	// failing startup, matching how the scheduler itself runs single-node
	// in tests.
	var coordinator store.Coordinator
	redisStore, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Printf("redis unavailable, running in standalone mode (no HA): %v", err)
	} else {
		coordinator = redisStore
	}

	fetcher := datasource.NewHTTPFetcher(envString("DATASOURCE_BASE_URL", "http://localhost:9090"), cfg.FetchDataTimeout)

	execCfg := recommender.DefaultConfig()
	execCfg.FetchTimeout = cfg.FetchDataTimeout
	execCfg.HistoricalDays = cfg.HistoricalDays
	execCfg.DataInterval = cfg.TimeseriesDataInterval
	execCfg.Merge.MaximumThresholdBlocks = cfg.MaximumThresholdBlocks
	execCfg.Threshold.NumberOfTimeSplit = cfg.NumberOfTimeSplit
	execCfg.Threshold.Period.MinDataPointsPerDay = cfg.MinDataPointsPerDay
	execCfg.Threshold.Period.MinCommonPoints = cfg.MinCommonPoints
	execCfg.Threshold.Period.CorrelationThreshold = cfg.CorrelationThreshold
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		execCfg.Threshold.Location = loc
	}
	executor := recommender.NewExecutor(execCfg, fetcher, func() int64 { return time.Now().Unix() })

	schedCfg := scheduler.DefaultConfig()
	schedCfg.MaxConcurrent = cfg.MaxConcurrentTasks
	sched := scheduler.New(schedCfg, executor, durable)

	// Event sink: every event is logged, and also pushed live to any
	// connected dashboard client over the WebSocket hub.
	logPublisher := streaming.NewLogPublisher()
	wsHub := streaming.NewWSHub()
	go wsHub.Run(ctx)
	publisher := streaming.NewMultiPublisher(logPublisher, wsHub)
	defer publisher.Close()

	ruleProvider := provider.NewLogSynchronizer()
	syncCfg := rulesync.DefaultConfig()
	limiter := rulesync.NewTokenBucketLimiter(syncCfg.QPS, int(syncCfg.QPS))
	synchronizer := rulesync.New(syncCfg, ruleProvider, limiter)
	taskSyncer := rulesync.NewTaskSyncer(synchronizer, durable)

	autoCfg := autorefresh.DefaultConfig()
	controller := autorefresh.NewController(autoCfg, durable, sched, taskSyncer)
	controller.WithPublisher(publisher)
	if cfg.ShardCount > 1 {
		ring := store.NewShardRing(cfg.ShardCount)
		controller.WithSharding(ring, cfg.ShardIndex)
		log.Printf("auto-refresh controller sharded: index %d of %d", cfg.ShardIndex, cfg.ShardCount)
	}

	nodeID := "node-" + generateNodeID()

	var idemStore *idempotency.Store
	if coordinator != nil {
		idemStore = idempotency.NewStore(redisStore)
	} else {
		idemStore = idempotency.NewStore(nil)
	}

	// Leader election runs only when Redis is available; its callbacks log
	// the transition and set the leader-status gauge. It does not gate the
	// auto-refresh batch loop or the lock janitor: every replica runs the
	// janitor, and any replica that receives a process request runs
	// ScheduledProcess, leader or not.
	if coordinator != nil {
		leader := autorefresh.NewLeader(coordinator, durable, nodeID, 30*time.Second)
		leader.SetCallbacks(
			func(ctx context.Context) {
				slog.Info("elected auto-refresh leader", "node_id", nodeID)
				observability.LeaderStatus.Set(1)
			},
			func() {
				slog.Info("lost auto-refresh leadership", "node_id", nodeID)
				observability.LeaderStatus.Set(0)
			},
		)
		leader.Start(ctx)

		janitor := autorefresh.NewLockJanitor(coordinator, durable, 60*time.Second)
		janitor.Start(ctx)

		// Degraded mode covers Redis flapping mid-run rather than being
		// cleanly up or down at startup: it tracks Redis availability and,
		// once Redis recovers, replays its buffered writes, gated on this
		// replica still holding the same leadership epoch it had before the
		// outage. No engine code path writes into that buffer (only the
		// resilience tests call SetInCacheWithTTL), so a recovery replays
		// nothing.
		degraded := resilience.NewDegradedMode()
		reconciler := resilience.NewReconciliationCoordinator(degraded, redisStore, func() (*resilience.LeaderEpoch, error) {
			return &resilience.LeaderEpoch{Epoch: leader.CurrentEpoch(), LeaderID: nodeID}, nil
		}, nodeID)
		go monitorRedisHealth(ctx, redisStore, degraded, reconciler, leader, nodeID)
	}

	staleMonitor := autorefresh.NewStaleDetailMonitor(durable, 30*time.Second, 15*time.Minute)
	staleMonitor.Start(ctx)

	sched.Start(ctx)

	api := httpapi.New(sched, controller, idemStore)

	mux := http.NewServeMux()
	api.Routes(mux)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws/events", wsHub)

	handler := middleware.CORSMiddleware(mux)

	log.Printf("intelligent threshold engine listening on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, handler))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// monitorRedisHealth pings Redis on an interval, flipping degraded into and
// out of buffering mode around outages. On recovery from a real outage it
// reconciles buffered writes only if this replica still holds the same
// leadership epoch it held while buffering them; a stale epoch means
// someone else has since taken over and this replica's buffer is discarded.
func monitorRedisHealth(ctx context.Context, redisStore *store.RedisStore, degraded *resilience.DegradedMode, reconciler *resilience.ReconciliationCoordinator, leader *autorefresh.Leader, nodeID string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := redisStore.Ping(pingCtx)
			cancel()

			if err != nil {
				degraded.MarkRedisUnavailable()
				continue
			}

			wasDegraded := degraded.IsDegraded()
			degraded.MarkRedisAvailable()
			if wasDegraded {
				if err := reconciler.ReconcileIfLeader(ctx); err != nil {
					slog.Warn("degraded mode: reconciliation on redis recovery skipped or failed", "error", err)
				}
			}
			reconciler.UpdateLeadershipStatus(leader.CurrentEpoch(), nodeID, leader.IsLeader())
		}
	}
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerQueueDepth tracks the number of pending tasks in the
	// scheduler queue.
	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ite_scheduler_queue_depth",
		Help: "Current number of tasks in the scheduler queue",
	})

	// SchedulerActiveTasks tracks the number of tasks currently executing.
	SchedulerActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ite_scheduler_active_tasks",
		Help: "Current number of tasks being executed by the scheduler",
	})

	// SchedulerWorkerSaturation tracks active/max-concurrency.
	SchedulerWorkerSaturation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ite_scheduler_worker_saturation",
		Help: "Ratio of active workers to max concurrency (0.0-1.0)",
	})

	// SchedulerCircuitState tracks circuit breaker state.
	SchedulerCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ite_scheduler_circuit_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"state"})

	// SchedulerRejections tracks tasks rejected at admission.
	SchedulerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ite_scheduler_rejections_total",
		Help: "Tasks rejected by scheduler admission control",
	}, []string{"reason"})

	// TaskRuntimeSeconds tracks execution time of CalculateThreshold runs.
	TaskRuntimeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ite_task_runtime_seconds",
		Help:    "Threshold calculation execution time distribution",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// TaskOutcomes tracks terminal TaskVersion statuses.
	TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ite_task_outcomes_total",
		Help: "Total threshold calculation outcomes by status",
	}, []string{"status"})

	// TaskRetries tracks completion-hook persistence retries.
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ite_task_persistence_retries_total",
		Help: "Total number of completion-hook persistence retry attempts",
	})

	// LeadershipEpoch tracks the current fencing epoch for the auto-refresh
	// driver leader.
	LeadershipEpoch = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ite_leader_epoch",
		Help: "Current fencing epoch of the auto-refresh leader",
	}, []string{"node_id"})

	// LeadershipTransitions tracks leadership acquisition and loss events.
	LeadershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ite_leader_transitions_total",
		Help: "Total number of leadership transitions",
	}, []string{"node_id", "event"})

	// LeadershipTransitionDuration tracks step-down to become-leader time.
	LeadershipTransitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ite_leader_transition_duration_seconds",
		Help:    "Time taken for leadership transition (step-down to become-leader)",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// LeaderStatus tracks whether this replica currently holds leadership.
	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ite_leader_status",
		Help: "Current leader status (1 = leader, 0 = follower)",
	})

	// AutoRefreshDetailsPending tracks in-flight auto-refresh details per
	// record.
	AutoRefreshDetailsPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ite_autorefresh_details_pending",
		Help: "Current number of non-completed auto-refresh details",
	}, []string{"record_id"})

	// AutoRefreshIterations tracks batch-loop iterations consumed per run.
	AutoRefreshIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ite_autorefresh_iterations",
		Help:    "Number of Phase A/B/C iterations consumed before a record completed",
		Buckets: prometheus.LinearBuckets(1, 5, 20),
	})

	// RuleSyncOperations tracks rule create/update/delete calls by outcome.
	RuleSyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ite_rulesync_operations_total",
		Help: "Total rule sync provider operations by kind and outcome",
	}, []string{"kind", "outcome"})

	// RuleSyncRateLimited tracks provider calls delayed by the token
	// bucket.
	RuleSyncRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ite_rulesync_rate_limited_total",
		Help: "Total rule sync provider calls delayed by the rate limiter",
	}, []string{"datasource_id"})

	// IdempotencyLockAcquired tracks idempotency locks acquired by the
	// HTTP agent.
	IdempotencyLockAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ite_idempotency_lock_acquired_total",
		Help: "Total number of idempotency locks acquired",
	})

	// RedisLatency tracks Redis operation roundtrip latency.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ite_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)

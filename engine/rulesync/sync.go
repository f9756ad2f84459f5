// Package rulesync implements C7: diffing a Version's desired alarm rules
// against a monitoring provider's live rule set and applying the minimal
// create/update/delete set under a per-datasource token-bucket rate limit
// with retries.
package rulesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/provider"
	"github.com/volcengine/ite/engine/retry"
)

// Config carries the rate-limit and retry tunables.
type Config struct {
	QPS       float64
	EngineID  string
	BatchSize int // delete batch size, default 10
	Attempts  int // default 3
}

// DefaultConfig matches spec.md §4.7's defaults.
func DefaultConfig() Config {
	return Config{QPS: 5, EngineID: "ite", BatchSize: 10, Attempts: 3}
}

// backoff is spec.md §4.7's exponential schedule: 2*2^attempt seconds.
var backoff = retry.Backoff{Min: 2 * time.Second, Max: 8 * time.Second}

// Synchronizer reconciles one datasource's alarm rules.
type Synchronizer struct {
	cfg      Config
	provider provider.RuleSynchronizer
	limiter  RateLimiter
}

func New(cfg Config, p provider.RuleSynchronizer, limiter RateLimiter) *Synchronizer {
	return &Synchronizer{cfg: cfg, provider: p, limiter: limiter}
}

// Result accumulates per-action outcomes; the sync itself never fails
// outright on a per-rule error.
type Result struct {
	Created int
	Updated int
	Deleted int
	Failed  int
	Errors  []string
}

func (r *Result) recordErr(action, key string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s %s: %v", action, key, err))
}

// Sync reconciles desired (one per series) against the provider's live
// rules under namespace "{datasourceName}.". contactGroupIDs/alertMethods
// empty means "remove any attached notification binding" on update.
func (s *Synchronizer) Sync(ctx context.Context, datasourceID, datasourceName string, results []model.MetricThresholdResult, alarmLevel string, contactGroupIDs, alertMethods []string) (Result, error) {
	namespace := datasourceName + "."

	live, err := s.provider.ListRules(ctx, namespace)
	if err != nil {
		return Result{}, err
	}
	liveByKey := make(map[string]provider.Rule, len(live))
	for _, r := range live {
		liveByKey[r.UniqueKey] = r
	}

	desired := s.buildDesired(namespace, results, alarmLevel, contactGroupIDs, alertMethods)
	desiredByKey := make(map[string]provider.Rule, len(desired))
	for _, r := range desired {
		desiredByKey[r.UniqueKey] = r
	}

	var toCreate, toUpdate []provider.Rule
	var toDelete []string
	for key, rule := range desiredByKey {
		if _, ok := liveByKey[key]; ok {
			toUpdate = append(toUpdate, rule)
		} else {
			toCreate = append(toCreate, rule)
		}
	}
	for key := range liveByKey {
		if _, ok := desiredByKey[key]; !ok {
			toDelete = append(toDelete, key)
		}
	}

	var result Result
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, rule := range toCreate {
		wg.Add(1)
		go func(rule provider.Rule) {
			defer wg.Done()
			err := s.call(ctx, datasourceID, func() error { return s.provider.CreateRule(ctx, rule) })
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.recordErr("create", rule.UniqueKey, err)
			} else {
				result.Created++
			}
		}(rule)
	}
	for _, rule := range toUpdate {
		wg.Add(1)
		go func(rule provider.Rule) {
			defer wg.Done()
			err := s.call(ctx, datasourceID, func() error { return s.provider.UpdateRule(ctx, rule) })
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.recordErr("update", rule.UniqueKey, err)
			} else {
				result.Updated++
			}
		}(rule)
	}
	for _, batch := range batches(toDelete, s.batchSize()) {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			for _, key := range batch {
				err := s.call(ctx, datasourceID, func() error { return s.provider.DeleteRule(ctx, key) })
				mu.Lock()
				if err != nil {
					result.recordErr("delete", key, err)
				} else {
					result.Deleted++
				}
				mu.Unlock()
			}
		}(batch)
	}
	wg.Wait()

	return result, nil
}

// DeleteAllRules tears down every rule in a datasource's owned namespace,
// in batches of BatchSize.
func (s *Synchronizer) DeleteAllRules(ctx context.Context, datasourceID, datasourceName string) (Result, error) {
	namespace := datasourceName + "."
	live, err := s.provider.ListRules(ctx, namespace)
	if err != nil {
		return Result{}, err
	}
	keys := make([]string, len(live))
	for i, r := range live {
		keys[i] = r.UniqueKey
	}

	var result Result
	for _, batch := range batches(keys, s.batchSize()) {
		for _, key := range batch {
			if err := s.call(ctx, datasourceID, func() error { return s.provider.DeleteRule(ctx, key) }); err != nil {
				result.recordErr("delete", key, err)
				continue
			}
			result.Deleted++
		}
	}
	return result, nil
}

func (s *Synchronizer) batchSize() int {
	if s.cfg.BatchSize <= 0 {
		return 10
	}
	return s.cfg.BatchSize
}

// call wraps one provider invocation with the rate limiter and retry.
func (s *Synchronizer) call(ctx context.Context, rateKey string, fn func() error) error {
	if err := s.limiter.Wait(ctx, rateKey); err != nil {
		return err
	}
	attempts := s.cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return retry.Do(ctx, attempts, backoff, retry.AlwaysRetry, fn)
}

func (s *Synchronizer) buildDesired(namespace string, results []model.MetricThresholdResult, alarmLevel string, contactGroupIDs, alertMethods []string) []provider.Rule {
	severity := severityOf(alarmLevel)
	rules := make([]provider.Rule, 0, len(results))
	for _, r := range results {
		if r.Status != model.StatusSuccess {
			continue
		}
		exprs := make([]provider.Expression, len(r.Thresholds))
		for i, b := range r.Thresholds {
			exprs[i] = provider.Expression{
				StartHour: b.StartHour, EndHour: b.EndHour,
				Upper: b.UpperBound, Lower: b.LowerBound,
				WindowMinutes: b.WindowSize,
			}
		}
		rules = append(rules, provider.Rule{
			Name:            namespace + r.Name,
			UniqueKey:       r.UniqueKey,
			Expressions:     exprs,
			ManagedBy:       s.cfg.EngineID,
			Severity:        severity,
			ContactGroupIDs: contactGroupIDs,
			AlertMethods:    alertMethods,
		})
	}
	return rules
}

func severityOf(alarmLevel string) string {
	switch alarmLevel {
	case "P0":
		return "critical"
	case "P1":
		return "warning"
	case "P2":
		return "info"
	default:
		return "info"
	}
}

func batches(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

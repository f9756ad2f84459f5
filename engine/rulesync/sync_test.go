package rulesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/volcengine/ite/engine/model"
	"github.com/volcengine/ite/engine/provider"
)

// mockProvider is an in-memory provider.RuleSynchronizer keyed by UniqueKey.
type mockProvider struct {
	mu      sync.Mutex
	rules   map[string]provider.Rule
	created int
	updated int
	deleted int
}

func newMockProvider(initial ...provider.Rule) *mockProvider {
	m := &mockProvider{rules: map[string]provider.Rule{}}
	for _, r := range initial {
		m.rules[r.UniqueKey] = r
	}
	return m
}

func (m *mockProvider) ListRules(ctx context.Context, namespace string) ([]provider.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []provider.Rule
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockProvider) CreateRule(ctx context.Context, rule provider.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.UniqueKey] = rule
	m.created++
	return nil
}

func (m *mockProvider) UpdateRule(ctx context.Context, rule provider.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.UniqueKey] = rule
	m.updated++
	return nil
}

func (m *mockProvider) DeleteRule(ctx context.Context, uniqueKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, uniqueKey)
	m.deleted++
	return nil
}

func unlimited() RateLimiter { return NewTokenBucketLimiter(1000, 1000) }

// TestSyncCreatesMissingAndDeletesStale confirms a series present only in
// the desired set is created, and a live rule absent from the desired set
// is deleted.
func TestSyncCreatesMissingAndDeletesStale(t *testing.T) {
	p := newMockProvider(provider.Rule{Name: "ds.stale", UniqueKey: "stale"})
	s := New(DefaultConfig(), p, unlimited())

	results := []model.MetricThresholdResult{
		{Name: "cpu", UniqueKey: "cpu", Status: model.StatusSuccess},
	}
	res, err := s.Sync(context.Background(), "ds-1", "ds", results, "P1", nil, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Created != 1 || res.Deleted != 1 {
		t.Fatalf("expected 1 created 1 deleted, got %+v", res)
	}
	if p.created != 1 || p.deleted != 1 {
		t.Fatalf("provider call counts mismatch: created=%d deleted=%d", p.created, p.deleted)
	}
}

// TestSyncUpdatesExistingKey confirms a desired series matching a live
// rule's UniqueKey goes through update, not create/delete.
func TestSyncUpdatesExistingKey(t *testing.T) {
	p := newMockProvider(provider.Rule{Name: "ds.cpu", UniqueKey: "cpu"})
	s := New(DefaultConfig(), p, unlimited())

	results := []model.MetricThresholdResult{
		{Name: "cpu", UniqueKey: "cpu", Status: model.StatusSuccess},
	}
	res, err := s.Sync(context.Background(), "ds-1", "ds", results, "P0", []string{"grp-1"}, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Updated != 1 || res.Created != 0 || res.Deleted != 0 {
		t.Fatalf("expected pure update, got %+v", res)
	}
}

// TestSyncSkipsFailedSeries confirms a failed per-series result never
// becomes a desired rule.
func TestSyncSkipsFailedSeries(t *testing.T) {
	p := newMockProvider()
	s := New(DefaultConfig(), p, unlimited())

	results := []model.MetricThresholdResult{
		{Name: "cpu", UniqueKey: "cpu", Status: model.StatusFailed, ErrorMessage: "no data"},
	}
	res, err := s.Sync(context.Background(), "ds-1", "ds", results, "P1", nil, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("expected no rule created for a failed series, got %+v", res)
	}
}

// TestDeleteAllRulesBatchesAcrossKeys confirms DeleteAllRules issues one
// delete per live rule regardless of batch size.
func TestDeleteAllRulesBatchesAcrossKeys(t *testing.T) {
	p := newMockProvider(
		provider.Rule{Name: "ds.a", UniqueKey: "a"},
		provider.Rule{Name: "ds.b", UniqueKey: "b"},
		provider.Rule{Name: "ds.c", UniqueKey: "c"},
	)
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	s := New(cfg, p, unlimited())

	res, err := s.DeleteAllRules(context.Background(), "ds-1", "ds")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if res.Deleted != 3 {
		t.Fatalf("expected 3 deletes, got %d", res.Deleted)
	}
}

// TestTokenBucketLimiterWaitRespectsContext confirms Wait returns promptly
// with a context error rather than blocking past cancellation when the
// bucket is exhausted.
func TestTokenBucketLimiterWaitRespectsContext(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	if !l.Allow("k") {
		t.Fatalf("expected first call to consume the single burst token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k"); err == nil {
		t.Fatalf("expected Wait to fail once ctx deadline is shorter than refill delay")
	}
}

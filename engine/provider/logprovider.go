package provider

import (
	"context"
	"log/slog"
	"sync"
)

// LogSynchronizer is a RuleSynchronizer that keeps rules in memory and
// logs every mutation instead of calling a real monitoring backend. It
// exists so C7 can be wired and exercised end to end without reaching for
// one of the cloud-monitor SDKs spec.md §1 places out of scope; a real
// deployment swaps this for a provider-specific RuleSynchronizer behind
// the same interface.
type LogSynchronizer struct {
	mu    sync.Mutex
	rules map[string]Rule // keyed by UniqueKey
}

func NewLogSynchronizer() *LogSynchronizer {
	return &LogSynchronizer{rules: make(map[string]Rule)}
}

func (p *LogSynchronizer) ListRules(ctx context.Context, namespace string) ([]Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Rule
	for _, r := range p.rules {
		if len(r.Name) >= len(namespace) && r.Name[:len(namespace)] == namespace {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *LogSynchronizer) CreateRule(ctx context.Context, rule Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[rule.UniqueKey] = rule
	slog.Info("provider: create rule", "unique_key", rule.UniqueKey, "name", rule.Name, "severity", rule.Severity)
	return nil
}

func (p *LogSynchronizer) UpdateRule(ctx context.Context, rule Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[rule.UniqueKey] = rule
	slog.Info("provider: update rule", "unique_key", rule.UniqueKey, "name", rule.Name, "severity", rule.Severity)
	return nil
}

func (p *LogSynchronizer) DeleteRule(ctx context.Context, uniqueKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rules, uniqueKey)
	slog.Info("provider: delete rule", "unique_key", uniqueKey)
	return nil
}

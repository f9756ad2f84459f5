// Package provider abstracts the monitoring backend C7 reconciles alarm
// rules against (Zabbix/Aliyun/Volcengine/Prometheus in the original; none
// of those SDKs are wired here per spec.md §1's explicit non-goal). The
// engine never branches on provider identity — only RuleSynchronizer
// implementations differ by transport.
package provider

import "context"

// Expression is one time-of-day threshold block expressed in the
// provider's alarm-rule shape.
type Expression struct {
	StartHour     float64
	EndHour       float64
	Upper         *float64
	Lower         *float64
	WindowMinutes int
}

// Rule is the provider-facing alarm rule: one per metric unique_key under
// a datasource's owned namespace.
type Rule struct {
	Name            string
	UniqueKey       string
	Expressions     []Expression
	ManagedBy       string
	ProjectTags     map[string]string
	Severity        string
	ContactGroupIDs []string
	AlertMethods    []string
}

// RuleSynchronizer is the provider transport boundary: list the rules the
// engine owns, then create/update/delete individual rules.
type RuleSynchronizer interface {
	ListRules(ctx context.Context, namespace string) ([]Rule, error)
	CreateRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) error
	DeleteRule(ctx context.Context, uniqueKey string) error
}

// Package model holds the entities shared across the engine: tasks,
// task versions, per-series threshold results, and the auto-refresh
// batch rows.
package model

import (
	"sort"
	"strings"
	"time"
)

// Direction is the side of a threshold the engine is estimating.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionBoth Direction = "both"
)

// TaskVersionStatus is the terminal/non-terminal status of a TaskVersion.
type TaskVersionStatus string

const (
	StatusRunning TaskVersionStatus = "Running"
	StatusSuccess TaskVersionStatus = "Success"
	StatusFailed  TaskVersionStatus = "Failed"
	// StatusNoData is an internal classification; it is always surfaced to
	// the store as StatusFailed with a distinguishing message.
	StatusNoData TaskVersionStatus = "NoData"
)

// Task is the configuration for a recurring threshold recommendation on
// one data source.
type Task struct {
	ID             string
	Name           string
	DatasourceID   string
	DatasourceType string
	AutoUpdate     bool
	Projects       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CreatedUser    string
	UpdatedUser    string
}

// MetricTemplateValue carries the normalization bounds and minimum series
// length used while computing a threshold.
type MetricTemplateValue struct {
	MinValue        *float64
	MaxValue        *float64
	NormalRangeEnd  *float64
	NormalRangeStart *float64
	MinTSLength     int
}

// TaskVersion is one execution attempt of a Task with a frozen parameter
// snapshot.
type TaskVersion struct {
	ID                  string
	TaskID               string
	Version              int
	MetricTemplateValue  MetricTemplateValue
	NCount               int
	Direction            Direction
	Sensitivity          float64
	Status               TaskVersionStatus
	ErrorMessage         string
	Result               []MetricThresholdResult
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IntelligentThresholdConfig is one time-of-day threshold block.
type IntelligentThresholdConfig struct {
	StartHour  float64
	EndHour    float64
	UpperBound *float64
	LowerBound *float64
	WindowSize int
}

// MetricThresholdResult is the per-time-series output of C4.
type MetricThresholdResult struct {
	Name         string
	Labels       map[string]string
	UniqueKey    string
	Thresholds   []IntelligentThresholdConfig
	Status       TaskVersionStatus
	ErrorMessage string
}

// UniqueKey derives the unique_key for a series: name followed by its
// labels sorted in lexicographic key order, independent of the order the
// labels were supplied in.
func UniqueKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return name + "|" + strings.Join(parts, ",")
}

// AutoRefreshRecordStatus is the status of one batch run.
type AutoRefreshRecordStatus string

const (
	RecordPending    AutoRefreshRecordStatus = "Pending"
	RecordProcessing AutoRefreshRecordStatus = "Processing"
	RecordCompleted  AutoRefreshRecordStatus = "Completed"
)

// AutoRefreshRecord is one batch run of the auto-refresh controller.
type AutoRefreshRecord struct {
	ID        string
	Status    AutoRefreshRecordStatus
	TaskAll   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DetailStatus is the per-Detail overall lifecycle status.
type DetailStatus string

const (
	DetailPending    DetailStatus = "Pending"
	DetailProcessing DetailStatus = "Processing"
	DetailCompleted  DetailStatus = "Completed"
)

// CalcStatus tracks the threshold-recompute phase of a Detail.
type CalcStatus string

const (
	CalcPending    CalcStatus = "Pending"
	CalcProcessing CalcStatus = "Processing"
	CalcSuccess    CalcStatus = "Success"
	CalcFailed     CalcStatus = "Failed"
)

// InjectStatus tracks the alarm-rule-sync phase of a Detail.
type InjectStatus string

const (
	InjectInitialized InjectStatus = "Initialized"
	InjectPending     InjectStatus = "Pending"
	InjectSuccess     InjectStatus = "Success"
	InjectFailed      InjectStatus = "Failed"
)

// AutoRefreshDetail is one per-task row inside a batch.
type AutoRefreshDetail struct {
	ID           string
	RecordID     string
	TaskID       string
	Version      int
	Status       DetailStatus
	CalcStatus   CalcStatus
	InjectStatus InjectStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskPriority is the scheduler admission priority of a TaskRequest.
type TaskPriority int

const (
	PriorityHigh   TaskPriority = 2
	PriorityNormal TaskPriority = 1
	PriorityLow    TaskPriority = 0
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// TaskRequest is the scheduler's in-memory work item.
type TaskRequest struct {
	TaskID              string
	TaskVersion         int
	DatasourceID        string
	MetricTemplateValue MetricTemplateValue
	WindowSize          int
	Direction           Direction
	Priority            TaskPriority
	Sensitivity         float64
	CreatedAt           time.Time
}

// AlarmSyncRecord is the last known desired parameterization used by rule
// sync. One-per-Task current row plus history; only the current row's
// shape is modeled here.
type AlarmSyncRecord struct {
	ID              string
	TaskID          string
	ContactGroupIDs []string
	AlertMethods    []string
	AlarmLevel      string
	Webhook         string
	CreatedAt       time.Time
}

// TimeSeries is the data-plane type fetchers normalize into.
type TimeSeries struct {
	Name       string
	Labels     map[string]string
	UniqueKey  string
	Timestamps []int64
	Values     []float64
}

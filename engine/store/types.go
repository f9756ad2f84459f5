package store

import "time"

// TimelineEvent is an audit log entry recorded against a task version or
// an auto-refresh detail, whichever ReqID identifies.
type TimelineEvent struct {
	EventID   string            `json:"event_id" db:"event_id"`
	ReqID     string            `json:"req_id" db:"req_id"`
	Stage     string            `json:"stage" db:"stage"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
}

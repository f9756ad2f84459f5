package store

import "fmt"

// Resource names a durable entity kind for Redis key namespacing.
type Resource string

const (
	ResourceTask        Resource = "task"
	ResourceTaskVersion Resource = "task_version"
	ResourceRecord      Resource = "autorefresh_record"
	ResourceAlarmSync   Resource = "alarm_sync"
)

// Key constructs a fully qualified Redis key for an engine-owned resource.
// Format: ite:{resource}:{id}
func Key(resource Resource, id string) string {
	return fmt.Sprintf("ite:%s:%s", resource, id)
}

// Prefix constructs a search pattern prefix for a resource kind.
// Format: ite:{resource}:
func Prefix(resource Resource) string {
	return fmt.Sprintf("ite:%s:", resource)
}

package notification

import "time"

type Kind string

const (
	// KindDeleteBlocked is created by the deletion guard when a type delete
	// had to be compensated.
	KindDeleteBlocked Kind = "delete-blocked"
)

// Notification is a persisted, per-participant message. Read notifications
// older than the retention window are garbage-collected by the sweeper.
type Notification struct {
	ID         string    `yaml:"id"`
	Owner      string    `yaml:"owner"`
	Kind       Kind      `yaml:"kind"`
	Message    string    `yaml:"message"`
	TypeID     string    `yaml:"type_id,omitempty"`
	TypeName   string    `yaml:"type_name,omitempty"`
	TasksCount int       `yaml:"tasks_count,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
	Read       bool      `yaml:"read"`
}

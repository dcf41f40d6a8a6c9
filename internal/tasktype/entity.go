package tasktype

import (
	"strings"
	"time"
)

// TaskType categorizes tasks. The ID is the lowercased name, unique within
// its owner's partition. The Deletion* fields are written by the deletion
// guard when a delete had to be compensated.
type TaskType struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Icon        string    `yaml:"icon"`
	Color       string    `yaml:"color,omitempty"`
	Custom      bool      `yaml:"custom"`
	Owner       string    `yaml:"owner"`
	LastUpdated time.Time `yaml:"last_updated"`

	DeletionBlocked     bool       `yaml:"deletion_blocked,omitempty"`
	TasksCount          int        `yaml:"tasks_count,omitempty"`
	DeletionAttempted   *time.Time `yaml:"deletion_attempted,omitempty"`
	RestoredDueToError  bool       `yaml:"restored_due_to_error,omitempty"`
	LastError           string     `yaml:"last_error,omitempty"`
}

// Slug derives a type id from a display name.
func Slug(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (t *TaskType) Clone() *TaskType {
	if t == nil {
		return nil
	}
	c := *t
	if t.DeletionAttempted != nil {
		d := *t.DeletionAttempted
		c.DeletionAttempted = &d
	}
	return &c
}

// Unknown is the placeholder rendered for a task whose type document no
// longer exists (a delete that slipped past the guard's check window).
func Unknown(id string) *TaskType {
	return &TaskType{
		ID:   id,
		Name: "unknown",
		Icon: "❓",
	}
}

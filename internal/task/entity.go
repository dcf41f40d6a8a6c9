package task

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Weight orders priorities for sorting, higher first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task is one entry of the shared task set. ParentID links subtasks to their
// parent; the tree is kept flat in storage and resolved by the store's index.
type Task struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description,omitempty"`
	Type        string     `yaml:"type"`
	Priority    Priority   `yaml:"priority"`
	Status      Status     `yaml:"status"`
	DueDate     *time.Time `yaml:"due_date,omitempty"`
	ParentID    string     `yaml:"parent_id,omitempty"`
	AssignedTo  string     `yaml:"assigned_to"`
	CreatedAt   time.Time  `yaml:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
}

// LogicalTimestamp is the timestamp used for last-write-wins comparison:
// UpdatedAt when set, CreatedAt otherwise.
func (t *Task) LogicalTimestamp() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}

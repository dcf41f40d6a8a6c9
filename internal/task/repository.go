package task

import "context"

// Repository persists tasks under per-participant partitions. The partition
// is always the task's AssignedTo participant.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, partition, id string) (*Task, error)
	List(ctx context.Context, partition string) ([]*Task, error)
	// ListAll returns the tasks of every given partition merged into one
	// slice. Used by the deletion guard's cross-partition referential scan.
	ListAll(ctx context.Context, partitions []string) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, partition, id string) error
}

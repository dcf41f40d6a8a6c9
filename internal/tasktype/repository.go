package tasktype

import "context"

type Repository interface {
	Create(ctx context.Context, t *TaskType) error
	Get(ctx context.Context, partition, id string) (*TaskType, error)
	List(ctx context.Context, partition string) ([]*TaskType, error)
	// Restore writes a type document unconditionally, used by the deletion
	// guard's compensating write.
	Restore(ctx context.Context, t *TaskType) error
	Delete(ctx context.Context, partition, id string) error
}

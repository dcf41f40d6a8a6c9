package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

// TasksPrefix returns the collection prefix of a participant's task partition.
func TasksPrefix(partition string) string {
	return fmt.Sprintf("partition/%s/tasks", partition)
}

func path(partition, id string) string {
	return fmt.Sprintf("%s/%s.yaml", TasksPrefix(partition), id)
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.AssignedTo, t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, partition, id string) (*task.Task, error) {
	data, err := r.storage.Read(ctx, path(partition, id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("task", err)
	}
	var t task.Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task: %w", err))
	}
	return &t, nil
}

func (r *YAMLRepository) List(ctx context.Context, partition string) ([]*task.Task, error) {
	paths, err := r.storage.List(ctx, TasksPrefix(partition))
	if err != nil {
		return nil, cerr.WrapStorageReadError("tasks", err)
	}

	var all []*task.Task
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			// Raced with a concurrent delete, skip.
			continue
		}
		var t task.Task
		if err := yaml.Unmarshal(data, &t); err != nil {
			continue
		}
		all = append(all, &t)
	}
	return all, nil
}

func (r *YAMLRepository) ListAll(ctx context.Context, partitions []string) ([]*task.Task, error) {
	var all []*task.Task
	for _, partition := range partitions {
		tasks, err := r.List(ctx, partition)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.AssignedTo, t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, partition, id string) error {
	if err := r.storage.Delete(ctx, path(partition, id)); err != nil {
		return cerr.WrapStorageDeleteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, t *task.Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	if err := r.storage.Write(ctx, path(t.AssignedTo, t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	return nil
}

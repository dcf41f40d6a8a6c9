package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nvidal/pairtask/internal/tasktype"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

// TypesPrefix returns the collection prefix of a participant's type partition.
func TypesPrefix(partition string) string {
	return fmt.Sprintf("partition/%s/taskTypes", partition)
}

func path(partition, id string) string {
	return fmt.Sprintf("%s/%s.yaml", TypesPrefix(partition), id)
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Create(ctx context.Context, t *tasktype.TaskType) error {
	exists, err := r.storage.Exists(ctx, path(t.Owner, t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task type", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task type already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, partition, id string) (*tasktype.TaskType, error) {
	data, err := r.storage.Read(ctx, path(partition, id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("task type", err)
	}
	var t tasktype.TaskType
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task type: %w", err))
	}
	return &t, nil
}

func (r *YAMLRepository) List(ctx context.Context, partition string) ([]*tasktype.TaskType, error) {
	paths, err := r.storage.List(ctx, TypesPrefix(partition))
	if err != nil {
		return nil, cerr.WrapStorageReadError("task types", err)
	}
	sort.Strings(paths)

	var all []*tasktype.TaskType
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var t tasktype.TaskType
		if err := yaml.Unmarshal(data, &t); err != nil {
			continue
		}
		all = append(all, &t)
	}
	return all, nil
}

func (r *YAMLRepository) Restore(ctx context.Context, t *tasktype.TaskType) error {
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, partition, id string) error {
	if err := r.storage.Delete(ctx, path(partition, id)); err != nil {
		return cerr.WrapStorageDeleteError("task type", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, t *tasktype.TaskType) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task type: %w", err))
	}
	if err := r.storage.Write(ctx, path(t.Owner, t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task type", err)
	}
	return nil
}

package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nvidal/pairtask/internal/notification"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

// NotificationsPrefix returns the collection prefix of a participant's
// notification partition.
func NotificationsPrefix(partition string) string {
	return fmt.Sprintf("partition/%s/notifications", partition)
}

func path(partition, id string) string {
	return fmt.Sprintf("%s/%s.yaml", NotificationsPrefix(partition), id)
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Create(ctx context.Context, n *notification.Notification) error {
	data, err := yaml.Marshal(n)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal notification: %w", err))
	}
	if err := r.storage.Write(ctx, path(n.Owner, n.ID), data); err != nil {
		return cerr.WrapStorageWriteError("notification", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, partition string) ([]*notification.Notification, error) {
	paths, err := r.storage.List(ctx, NotificationsPrefix(partition))
	if err != nil {
		return nil, cerr.WrapStorageReadError("notifications", err)
	}
	// ULID filenames sort by creation time; reverse for newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	var all []*notification.Notification
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var n notification.Notification
		if err := yaml.Unmarshal(data, &n); err != nil {
			continue
		}
		all = append(all, &n)
	}
	return all, nil
}

func (r *YAMLRepository) MarkRead(ctx context.Context, partition, id string) error {
	data, err := r.storage.Read(ctx, path(partition, id))
	if err != nil {
		return cerr.WrapStorageReadError("notification", err)
	}
	var n notification.Notification
	if err := yaml.Unmarshal(data, &n); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal notification: %w", err))
	}
	if n.Read {
		return nil
	}
	n.Read = true
	updated, err := yaml.Marshal(&n)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal notification: %w", err))
	}
	if err := r.storage.Write(ctx, path(partition, id), updated); err != nil {
		return cerr.WrapStorageWriteError("notification", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, partition, id string) error {
	if err := r.storage.Delete(ctx, path(partition, id)); err != nil {
		return cerr.WrapStorageDeleteError("notification", err)
	}
	return nil
}

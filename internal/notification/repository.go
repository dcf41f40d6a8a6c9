package notification

import "context"

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// List returns a partition's notifications, newest first.
	List(ctx context.Context, partition string) ([]*Notification, error)
	MarkRead(ctx context.Context, partition, id string) error
	Delete(ctx context.Context, partition, id string) error
}

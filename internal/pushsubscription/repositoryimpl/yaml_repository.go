package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nvidal/pairtask/internal/pushsubscription"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

func prefix(participant string) string {
	return fmt.Sprintf("partition/%s/pushSubscriptions", participant)
}

func path(participant, id string) string {
	return fmt.Sprintf("%s/%s.yaml", prefix(participant), id)
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) Create(ctx context.Context, s *pushsubscription.Subscription) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal push subscription: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.Participant, s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) ListByParticipant(ctx context.Context, participant string) ([]*pushsubscription.Subscription, error) {
	paths, err := r.storage.List(ctx, prefix(participant))
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscriptions", err)
	}
	var all []*pushsubscription.Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s pushsubscription.Subscription
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, participant, id string) error {
	if err := r.storage.Delete(ctx, path(participant, id)); err != nil {
		return cerr.WrapStorageDeleteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, participant, endpoint string) error {
	subs, err := r.ListByParticipant(ctx, participant)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if s.Endpoint == endpoint {
			return r.Delete(ctx, participant, s.ID)
		}
	}
	return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}

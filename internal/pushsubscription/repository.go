package pushsubscription

import "context"

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	ListByParticipant(ctx context.Context, participant string) ([]*Subscription, error)
	Delete(ctx context.Context, participant, id string) error
	DeleteByEndpoint(ctx context.Context, participant, endpoint string) error
}

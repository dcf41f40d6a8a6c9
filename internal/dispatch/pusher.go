package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/pushsubscription"
)

// PushPayload is the JSON document handed to the recipient's service worker.
// Tag is stable per task (`task-<id>`) so the platform notification center
// coalesces repeated renders of the same task.
type PushPayload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Tag     string `json:"tag,omitempty"`
	URL     string `json:"url,omitempty"`
	Vibrate []int  `json:"vibrate,omitempty"`
}

// PushChannel delivers one payload to every push endpoint of a recipient.
type PushChannel interface {
	Send(ctx context.Context, recipient string, payload *PushPayload) error
}

// Pusher implements PushChannel with Web Push over the recipient's stored
// subscriptions.
type Pusher struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewPusher(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Pusher {
	return &Pusher{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (p *Pusher) Send(ctx context.Context, recipient string, payload *PushPayload) error {
	if p.vapidEnv.VAPIDPrivateKey == "" || p.vapidEnv.VAPIDPublicKey == "" {
		slog.Warn("push: VAPID keys not configured, skipping")
		return nil
	}

	subs, err := p.repo.ListByParticipant(ctx, recipient)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	for _, sub := range subs {
		p.sendToSubscription(ctx, sub, data)
	}
	return nil
}

func (p *Pusher) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotification(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  p.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: p.vapidEnv.VAPIDPrivateKey,
		Subscriber:      p.vapidEnv.VAPIDContact,
		TTL:             86400,
	})
	if err != nil {
		slog.Error("push: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.Info("push: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := p.repo.Delete(ctx, sub.Participant, sub.ID); err != nil {
			slog.Error("push: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.Warn("push: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}

package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/eventbus"
	"github.com/nvidal/pairtask/internal/participant"
	"github.com/nvidal/pairtask/pkg/panicerr"
)

// Dispatcher fans task lifecycle events out to push and email channels.
// Every recipient×channel attempt is independent: one failure is logged and
// never aborts the others, and nothing here feeds back into the mutation
// that triggered the event.
type Dispatcher struct {
	bus      *eventbus.Bus
	registry *participant.Registry
	settings *config.NotifyEnv
	mailer   EmailChannel
	pusher   PushChannel
	appURL   string
}

func NewDispatcher(bus *eventbus.Bus, registry *participant.Registry, settings *config.NotifyEnv, mailer EmailChannel, pusher PushChannel, appURL string) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		registry: registry,
		settings: settings,
		mailer:   mailer,
		pusher:   pusher,
		appURL:   appURL,
	}
}

// Start consumes lifecycle events until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.bus.Subscribe(256)
	defer d.bus.Unsubscribe(subID)

	slog.Info("notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch event.Type {
			case eventbus.EventTypeTaskCreated,
				eventbus.EventTypeTaskUpdated,
				eventbus.EventTypeTaskCompleted,
				eventbus.EventTypeTaskDeleted:
				d.Dispatch(ctx, event)
			}
		}
	}
}

// Dispatch fans one event out to every recipient. Recipients are all
// participants except the actor; for the two-participant system that is
// exactly the other one.
func (d *Dispatcher) Dispatch(ctx context.Context, event *eventbus.Event) {
	if event.Task == nil {
		return
	}
	actor, ok := d.registry.Get(event.Actor)
	if !ok {
		slog.Error("dispatcher: event from unknown actor", "actor", event.Actor)
		return
	}

	p := pool.New()
	for _, recipient := range d.registry.Others(actor.ID) {
		recipient := recipient
		if d.emailEnabled(event.Type) {
			p.Go(attempt("email", recipient.ID, func() error {
				return d.sendEmail(ctx, event, actor, recipient)
			}))
		}
		if d.pushEnabled(event.Type) {
			p.Go(attempt("push", recipient.ID, func() error {
				return d.pusher.Send(ctx, recipient.ID, d.pushPayload(event, actor))
			}))
		}
	}
	p.Wait()
}

// attempt makes one channel delivery all-settle: panics become errors and
// errors are logged, never propagated.
func attempt(channel, recipient string, fn func() error) func() {
	safe := panicerr.Safe(fn)
	return func() {
		if err := safe(); err != nil {
			slog.Error("dispatcher: delivery failed",
				"channel", channel, "recipient", recipient, "error", err)
			return
		}
		slog.Debug("dispatcher: delivery attempted", "channel", channel, "recipient", recipient)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, event *eventbus.Event, actor, recipient participant.Participant) error {
	body, err := renderTaskEmail(recipient.Name, actor.Name, emailAction(event.Type), d.appURL, event.Task)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, &EmailMessage{
		To:       recipient.Email,
		ToName:   recipient.Name,
		FromName: actor.Name,
		Subject:  emailSubject(event.Type, event.Task.Title),
		Body:     body,
	})
}

func (d *Dispatcher) pushPayload(event *eventbus.Event, actor participant.Participant) *PushPayload {
	t := event.Task
	payload := &PushPayload{
		Tag:     fmt.Sprintf("task-%s", t.ID),
		URL:     d.appURL,
		Vibrate: []int{200, 100, 200},
	}
	switch event.Type {
	case eventbus.EventTypeTaskCreated:
		payload.Title = "📋 Nueva tarea asignada"
		payload.Body = fmt.Sprintf("%s te asignó: %q", actor.Name, t.Title)
	case eventbus.EventTypeTaskUpdated:
		payload.Title = "✏️ Tarea actualizada"
		payload.Body = fmt.Sprintf("%s actualizó: %q", actor.Name, t.Title)
	case eventbus.EventTypeTaskCompleted:
		payload.Title = "✅ Tarea completada"
		payload.Body = fmt.Sprintf("%s completó: %q", actor.Name, t.Title)
	case eventbus.EventTypeTaskDeleted:
		payload.Title = "🗑️ Tarea eliminada"
		payload.Body = fmt.Sprintf("%s eliminó: %q", actor.Name, t.Title)
	}
	return payload
}

func (d *Dispatcher) emailEnabled(t eventbus.EventType) bool {
	if !d.settings.EmailEnabled {
		return false
	}
	switch t {
	case eventbus.EventTypeTaskCreated:
		return d.settings.EmailOnCreated
	case eventbus.EventTypeTaskUpdated:
		return d.settings.EmailOnUpdated
	case eventbus.EventTypeTaskCompleted:
		return d.settings.EmailOnComplete
	case eventbus.EventTypeTaskDeleted:
		return d.settings.EmailOnDeleted
	}
	return false
}

func (d *Dispatcher) pushEnabled(t eventbus.EventType) bool {
	if !d.settings.PushEnabled {
		return false
	}
	switch t {
	case eventbus.EventTypeTaskCreated:
		return d.settings.PushOnCreated
	case eventbus.EventTypeTaskUpdated:
		return d.settings.PushOnUpdated
	case eventbus.EventTypeTaskCompleted:
		return d.settings.PushOnComplete
	case eventbus.EventTypeTaskDeleted:
		return d.settings.PushOnDeleted
	}
	return false
}

func emailSubject(t eventbus.EventType, title string) string {
	switch t {
	case eventbus.EventTypeTaskCreated:
		return fmt.Sprintf("Nueva tarea: %s", title)
	case eventbus.EventTypeTaskUpdated:
		return fmt.Sprintf("Tarea actualizada: %s", title)
	case eventbus.EventTypeTaskCompleted:
		return fmt.Sprintf("Tarea completada: %s", title)
	case eventbus.EventTypeTaskDeleted:
		return fmt.Sprintf("Tarea eliminada: %s", title)
	}
	return title
}

func emailAction(t eventbus.EventType) string {
	switch t {
	case eventbus.EventTypeTaskCreated:
		return "te asignó una tarea"
	case eventbus.EventTypeTaskUpdated:
		return "actualizó una tarea"
	case eventbus.EventTypeTaskCompleted:
		return "completó una tarea"
	case eventbus.EventTypeTaskDeleted:
		return "eliminó una tarea"
	}
	return "modificó una tarea"
}

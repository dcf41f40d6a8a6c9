package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nvidal/pairtask/internal/eventbus"
	"github.com/nvidal/pairtask/internal/notification"
	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/internal/tasktype"
)

// State of one deletion-guard run.
type State string

const (
	StateRequested State = "requested"
	StateChecking  State = "checking"
	StateCommitted State = "committed"
	StateRestored  State = "restored"
)

// Outcome reports how a guard run ended.
type Outcome struct {
	State      State
	TypeID     string
	TasksCount int
	CheckErr   error
}

// Guard is the compensating-action safeguard for type deletes. The store
// offers no transaction spanning the type document and an unbounded task
// scan, so deletes are validated after the fact: the mutation path performs
// a two-phase delete (snapshot, delete, publish), and the guard restores the
// document whenever the delete turns out to be unsafe.
type Guard struct {
	bus       *eventbus.Bus
	taskRepo  task.Repository
	typeRepo  tasktype.Repository
	notifRepo notification.Repository
	// partitions are both participants' task partitions; the referential
	// check spans the full shared task set.
	partitions []string
	now        func() time.Time
}

func New(bus *eventbus.Bus, taskRepo task.Repository, typeRepo tasktype.Repository, notifRepo notification.Repository, partitions []string) *Guard {
	return &Guard{
		bus:        bus,
		taskRepo:   taskRepo,
		typeRepo:   typeRepo,
		notifRepo:  notifRepo,
		partitions: partitions,
		now:        time.Now,
	}
}

// Start subscribes to the event bus and validates every type-delete request.
// It blocks until ctx is cancelled.
func (g *Guard) Start(ctx context.Context) {
	subID, ch := g.bus.Subscribe(256)
	defer g.bus.Unsubscribe(subID)

	slog.Info("deletion guard started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("deletion guard stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type == eventbus.EventTypeTypeDeleteRequested {
				g.Process(ctx, event.TypeSnapshot)
			}
		}
	}
}

// Process runs the state machine for one deleted type document. snapshot
// carries the document's last known field values, captured before the
// delete was finalized.
func (g *Guard) Process(ctx context.Context, snapshot *tasktype.TaskType) Outcome {
	if snapshot == nil {
		return Outcome{State: StateRequested}
	}
	out := Outcome{State: StateChecking, TypeID: snapshot.ID}
	slog.Info("guard: validating type delete", "type_id", snapshot.ID, "owner", snapshot.Owner)

	count, err := g.countReferences(ctx, snapshot.ID)
	if err != nil {
		// An unverified delete must not stand: restore rather than risk
		// orphaning tasks. A false restore costs one extra user action; a
		// silently committed unsafe delete loses referential integrity.
		out.State = StateRestored
		out.CheckErr = err
		g.restoreAfterError(ctx, snapshot, err)
		return out
	}

	if count == 0 {
		out.State = StateCommitted
		slog.Info("guard: type delete committed", "type_id", snapshot.ID)
		return out
	}

	out.State = StateRestored
	out.TasksCount = count
	g.restoreBlocked(ctx, snapshot, count)
	return out
}

func (g *Guard) countReferences(ctx context.Context, typeID string) (int, error) {
	all, err := g.taskRepo.ListAll(ctx, g.partitions)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range all {
		if t.Type == typeID {
			count++
		}
	}
	return count, nil
}

func (g *Guard) restoreBlocked(ctx context.Context, snapshot *tasktype.TaskType, count int) {
	now := g.now()
	restored := snapshot.Clone()
	restored.LastUpdated = now
	restored.DeletionBlocked = true
	restored.TasksCount = count
	restored.DeletionAttempted = &now
	restored.RestoredDueToError = false
	restored.LastError = ""

	if err := g.typeRepo.Restore(ctx, restored); err != nil {
		slog.Error("guard: failed to restore type", "type_id", snapshot.ID, "error", err)
		return
	}
	slog.Warn("guard: type delete blocked, document restored",
		"type_id", snapshot.ID, "tasks_count", count)

	n := &notification.Notification{
		ID:         ulid.Make().String(),
		Owner:      snapshot.Owner,
		Kind:       notification.KindDeleteBlocked,
		Message:    fmt.Sprintf("El tipo %q no se puede eliminar porque %d tarea(s) lo están usando.", snapshot.Name, count),
		TypeID:     snapshot.ID,
		TypeName:   snapshot.Name,
		TasksCount: count,
		CreatedAt:  now,
		Read:       false,
	}
	if err := g.notifRepo.Create(ctx, n); err != nil {
		slog.Error("guard: failed to create delete-blocked notification", "type_id", snapshot.ID, "error", err)
	}

	g.bus.Publish(&eventbus.Event{
		ID:           ulid.Make().String(),
		Type:         eventbus.EventTypeTypeDeleteBlocked,
		Actor:        snapshot.Owner,
		TypeSnapshot: restored,
		CreatedAt:    now,
	})
}

func (g *Guard) restoreAfterError(ctx context.Context, snapshot *tasktype.TaskType, checkErr error) {
	now := g.now()
	restored := snapshot.Clone()
	restored.LastUpdated = now
	restored.RestoredDueToError = true
	restored.LastError = checkErr.Error()

	if err := g.typeRepo.Restore(ctx, restored); err != nil {
		slog.Error("guard: failed to restore type after check error",
			"type_id", snapshot.ID, "check_error", checkErr, "restore_error", err)
		return
	}
	slog.Warn("guard: referential check failed, type restored",
		"type_id", snapshot.ID, "error", checkErr)
}

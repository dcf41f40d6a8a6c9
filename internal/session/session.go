package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nvidal/pairtask/internal/eventbus"
	"github.com/nvidal/pairtask/internal/feed"
	"github.com/nvidal/pairtask/internal/notification"
	notificationimpl "github.com/nvidal/pairtask/internal/notification/repositoryimpl"
	"github.com/nvidal/pairtask/internal/participant"
	"github.com/nvidal/pairtask/internal/reconcile"
	"github.com/nvidal/pairtask/internal/store"
	"github.com/nvidal/pairtask/internal/task"
	taskimpl "github.com/nvidal/pairtask/internal/task/repositoryimpl"
	"github.com/nvidal/pairtask/internal/tasktype"
	tasktypeimpl "github.com/nvidal/pairtask/internal/tasktype/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

// Manager authenticates participants and opens sessions.
type Manager struct {
	registry     *participant.Registry
	st           storage.Storage
	taskRepo     task.Repository
	typeRepo     tasktype.Repository
	notifRepo    notification.Repository
	bus          *eventbus.Bus
	pollInterval time.Duration
}

func NewManager(registry *participant.Registry, st storage.Storage, taskRepo task.Repository, typeRepo tasktype.Repository, notifRepo notification.Repository, bus *eventbus.Bus, pollInterval time.Duration) *Manager {
	return &Manager{
		registry:     registry,
		st:           st,
		taskRepo:     taskRepo,
		typeRepo:     typeRepo,
		notifRepo:    notifRepo,
		bus:          bus,
		pollInterval: pollInterval,
	}
}

// Login verifies the access key against the claimed identity and, on
// success, opens the session: both participants' task feeds plus the owner's
// type and notification feeds, all reconciled into one merged store.
func (m *Manager) Login(ctx context.Context, participantID, accessKey string) (*Session, error) {
	p, err := m.registry.Authenticate(participantID, accessKey)
	if err != nil {
		return nil, cerr.NewError(cerr.Unauthenticated, "login failed", err)
	}

	st := store.New()
	rec := reconcile.New(st, 64)

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		owner:      p,
		registry:   m.registry,
		taskRepo:   m.taskRepo,
		typeRepo:   m.typeRepo,
		notifRepo:  m.notifRepo,
		bus:        m.bus,
		store:      st,
		reconciler: rec,
		cancel:     cancel,
		recDone:    make(chan struct{}),
	}

	go func() {
		defer close(s.recDone)
		rec.Run(sessCtx)
	}()

	for _, partition := range m.registry.IDs() {
		s.subs = append(s.subs, feed.Subscribe(sessCtx, m.st,
			taskimpl.TasksPrefix(partition),
			func(ctx context.Context) (*feed.Snapshot, error) {
				tasks, err := m.taskRepo.List(ctx, partition)
				if err != nil {
					return nil, err
				}
				return &feed.Snapshot{Partition: partition, Kind: feed.KindTasks, Tasks: tasks}, nil
			},
			rec.Inbox(), m.pollInterval))
	}
	s.subs = append(s.subs, feed.Subscribe(sessCtx, m.st,
		tasktypeimpl.TypesPrefix(p.ID),
		func(ctx context.Context) (*feed.Snapshot, error) {
			types, err := m.typeRepo.List(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			return &feed.Snapshot{Partition: p.ID, Kind: feed.KindTypes, Types: types}, nil
		},
		rec.Inbox(), m.pollInterval))
	s.subs = append(s.subs, feed.Subscribe(sessCtx, m.st,
		notificationimpl.NotificationsPrefix(p.ID),
		func(ctx context.Context) (*feed.Snapshot, error) {
			notifs, err := m.notifRepo.List(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			return &feed.Snapshot{Partition: p.ID, Kind: feed.KindNotifications, Notifications: notifs}, nil
		},
		rec.Inbox(), m.pollInterval))

	slog.Info("session opened", "participant", p.ID)
	return s, nil
}

// Session is one authenticated participant's live view of the shared task
// set, plus the write path. Mutations persist remotely, optimistically merge
// into the local store with the same last-write-wins rule the reconciler
// uses, and publish a lifecycle event for the dispatcher.
type Session struct {
	owner      participant.Participant
	registry   *participant.Registry
	taskRepo   task.Repository
	typeRepo   tasktype.Repository
	notifRepo  notification.Repository
	bus        *eventbus.Bus
	store      *store.Store
	reconciler *reconcile.Reconciler
	subs       []*feed.Subscription
	cancel     context.CancelFunc
	recDone    chan struct{}
}

func (s *Session) Owner() participant.Participant {
	return s.owner
}

// Store exposes the merged read view.
func (s *Session) Store() *store.Store {
	return s.store
}

// OnChange registers a re-render hook fired after every applied snapshot.
func (s *Session) OnChange(fn func()) {
	s.reconciler.OnChange(fn)
}

// OnNotification registers the in-session listener for unread notifications
// of the owner's partition (delete-blocked messages from the guard arrive
// here, not through the lifecycle dispatcher).
func (s *Session) OnNotification(fn func(*notification.Notification)) {
	s.reconciler.OnNotification(fn)
}

// Logout synchronously closes every feed subscription before clearing local
// state, so a late-arriving snapshot cannot repopulate the cache.
func (s *Session) Logout() {
	for _, sub := range s.subs {
		sub.Close()
	}
	s.cancel()
	<-s.recDone
	s.store.Clear()
	slog.Info("session closed", "participant", s.owner.ID)
}

type AddTaskInput struct {
	Title       string
	Description string
	Type        string
	Priority    task.Priority
	DueDate     *time.Time
	ParentID    string
	AssignedTo  string
}

// AddTask validates and creates a task. Missing required fields are rejected
// before any write is attempted.
func (s *Session) AddTask(ctx context.Context, in AddTaskInput) (*task.Task, error) {
	if in.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task title is required", nil)
	}
	if in.Type == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "task type is required", nil)
	}
	priority := in.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	if !priority.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid task priority", nil)
	}
	if in.ParentID != "" {
		if _, ok := s.store.Get(in.ParentID); !ok {
			return nil, cerr.NewError(cerr.FailedPrecondition, "parent task not found", nil)
		}
	}
	assignedTo := in.AssignedTo
	if assignedTo == "" {
		assignedTo = s.owner.ID
	}
	if _, ok := s.registry.Get(assignedTo); !ok {
		return nil, cerr.NewError(cerr.InvalidArgument, "unknown assignee", nil)
	}

	now := time.Now()
	t := &task.Task{
		ID:          ulid.Make().String(),
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Priority:    priority,
		Status:      task.StatusPending,
		DueDate:     in.DueDate,
		ParentID:    in.ParentID,
		AssignedTo:  assignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.store.Merge([]store.Change{store.Upsert(t)})
	if err := s.taskRepo.Create(ctx, t); err != nil {
		// Local optimistic state stands; the next snapshot corrects it.
		return nil, err
	}
	s.bus.PublishTask(eventbus.EventTypeTaskCreated, s.owner.ID, t.Clone())
	return t, nil
}

type UpdateTaskInput struct {
	Title       *string
	Description *string
	Type        *string
	Priority    *task.Priority
	DueDate     *time.Time
	ClearDue    bool
}

func (s *Session) UpdateTask(ctx context.Context, id string, in UpdateTaskInput) (*task.Task, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, "task title is required", nil)
		}
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Type != nil {
		if *in.Type == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, "task type is required", nil)
		}
		t.Type = *in.Type
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, cerr.NewError(cerr.InvalidArgument, "invalid task priority", nil)
		}
		t.Priority = *in.Priority
	}
	if in.ClearDue {
		t.DueDate = nil
	} else if in.DueDate != nil {
		t.DueDate = in.DueDate
	}
	t.UpdatedAt = time.Now()

	s.store.Merge([]store.Change{store.Upsert(t)})
	if err := s.taskRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.bus.PublishTask(eventbus.EventTypeTaskUpdated, s.owner.ID, t.Clone())
	return t, nil
}

// ToggleComplete flips a task's status. Completing cascades to the full
// subtree; reverting to pending cascades likewise.
func (s *Session) ToggleComplete(ctx context.Context, id string) (*task.Task, error) {
	root, ok := s.store.Get(id)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	completing := root.Status != task.StatusCompleted
	now := time.Now()

	var updated []*task.Task
	for _, subID := range s.store.SubtreeIDs(id) {
		t, ok := s.store.Get(subID)
		if !ok {
			continue
		}
		if completing {
			t.Status = task.StatusCompleted
			t.CompletedAt = &now
		} else {
			t.Status = task.StatusPending
			t.CompletedAt = nil
		}
		t.UpdatedAt = now
		updated = append(updated, t)
	}

	changes := make([]store.Change, 0, len(updated))
	for _, t := range updated {
		changes = append(changes, store.Upsert(t))
	}
	s.store.Merge(changes)

	var firstErr error
	for _, t := range updated {
		if err := s.taskRepo.Update(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	root, _ = s.store.Get(id)
	if completing {
		s.bus.PublishTask(eventbus.EventTypeTaskCompleted, s.owner.ID, root.Clone())
	} else {
		s.bus.PublishTask(eventbus.EventTypeTaskUpdated, s.owner.ID, root.Clone())
	}
	return root, nil
}

// DeleteTask removes a task and its whole subtree, deepest first, so no
// orphan subtask is ever observable.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	root, ok := s.store.Get(id)
	if !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	ids := s.store.SubtreeIDs(id)

	// Resolve partitions before the optimistic delete empties the cache.
	partitions := make(map[string]string, len(ids))
	for _, subID := range ids {
		if t, ok := s.store.Get(subID); ok {
			partitions[subID] = t.AssignedTo
		}
	}

	changes := make([]store.Change, 0, len(ids))
	for _, subID := range ids {
		changes = append(changes, store.Delete(subID))
	}
	s.store.Merge(changes)

	var firstErr error
	for i := len(ids) - 1; i >= 0; i-- {
		subID := ids[i]
		if err := s.taskRepo.Delete(ctx, partitions[subID], subID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	s.bus.PublishTask(eventbus.EventTypeTaskDeleted, s.owner.ID, root.Clone())
	return nil
}

type CreateTypeInput struct {
	Name  string
	Icon  string
	Color string
}

func (s *Session) CreateType(ctx context.Context, in CreateTypeInput) (*tasktype.TaskType, error) {
	if in.Name == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "type name is required", nil)
	}
	icon := in.Icon
	if icon == "" {
		icon = "📋"
	}
	t := &tasktype.TaskType{
		ID:          tasktype.Slug(in.Name),
		Name:        in.Name,
		Icon:        icon,
		Color:       in.Color,
		Custom:      true,
		Owner:       s.owner.ID,
		LastUpdated: time.Now(),
	}
	if err := s.typeRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteType performs the two-phase delete feeding the deletion guard: the
// pre-delete snapshot is captured, the document is removed, and the guard is
// handed the snapshot to validate the delete after the fact. Types the local
// view knows to be in use are refused up front; the guard remains the
// authoritative cross-partition check.
func (s *Session) DeleteType(ctx context.Context, id string) error {
	if n := s.store.CountByType(id); n > 0 {
		return cerr.NewError(cerr.FailedPrecondition, "task type is in use", nil)
	}
	snapshot, err := s.typeRepo.Get(ctx, s.owner.ID, id)
	if err != nil {
		return err
	}
	if err := s.typeRepo.Delete(ctx, s.owner.ID, id); err != nil {
		return err
	}
	s.bus.PublishTypeDeleteRequested(s.owner.ID, snapshot)
	return nil
}

func (s *Session) Notifications(ctx context.Context) ([]*notification.Notification, error) {
	return s.notifRepo.List(ctx, s.owner.ID)
}

func (s *Session) MarkNotificationRead(ctx context.Context, id string) error {
	return s.notifRepo.MarkRead(ctx, s.owner.ID, id)
}

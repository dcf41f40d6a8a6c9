package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidal/pairtask/internal/eventbus"
	"github.com/nvidal/pairtask/internal/notification"
	notifrepo "github.com/nvidal/pairtask/internal/notification/repositoryimpl"
	"github.com/nvidal/pairtask/internal/task"
	taskrepo "github.com/nvidal/pairtask/internal/task/repositoryimpl"
	"github.com/nvidal/pairtask/internal/tasktype"
	typerepo "github.com/nvidal/pairtask/internal/tasktype/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/storage"
)

var partitions = []string{"hades", "reiger"}

type fixture struct {
	guard     *Guard
	taskRepo  task.Repository
	typeRepo  tasktype.Repository
	notifRepo notification.Repository
	bus       *eventbus.Bus
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		taskRepo:  taskrepo.NewYAMLRepository(st),
		typeRepo:  typerepo.NewYAMLRepository(st),
		notifRepo: notifrepo.NewYAMLRepository(st),
		bus:       eventbus.New(),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.guard = New(f.bus, f.taskRepo, f.typeRepo, f.notifRepo, partitions)
	f.guard.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) deletedType() *tasktype.TaskType {
	return &tasktype.TaskType{
		ID:          "trabajo",
		Name:        "Trabajo",
		Icon:        "💼",
		Custom:      false,
		Owner:       "hades",
		LastUpdated: f.now.Add(-time.Hour),
	}
}

func (f *fixture) addTask(t *testing.T, id, partition, typeID string) {
	t.Helper()
	require.NoError(t, f.taskRepo.Create(context.Background(), &task.Task{
		ID:         id,
		Title:      "tarea " + id,
		Type:       typeID,
		Priority:   task.PriorityMedium,
		Status:     task.StatusPending,
		AssignedTo: partition,
		CreatedAt:  f.now,
	}))
}

func TestProcessCommitsUnreferencedDelete(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t1", "hades", "personal")

	out := f.guard.Process(context.Background(), f.deletedType())
	assert.Equal(t, StateCommitted, out.State)
	assert.Equal(t, 0, out.TasksCount)

	// The document stays deleted.
	_, err := f.typeRepo.Get(context.Background(), "hades", "trabajo")
	assert.Error(t, err)

	notifs, err := f.notifRepo.List(context.Background(), "hades")
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestProcessRestoresReferencedType(t *testing.T) {
	f := newFixture(t)
	// References span both partitions.
	f.addTask(t, "t1", "hades", "trabajo")
	f.addTask(t, "t2", "reiger", "trabajo")
	f.addTask(t, "t3", "reiger", "personal")

	out := f.guard.Process(context.Background(), f.deletedType())
	assert.Equal(t, StateRestored, out.State)
	assert.Equal(t, 2, out.TasksCount)
	assert.NoError(t, out.CheckErr)

	restored, err := f.typeRepo.Get(context.Background(), "hades", "trabajo")
	require.NoError(t, err)
	assert.True(t, restored.DeletionBlocked)
	assert.Equal(t, 2, restored.TasksCount)
	require.NotNil(t, restored.DeletionAttempted)
	assert.Equal(t, f.now, restored.DeletionAttempted.UTC())
	assert.False(t, restored.RestoredDueToError)
	assert.Empty(t, restored.LastError)
}

func TestProcessCreatesOneUnreadNotification(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t1", "hades", "trabajo")

	f.guard.Process(context.Background(), f.deletedType())

	notifs, err := f.notifRepo.List(context.Background(), "hades")
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	n := notifs[0]
	assert.Equal(t, notification.KindDeleteBlocked, n.Kind)
	assert.False(t, n.Read)
	assert.Equal(t, "trabajo", n.TypeID)
	assert.Equal(t, 1, n.TasksCount)
	assert.Contains(t, n.Message, `"Trabajo"`)
	assert.Contains(t, n.Message, "1 tarea(s)")

	// The owner's partition gets the notification, not the other one.
	other, err := f.notifRepo.List(context.Background(), "reiger")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestProcessPublishesBlockedEvent(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t1", "reiger", "trabajo")

	_, ch := f.bus.Subscribe(4)
	f.guard.Process(context.Background(), f.deletedType())

	select {
	case event := <-ch:
		assert.Equal(t, eventbus.EventTypeTypeDeleteBlocked, event.Type)
		require.NotNil(t, event.TypeSnapshot)
		assert.True(t, event.TypeSnapshot.DeletionBlocked)
	case <-time.After(time.Second):
		t.Fatal("no blocked event published")
	}
}

type failingTaskRepo struct {
	task.Repository
}

func (f *failingTaskRepo) ListAll(ctx context.Context, partitions []string) ([]*task.Task, error) {
	return nil, errors.New("storage unavailable")
}

func TestProcessRestoresOnCheckError(t *testing.T) {
	f := newFixture(t)
	f.guard.taskRepo = &failingTaskRepo{Repository: f.taskRepo}

	out := f.guard.Process(context.Background(), f.deletedType())
	assert.Equal(t, StateRestored, out.State)
	assert.Error(t, out.CheckErr)

	restored, err := f.typeRepo.Get(context.Background(), "hades", "trabajo")
	require.NoError(t, err)
	assert.True(t, restored.RestoredDueToError)
	assert.Equal(t, "storage unavailable", restored.LastError)
	assert.False(t, restored.DeletionBlocked)

	// An unverified delete produces no delete-blocked notification.
	notifs, err := f.notifRepo.List(context.Background(), "hades")
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestStartConsumesDeleteRequests(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t1", "hades", "trabajo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.guard.Start(ctx)

	f.bus.PublishTypeDeleteRequested("hades", f.deletedType())

	require.Eventually(t, func() bool {
		_, err := f.typeRepo.Get(context.Background(), "hades", "trabajo")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "type was not restored")
}

func TestProcessNilSnapshotIsNoop(t *testing.T) {
	f := newFixture(t)
	out := f.guard.Process(context.Background(), nil)
	assert.Equal(t, StateRequested, out.State)
}

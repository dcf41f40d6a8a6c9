package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidal/pairtask/internal/task"
	taskrepo "github.com/nvidal/pairtask/internal/task/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/storage"
)

func taskFetch(repo *taskrepo.YAMLRepository, partition string) FetchFunc {
	return func(ctx context.Context) (*Snapshot, error) {
		tasks, err := repo.List(ctx, partition)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Partition: partition, Kind: KindTasks, Tasks: tasks}, nil
	}
}

func newTask(id string) *task.Task {
	return &task.Task{
		ID:         id,
		Title:      "tarea " + id,
		Type:       "personal",
		Priority:   task.PriorityMedium,
		Status:     task.StatusPending,
		AssignedTo: "hades",
		CreatedAt:  time.Now(),
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := taskrepo.NewYAMLRepository(st)
	require.NoError(t, repo.Create(context.Background(), newTask("t1")))

	out := make(chan *Snapshot, 8)
	sub := Subscribe(context.Background(), st, taskrepo.TasksPrefix("hades"), taskFetch(repo, "hades"), out, time.Second)
	defer sub.Close()

	select {
	case snap := <-out:
		assert.Equal(t, "hades", snap.Partition)
		require.Len(t, snap.Tasks, 1)
		assert.Equal(t, "t1", snap.Tasks[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot delivered")
	}
}

func TestWatcherDeliversAfterWrite(t *testing.T) {
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := taskrepo.NewYAMLRepository(st)

	out := make(chan *Snapshot, 8)
	sub := Subscribe(context.Background(), st, taskrepo.TasksPrefix("hades"), taskFetch(repo, "hades"), out, time.Hour)
	defer sub.Close()

	// Initial snapshot is empty.
	select {
	case snap := <-out:
		assert.Empty(t, snap.Tasks)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot delivered")
	}

	// The poll interval is an hour, so only the filesystem watcher can
	// deliver this one.
	require.NoError(t, repo.Create(context.Background(), newTask("t1")))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-out:
			if len(snap.Tasks) == 1 && snap.Tasks[0].ID == "t1" {
				return
			}
		case <-deadline:
			t.Fatal("watcher never delivered the write")
		}
	}
}

func TestCloseIsSynchronous(t *testing.T) {
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := taskrepo.NewYAMLRepository(st)

	out := make(chan *Snapshot, 8)
	sub := Subscribe(context.Background(), st, taskrepo.TasksPrefix("hades"), taskFetch(repo, "hades"), out, time.Hour)

	// Drain the initial delivery so the goroutine is not blocked on out.
	<-out
	sub.Close()

	// After Close returns, a write must not produce a delivery.
	require.NoError(t, repo.Create(context.Background(), newTask("t1")))
	select {
	case snap := <-out:
		t.Fatalf("snapshot delivered after Close: %+v", snap)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPollingFallbackWithoutWatchableStorage(t *testing.T) {
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := taskrepo.NewYAMLRepository(st)

	// Hide the DirWatchable implementation to force polling mode.
	wrapped := opaqueStorage{st}
	out := make(chan *Snapshot, 8)
	sub := Subscribe(context.Background(), wrapped, taskrepo.TasksPrefix("hades"), taskFetch(repo, "hades"), out, 50*time.Millisecond)
	defer sub.Close()

	<-out // initial
	require.NoError(t, repo.Create(context.Background(), newTask("t1")))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-out:
			if len(snap.Tasks) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("polling never delivered the write")
		}
	}
}

type opaqueStorage struct {
	storage.Storage
}

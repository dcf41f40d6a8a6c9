package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvidal/pairtask/internal/task"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(4)

	b.PublishTask(EventTypeTaskCreated, "hades", &task.Task{ID: "t1", Title: "uno"})

	event := <-ch
	assert.Equal(t, EventTypeTaskCreated, event.Type)
	assert.Equal(t, "hades", event.Actor)
	require.NotNil(t, event.Task)
	assert.Equal(t, "t1", event.Task.ID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := New()
	_, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	b.PublishTask(EventTypeTaskDeleted, "reiger", &task.Task{ID: "t1"})

	assert.Equal(t, EventTypeTaskDeleted, (<-ch1).Type)
	assert.Equal(t, EventTypeTaskDeleted, (<-ch2).Type)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	_, slow := b.Subscribe(1)
	_, fast := b.Subscribe(4)

	b.PublishTask(EventTypeTaskCreated, "hades", &task.Task{ID: "t1"})
	// The slow subscriber's buffer is full; publish must not block.
	b.PublishTask(EventTypeTaskCreated, "hades", &task.Task{ID: "t2"})

	assert.Equal(t, "t1", (<-slow).Task.ID)
	select {
	case event := <-slow:
		t.Fatalf("expected dropped event, got %s", event.Task.ID)
	default:
	}

	assert.Equal(t, "t1", (<-fast).Task.ID)
	assert.Equal(t, "t2", (<-fast).Task.ID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(4)
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody and must not panic.
	require.NotPanics(t, func() {
		b.PublishTask(EventTypeTaskCreated, "hades", &task.Task{ID: "t1"})
	})
}

package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/internal/tasktype"
)

type EventType string

const (
	EventTypeTaskCreated         EventType = "task.created"
	EventTypeTaskUpdated         EventType = "task.updated"
	EventTypeTaskCompleted       EventType = "task.completed"
	EventTypeTaskDeleted         EventType = "task.deleted"
	EventTypeTypeDeleteRequested EventType = "type.delete_requested"
	EventTypeTypeDeleteBlocked   EventType = "type.delete_blocked"
)

// Event is one lifecycle occurrence on the shared task set. Task is set for
// task lifecycle events; TypeSnapshot carries the pre-delete field values of
// a task type for the deletion guard.
type Event struct {
	ID           string
	Type         EventType
	Actor        string
	Task         *task.Task
	TypeSnapshot *tasktype.TaskType
	CreatedAt    time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

// PublishTask publishes a task lifecycle event performed by actor.
func (b *Bus) PublishTask(eventType EventType, actor string, t *task.Task) {
	b.Publish(&Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Actor:     actor,
		Task:      t,
		CreatedAt: time.Now(),
	})
}

// PublishTypeDeleteRequested hands the deletion guard the pre-delete snapshot
// of a type document that has just been removed from actor's partition.
func (b *Bus) PublishTypeDeleteRequested(actor string, snapshot *tasktype.TaskType) {
	b.Publish(&Event{
		ID:           ulid.Make().String(),
		Type:         EventTypeTypeDeleteRequested,
		Actor:        actor,
		TypeSnapshot: snapshot,
		CreatedAt:    time.Now(),
	})
}

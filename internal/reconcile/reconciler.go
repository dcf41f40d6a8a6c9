package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nvidal/pairtask/internal/feed"
	"github.com/nvidal/pairtask/internal/notification"
	"github.com/nvidal/pairtask/internal/store"
)

// Reconciler is the single writer of the task store on the read path. It
// consumes snapshots from every open feed subscription over one bounded
// channel and translates each into a merge/evict pair, which makes applying
// the same snapshot twice, or two partitions' snapshots in either order,
// converge to the same state.
type Reconciler struct {
	store *store.Store
	in    chan *feed.Snapshot

	mu              sync.Mutex
	changeListeners []func()
	notifListeners  []func(*notification.Notification)
	forwarded       map[string]struct{}
}

func New(st *store.Store, bufSize int) *Reconciler {
	return &Reconciler{
		store:     st,
		in:        make(chan *feed.Snapshot, bufSize),
		forwarded: make(map[string]struct{}),
	}
}

// Inbox is the delivery channel handed to feed subscriptions.
func (r *Reconciler) Inbox() chan *feed.Snapshot {
	return r.in
}

// OnChange registers a callback invoked after every applied snapshot, for
// external collaborators to re-render from a fresh Query.
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changeListeners = append(r.changeListeners, fn)
}

// OnNotification registers a callback for unread notifications observed on
// the session owner's notification feed. Each notification is forwarded at
// most once per session.
func (r *Reconciler) OnNotification(fn func(*notification.Notification)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifListeners = append(r.notifListeners, fn)
}

// Run processes snapshots until ctx is cancelled. It is the only consumer of
// the inbox, which serializes all merge/evict activity.
func (r *Reconciler) Run(ctx context.Context) {
	slog.Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case snap, ok := <-r.in:
			if !ok {
				return
			}
			r.Apply(snap)
		}
	}
}

// Apply merges one snapshot into the store and notifies listeners.
func (r *Reconciler) Apply(snap *feed.Snapshot) {
	switch snap.Kind {
	case feed.KindTasks:
		changes := make([]store.Change, 0, len(snap.Tasks))
		surviving := make(map[string]struct{}, len(snap.Tasks))
		for _, t := range snap.Tasks {
			changes = append(changes, store.Upsert(t))
			surviving[t.ID] = struct{}{}
		}
		r.store.Merge(changes)
		r.store.Evict(snap.Partition, surviving)
		slog.Debug("reconciler: tasks snapshot applied", "partition", snap.Partition, "docs", len(snap.Tasks))
	case feed.KindTypes:
		r.store.SetTypes(snap.Types)
		slog.Debug("reconciler: types snapshot applied", "partition", snap.Partition, "docs", len(snap.Types))
	case feed.KindNotifications:
		r.forwardUnread(snap.Notifications)
	}
	r.notifyChange()
}

func (r *Reconciler) forwardUnread(notifs []*notification.Notification) {
	r.mu.Lock()
	var fresh []*notification.Notification
	for _, n := range notifs {
		if n.Read {
			continue
		}
		if _, ok := r.forwarded[n.ID]; ok {
			continue
		}
		r.forwarded[n.ID] = struct{}{}
		fresh = append(fresh, n)
	}
	listeners := make([]func(*notification.Notification), len(r.notifListeners))
	copy(listeners, r.notifListeners)
	r.mu.Unlock()

	for _, n := range fresh {
		for _, fn := range listeners {
			fn(n)
		}
	}
}

func (r *Reconciler) notifyChange() {
	r.mu.Lock()
	listeners := make([]func(), len(r.changeListeners))
	copy(listeners, r.changeListeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

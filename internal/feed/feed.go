package feed

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nvidal/pairtask/internal/notification"
	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/internal/tasktype"
	"github.com/nvidal/pairtask/pkg/panicerr"
	"github.com/nvidal/pairtask/pkg/storage"
)

// Kind tags which collection a snapshot was taken from.
type Kind int

const (
	KindTasks Kind = iota
	KindTypes
	KindNotifications
)

// Snapshot is a full current listing of one partition's collection. The
// remote store delivers state, not diffs; consumers diff against their own
// cache, which keeps re-delivery and resubscription idempotent.
type Snapshot struct {
	Partition     string
	Kind          Kind
	Tasks         []*task.Task
	Types         []*tasktype.TaskType
	Notifications []*notification.Notification
}

// FetchFunc produces the current snapshot of the watched collection.
type FetchFunc func(ctx context.Context) (*Snapshot, error)

const (
	// debounceInterval coalesces bursts of filesystem events into one fetch.
	debounceInterval = 100 * time.Millisecond
	// rewatchBackoff is the delay before retrying a failed watcher setup.
	rewatchBackoff = time.Second
)

// Subscription is one long-lived feed over a collection prefix. On local
// storage it reacts to filesystem events; otherwise it polls. Every delivery
// is a full snapshot pushed into out. Close is synchronous: once it returns,
// no further snapshot is delivered.
type Subscription struct {
	prefix       string
	fetch        FetchFunc
	out          chan<- *Snapshot
	watchDir     string // empty means polling mode
	pollInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens a subscription on the collection at prefix and delivers an
// initial snapshot immediately. The subscription lives until Close or until
// ctx is cancelled.
func Subscribe(ctx context.Context, st storage.Storage, prefix string, fetch FetchFunc, out chan<- *Snapshot, pollInterval time.Duration) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		prefix:       prefix,
		fetch:        fetch,
		out:          out,
		pollInterval: pollInterval,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if dw, ok := st.(storage.DirWatchable); ok {
		s.watchDir = filepath.Join(dw.Root(), filepath.FromSlash(prefix))
	}

	go func() {
		defer close(s.done)
		run := panicerr.SafeContext(s.run)
		if err := run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("feed subscription stopped", "prefix", s.prefix, "error", err)
		}
	}()
	return s
}

// Close cancels the subscription and waits for its goroutine to exit, so a
// late snapshot can never repopulate state cleared after logout.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context) error {
	s.deliver(ctx)

	if s.watchDir == "" {
		return s.poll(ctx)
	}
	return s.watch(ctx)
}

func (s *Subscription) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.deliver(ctx)
		}
	}
}

func (s *Subscription) watch(ctx context.Context) error {
	for {
		watcher, err := s.newWatcher()
		if err != nil {
			slog.Warn("feed: watcher setup failed, retrying", "prefix", s.prefix, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(rewatchBackoff):
				continue
			}
		}

		// A change may have landed between fetch and watch start; snapshot
		// semantics make the extra delivery harmless.
		s.deliver(ctx)

		if rewatch := s.watchLoop(ctx, watcher); !rewatch {
			_ = watcher.Close()
			return nil
		}
		_ = watcher.Close()
	}
}

func (s *Subscription) newWatcher() (*fsnotify.Watcher, error) {
	if err := os.MkdirAll(s.watchDir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.watchDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return watcher, nil
}

// watchLoop consumes watcher events until ctx is cancelled (returns false)
// or the watcher errors out (returns true to trigger resubscription).
func (s *Subscription) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) bool {
	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-watcher.Events:
			if !ok {
				return true
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceInterval)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceInterval)
			}
		case <-fire:
			debounce = nil
			fire = nil
			s.deliver(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return true
			}
			slog.Warn("feed: watcher error, resubscribing", "prefix", s.prefix, "error", err)
			return true
		}
	}
}

func (s *Subscription) deliver(ctx context.Context) {
	snap, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("feed: snapshot fetch failed", "prefix", s.prefix, "error", err)
		}
		return
	}
	select {
	case s.out <- snap:
	case <-ctx.Done():
	}
}

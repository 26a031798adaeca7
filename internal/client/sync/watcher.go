package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	watcherBufferSize = 64
	// debounceWindow collapses the bursts of write events CAD tools emit
	// while saving a single file.
	debounceWindow = 100 * time.Millisecond
	// selfWriteWindow is how long a path stays muted after the engine
	// itself wrote it.
	selfWriteWindow = 2 * time.Second
)

// FileWatcher subscribes to recursive filesystem notifications for the vault
// working tree. Events are debounced, and paths the engine wrote itself are
// muted briefly so a download never re-triggers a sync pass.
type FileWatcher struct {
	root string

	raw    chan notify.EventInfo
	events chan string

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	selfWrite map[string]time.Time

	wg sync.WaitGroup
}

func NewFileWatcher(root string) *FileWatcher {
	return &FileWatcher{
		root:      root,
		raw:       make(chan notify.EventInfo, watcherBufferSize),
		events:    make(chan string, watcherBufferSize),
		lastSeen:  make(map[string]time.Time),
		selfWrite: make(map[string]time.Time),
	}
}

// Events returns the debounced stream of absolute paths that changed.
func (w *FileWatcher) Events() <-chan string {
	return w.events
}

// IgnoreNext mutes watcher events for an absolute path for a short window.
// Called right before the engine writes a file itself.
func (w *FileWatcher) IgnoreNext(absPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfWrite[absPath] = time.Now().Add(selfWriteWindow)
}

func (w *FileWatcher) Start(ctx context.Context) error {
	recursivePath := w.root + "/..."

	slog.Info("fs notify start", "dir", w.root)
	if err := notify.Watch(recursivePath, w.raw, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("fs notify: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()

	return nil
}

func (w *FileWatcher) Stop() {
	notify.Stop(w.raw)
	w.wg.Wait()
	close(w.events)
	slog.Info("fs notify stop")
}

func (w *FileWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.raw:
			if !ok {
				return
			}

			path := event.Path()
			if w.muted(path) {
				continue
			}

			select {
			case w.events <- path:
			default:
				// consumer runs a full pass anyway, dropping is fine
			}
		}
	}
}

// muted reports whether the path is inside its debounce or self-write
// window, and records the sighting.
func (w *FileWatcher) muted(path string) bool {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if until, ok := w.selfWrite[path]; ok {
		if now.Before(until) {
			return true
		}
		delete(w.selfWrite, path)
	}

	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	w.lastSeen[path] = now

	// opportunistic cleanup, the map stays tiny between bursts
	if len(w.lastSeen) > watcherBufferSize {
		for p, t := range w.lastSeen {
			if now.Sub(t) >= debounceWindow {
				delete(w.lastSeen, p)
			}
		}
	}

	return false
}

package sync

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	progressMin     = 0.0
	progressMax     = 100.0
	eventBufferSize = 16

	// maxRetryCount is the per-file error ceiling before the engine stops
	// retrying a transfer.
	maxRetryCount = 5
)

// ActivityState is what the engine is currently doing with a path, distinct
// from its DiffStatus.
type ActivityState string

const (
	ActivityIdle      ActivityState = "idle"
	ActivityTransfer  ActivityState = "transferring"
	ActivityCompleted ActivityState = "completed"
	ActivityError     ActivityState = "error"
)

// PathStatus is the complete tracked state of one vault path.
type PathStatus struct {
	Status      DiffStatus    `json:"status"`
	Activity    ActivityState `json:"activity"`
	Progress    float64       `json:"progress"`
	Error       error         `json:"-"`
	ErrorCount  int           `json:"errorCount,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

func (s *PathStatus) String() string {
	return fmt.Sprintf("Status: %s, Activity: %s, Progress: %.1f, Error: %v, ErrorCount: %d",
		s.Status, s.Activity, s.Progress, s.Error, s.ErrorCount)
}

// StatusEvent is one status change, broadcast to subscribers.
type StatusEvent struct {
	Path   string
	Status *PathStatus
}

// StatusTracker holds the observed status of every tracked vault path and
// broadcasts changes to subscribers (the control plane and the CLI watch
// view). Broadcasts never block: slow subscribers lose events, not the
// engine.
type StatusTracker struct {
	files map[string]*PathStatus
	mu    sync.RWMutex

	eventSubs []chan *StatusEvent
	eventMu   sync.RWMutex
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		files:     make(map[string]*PathStatus),
		eventSubs: make([]chan *StatusEvent, 0),
	}
}

// Subscribe returns a channel of status events.
func (t *StatusTracker) Subscribe() <-chan *StatusEvent {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	ch := make(chan *StatusEvent, eventBufferSize)
	t.eventSubs = append(t.eventSubs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (t *StatusTracker) Unsubscribe(ch <-chan *StatusEvent) {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	for i, sub := range t.eventSubs {
		if sub == ch {
			close(sub)
			t.eventSubs = append(t.eventSubs[:i], t.eventSubs[i+1:]...)
			break
		}
	}
}

func (t *StatusTracker) broadcastEvent(path string, status *PathStatus) {
	t.eventMu.RLock()
	defer t.eventMu.RUnlock()

	event := &StatusEvent{Path: path, Status: status}
	for _, sub := range t.eventSubs {
		select {
		case sub <- event:
		default:
			// subscriber is full, drop rather than block
		}
	}
}

func (t *StatusTracker) getOrCreate(path string) *PathStatus {
	if status, exists := t.files[path]; exists {
		return status
	}

	status := &PathStatus{
		Status:      StatusNone,
		Activity:    ActivityIdle,
		Progress:    progressMin,
		LastUpdated: time.Now(),
	}
	t.files[path] = status
	return status
}

// SetStatus records a freshly classified status for a path. Paths that
// settle at StatusNone with no activity drop out of tracking.
func (t *StatusTracker) SetStatus(path string, status DiffStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.getOrCreate(path)
	ps.Status = status
	ps.LastUpdated = time.Now()

	if status == StatusNone && ps.Activity == ActivityIdle {
		delete(t.files, path)
	}
	t.broadcastEvent(path, ps)
}

// ApplyClassifications replaces the tracked statuses with a fresh
// classification pass, keeping transfer activity and error counts.
func (t *StatusTracker) ApplyClassifications(classes map[string]*Classification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(classes))
	for path, cls := range classes {
		seen[path] = struct{}{}
		ps := t.getOrCreate(path)
		if ps.Status != cls.Status {
			ps.Status = cls.Status
			ps.LastUpdated = time.Now()
			t.broadcastEvent(path, ps)
		}
	}

	for path, ps := range t.files {
		if _, ok := seen[path]; !ok && ps.Activity == ActivityIdle {
			delete(t.files, path)
		}
	}
}

// SetTransferring marks a path as having an active transfer.
func (t *StatusTracker) SetTransferring(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.getOrCreate(path)
	ps.Activity = ActivityTransfer
	ps.Progress = progressMin
	ps.Error = nil
	ps.LastUpdated = time.Now()

	t.broadcastEvent(path, ps)
}

// SetProgress updates transfer progress for a path.
func (t *StatusTracker) SetProgress(path string, progress float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.getOrCreate(path)
	ps.Progress = progress
	ps.LastUpdated = time.Now()

	t.broadcastEvent(path, ps)
}

// SetCompleted marks a transfer finished and settles the path at the given
// status.
func (t *StatusTracker) SetCompleted(path string, status DiffStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.getOrCreate(path)
	ps.Status = status
	ps.Activity = ActivityCompleted
	ps.Progress = progressMax
	ps.Error = nil
	ps.LastUpdated = time.Now()

	t.broadcastEvent(path, ps)
}

// SetError records a failed operation on a path.
func (t *StatusTracker) SetError(path string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.getOrCreate(path)
	ps.Activity = ActivityError
	ps.Error = err
	ps.ErrorCount++
	ps.LastUpdated = time.Now()

	if ps.ErrorCount >= maxRetryCount {
		slog.Error("sync retry limit reached, excluding file", "path", path, "count", ps.ErrorCount, "error", err)
	}

	t.broadcastEvent(path, ps)
}

// GetStatus returns the tracked status of one path.
func (t *StatusTracker) GetStatus(path string) (*PathStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status, exists := t.files[path]
	return status, exists
}

// GetErrorCount returns the error count for a path.
func (t *StatusTracker) GetErrorCount(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if status, ok := t.files[path]; ok {
		return status.ErrorCount
	}
	return 0
}

// GetAll returns a copy of every tracked path status.
func (t *StatusTracker) GetAll() map[string]*PathStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]*PathStatus, len(t.files))
	for path, status := range t.files {
		statusCopy := *status
		result[path] = &statusCopy
	}
	return result
}

// CountByStatus returns how many tracked paths hold each DiffStatus.
func (t *StatusTracker) CountByStatus() map[DiffStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[DiffStatus]int)
	for _, status := range t.files {
		counts[status.Status]++
	}
	return counts
}

// Cleanup drops completed entries older than maxAge.
func (t *StatusTracker) Cleanup(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for path, status := range t.files {
		if status.Activity == ActivityCompleted && status.LastUpdated.Before(cutoff) {
			status.Activity = ActivityIdle
			if status.Status == StatusNone {
				delete(t.files, path)
			}
		}
	}
}

// Close drops all subscriptions and tracked state.
func (t *StatusTracker) Close() {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	for _, sub := range t.eventSubs {
		close(sub)
	}

	t.eventSubs = make([]chan *StatusEvent, 0)

	t.mu.Lock()
	t.files = make(map[string]*PathStatus)
	t.mu.Unlock()
}

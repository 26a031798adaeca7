package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcherDebounce(t *testing.T) {
	w := NewFileWatcher(t.TempDir())

	// CAD save bursts: first event passes, the immediate repeats are
	// collapsed.
	assert.False(t, w.muted("/vault/a.sldprt"))
	assert.True(t, w.muted("/vault/a.sldprt"))
	assert.True(t, w.muted("/vault/a.sldprt"))

	// A different path is independent.
	assert.False(t, w.muted("/vault/b.sldprt"))
}

func TestWatcherSelfWriteMute(t *testing.T) {
	w := NewFileWatcher(t.TempDir())

	w.IgnoreNext("/vault/a.sldprt")
	assert.True(t, w.muted("/vault/a.sldprt"))

	// Expired window: the mute is one-shot, not sticky.
	w.mu.Lock()
	w.selfWrite["/vault/a.sldprt"] = time.Now().Add(-time.Second)
	w.mu.Unlock()
	assert.False(t, w.muted("/vault/a.sldprt"))
}

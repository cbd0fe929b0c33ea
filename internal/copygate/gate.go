// Package copygate suppresses duplicate history entries from rapid
// repeated copy actions of the same text.
package copygate

import (
	"context"
	"sync"
	"time"
)

// Gate remembers the last admitted copy for the life of the process.
type Gate struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastText string
	lastAt   time.Time
	admitted bool
}

// New returns a Gate with the given window. A nil now uses time.Now.
func New(window time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{window: window, now: now}
}

// Submit runs appendFn unless text equals the last admitted text and less
// than the window has passed since it was admitted. It reports whether
// appendFn ran. State is recorded only when appendFn succeeds.
//
// Writing the clipboard is the caller's job and happens either way.
func (g *Gate) Submit(ctx context.Context, text string, appendFn func(context.Context) error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.admitted && text == g.lastText && now.Sub(g.lastAt) < g.window {
		return false, nil
	}

	if err := appendFn(ctx); err != nil {
		return false, err
	}
	g.lastText = text
	g.lastAt = now
	g.admitted = true
	return true, nil
}

// Window returns the debounce window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// Package oneshot provides a latch that runs initialization work at most
// once per key for the lifetime of its owner.
package oneshot

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
)

type entry struct {
	done chan struct{}
	err  error
}

// Guard is owned by one view. Keys are latched when first run; a failed run
// keeps its latch until Reset or Teardown.
type Guard struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty guard.
func New() *Guard {
	return &Guard{
		logger:  logging.Component("oneshot"),
		entries: make(map[string]*entry),
	}
}

// RunOnce runs fn unless key was already latched. Concurrent callers with
// the same key wait for the first run and report ran=false with its error.
func (g *Guard) RunOnce(key string, fn func() error) (ran bool, err error) {
	g.mu.Lock()
	if e, ok := g.entries[key]; ok {
		g.mu.Unlock()
		<-e.done
		return false, e.err
	}
	e := &entry{done: make(chan struct{})}
	g.entries[key] = e
	g.mu.Unlock()

	defer close(e.done)
	e.err = fn()
	if e.err != nil {
		g.logger.Warn().Err(e.err).Str("key", key).Msg("one-shot run failed")
	}
	return true, e.err
}

// Done reports whether key has been latched.
func (g *Guard) Done(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[key]
	return ok
}

// Reset releases the latch of key so the next RunOnce runs again.
func (g *Guard) Reset(key string) {
	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()
}

// Teardown releases every latch.
func (g *Guard) Teardown() {
	g.mu.Lock()
	g.entries = make(map[string]*entry)
	g.mu.Unlock()
}

// Package unread computes the combined unread badge across groups and
// direct threads.
package unread

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/threadstore"
)

// Breakdown splits the badge total by source.
type Breakdown struct {
	Groups int
	Direct int
	Total  int
}

// Listener is called with the new total whenever it changes.
type Listener func(total int)

// Aggregator derives the badge from the store. It performs no network
// access; Total is always the sum of the counts the store holds at call time.
type Aggregator struct {
	store  *threadstore.Store
	logger zerolog.Logger

	mu        sync.Mutex
	last      int
	listeners map[string]Listener
	cancel    func()
}

// New creates an aggregator and subscribes it to the store's list and
// unread events.
func New(store *threadstore.Store) (*Aggregator, error) {
	a := &Aggregator{
		store:     store,
		logger:    logging.Component("unread"),
		listeners: make(map[string]Listener),
	}
	a.last = a.Total()

	cancel, err := store.Events().Subscribe(events.Filter{
		Kinds: []events.Kind{
			events.KindGroups,
			events.KindDirect,
			events.KindUnread,
		},
	}, func(events.Event) { a.recompute() })
	if err != nil {
		return nil, err
	}
	a.cancel = cancel
	return a, nil
}

// Total returns Σ group unread + Σ direct unread.
func (a *Aggregator) Total() int {
	groups, direct := a.store.UnreadTotals()
	return groups + direct
}

// Breakdown returns the per-source sums.
func (a *Aggregator) Breakdown() Breakdown {
	groups, direct := a.store.UnreadTotals()
	return Breakdown{Groups: groups, Direct: direct, Total: groups + direct}
}

// OnChange registers a listener and returns a function that removes it.
// Listeners run synchronously on the goroutine that changed the store.
func (a *Aggregator) OnChange(fn Listener) func() {
	id := uuid.NewString()
	a.mu.Lock()
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Close detaches the aggregator from the store.
func (a *Aggregator) Close() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.listeners = make(map[string]Listener)
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Aggregator) recompute() {
	total := a.Total()

	a.mu.Lock()
	if total == a.last {
		a.mu.Unlock()
		return
	}
	a.last = total
	listeners := make([]Listener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	a.logger.Debug().Int("total", total).Msg("unread total changed")
	for _, fn := range listeners {
		fn(total)
	}
}

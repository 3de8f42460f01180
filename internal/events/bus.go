// Package events carries thread store change notifications to in-process
// subscribers such as the unread aggregator.
package events

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tOgg1/chatsync/internal/models"
)

// Kind names a store change.
type Kind string

const (
	// KindGroups: a group snapshot replaced the group list.
	KindGroups Kind = "groups"
	// KindDirect: a snapshot or find-or-create changed the direct threads.
	KindDirect Kind = "direct"
	// KindUnread: one thread's unread count was set locally.
	KindUnread Kind = "unread"
	// KindMessages: an open thread's message list changed.
	KindMessages Kind = "messages"
)

// Event is one store change. Thread is zero for list-wide changes.
type Event struct {
	Kind   Kind
	Thread models.ThreadRef
}

// Handler receives matching events on the publishing goroutine.
type Handler func(Event)

// Filter selects events. The zero Filter matches everything.
type Filter struct {
	Kinds []Kind
	// Thread restricts thread-scoped events to one thread. List-wide
	// events still match since they may touch any thread.
	Thread models.ThreadRef
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	if f.Thread.IsZero() || e.Thread.IsZero() {
		return true
	}
	return f.Thread == e.Thread
}

// ErrNilHandler is returned when subscribing a nil handler.
var ErrNilHandler = errors.New("events: nil handler")

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Bus is a synchronous fan-out. Handlers run in subscription order, outside
// the bus lock, so they may subscribe or unsubscribe.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish delivers e to every matching subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter.Matches(e) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(e)
	}
}

// Subscribe registers h and returns a function removing it. The remover is
// idempotent.
func (b *Bus) Subscribe(filter Filter, h Handler) (func(), error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	id := uuid.NewString()

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, filter: filter, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { b.remove(id) }) }, nil
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

// Package threadstore holds the in-memory state of chat groups, direct
// threads and the messages of open threads. It performs no network access.
package threadstore

import (
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
)

// DefaultDedupeTolerance is the timestamp window inside which a fetched
// message may replace a provisional local copy.
const DefaultDedupeTolerance = 10 * time.Second

// Options configures a Store.
type Options struct {
	// DedupeTolerance bounds |server ts - local ts| for optimistic dedupe.
	DedupeTolerance time.Duration

	// Publisher receives change events. A private publisher is used if nil.
	Publisher *events.Bus
}

// Store is safe for concurrent use. All mutations are serialized by one
// mutex; events are published after the mutex is released.
type Store struct {
	tolerance time.Duration
	publisher *events.Bus
	logger    zerolog.Logger

	mu       sync.RWMutex
	groups   []models.ChatGroup
	direct   []models.DirectThread
	messages map[models.ThreadRef][]models.Message
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.DedupeTolerance <= 0 {
		opts.DedupeTolerance = DefaultDedupeTolerance
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewBus()
	}
	return &Store{
		tolerance: opts.DedupeTolerance,
		publisher: opts.Publisher,
		logger:    logging.Component("threadstore"),
		messages:  make(map[models.ThreadRef][]models.Message),
	}
}

// Events returns the publisher the store notifies.
func (s *Store) Events() *events.Bus {
	return s.publisher
}

// Groups returns a copy of the current group list.
func (s *Store) Groups() []models.ChatGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGroups(s.groups)
}

// DirectThreads returns a copy of the current direct-thread list.
func (s *Store) DirectThreads() []models.DirectThread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDirect(s.direct)
}

// Group looks up a group by id.
func (s *Store) Group(id string) (models.ChatGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.ID == id {
			return cloneGroup(g), true
		}
	}
	return models.ChatGroup{}, false
}

// Direct looks up a direct thread by id.
func (s *Store) Direct(id string) (models.DirectThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.direct {
		if d.ID == id {
			return cloneDirectThread(d), true
		}
	}
	return models.DirectThread{}, false
}

// Summary returns the kind-agnostic view of one thread.
func (s *Store) Summary(ref models.ThreadRef, selfID string) (models.ThreadSummary, bool) {
	switch ref.Kind {
	case models.ThreadKindGroup:
		if g, ok := s.Group(ref.ID); ok {
			return g.Summary(), true
		}
	case models.ThreadKindDirect:
		if d, ok := s.Direct(ref.ID); ok {
			return d.Summary(selfID), true
		}
	}
	return models.ThreadSummary{}, false
}

// Unread returns the unread count held for a thread (0 if unknown).
func (s *Store) Unread(ref models.ThreadRef) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked(ref)
}

func (s *Store) unreadLocked(ref models.ThreadRef) int {
	switch ref.Kind {
	case models.ThreadKindGroup:
		for _, g := range s.groups {
			if g.ID == ref.ID {
				return g.UnreadCount
			}
		}
	case models.ThreadKindDirect:
		for _, d := range s.direct {
			if d.ID == ref.ID {
				return d.UnreadCount
			}
		}
	}
	return 0
}

// UnreadTotals returns the group and direct unread sums read under one lock.
func (s *Store) UnreadTotals() (groups, direct int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		groups += g.UnreadCount
	}
	for _, d := range s.direct {
		direct += d.UnreadCount
	}
	return groups, direct
}

// ApplyGroupSnapshot replaces the group list if it differs from the held one.
func (s *Store) ApplyGroupSnapshot(groups []models.ChatGroup) bool {
	s.mu.Lock()
	if reflect.DeepEqual(s.groups, groups) {
		s.mu.Unlock()
		return false
	}
	s.groups = cloneGroups(groups)
	s.mu.Unlock()

	s.logger.Debug().Int("groups", len(groups)).Msg("group snapshot applied")
	s.publisher.Publish(events.Event{Kind: events.KindGroups})
	return true
}

// ApplyDirectSnapshot replaces the direct-thread list if it differs.
func (s *Store) ApplyDirectSnapshot(threads []models.DirectThread) bool {
	s.mu.Lock()
	if reflect.DeepEqual(s.direct, threads) {
		s.mu.Unlock()
		return false
	}
	s.direct = cloneDirect(threads)
	s.mu.Unlock()

	s.logger.Debug().Int("threads", len(threads)).Msg("direct snapshot applied")
	s.publisher.Publish(events.Event{Kind: events.KindDirect})
	return true
}

// UpsertDirect inserts or replaces one direct thread, e.g. after find-or-create.
func (s *Store) UpsertDirect(thread models.DirectThread) {
	s.mu.Lock()
	replaced := false
	for i := range s.direct {
		if s.direct[i].ID == thread.ID {
			s.direct[i] = cloneDirectThread(thread)
			replaced = true
			break
		}
	}
	if !replaced {
		s.direct = append(s.direct, cloneDirectThread(thread))
	}
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.KindDirect})
}

// RemoveGroup drops a deleted group from the list.
func (s *Store) RemoveGroup(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, g := range s.groups {
		if g.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.groups = append(s.groups[:idx:idx], s.groups[idx+1:]...)
	delete(s.messages, models.GroupRef(id))
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.KindGroups})
	return true
}

// SetUnread sets one thread's unread count. It returns false if the thread
// is unknown or already holds n.
func (s *Store) SetUnread(ref models.ThreadRef, n int) bool {
	if n < 0 {
		n = 0
	}

	s.mu.Lock()
	changed := false
	switch ref.Kind {
	case models.ThreadKindGroup:
		for i := range s.groups {
			if s.groups[i].ID == ref.ID && s.groups[i].UnreadCount != n {
				s.groups[i].UnreadCount = n
				changed = true
			}
		}
	case models.ThreadKindDirect:
		for i := range s.direct {
			if s.direct[i].ID == ref.ID && s.direct[i].UnreadCount != n {
				s.direct[i].UnreadCount = n
				changed = true
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.publisher.Publish(events.Event{Kind: events.KindUnread, Thread: ref})
	}
	return changed
}

func cloneGroup(g models.ChatGroup) models.ChatGroup {
	if g.Members != nil {
		g.Members = append([]string(nil), g.Members...)
	}
	return g
}

func cloneGroups(groups []models.ChatGroup) []models.ChatGroup {
	if groups == nil {
		return nil
	}
	out := make([]models.ChatGroup, len(groups))
	for i, g := range groups {
		out[i] = cloneGroup(g)
	}
	return out
}

func cloneDirectThread(d models.DirectThread) models.DirectThread {
	if d.Participants != nil {
		d.Participants = append([]models.UserRef(nil), d.Participants...)
	}
	return d
}

func cloneDirect(threads []models.DirectThread) []models.DirectThread {
	if threads == nil {
		return nil
	}
	out := make([]models.DirectThread, len(threads))
	for i, d := range threads {
		out[i] = cloneDirectThread(d)
	}
	return out
}

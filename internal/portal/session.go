// Package portal wires the synchronization engine into views: a sidebar
// with the unread badge, role-specific inboxes and chat rooms. Each mounted
// view owns its own pollers and cancels them on Unmount.
package portal

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/cache"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/oneshot"
	"github.com/tOgg1/chatsync/internal/readstate"
	"github.com/tOgg1/chatsync/internal/threadstore"
	"github.com/tOgg1/chatsync/internal/unread"
)

// Polling holds view polling intervals.
type Polling struct {
	GroupInterval  time.Duration
	DirectInterval time.Duration
	HasNewInterval time.Duration
	// FetchTimeoutRatio sizes fetch timeouts relative to the interval.
	FetchTimeoutRatio float64
}

func (p Polling) fetchTimeout(interval time.Duration) time.Duration {
	if p.FetchTimeoutRatio <= 0 || p.FetchTimeoutRatio >= 1 {
		return 0
	}
	return time.Duration(float64(interval) * p.FetchTimeoutRatio)
}

// Options configures a Session.
type Options struct {
	User models.User
	// ManagerID is the member's manager for the inbox bootstrap.
	ManagerID string
	Backend   Backend

	Polling         Polling
	DedupeTolerance time.Duration
	MarkReadTimeout time.Duration

	// Cache enables warm start and write-through of list snapshots.
	Cache *cache.Cache
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Session holds the state shared by every view of one signed-in user.
type Session struct {
	user      models.User
	managerID string
	backend   Backend
	polling   Polling
	dedupe    time.Duration
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	store  *threadstore.Store
	clock  *readstate.Clock
	reads  *readstate.Reconciler
	unread *unread.Aggregator
	guard  *oneshot.Guard

	refund        atomic.Bool
	managerThread atomic.Pointer[models.DirectThread]
	badgeCancel   func()
}

// NewSession builds a session. A missing user id yields ErrNoUser.
func NewSession(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.User.ID) == "" {
		return nil, ErrNoUser
	}
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Polling.GroupInterval <= 0 {
		opts.Polling.GroupInterval = 3 * time.Second
	}
	if opts.Polling.DirectInterval <= 0 {
		opts.Polling.DirectInterval = 3 * time.Second
	}
	if opts.Polling.HasNewInterval <= 0 {
		opts.Polling.HasNewInterval = time.Second
	}

	store := threadstore.New(threadstore.Options{DedupeTolerance: opts.DedupeTolerance})
	clock := readstate.NewClock()

	var readObserver readstate.Observer
	if opts.Metrics != nil {
		readObserver = opts.Metrics
	}
	reads := readstate.New(store, clock, opts.Backend, readstate.Options{
		MarkTimeout: opts.MarkReadTimeout,
		Observer:    readObserver,
	})

	agg, err := unread.New(store)
	if err != nil {
		return nil, err
	}

	s := &Session{
		user:      opts.User,
		managerID: opts.ManagerID,
		backend:   opts.Backend,
		polling:   opts.Polling,
		dedupe:    opts.DedupeTolerance,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    logging.WithUser(opts.User.ID).With().Str("component", "portal").Logger(),
		store:     store,
		clock:     clock,
		reads:     reads,
		unread:    agg,
		guard:     oneshot.New(),
	}
	if s.metrics != nil {
		s.badgeCancel = agg.OnChange(s.metrics.SetBadge)
	}
	return s, nil
}

// User returns the signed-in user.
func (s *Session) User() models.User {
	return s.user
}

// Store returns the shared thread store.
func (s *Session) Store() *threadstore.Store {
	return s.store
}

// Reconciler returns the read-state reconciler.
func (s *Session) Reconciler() *readstate.Reconciler {
	return s.reads
}

// Aggregator returns the unread aggregator.
func (s *Session) Aggregator() *unread.Aggregator {
	return s.unread
}

// Backend returns the API the session talks to.
func (s *Session) Backend() Backend {
	return s.backend
}

// Threads returns summaries of every known group and direct thread,
// most recent activity first.
func (s *Session) Threads() []models.ThreadSummary {
	groups := s.store.Groups()
	direct := s.store.DirectThreads()
	out := make([]models.ThreadSummary, 0, len(groups)+len(direct))
	for _, g := range groups {
		out = append(out, g.Summary())
	}
	for _, d := range direct {
		out = append(out, d.Summary(s.user.ID))
	}
	sortSummaries(out)
	return out
}

// MarkAsRead zeroes a thread's unread count and tells the server.
func (s *Session) MarkAsRead(ctx context.Context, ref models.ThreadRef) {
	s.reads.MarkAsRead(ctx, ref)
}

// Close waits for in-flight mark-read calls and releases the session. Views
// must be unmounted first.
func (s *Session) Close() error {
	if s.badgeCancel != nil {
		s.badgeCancel()
	}
	s.unread.Close()
	s.reads.Wait()
	s.guard.Teardown()
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

func sortSummaries(list []models.ThreadSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.LastMessageTimestamp.Equal(b.LastMessageTimestamp) {
			return a.LastMessageTimestamp.After(b.LastMessageTimestamp)
		}
		return a.Ref.Key() < b.Ref.Key()
	})
}

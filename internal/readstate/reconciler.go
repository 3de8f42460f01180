// Package readstate reconciles optimistic mark-as-read actions with
// periodically polled unread counts.
//
// Each thread moves through Unread(n) -> Reading -> Read(0). Marking a thread
// read records a watermark from the shared Clock and zeroes the local count.
// Poll snapshots stamped before the latest watermark never change the local
// count, even after the watermark is lifted. A later snapshot only raises the
// count again once the thread's last message is newer than the one seen at
// mark time.
package readstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/poller"
	"github.com/tOgg1/chatsync/internal/threadstore"
)

// DefaultMarkTimeout bounds one mark-all-read request.
const DefaultMarkTimeout = 10 * time.Second

// Phase is the read-state of one thread.
type Phase int

const (
	PhaseUnread Phase = iota
	PhaseReading
	PhaseRead
)

func (p Phase) String() string {
	switch p {
	case PhaseUnread:
		return "unread"
	case PhaseReading:
		return "reading"
	case PhaseRead:
		return "read"
	default:
		return "unknown"
	}
}

// State is the observable read-state of a thread.
type State struct {
	Phase  Phase
	Unread int
}

// Marker issues the server-side "mark all as read" call for a thread.
type Marker interface {
	ReadAll(ctx context.Context, ref models.ThreadRef) error
}

// MarkerFunc adapts a function to Marker.
type MarkerFunc func(ctx context.Context, ref models.ThreadRef) error

// ReadAll calls f.
func (f MarkerFunc) ReadAll(ctx context.Context, ref models.ThreadRef) error {
	return f(ctx, ref)
}

// Observer receives mark-read outcomes, e.g. for metrics.
type Observer interface {
	ObserveMarkRead(ref models.ThreadRef, err error)
}

// Options configures a Reconciler.
type Options struct {
	// MarkTimeout bounds each mark-all-read request. Default: 10s.
	MarkTimeout time.Duration

	// Observer is optional.
	Observer Observer
}

// watermark suppresses stale non-zero counts until the server catches up or
// a newer message arrives. lastTS is adopted from the first later snapshot
// when the thread was unknown at mark time.
type watermark struct {
	seq    uint64
	lastTS time.Time
	known  bool
	done   bool
}

// Reconciler owns the read watermarks of all threads. Its mutex is always
// taken before the store's, so filtering a snapshot and applying it cannot
// interleave with a mark-as-read.
type Reconciler struct {
	store  *threadstore.Store
	clock  *Clock
	marker Marker
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	marks  map[models.ThreadRef]*watermark
	// floors holds the latest watermark seq per thread and outlives marks.
	floors map[models.ThreadRef]uint64
	active map[models.ThreadRef]int

	wg sync.WaitGroup
}

// New creates a reconciler over store. The clock must be the one the
// list pollers use as their Sequencer.
func New(store *threadstore.Store, clock *Clock, marker Marker, opts Options) *Reconciler {
	if opts.MarkTimeout <= 0 {
		opts.MarkTimeout = DefaultMarkTimeout
	}
	if clock == nil {
		clock = NewClock()
	}
	return &Reconciler{
		store:  store,
		clock:  clock,
		marker: marker,
		opts:   opts,
		logger: logging.Component("readstate"),
		marks:  make(map[models.ThreadRef]*watermark),
		floors: make(map[models.ThreadRef]uint64),
		active: make(map[models.ThreadRef]int),
	}
}

// Clock returns the reconciler's clock.
func (r *Reconciler) Clock() *Clock {
	return r.clock
}

// MarkAsRead zeroes the thread's local count and fires the mark-all-read
// request in the background. The request outlives ctx cancellation but not
// MarkTimeout; its failure is logged and not retried.
func (r *Reconciler) MarkAsRead(ctx context.Context, ref models.ThreadRef) {
	r.mu.Lock()
	w := &watermark{seq: r.clock.Next()}
	w.lastTS, w.known = r.lastTimestamp(ref)
	r.marks[ref] = w
	r.floors[ref] = w.seq
	r.store.SetUnread(ref, 0)
	r.mu.Unlock()

	r.logger.Debug().Str("thread", ref.Key()).Uint64("watermark", w.seq).Msg("marking thread read")

	if r.marker == nil {
		r.finish(ref, w, nil)
		return
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.MarkTimeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		err := r.marker.ReadAll(reqCtx, ref)
		r.finish(ref, w, err)
	}()
}

func (r *Reconciler) finish(ref models.ThreadRef, w *watermark, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Str("thread", ref.Key()).Msg("mark all read failed")
	}
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveMarkRead(ref, err)
	}

	r.mu.Lock()
	w.done = true
	r.mu.Unlock()
}

// lastTimestamp returns the newest message time known for ref and whether
// the thread is known at all. Must be called with r.mu held.
func (r *Reconciler) lastTimestamp(ref models.ThreadRef) (time.Time, bool) {
	var (
		ts    time.Time
		known bool
	)
	switch ref.Kind {
	case models.ThreadKindGroup:
		if g, ok := r.store.Group(ref.ID); ok {
			ts, known = g.LastMessageTimestamp, true
		}
	case models.ThreadKindDirect:
		if d, ok := r.store.Direct(ref.ID); ok {
			ts, known = d.LastMessageTimestamp, true
		}
	}
	if latest := r.store.LatestTimestamp(ref); !latest.IsZero() {
		known = true
		if latest.After(ts) {
			ts = latest
		}
	}
	return ts, known
}

// ApplyGroups filters a group-list snapshot through the watermarks and
// applies it to the store. It reports whether the store changed.
func (r *Reconciler) ApplyGroups(snap poller.Snapshot[[]models.ChatGroup]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make([]models.ChatGroup, len(snap.Value))
	copy(groups, snap.Value)
	for i := range groups {
		g := &groups[i]
		g.UnreadCount = r.filterLocked(g.Ref(), g.UnreadCount, g.LastMessageTimestamp, snap.Seq)
	}
	return r.store.ApplyGroupSnapshot(groups)
}

// ApplyDirect is ApplyGroups for the direct-thread list.
func (r *Reconciler) ApplyDirect(snap poller.Snapshot[[]models.DirectThread]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	threads := make([]models.DirectThread, len(snap.Value))
	copy(threads, snap.Value)
	for i := range threads {
		d := &threads[i]
		d.UnreadCount = r.filterLocked(d.Ref(), d.UnreadCount, d.LastMessageTimestamp, snap.Seq)
	}
	return r.store.ApplyDirectSnapshot(threads)
}

// filterLocked returns the count to store for one thread of a snapshot
// stamped seq.
func (r *Reconciler) filterLocked(ref models.ThreadRef, count int, lastTS time.Time, seq uint64) int {
	if floor, ok := r.floors[ref]; ok && seq < floor {
		// Fetch was issued before the thread was last marked read; only
		// snapshots issued after the mark may move the count.
		return r.store.Unread(ref)
	}
	w, ok := r.marks[ref]
	if !ok {
		return count
	}
	if !w.known {
		w.lastTS, w.known = lastTS, true
		if count <= 0 {
			delete(r.marks, ref)
		}
		return 0
	}
	if count <= 0 {
		// Server caught up.
		delete(r.marks, ref)
		return 0
	}
	if lastTS.After(w.lastTS) {
		r.logger.Debug().Str("thread", ref.Key()).Int("unread", count).Msg("new message after read")
		delete(r.marks, ref)
		return count
	}
	return 0
}

// State returns the read-state of a thread.
func (r *Reconciler) State(ref models.ThreadRef) State {
	r.mu.Lock()
	w, ok := r.marks[ref]
	var phase Phase
	if ok {
		phase = PhaseRead
		if !w.done {
			phase = PhaseReading
		}
	}
	r.mu.Unlock()

	if ok {
		return State{Phase: phase}
	}
	n := r.store.Unread(ref)
	if n > 0 {
		return State{Phase: PhaseUnread, Unread: n}
	}
	return State{Phase: PhaseRead}
}

// Open registers ref as an active thread view and marks it read.
func (r *Reconciler) Open(ctx context.Context, ref models.ThreadRef) {
	r.mu.Lock()
	r.active[ref]++
	r.mu.Unlock()
	r.MarkAsRead(ctx, ref)
}

// Close unregisters one active view of ref.
func (r *Reconciler) Close(ref models.ThreadRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[ref] <= 1 {
		delete(r.active, ref)
		return
	}
	r.active[ref]--
}

// Active reports whether a view of ref is open.
func (r *Reconciler) Active(ref models.ThreadRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[ref] > 0
}

// NoteNewMessages re-marks an active thread read after its view fetched new
// messages. It reports whether a mark was issued.
func (r *Reconciler) NoteNewMessages(ctx context.Context, ref models.ThreadRef) bool {
	if !r.Active(ref) {
		return false
	}
	r.MarkAsRead(ctx, ref)
	return true
}

// Wait blocks until all in-flight mark-all-read requests have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

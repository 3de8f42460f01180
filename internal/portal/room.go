package portal

import (
	"context"
	"errors"
	"sync"

	"github.com/tOgg1/chatsync/internal/channel"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/readstate"
)

// Room is an open thread view.
type Room struct {
	s   *Session
	ref models.ThreadRef
	ch  *channel.Channel

	closeOnce sync.Once
}

// OpenRoom marks the thread read, loads its messages and starts the
// has-new poller. A failed first load closes the room and returns a
// *LoadError.
func (s *Session) OpenRoom(ctx context.Context, ref models.ThreadRef) (*Room, error) {
	var sendObserver channel.Observer
	if s.metrics != nil {
		sendObserver = s.metrics
	}
	ch, err := channel.New(ref, channel.Options{
		Store:        s.store,
		API:          s.backend,
		Checker:      s.backend,
		Reads:        s.reads,
		Sender:       s.user.Ref(),
		Interval:     s.polling.HasNewInterval,
		FetchTimeout: s.polling.fetchTimeout(s.polling.HasNewInterval),
		PollObserver: s.pollObserver(),
		SendObserver: sendObserver,
	})
	if err != nil {
		return nil, err
	}

	r := &Room{s: s, ref: ref, ch: ch}
	s.reads.Open(ctx, ref)

	if _, err := ch.Load(ctx); err != nil {
		r.Close()
		return nil, &LoadError{View: "room " + ref.Key(), Err: err}
	}
	if err := ch.Start(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Ref returns the room's thread.
func (r *Room) Ref() models.ThreadRef {
	return r.ref
}

// Title returns the thread's display title.
func (r *Room) Title() string {
	if summary, ok := r.s.store.Summary(r.ref, r.s.user.ID); ok {
		return summary.Title
	}
	return r.ref.ID
}

// Messages returns the thread's messages in timestamp order.
func (r *Room) Messages() []models.Message {
	return r.s.store.Messages(r.ref)
}

// Send sends text optimistically. Blank text returns channel.ErrEmptyMessage
// without any network call.
func (r *Room) Send(ctx context.Context, text string) (models.Message, error) {
	return r.ch.Send(ctx, text)
}

// Refresh forces a full fetch-and-replace.
func (r *Room) Refresh(ctx context.Context) error {
	_, err := r.ch.Load(ctx)
	return err
}

// ReadState returns the thread's read-state.
func (r *Room) ReadState() readstate.State {
	return r.s.reads.State(r.ref)
}

// Close stops the room's poller and releases the thread. Safe to call more
// than once.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.ch.Stop()
		r.s.reads.Close(r.ref)
		if !r.s.reads.Active(r.ref) {
			r.s.store.CloseThread(r.ref)
		}
	})
}

// IsEmptyMessage reports whether err is a blank-text rejection.
func IsEmptyMessage(err error) bool {
	return errors.Is(err, channel.ErrEmptyMessage)
}

// Package channel implements sending and receiving for one open thread:
// optimistic sends confirmed by the server, and a short-interval has-new
// poller that triggers full fetches.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/poller"
	"github.com/tOgg1/chatsync/internal/threadstore"
)

// DefaultInterval is the has-new polling interval of an open room.
const DefaultInterval = time.Second

// Channel errors.
var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrNoStore        = errors.New("channel requires a thread store")
	ErrNoAPI          = errors.New("channel requires a message api")
	ErrNoChecker      = errors.New("group channel requires a has-new checker")
	ErrAlreadyStarted = errors.New("channel already started")
)

// API fetches and creates messages by thread.
type API interface {
	Messages(ctx context.Context, ref models.ThreadRef) ([]models.Message, error)
	Send(ctx context.Context, ref models.ThreadRef, text string) (models.Message, error)
}

// Checker asks the server whether a group holds more than knownCount
// messages.
type Checker interface {
	HasNew(ctx context.Context, ref models.ThreadRef, knownCount int) (bool, error)
}

// ReadNotifier is told when an open thread received new messages.
type ReadNotifier interface {
	NoteNewMessages(ctx context.Context, ref models.ThreadRef) bool
}

// Observer receives send outcomes, e.g. for metrics.
type Observer interface {
	ObserveSend(ref models.ThreadRef, err error)
}

// Options configures a Channel.
type Options struct {
	Store   *threadstore.Store
	API     API
	Checker Checker
	Reads   ReadNotifier
	// Sender is the local user, used for provisional copies.
	Sender models.UserRef

	Interval     time.Duration
	FetchTimeout time.Duration

	PollObserver poller.Observer
	SendObserver Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Channel serves one open thread. It is safe for concurrent use.
type Channel struct {
	ref    models.ThreadRef
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	cancel func()
	loaded bool
}

type checkResult struct {
	known  int
	hasNew bool
}

// New creates a channel for ref.
func New(ref models.ThreadRef, opts Options) (*Channel, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.API == nil {
		return nil, ErrNoAPI
	}
	if ref.Kind == models.ThreadKindGroup && opts.Checker == nil {
		return nil, ErrNoChecker
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Channel{
		ref:    ref,
		opts:   opts,
		logger: logging.WithThread(logging.Component("channel"), string(ref.Kind), ref.ID),
	}, nil
}

// Ref returns the thread the channel serves.
func (c *Channel) Ref() models.ThreadRef {
	return c.ref
}

// Send appends a provisional copy of text, creates it on the server and
// swaps in the confirmed message. On failure the copy stays in the thread
// flagged unsent and the error is returned.
func (c *Channel) Send(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	provisional := models.Message{
		ID:          models.TempIDPrefix + uuid.NewString(),
		Parent:      c.ref,
		Sender:      c.opts.Sender,
		Text:        text,
		Timestamp:   c.opts.Now().UTC(),
		Provisional: true,
	}
	if _, err := c.opts.Store.AppendMessage(c.ref, provisional); err != nil {
		return models.Message{}, err
	}

	confirmed, err := c.opts.API.Send(ctx, c.ref, text)
	c.observeSend(err)
	if err != nil {
		c.opts.Store.MarkUnsent(c.ref, provisional.ID)
		c.logger.Warn().Err(err).Str("temp_id", provisional.ID).Msg("send failed")
		return provisional, fmt.Errorf("send message: %w", err)
	}

	if confirmed.Sender.ID == "" {
		confirmed.Sender = c.opts.Sender
	}
	if confirmed.Text == "" {
		confirmed.Text = text
	}
	if confirmed.Timestamp.IsZero() {
		confirmed.Timestamp = provisional.Timestamp
	}
	if err := c.opts.Store.ConfirmMessage(c.ref, provisional.ID, confirmed); err != nil {
		return provisional, err
	}
	return confirmed, nil
}

func (c *Channel) observeSend(err error) {
	if c.opts.SendObserver != nil {
		c.opts.SendObserver.ObserveSend(c.ref, err)
	}
}

// Load fetches the full message list and replaces the thread's messages.
// After the first load, newly added server messages are reported to the
// read notifier.
func (c *Channel) Load(ctx context.Context) (threadstore.ReplaceResult, error) {
	msgs, err := c.opts.API.Messages(ctx, c.ref)
	if err != nil {
		return threadstore.ReplaceResult{}, fmt.Errorf("load messages: %w", err)
	}
	return c.replace(ctx, msgs)
}

func (c *Channel) replace(ctx context.Context, msgs []models.Message) (threadstore.ReplaceResult, error) {
	res, err := c.opts.Store.ReplaceMessages(c.ref, msgs)
	if err != nil {
		return res, err
	}

	c.mu.Lock()
	first := !c.loaded
	c.loaded = true
	c.mu.Unlock()

	if !first && res.Added > 0 && c.opts.Reads != nil {
		c.logger.Debug().Int("added", res.Added).Msg("new messages in open thread")
		c.opts.Reads.NoteNewMessages(ctx, c.ref)
	}
	return res, nil
}

// Start begins receiving. Group threads poll the has-new endpoint and fetch
// the full list only when it reports new messages; direct threads poll the
// message list itself.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	cfg := poller.Config{
		Name:         "room:" + c.ref.Key(),
		Interval:     c.opts.Interval,
		FetchTimeout: c.opts.FetchTimeout,
		Observer:     c.opts.PollObserver,
	}

	var (
		cancel func()
		err    error
	)
	switch c.ref.Kind {
	case models.ThreadKindGroup:
		cancel, err = c.startGroup(ctx, cfg)
	default:
		cancel, err = c.startDirect(ctx, cfg)
	}
	if err != nil {
		return err
	}
	c.cancel = cancel
	return nil
}

func (c *Channel) startGroup(ctx context.Context, cfg poller.Config) (func(), error) {
	p := poller.New(cfg,
		func(ctx context.Context) (checkResult, error) {
			known := c.opts.Store.KnownCount(c.ref)
			hasNew, err := c.opts.Checker.HasNew(ctx, c.ref, known)
			return checkResult{known: known, hasNew: hasNew}, err
		},
		func(r checkResult) string {
			return strconv.Itoa(r.known) + ":" + strconv.FormatBool(r.hasNew)
		},
	)
	err := p.Start(ctx, func(snap poller.Snapshot[checkResult]) {
		if !snap.Value.hasNew {
			return
		}
		if _, err := c.Load(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("fetch after has-new failed")
			// Report the same check result again next tick.
			p.Reset()
		}
	})
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { _ = p.Stop() }) }, nil
}

func (c *Channel) startDirect(ctx context.Context, cfg poller.Config) (func(), error) {
	return poller.StartPolling(ctx, cfg,
		func(ctx context.Context) ([]models.Message, error) {
			return c.opts.API.Messages(ctx, c.ref)
		},
		poller.MessagesFingerprint,
		func(snap poller.Snapshot[[]models.Message]) {
			if _, err := c.replace(ctx, snap.Value); err != nil {
				c.logger.Warn().Err(err).Msg("apply fetched messages failed")
			}
		},
	)
}

// Stop cancels the receiving poller. No store mutation from the poller
// happens after Stop returns.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

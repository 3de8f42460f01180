// Package poller provides the periodic fetch-and-diff primitive used by every
// view: fetch on an interval, fingerprint the result, and propagate only
// results whose fingerprint changed.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
)

// Poller errors.
var (
	ErrAlreadyRunning = errors.New("poller already running")
	ErrNotRunning     = errors.New("poller not running")
	ErrNilCallback    = errors.New("poller callback is nil")
)

const (
	// DefaultInterval matches the coarse list polling of the inbox views.
	DefaultInterval = 3 * time.Second
	// MinInterval is the smallest accepted polling interval.
	MinInterval = 10 * time.Millisecond
)

// Sequencer hands out monotonically increasing logical timestamps. A
// snapshot's Seq is taken before its fetch is issued, so it orders the fetch
// against read watermarks drawn from the same sequencer.
type Sequencer interface {
	Next() uint64
}

// Observer receives per-tick outcomes, e.g. for metrics.
type Observer interface {
	ObserveTick(name string, changed bool, err error)
}

// Config contains configuration for a poller.
type Config struct {
	// Name identifies the subscription in logs and metrics.
	Name string

	// Interval is the time between fetches.
	// Default: 3s
	Interval time.Duration

	// FetchTimeout bounds each fetch. It is kept below Interval so fetches
	// of one subscription never overlap.
	// Default: 3/4 of Interval
	FetchTimeout time.Duration

	// Sequencer stamps snapshots. Default: a private counter.
	Sequencer Sequencer

	// Observer is optional.
	Observer Observer
}

// FetchFunc retrieves the current remote state.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// FingerprintFunc reduces a fetch result to a cheap, order-stable string.
type FingerprintFunc[T any] func(T) string

// Snapshot is one changed fetch result.
type Snapshot[T any] struct {
	Value       T
	Seq         uint64
	FetchedAt   time.Time
	Fingerprint string
}

// Stats counts poll outcomes since the poller was created.
type Stats struct {
	Ticks   int64
	Changes int64
	Errors  int64
}

// Poller repeatedly fetches a resource and reports fingerprint changes.
// Each poller runs a single goroutine; independent pollers share nothing.
type Poller[T any] struct {
	config      Config
	fetch       FetchFunc[T]
	fingerprint FingerprintFunc[T]
	logger      zerolog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	last     string
	hasLast  bool
	trigger  chan struct{}
	ticks    atomic.Int64
	changes  atomic.Int64
	failures atomic.Int64
}

// New creates a poller. Zero config fields take defaults.
func New[T any](config Config, fetch FetchFunc[T], fingerprint FingerprintFunc[T]) *Poller[T] {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Interval < MinInterval {
		config.Interval = MinInterval
	}
	if config.FetchTimeout <= 0 || config.FetchTimeout >= config.Interval {
		config.FetchTimeout = config.Interval * 3 / 4
	}
	if config.Sequencer == nil {
		config.Sequencer = &counter{}
	}
	if config.Name == "" {
		config.Name = "poller"
	}

	return &Poller[T]{
		config:      config,
		fetch:       fetch,
		fingerprint: fingerprint,
		logger:      logging.Component("poller").With().Str("subscription", config.Name).Logger(),
		trigger:     make(chan struct{}, 1),
	}
}

// Config returns the effective configuration.
func (p *Poller[T]) Config() Config {
	return p.config
}

// Start fetches immediately and then every Interval, calling onChange from
// the poller goroutine whenever the fingerprint differs from the previous
// successful fetch. The fingerprint history starts empty on every Start.
//
// onChange must not call Stop; cancel ctx instead.
func (p *Poller[T]) Start(ctx context.Context, onChange func(Snapshot[T])) error {
	if onChange == nil {
		return ErrNilCallback
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.last = ""
	p.hasLast = false

	p.logger.Debug().
		Dur("interval", p.config.Interval).
		Dur("fetch_timeout", p.config.FetchTimeout).
		Msg("poller starting")

	p.wg.Add(1)
	go p.runLoop(runCtx, onChange)

	return nil
}

// Stop halts the loop. When Stop returns, onChange has returned for the last
// time, even if a fetch was in flight.
func (p *Poller[T]) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug().Msg("poller stopped")
	return nil
}

// IsRunning returns true if the poller is running.
func (p *Poller[T]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// PollNow requests an immediate tick. Requests coalesce while one is pending.
func (p *Poller[T]) PollNow() error {
	if !p.IsRunning() {
		return ErrNotRunning
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Reset forgets the last fingerprint so the next successful fetch is
// reported even if unchanged.
func (p *Poller[T]) Reset() {
	p.mu.Lock()
	p.last = ""
	p.hasLast = false
	p.mu.Unlock()
}

// Stats returns tick counters.
func (p *Poller[T]) Stats() Stats {
	return Stats{
		Ticks:   p.ticks.Load(),
		Changes: p.changes.Load(),
		Errors:  p.failures.Load(),
	}
}

func (p *Poller[T]) runLoop(ctx context.Context, onChange func(Snapshot[T])) {
	defer p.wg.Done()

	p.tick(ctx, onChange)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		p.tick(ctx, onChange)
	}
}

// tick performs one fetch/diff cycle.
func (p *Poller[T]) tick(ctx context.Context, onChange func(Snapshot[T])) {
	if ctx.Err() != nil {
		return
	}

	seq := p.config.Sequencer.Next()
	issuedAt := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	value, err := p.fetch(fetchCtx)
	cancel()

	// A result that resolves after cancellation is dropped.
	if ctx.Err() != nil {
		return
	}

	p.ticks.Add(1)
	if err != nil {
		p.failures.Add(1)
		p.observe(false, err)
		p.logger.Warn().Err(err).Uint64("seq", seq).Msg("poll failed")
		return
	}

	fp := p.fingerprint(value)

	p.mu.Lock()
	changed := !p.hasLast || fp != p.last
	if changed {
		p.last = fp
		p.hasLast = true
	}
	p.mu.Unlock()

	p.observe(changed, nil)
	if !changed {
		return
	}

	p.changes.Add(1)
	p.logger.Debug().Uint64("seq", seq).Str("fingerprint", fp).Msg("poll result changed")

	onChange(Snapshot[T]{
		Value:       value,
		Seq:         seq,
		FetchedAt:   issuedAt,
		Fingerprint: fp,
	})
}

func (p *Poller[T]) observe(changed bool, err error) {
	if p.config.Observer != nil {
		p.config.Observer.ObserveTick(p.config.Name, changed, err)
	}
}

// StartPolling starts a poller and returns its cancel function. Calling the
// cancel function more than once is safe.
func StartPolling[T any](ctx context.Context, config Config, fetch FetchFunc[T], fingerprint FingerprintFunc[T], onChange func(Snapshot[T])) (func(), error) {
	p := New(config, fetch, fingerprint)
	if err := p.Start(ctx, onChange); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { _ = p.Stop() })
	}, nil
}

type counter struct {
	n atomic.Uint64
}

func (c *counter) Next() uint64 {
	return c.n.Add(1)
}

package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tOgg1/chatsync/internal/unread"
)

// SidebarMode is the explicit layout state of the sidebar.
type SidebarMode int

const (
	SidebarExpanded SidebarMode = iota
	SidebarCollapsed
	// SidebarLocked keeps the sidebar expanded; Toggle has no effect.
	SidebarLocked
)

func (m SidebarMode) String() string {
	switch m {
	case SidebarCollapsed:
		return "collapsed"
	case SidebarExpanded:
		return "expanded"
	case SidebarLocked:
		return "locked"
	default:
		return fmt.Sprintf("SidebarMode(%d)", int(m))
	}
}

// ParseSidebarMode parses "collapsed", "expanded" or "locked". Empty means
// expanded.
func ParseSidebarMode(s string) (SidebarMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "expanded":
		return SidebarExpanded, nil
	case "collapsed":
		return SidebarCollapsed, nil
	case "locked":
		return SidebarLocked, nil
	default:
		return SidebarExpanded, fmt.Errorf("unknown sidebar mode %q", s)
	}
}

const refundGuardKey = "refund-link"

// Sidebar shows the unread badge and the refund link.
type Sidebar struct {
	s *Session

	mu      sync.Mutex
	mode    SidebarMode
	mounted bool
	cancels []func()
	wg      sync.WaitGroup
}

// NewSidebar creates an unmounted sidebar.
func (s *Session) NewSidebar(mode SidebarMode) *Sidebar {
	return &Sidebar{s: s, mode: mode}
}

// Mount starts the list pollers and, once per session, the refund check.
func (sb *Sidebar) Mount(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.mounted {
		return ErrAlreadyMounted
	}

	sb.s.warmStart(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	cancels, err := sb.s.startListPollers(runCtx, "sidebar")
	if err != nil {
		cancel()
		return err
	}

	sb.wg.Add(1)
	go func() {
		defer sb.wg.Done()
		sb.checkRefunds(runCtx)
	}()

	sb.cancels = append(cancels, cancel)
	sb.mounted = true
	return nil
}

func (sb *Sidebar) checkRefunds(ctx context.Context) {
	_, _ = sb.s.guard.RunOnce(refundGuardKey, func() error {
		exists, err := sb.s.backend.HasRefunds(ctx, sb.s.user.ID)
		if err != nil {
			return err
		}
		sb.s.refund.Store(exists)
		return nil
	})
}

// Unmount cancels every subscription of the sidebar. No poll callback runs
// after Unmount returns.
func (sb *Sidebar) Unmount() {
	sb.mu.Lock()
	cancels := sb.cancels
	sb.cancels = nil
	sb.mounted = false
	sb.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	sb.wg.Wait()
}

// Badge returns the combined unread total.
func (sb *Sidebar) Badge() int {
	return sb.s.unread.Total()
}

// Breakdown returns the badge split by source.
func (sb *Sidebar) Breakdown() unread.Breakdown {
	return sb.s.unread.Breakdown()
}

// OnBadge registers a badge listener and returns its remover.
func (sb *Sidebar) OnBadge(fn func(total int)) func() {
	return sb.s.unread.OnChange(fn)
}

// RefundLinkVisible reports whether the refund link should be shown.
func (sb *Sidebar) RefundLinkVisible() bool {
	return sb.s.refund.Load()
}

// Mode returns the layout mode.
func (sb *Sidebar) Mode() SidebarMode {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.mode
}

// SetMode sets the layout mode.
func (sb *Sidebar) SetMode(mode SidebarMode) {
	sb.mu.Lock()
	sb.mode = mode
	sb.mu.Unlock()
}

// Toggle flips between collapsed and expanded unless locked.
func (sb *Sidebar) Toggle() SidebarMode {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	switch sb.mode {
	case SidebarCollapsed:
		sb.mode = SidebarExpanded
	case SidebarExpanded:
		sb.mode = SidebarCollapsed
	}
	return sb.mode
}

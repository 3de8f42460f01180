package portal

import (
	"context"
	"sync"

	"github.com/tOgg1/chatsync/internal/models"
)

const managerGuardKey = "manager-thread"

// Inbox lists the user's groups and direct threads. Members additionally get
// their manager's direct thread created on first mount.
type Inbox struct {
	s *Session

	mu      sync.Mutex
	mounted bool
	cancels []func()
	wg      sync.WaitGroup
}

// NewInbox creates an unmounted inbox.
func (s *Session) NewInbox() *Inbox {
	return &Inbox{s: s}
}

// Role returns the inbox flavor, which follows the user's role.
func (in *Inbox) Role() models.Role {
	if in.s.user.Role == "" {
		return models.RoleMember
	}
	return in.s.user.Role
}

// Mount loads both lists and starts polling. A failed first load is
// returned as a *LoadError and leaves the inbox unmounted; later poll
// failures are logged only.
func (in *Inbox) Mount(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.mounted {
		return ErrAlreadyMounted
	}

	in.s.warmStart(ctx)
	if err := in.s.loadLists(ctx); err != nil {
		in.s.logger.Warn().Err(err).Msg("inbox initial load failed")
		return &LoadError{View: "inbox", Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	cancels, err := in.s.startListPollers(runCtx, "inbox")
	if err != nil {
		cancel()
		return err
	}

	if in.needsManagerThread() {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			in.bootstrapManagerThread(runCtx)
		}()
	}

	in.cancels = append(cancels, cancel)
	in.mounted = true
	return nil
}

func (in *Inbox) needsManagerThread() bool {
	manager := in.s.managerID
	return in.Role() == models.RoleMember && manager != "" && manager != in.s.user.ID
}

// bootstrapManagerThread finds or creates the direct thread with the
// member's manager, at most once per session.
func (in *Inbox) bootstrapManagerThread(ctx context.Context) {
	_, err := in.s.guard.RunOnce(managerGuardKey, func() error {
		thread, err := in.s.backend.StartDirect(ctx, in.s.managerID)
		if err != nil {
			return err
		}
		in.s.managerThread.Store(&thread)
		in.s.store.UpsertDirect(thread)
		return nil
	})
	if err != nil {
		in.s.logger.Debug().Err(err).Msg("manager thread unavailable")
	}
}

// ManagerThread returns the bootstrapped manager thread, if any.
func (in *Inbox) ManagerThread() (models.DirectThread, bool) {
	thread := in.s.managerThread.Load()
	if thread == nil {
		return models.DirectThread{}, false
	}
	return *thread, true
}

// Threads returns the inbox rows, most recent activity first.
func (in *Inbox) Threads() []models.ThreadSummary {
	return in.s.Threads()
}

// Unmount cancels every subscription of the inbox.
func (in *Inbox) Unmount() {
	in.mu.Lock()
	cancels := in.cancels
	in.cancels = nil
	in.mounted = false
	in.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	in.wg.Wait()
}

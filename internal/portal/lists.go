package portal

import (
	"context"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/poller"
)

const cacheWriteTimeout = 5 * time.Second

func (s *Session) pollObserver() poller.Observer {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// startListPollers starts the group and direct-thread list pollers of one
// view and returns their cancel functions.
func (s *Session) startListPollers(ctx context.Context, view string) ([]func(), error) {
	groupsCancel, err := poller.StartPolling(ctx,
		poller.Config{
			Name:         view + ":groups",
			Interval:     s.polling.GroupInterval,
			FetchTimeout: s.polling.fetchTimeout(s.polling.GroupInterval),
			Sequencer:    s.clock,
			Observer:     s.pollObserver(),
		},
		func(ctx context.Context) ([]models.ChatGroup, error) {
			return s.backend.UserGroups(ctx, s.user.ID)
		},
		poller.GroupsFingerprint,
		s.applyGroups,
	)
	if err != nil {
		return nil, err
	}

	directCancel, err := poller.StartPolling(ctx,
		poller.Config{
			Name:         view + ":direct",
			Interval:     s.polling.DirectInterval,
			FetchTimeout: s.polling.fetchTimeout(s.polling.DirectInterval),
			Sequencer:    s.clock,
			Observer:     s.pollObserver(),
		},
		func(ctx context.Context) ([]models.DirectThread, error) {
			return s.backend.DirectThreads(ctx, s.user.ID)
		},
		poller.DirectFingerprint,
		s.applyDirect,
	)
	if err != nil {
		groupsCancel()
		return nil, err
	}

	return []func(){groupsCancel, directCancel}, nil
}

func (s *Session) applyGroups(snap poller.Snapshot[[]models.ChatGroup]) {
	if s.reads.ApplyGroups(snap) {
		s.persistGroups()
	}
}

func (s *Session) applyDirect(snap poller.Snapshot[[]models.DirectThread]) {
	if s.reads.ApplyDirect(snap) {
		s.persistDirect()
	}
}

func (s *Session) persistGroups() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.SaveGroups(ctx, s.user.ID, s.store.Groups()); err != nil {
		s.logger.Warn().Err(err).Msg("cache group snapshot failed")
	}
}

func (s *Session) persistDirect() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.SaveDirect(ctx, s.user.ID, s.store.DirectThreads()); err != nil {
		s.logger.Warn().Err(err).Msg("cache direct snapshot failed")
	}
}

// warmStart fills empty store lists from the cache. Cached snapshots carry
// sequence 0, so they never override a read watermark.
func (s *Session) warmStart(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if len(s.store.Groups()) == 0 {
		snap, ok, err := s.cache.LoadGroups(ctx, s.user.ID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("load cached groups failed")
		} else if ok {
			s.reads.ApplyGroups(poller.Snapshot[[]models.ChatGroup]{Value: snap.Items, FetchedAt: snap.SavedAt})
		}
	}
	if len(s.store.DirectThreads()) == 0 {
		snap, ok, err := s.cache.LoadDirect(ctx, s.user.ID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("load cached direct threads failed")
		} else if ok {
			s.reads.ApplyDirect(poller.Snapshot[[]models.DirectThread]{Value: snap.Items, FetchedAt: snap.SavedAt})
		}
	}
}

// loadLists fetches both lists once and applies them. Used for the first
// load of a view, whose failure is surfaced.
func (s *Session) loadLists(ctx context.Context) error {
	seq := s.clock.Next()
	groups, err := s.backend.UserGroups(ctx, s.user.ID)
	if err != nil {
		return err
	}
	s.applyGroups(poller.Snapshot[[]models.ChatGroup]{Value: groups, Seq: seq, FetchedAt: time.Now()})

	seq = s.clock.Next()
	direct, err := s.backend.DirectThreads(ctx, s.user.ID)
	if err != nil {
		return err
	}
	s.applyDirect(poller.Snapshot[[]models.DirectThread]{Value: direct, Seq: seq, FetchedAt: time.Now()})
	return nil
}

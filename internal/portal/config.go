package portal

import (
	"context"
	"errors"
	"strings"

	"github.com/tOgg1/chatsync/internal/api"
	"github.com/tOgg1/chatsync/internal/cache"
	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/models"
)

// FromConfig builds a session against the configured portal. A missing
// token is tolerated since the group endpoints do not require one. A cache
// that fails to open disables warm start instead of failing the session.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Session, error) {
	userID := strings.TrimSpace(cfg.Session.UserID)
	if userID == "" {
		return nil, ErrNoUser
	}
	logger := logging.Component("portal")

	token, err := cfg.ResolveToken()
	if err != nil {
		if !errors.Is(err, config.ErrNoToken) {
			return nil, err
		}
		logger.Warn().Msg("no session token configured; direct threads will be rejected")
	}

	client, err := api.New(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      api.StaticToken(token),
		Timeout:    cfg.API.Timeout,
		RefundPath: cfg.API.RefundPath,
	})
	if err != nil {
		return nil, err
	}

	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.Open(ctx, cfg.CachePath(), cfg.Cache.BusyTimeoutMs)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.CachePath()).Msg("snapshot cache disabled")
			c = nil
		}
	}

	user := models.User{
		ID:       userID,
		FullName: cfg.Session.FullName,
		Role:     models.Role(strings.ToLower(strings.TrimSpace(cfg.Session.Role))),
	}
	s, err := NewSession(Options{
		User:      user,
		ManagerID: cfg.Session.ManagerID,
		Backend:   NewBackend(client, userID),
		Polling: Polling{
			GroupInterval:     cfg.Polling.GroupInterval,
			DirectInterval:    cfg.Polling.DirectInterval,
			HasNewInterval:    cfg.Polling.HasNewInterval,
			FetchTimeoutRatio: cfg.Polling.FetchTimeoutRatio,
		},
		DedupeTolerance: cfg.Messages.DedupeTolerance,
		MarkReadTimeout: cfg.Messages.MarkReadTimeout,
		Cache:           c,
		Metrics:         m,
	})
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	return s, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tOgg1/chatsync/internal/api"
	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/portal"
)

var contextStorePath string

func requireConfig() (*config.Config, error) {
	if appConfig == nil {
		return nil, errors.New("configuration not loaded")
	}
	if strings.TrimSpace(appConfig.API.BaseURL) == "" {
		return nil, &PreflightError{
			Message:  "no portal url configured",
			Hint:     "set api.base_url in the config file or CHATSYNC_API_BASE_URL",
			NextStep: "chatsync --api-url https://portal.example.com threads",
		}
	}
	return appConfig, nil
}

func openSession(ctx context.Context, m *metrics.Metrics) (*portal.Session, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	s, err := portal.FromConfig(ctx, cfg, m)
	if errors.Is(err, portal.ErrNoUser) {
		return nil, &PreflightError{
			Message:  "no signed-in user",
			Hint:     "set session.user_id in the config file or pass --user",
			NextStep: "chatsync --user <id> threads",
		}
	}
	return s, err
}

func newAPIClient() (*api.Client, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}
	token, err := cfg.ResolveToken()
	if err != nil && !errors.Is(err, config.ErrNoToken) {
		return nil, err
	}
	return api.New(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      api.StaticToken(token),
		Timeout:    cfg.API.Timeout,
		RefundPath: cfg.API.RefundPath,
	})
}

func selectionFile() config.SelectionFile {
	if contextStorePath == "" {
		return config.DefaultSelectionFile()
	}
	return config.SelectionFile(contextStorePath)
}

// resolveThread parses the thread argument, falling back to the thread
// selected with "chatsync use".
func resolveThread(args []string) (models.ThreadRef, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return models.ParseThreadRef(args[0])
	}
	current, err := selectionFile().Read()
	if err != nil {
		return models.ThreadRef{}, err
	}
	if current.Empty() {
		return models.ThreadRef{}, &PreflightError{
			Message:  "no thread given",
			Hint:     "pass group:<id> or direct:<id>, or select one first",
			NextStep: "chatsync use group:<id>",
		}
	}
	ref, err := current.Ref()
	if err != nil {
		return models.ThreadRef{}, fmt.Errorf("invalid thread in %s: %w", selectionFile(), err)
	}
	return ref, nil
}

// Package cache persists the last group and direct-thread snapshots per user
// in SQLite, so a view can render counts before its first poll returns.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
)

const (
	kindGroups = "groups"
	kindDirect = "direct"

	defaultBusyTimeoutMs = 5000
)

// ErrUnavailable is returned when the cache was closed or never opened.
var ErrUnavailable = errors.New("snapshot cache unavailable")

// Snapshot is a cached list with the time it was saved.
type Snapshot[T any] struct {
	Items   []T
	SavedAt time.Time
}

// Cache is a SQLite-backed snapshot store.
type Cache struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the cache database at path.
func Open(ctx context.Context, path string, busyTimeoutMs int) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = defaultBusyTimeoutMs
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	c := &Cache{db: db, logger: logging.Component("cache")}
	if err := c.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Cache) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (user_id, kind)
		)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}
	return nil
}

// SaveGroups stores the group list of userID.
func (c *Cache) SaveGroups(ctx context.Context, userID string, groups []models.ChatGroup) error {
	return c.save(ctx, userID, kindGroups, groups)
}

// LoadGroups returns the cached group list of userID. ok is false when
// nothing was cached.
func (c *Cache) LoadGroups(ctx context.Context, userID string) (snap Snapshot[models.ChatGroup], ok bool, err error) {
	return load[models.ChatGroup](ctx, c, userID, kindGroups)
}

// SaveDirect stores the direct-thread list of userID.
func (c *Cache) SaveDirect(ctx context.Context, userID string, threads []models.DirectThread) error {
	return c.save(ctx, userID, kindDirect, threads)
}

// LoadDirect returns the cached direct-thread list of userID.
func (c *Cache) LoadDirect(ctx context.Context, userID string) (snap Snapshot[models.DirectThread], ok bool, err error) {
	return load[models.DirectThread](ctx, c, userID, kindDirect)
}

// Purge removes every snapshot of userID.
func (c *Cache) Purge(ctx context.Context, userID string) error {
	if c == nil || c.db == nil {
		return ErrUnavailable
	}
	return defaultBusyRetry.do(ctx, func() error {
		_, err := c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE user_id = ?`, userID)
		return err
	})
}

func (c *Cache) save(ctx context.Context, userID, kind string, items any) error {
	if c == nil || c.db == nil {
		return ErrUnavailable
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}
	savedAt := time.Now().UTC().Format(time.RFC3339Nano)

	err = defaultBusyRetry.do(ctx, func() error {
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO snapshots (user_id, kind, payload, saved_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, kind) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
		`, userID, kind, string(payload), savedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store %s snapshot: %w", kind, err)
	}
	return nil
}

func load[T any](ctx context.Context, c *Cache, userID, kind string) (Snapshot[T], bool, error) {
	if c == nil || c.db == nil {
		return Snapshot[T]{}, false, ErrUnavailable
	}

	var payload, savedAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM snapshots WHERE user_id = ? AND kind = ?`,
		userID, kind,
	).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot[T]{}, false, nil
	}
	if err != nil {
		return Snapshot[T]{}, false, fmt.Errorf("failed to read %s snapshot: %w", kind, err)
	}

	var snap Snapshot[T]
	if err := json.Unmarshal([]byte(payload), &snap.Items); err != nil {
		return Snapshot[T]{}, false, fmt.Errorf("failed to decode %s snapshot: %w", kind, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		snap.SavedAt = ts
	}
	return snap, true, nil
}

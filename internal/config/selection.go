package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/chatsync/internal/models"
)

// ErrNoSelection is returned by Selection.Ref when no thread is selected.
var ErrNoSelection = errors.New("no thread selected")

// Selection is the thread picked with "chatsync use". Commands that take an
// optional thread argument fall back to it.
type Selection struct {
	Thread     string    `yaml:"thread,omitempty" json:"thread,omitempty"`
	Title      string    `yaml:"title,omitempty" json:"title,omitempty"`
	SelectedAt time.Time `yaml:"selected_at,omitempty" json:"selected_at,omitempty"`
}

func (s Selection) Empty() bool { return s.Thread == "" }

// Ref parses the stored thread key.
func (s Selection) Ref() (models.ThreadRef, error) {
	if s.Empty() {
		return models.ThreadRef{}, ErrNoSelection
	}
	return models.ParseThreadRef(s.Thread)
}

func (s Selection) String() string {
	switch {
	case s.Empty():
		return "(no context set)"
	case s.Title != "":
		return fmt.Sprintf("%s (%s)", s.Title, s.Thread)
	default:
		return s.Thread
	}
}

// SelectionFile is the yaml file holding the current Selection.
type SelectionFile string

// DefaultSelectionFile lives next to the user config file.
func DefaultSelectionFile() SelectionFile {
	home, _ := os.UserHomeDir()
	return SelectionFile(filepath.Join(home, ".config", "chatsync", "context.yaml"))
}

// Read returns the stored selection. A missing file is an empty selection.
func (f SelectionFile) Read() (Selection, error) {
	var sel Selection
	data, err := os.ReadFile(string(f))
	if errors.Is(err, os.ErrNotExist) {
		return sel, nil
	}
	if err != nil {
		return sel, fmt.Errorf("read %s: %w", f, err)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("parse %s: %w", f, err)
	}
	return sel, nil
}

// Select stores ref as the current thread. The file is replaced atomically.
func (f SelectionFile) Select(ref models.ThreadRef, title string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(Selection{Thread: ref.Key(), Title: title, SelectedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	dir := filepath.Dir(string(f))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".context-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), string(f))
}

// Reset forgets the selection.
func (f SelectionFile) Reset() error {
	if err := os.Remove(string(f)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", f, err)
	}
	return nil
}

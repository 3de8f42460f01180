// Package tui is the terminal inbox: a sidebar with the unread badge, the
// thread list and an open chat room with a compose line.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/portal"
)

const (
	defaultRefreshInterval = 250 * time.Millisecond
	defaultStatusTTL       = 4 * time.Second
	sendTimeout            = 15 * time.Second

	minWindowWidth  = 60
	minWindowHeight = 16
)

// Config controls TUI behavior.
type Config struct {
	RefreshInterval time.Duration
	ShowTimestamps  bool
	Sidebar         portal.SidebarMode
}

// Run mounts the sidebar and inbox and runs the TUI until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, s *portal.Session, cfg Config) error {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	sidebar := s.NewSidebar(cfg.Sidebar)
	if err := sidebar.Mount(ctx); err != nil {
		return err
	}
	defer sidebar.Unmount()

	inbox := s.NewInbox()
	if err := inbox.Mount(ctx); err != nil {
		return err
	}
	defer inbox.Unmount()

	m := newModel(ctx, s, sidebar, inbox, cfg)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if fm, ok := final.(model); ok && fm.room != nil {
		fm.room.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type uiMode int

const (
	modeInbox uiMode = iota
	modeRoom
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusErr
)

type model struct {
	ctx             context.Context
	session         *portal.Session
	sidebar         *portal.Sidebar
	inbox           *portal.Inbox
	refreshInterval time.Duration
	showTimestamps  bool
	palette         palette

	width  int
	height int

	mode     uiMode
	threads  []models.ThreadSummary
	selected int
	room     *portal.Room
	opening  bool
	messages []models.Message
	compose  string

	statusText    string
	statusKind    statusKind
	statusExpires time.Time
	quitting      bool
}

type tickMsg struct{}

type roomOpenedMsg struct {
	room *portal.Room
	err  error
}

type sentMsg struct {
	err error
}

func newModel(ctx context.Context, s *portal.Session, sidebar *portal.Sidebar, inbox *portal.Inbox, cfg Config) model {
	m := model{
		ctx:             ctx,
		session:         s,
		sidebar:         sidebar,
		inbox:           inbox,
		refreshInterval: cfg.RefreshInterval,
		showTimestamps:  cfg.ShowTimestamps,
		palette:         defaultPalette,
		mode:            modeInbox,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.statusExpires.IsZero() && time.Now().After(m.statusExpires) {
			m.statusText = ""
		}
		m.refresh()
		return m, m.tickCmd()
	case roomOpenedMsg:
		m.opening = false
		if msg.err != nil {
			m.setStatus(statusErr, msg.err.Error())
			return m, nil
		}
		m.room = msg.room
		m.mode = modeRoom
		m.compose = ""
		m.refresh()
		return m, nil
	case sentMsg:
		if msg.err != nil {
			m.setStatus(statusErr, "send failed: "+msg.err.Error())
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeRoom {
			return m.updateRoomMode(msg)
		}
		return m.updateInboxMode(msg)
	}
	return m, nil
}

func (m model) updateInboxMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.moveSelection(-1)
	case "down", "j":
		m.moveSelection(1)
	case "home", "g":
		m.selected = 0
	case "end", "G":
		m.moveSelection(len(m.threads))
	case "tab":
		mode := m.sidebar.Toggle()
		if mode == portal.SidebarLocked {
			m.setStatus(statusInfo, "sidebar is locked")
		}
	case "r":
		if thread, ok := m.selectedThread(); ok {
			m.session.MarkAsRead(m.ctx, thread.Ref)
			m.setStatus(statusOK, "marked "+thread.Title+" read")
			m.refresh()
		}
	case "enter":
		if thread, ok := m.selectedThread(); ok && !m.opening {
			m.opening = true
			m.setStatus(statusInfo, "opening "+thread.Title+"...")
			return m, m.openRoomCmd(thread.Ref)
		}
	}
	return m, nil
}

func (m model) updateRoomMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeRoom()
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.compose)
		if text == "" {
			return m, nil
		}
		m.compose = ""
		return m, m.sendCmd(text)
	case tea.KeyBackspace:
		if r := []rune(m.compose); len(r) > 0 {
			m.compose = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeyCtrlU:
		m.compose = ""
		return m, nil
	case tea.KeySpace:
		m.compose += " "
		return m, nil
	case tea.KeyRunes:
		m.compose += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m *model) closeRoom() {
	if m.room != nil {
		m.room.Close()
	}
	m.room = nil
	m.messages = nil
	m.compose = ""
	m.mode = modeInbox
	m.refresh()
}

func (m *model) moveSelection(delta int) {
	if len(m.threads) == 0 {
		m.selected = 0
		return
	}
	m.selected += delta
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= len(m.threads) {
		m.selected = len(m.threads) - 1
	}
}

func (m model) selectedThread() (models.ThreadSummary, bool) {
	if m.selected < 0 || m.selected >= len(m.threads) {
		return models.ThreadSummary{}, false
	}
	return m.threads[m.selected], true
}

// refresh re-reads the store. The selection follows the selected thread
// when the list reorders.
func (m *model) refresh() {
	var current models.ThreadRef
	if thread, ok := m.selectedThread(); ok {
		current = thread.Ref
	}
	m.threads = m.inbox.Threads()
	if !current.IsZero() {
		for i, thread := range m.threads {
			if thread.Ref == current {
				m.selected = i
				break
			}
		}
	}
	m.moveSelection(0)

	if m.room != nil {
		m.messages = m.room.Messages()
	}
}

func (m *model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.statusText = strings.TrimSpace(text)
	m.statusExpires = time.Now().Add(defaultStatusTTL)
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m model) openRoomCmd(ref models.ThreadRef) tea.Cmd {
	ctx := m.ctx
	s := m.session
	return func() tea.Msg {
		room, err := s.OpenRoom(ctx, ref)
		return roomOpenedMsg{room: room, err: err}
	}
}

func (m model) sendCmd(text string) tea.Cmd {
	ctx := m.ctx
	room := m.room
	if room == nil {
		return nil
	}
	return func() tea.Msg {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		_, err := room.Send(sendCtx, text)
		return sentMsg{err: err}
	}
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/portal"
)

type palette struct {
	Text    string
	Muted   string
	Accent  string
	Panel   string
	Border  string
	Success string
	Error   string
	Warning string
}

var defaultPalette = palette{
	Text:    "#E6E6E6",
	Muted:   "#8A8F98",
	Accent:  "#5FAFFF",
	Panel:   "#1F2430",
	Border:  "#3B4252",
	Success: "#7FD88F",
	Error:   "#FF6B6B",
	Warning: "#F5C26B",
}

const sidebarWidth = 22

func (m model) View() string {
	if m.quitting {
		return ""
	}

	width := m.effectiveWidth()
	height := m.effectiveHeight()

	overhead := 2
	if m.statusText != "" {
		overhead++
	}
	paneHeight := maxInt(4, height-overhead)

	var main string
	mainWidth := width
	if m.sidebarVisible() {
		mainWidth = width - sidebarWidth - 1
	}
	if m.mode == modeRoom && m.room != nil {
		main = m.renderRoom(mainWidth, paneHeight)
	} else {
		main = m.renderThreadList(mainWidth, paneHeight)
	}

	body := main
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(paneHeight), " ", main)
	}

	parts := []string{m.renderHeader(width), body}
	if m.statusText != "" {
		parts = append(parts, m.renderStatusLine(width))
	}
	parts = append(parts, m.renderKeys(width))
	return strings.Join(parts, "\n")
}

func (m model) sidebarVisible() bool {
	return m.sidebar.Mode() != portal.SidebarCollapsed
}

func (m model) renderHeader(width int) string {
	user := m.session.User()
	name := user.FullName
	if strings.TrimSpace(name) == "" {
		name = user.ID
	}
	header := fmt.Sprintf("chatsync  %s  unread:%d", name, m.sidebar.Badge())
	if m.mode == modeRoom && m.room != nil {
		header += "  room:" + m.room.Title()
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.palette.Text)).
		Background(lipgloss.Color(m.palette.Panel)).
		Padding(0, 1).
		Width(width).
		Render(truncateLine(header, width-2))
}

func (m model) renderSidebar(height int) string {
	breakdown := m.sidebar.Breakdown()
	badge := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Accent)).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Muted))

	lines := []string{
		"Chat " + badge.Render(badgeLabel(breakdown.Total)),
		muted.Render(fmt.Sprintf("groups  %d", breakdown.Groups)),
		muted.Render(fmt.Sprintf("direct  %d", breakdown.Direct)),
		"",
		"Inbox",
	}
	if m.sidebar.RefundLinkVisible() {
		lines = append(lines, "Refunds")
	}
	if m.sidebar.Mode() == portal.SidebarLocked {
		lines = append(lines, "", muted.Render("(locked)"))
	}

	return lipgloss.NewStyle().
		Width(sidebarWidth-2).
		Height(height-2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.palette.Border)).
		Render(strings.Join(lines, "\n"))
}

func badgeLabel(total int) string {
	switch {
	case total <= 0:
		return ""
	case total > 99:
		return "99+"
	default:
		return fmt.Sprintf("%d", total)
	}
}

func (m model) renderThreadList(width, height int) string {
	if len(m.threads) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.palette.Muted)).
			Render("No conversations yet.")
	}

	start, end := windowBounds(len(m.threads), height, m.selected)
	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, m.renderThreadRow(m.threads[i], i == m.selected, width))
	}
	return strings.Join(rows, "\n")
}

func (m model) renderThreadRow(thread models.ThreadSummary, selected bool, width int) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	kind := "#"
	if thread.Ref.Kind == models.ThreadKindDirect {
		kind = "@"
	}

	title := kind + thread.Title
	if thread.UnreadCount > 0 {
		title = fmt.Sprintf("%s (%d)", title, thread.UnreadCount)
	}
	line := marker + title
	if preview := strings.TrimSpace(thread.LastMessage); preview != "" {
		line += "  " + strings.ReplaceAll(preview, "\n", " ")
	}
	line = truncateLine(line, width)

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Text))
	if thread.UnreadCount > 0 {
		style = style.Bold(true)
	}
	if selected {
		style = style.Foreground(lipgloss.Color(m.palette.Accent))
	}
	return style.Render(line)
}

func (m model) renderRoom(width, height int) string {
	composeLine := m.renderCompose(width)
	available := maxInt(1, height-lipgloss.Height(composeLine)-1)

	var lines []string
	for _, msg := range m.messages {
		lines = append(lines, renderMessage(m.palette, msg, width, m.showTimestamps)...)
	}
	if len(lines) == 0 {
		lines = []string{lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Muted)).Render("No messages yet.")}
	}
	if len(lines) > available {
		lines = lines[len(lines)-available:]
	}
	return strings.Join(lines, "\n") + "\n\n" + composeLine
}

func renderMessage(p palette, msg models.Message, width int, showTimestamps bool) []string {
	header := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)).Bold(true).Render(msg.Sender.DisplayName())
	if showTimestamps && !msg.Timestamp.IsZero() {
		header += " " + lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)).Render(msg.Timestamp.Local().Format("15:04"))
	}
	switch {
	case msg.Unsent:
		header += " " + lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Render("not sent")
	case msg.Provisional:
		header += " " + lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)).Render("sending")
	}

	body := wordwrap.String(msg.Text, maxInt(10, width-2))
	lines := []string{header}
	for _, line := range strings.Split(body, "\n") {
		lines = append(lines, "  "+line)
	}
	return lines
}

func (m model) renderCompose(width int) string {
	prompt := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Accent)).Render("> ")
	return prompt + truncateLine(m.compose+"_", maxInt(1, width-2))
}

func (m model) renderStatusLine(width int) string {
	color := m.palette.Muted
	switch m.statusKind {
	case statusOK:
		color = m.palette.Success
	case statusErr:
		color = m.palette.Error
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(truncateLine(m.statusText, width))
}

func (m model) renderKeys(width int) string {
	keys := "j/k move  enter open  r mark read  tab sidebar  q quit"
	if m.mode == modeRoom {
		keys = "enter send  esc back  ctrl+u clear  ctrl+c quit"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Muted)).Render(truncateLine(keys, width))
}

func (m model) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return maxInt(m.width, minWindowWidth)
}

func (m model) effectiveHeight() int {
	if m.height <= 0 {
		return 30
	}
	return maxInt(m.height, minWindowHeight)
}

// windowBounds returns the visible slice of a list of total rows that keeps
// selected in view.
func windowBounds(total, available, selected int) (int, int) {
	if total <= available || available <= 0 {
		return 0, total
	}
	start := selected - available/2
	if start < 0 {
		start = 0
	}
	if start+available > total {
		start = total - available
	}
	return start, start + available
}

func truncateLine(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= width {
		return text
	}
	plain := []rune(text)
	if len(plain) <= width {
		return string(plain)
	}
	if width <= 3 {
		return string(plain[:width])
	}
	return string(plain[:width-3]) + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/notify"
)

// notificationSource is the part of *notify.Center the watch view
// drives.
type notificationSource interface {
	Snapshot() notify.Snapshot
	OnChange(listener func(notify.Snapshot)) (remove func())
	Refresh(ctx context.Context) error
	MarkRead(ctx context.Context, notificationID int64) error
	MarkAllRead(ctx context.Context) error
}

type watchKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Read    key.Binding
	ReadAll key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (keys watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Read, keys.ReadAll, keys.Refresh, keys.Quit}
}

func (keys watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{keys.ShortHelp()}
}

var defaultWatchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Read: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "mark read"),
	),
	ReadAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "mark all read"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// watchStyles holds the lipgloss styles of the watch view. Colors are
// ANSI 256 codes.
type watchStyles struct {
	Header   lipgloss.Style
	Unread   lipgloss.Style
	Read     lipgloss.Style
	Selected lipgloss.Style
	Faint    lipgloss.Style
	Error    lipgloss.Style
	Tab      map[notify.Tab]lipgloss.Style
}

func defaultWatchStyles() watchStyles {
	return watchStyles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		Unread:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		Read:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Selected: lipgloss.NewStyle().Background(lipgloss.Color("237")).Foreground(lipgloss.Color("255")),
		Faint:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Tab: map[notify.Tab]lipgloss.Style{
			notify.TabBuddies:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
			notify.TabChats:    lipgloss.NewStyle().Foreground(lipgloss.Color("180")),
			notify.TabOverview: lipgloss.NewStyle().Foreground(lipgloss.Color("146")),
		},
	}
}

type snapshotMsg struct{ snapshot notify.Snapshot }

type actionDoneMsg struct {
	status string
	err    error
}

type sessionEndedMsg struct{ reason string }

// watchModel is the bubbletea model of 'notifications watch'. It
// renders the center's snapshots as they are published; the center
// itself polls.
type watchModel struct {
	ctx     context.Context
	source  notificationSource
	updates <-chan notify.Snapshot
	remove  func()

	snapshot notify.Snapshot
	cursor   int
	busy     bool
	status   string
	ended    string

	width  int
	height int

	keys    watchKeyMap
	styles  watchStyles
	spinner spinner.Model
	help    help.Model
}

func newWatchModel(ctx context.Context, source notificationSource) watchModel {
	updates, remove := subscribeSnapshots(source)
	indicator := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	snapshot := source.Snapshot()
	return watchModel{
		ctx:      ctx,
		source:   source,
		updates:  updates,
		remove:   remove,
		snapshot: snapshot,
		busy:     !snapshot.Loaded,
		width:    80,
		height:   24,
		keys:     defaultWatchKeys,
		styles:   defaultWatchStyles(),
		spinner:  indicator,
		help:     help.New(),
	}
}

// Close detaches the model from the source.
func (model watchModel) Close() {
	if model.remove != nil {
		model.remove()
	}
}

// subscribeSnapshots forwards published snapshots to a channel that
// holds only the newest one, so a slow renderer never blocks the
// publisher.
func subscribeSnapshots(source notificationSource) (<-chan notify.Snapshot, func()) {
	updates := make(chan notify.Snapshot, 1)
	remove := source.OnChange(func(snapshot notify.Snapshot) {
		for {
			select {
			case updates <- snapshot:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	return updates, remove
}

func listenForSnapshot(updates <-chan notify.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg{snapshot: snapshot}
	}
}

func (model watchModel) Init() tea.Cmd {
	return tea.Batch(listenForSnapshot(model.updates), model.spinner.Tick)
}

func (model watchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case snapshotMsg:
		model.snapshot = message.snapshot
		if model.snapshot.Loaded || model.snapshot.Err != nil {
			model.busy = false
		}
		model.clampCursor()
		return model, listenForSnapshot(model.updates)

	case actionDoneMsg:
		model.busy = false
		if message.err != nil {
			model.status = cli.Classify(message.err).Error()
		} else {
			model.status = message.status
		}
		model.snapshot = model.source.Snapshot()
		model.clampCursor()
		return model, nil

	case sessionEndedMsg:
		model.ended = message.reason
		if model.ended == "" {
			model.ended = "logged out"
		}
		return model, tea.Quit

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		return model, nil

	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model watchModel) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.snapshot.Notifications)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.Refresh):
		model.busy = true
		model.status = ""
		source, ctx := model.source, model.ctx
		return model, func() tea.Msg {
			return actionDoneMsg{status: "refreshed", err: source.Refresh(ctx)}
		}

	case key.Matches(message, model.keys.Read):
		selected, ok := model.selected()
		if !ok || selected.Read {
			return model, nil
		}
		model.busy = true
		source, ctx := model.source, model.ctx
		return model, func() tea.Msg {
			if err := source.MarkRead(ctx, selected.ID); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{status: fmt.Sprintf("marked %q read", selected.Title)}
		}

	case key.Matches(message, model.keys.ReadAll):
		if model.snapshot.Unread == 0 {
			return model, nil
		}
		model.busy = true
		source, ctx := model.source, model.ctx
		return model, func() tea.Msg {
			if err := source.MarkAllRead(ctx); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{status: "all notifications marked read"}
		}
	}
	return model, nil
}

func (model watchModel) selected() (schema.Notification, bool) {
	if model.cursor < 0 || model.cursor >= len(model.snapshot.Notifications) {
		return schema.Notification{}, false
	}
	return model.snapshot.Notifications[model.cursor], true
}

func (model *watchModel) clampCursor() {
	last := len(model.snapshot.Notifications) - 1
	if model.cursor > last {
		model.cursor = last
	}
	if model.cursor < 0 {
		model.cursor = 0
	}
}

// listHeight is the number of rows left for notifications after the
// header, status, and help lines.
func (model watchModel) listHeight() int {
	return max(model.height-4, 1)
}

func (model watchModel) View() string {
	var builder strings.Builder

	header := fmt.Sprintf("Notifications  %d unread", model.snapshot.Unread)
	if model.busy {
		header += "  " + model.spinner.View()
	}
	builder.WriteString(model.styles.Header.Render(ansi.Truncate(header, model.width, "…")))
	builder.WriteByte('\n')

	switch {
	case model.snapshot.Err != nil:
		line := "update failed: " + cli.Classify(model.snapshot.Err).Error()
		builder.WriteString(model.styles.Error.Render(ansi.Truncate(line, model.width, "…")))
	case model.status != "":
		builder.WriteString(model.styles.Faint.Render(ansi.Truncate(model.status, model.width, "…")))
	}
	builder.WriteByte('\n')

	notifications := model.snapshot.Notifications
	switch {
	case len(notifications) == 0 && !model.snapshot.Loaded:
		builder.WriteString(model.styles.Faint.Render("Loading…"))
		builder.WriteByte('\n')
	case len(notifications) == 0:
		builder.WriteString(model.styles.Faint.Render("No notifications."))
		builder.WriteByte('\n')
	default:
		height := model.listHeight()
		start := 0
		if model.cursor >= height {
			start = model.cursor - height + 1
		}
		end := min(start+height, len(notifications))
		for index := start; index < end; index++ {
			builder.WriteString(model.renderRow(notifications[index], index == model.cursor))
			builder.WriteByte('\n')
		}
	}

	builder.WriteString(model.help.View(model.keys))
	return builder.String()
}

func (model watchModel) renderRow(notification schema.Notification, selected bool) string {
	marker := "  "
	style := model.styles.Read
	if !notification.Read {
		marker = "● "
		style = model.styles.Unread
	}
	tab := notify.NavigationTarget(notification)
	tabLabel := fmt.Sprintf("%-9s", tab)
	when := formatTime(notification.Timestamp)

	prefixWidth := ansi.StringWidth(marker) + ansi.StringWidth(when) + 1 + len(tabLabel) + 1
	text := notification.Title
	if notification.Message != "" {
		text += ": " + notification.Message
	}
	text = ansi.Truncate(text, max(model.width-prefixWidth, 1), "…")

	if selected {
		line := marker + when + " " + tabLabel + " " + text
		padding := max(model.width-ansi.StringWidth(line), 0)
		return model.styles.Selected.Render(line + strings.Repeat(" ", padding))
	}
	tabStyle, ok := model.styles.Tab[tab]
	if !ok {
		tabStyle = model.styles.Faint
	}
	return style.Render(marker) + model.styles.Faint.Render(when) + " " +
		tabStyle.Render(tabLabel) + " " + style.Render(text)
}

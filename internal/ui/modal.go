package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/klaxon/internal/alarm"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// menuItem is one entry of the action menu.
type menuItem struct {
	label    string
	action   alarm.Action
	duration time.Duration // timed sticky acknowledge; zero is indefinite
}

// actionChosenMsg is sent when the operator picks an action.
type actionChosenMsg struct {
	item menuItem
	ids  []int64
}

// actionMenu offers the actions legal for the current selection.
type actionMenu struct {
	ids    []int64
	items  []menuItem
	cursor int
}

// buildMenu lists the actions in set. Timed sticky acknowledgement entries are
// added for each preset when the server allows them.
func buildMenu(set alarm.ActionSet, timedAck bool, presets []time.Duration) []menuItem {
	var items []menuItem
	for _, a := range set.List() {
		switch a {
		case alarm.ActionAcknowledge:
			items = append(items, menuItem{label: "Acknowledge", action: a})
		case alarm.ActionStickyAcknowledge:
			items = append(items, menuItem{label: "Sticky acknowledge", action: a})
			if timedAck {
				for _, d := range presets {
					items = append(items, menuItem{
						label:    "Sticky acknowledge for " + formatPreset(d),
						action:   a,
						duration: d,
					})
				}
			}
		case alarm.ActionResolve:
			items = append(items, menuItem{label: "Resolve", action: a})
		case alarm.ActionTerminate:
			items = append(items, menuItem{label: "Terminate", action: a})
		}
	}
	return items
}

func formatPreset(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour && d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return d.String()
	}
}

func (m *actionMenu) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil, false
	}
	switch {
	case key.Matches(keyMsg, keys.Escape), key.Matches(keyMsg, keys.Quit):
		return m, nil, true
	case key.Matches(keyMsg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, keys.Confirm):
		if len(m.items) == 0 {
			return m, nil, true
		}
		chosen := actionChosenMsg{item: m.items[m.cursor], ids: m.ids}
		return m, func() tea.Msg { return chosen }, true
	}
	return m, nil, false
}

func (m *actionMenu) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	noun := "alarm"
	if len(m.ids) != 1 {
		noun = "alarms"
	}
	b.WriteString(styles.AccentText.Render(fmt.Sprintf("Actions for %d %s", len(m.ids), noun)))
	b.WriteString("\n\n")
	if len(m.items) == 0 {
		b.WriteString(styles.MutedText.Render("No actions available for this selection"))
	}
	for i, item := range m.items {
		line := "  " + item.label
		if i == m.cursor {
			line = styles.Selected.Render("> " + item.label)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("enter select · esc cancel"))

	box := styles.Modal.Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

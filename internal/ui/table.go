package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/klaxon/internal/alarm"
)

// column describes one alarm table column.
type column struct {
	title string
	width int
	cell  func(m Model, a alarm.Alarm) string
}

// tableKeyMap keeps only navigation keys on the table so the list keys
// (space, f, d) stay free for alarm actions.
func tableKeyMap() table.KeyMap {
	km := table.DefaultKeyMap()
	km.PageDown = key.NewBinding(key.WithKeys("pgdown"))
	km.PageUp = key.NewBinding(key.WithKeys("pgup"))
	km.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))
	km.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	return km
}

func (m *Model) applyTableStyles() {
	styles := m.theme.Styles()
	s := table.DefaultStyles()
	s.Header = styles.TableHeader
	s.Selected = styles.Selected.Bold(false)
	s.Cell = s.Cell.Foreground(lipgloss.Color(m.theme.Text))
	m.table.SetStyles(s)
}

// columns picks the visible columns for the terminal width. The message
// column takes whatever width is left.
func (m Model) columns() []column {
	compact := m.width > 0 && m.width < LayoutCompactWidth
	cols := []column{
		{title: " ", width: 1, cell: selectCell},
		{title: "Time", width: 14, cell: timeCell},
		{title: "Severity", width: 8, cell: severityCell},
	}
	if compact {
		cols[1].width = 8
	} else {
		cols = append(cols, column{title: "State", width: 12, cell: stateCell})
	}
	cols = append(cols, column{title: "Source", width: 20, cell: sourceCell})
	if m.zoning && m.width >= LayoutZoneWidth {
		cols = append(cols, column{title: "Zone", width: 16, cell: zoneCell})
	}
	if !compact {
		cols = append(cols, column{title: "Rpt", width: 4, cell: repeatCell})
	}

	used := 0
	for _, c := range cols {
		used += c.width + 2 // cell padding
	}
	msgWidth := max(m.width-used-2, 10)
	return append(cols, column{title: "Message", width: msgWidth, cell: messageCell})
}

func (m *Model) resizeTable() {
	cols := m.columns()
	tc := make([]table.Column, len(cols))
	for i, c := range cols {
		tc[i] = table.Column{Title: c.title, Width: c.width}
	}
	prev, hadCursor := m.cursorID()
	// Rows must never outnumber the columns while the set changes. Clearing
	// them pulls the table cursor to -1.
	m.table.SetRows(nil)
	m.table.SetColumns(tc)
	m.table.SetWidth(m.width)
	m.table.SetHeight(max(m.height-chromeRows, 3))
	m.syncTable()
	if hadCursor {
		m.focusAlarm(prev)
	}
}

func (m *Model) syncTable() {
	cols := m.columns()
	if len(m.table.Columns()) != len(cols) {
		// Width not known yet.
		return
	}
	rows := make([]table.Row, len(m.rows))
	for i, h := range m.rows {
		a := h.Alarm()
		row := make(table.Row, len(cols))
		for j, c := range cols {
			row[j] = c.cell(*m, a)
		}
		rows[i] = row
	}
	m.table.SetRows(rows)
	m.clampCursor()
}

// clampCursor keeps the cursor on a row whenever there are rows.
func (m *Model) clampCursor() {
	n := len(m.table.Rows())
	if n == 0 {
		return
	}
	if c := m.table.Cursor(); c < 0 || c >= n {
		m.table.SetCursor(min(max(c, 0), n-1))
	}
}

// focusAlarm moves the cursor to id and reports whether it is displayed.
func (m *Model) focusAlarm(id int64) bool {
	for i, h := range m.rows {
		if h.ID() == id {
			m.table.SetCursor(i)
			return true
		}
	}
	return false
}

func selectCell(m Model, a alarm.Alarm) string {
	if m.selected[a.ID] {
		return "*"
	}
	return ""
}

func timeCell(m Model, a alarm.Alarm) string {
	if a.LastChangeTime.IsZero() {
		return "-"
	}
	t := a.LastChangeTime.Local()
	if m.width > 0 && m.width < LayoutCompactWidth {
		return t.Format("15:04:05")
	}
	return t.Format("01-02 15:04:05")
}

func severityCell(_ Model, a alarm.Alarm) string { return a.Severity.String() }

func stateCell(_ Model, a alarm.Alarm) string {
	s := a.State.String()
	if a.State == alarm.StateAcknowledged && a.Sticky {
		s += " (S)"
	}
	return s
}

func sourceCell(m Model, a alarm.Alarm) string {
	if m.names == nil {
		return fmt.Sprintf("[%d]", a.SourceObjectID)
	}
	return m.names.Name(a.SourceObjectID)
}

func zoneCell(m Model, a alarm.Alarm) string {
	if m.names == nil || a.ZoneUIN == 0 {
		return ""
	}
	return m.names.ZoneName(a.ZoneUIN)
}

func repeatCell(_ Model, a alarm.Alarm) string {
	if a.RepeatCount <= 1 {
		return ""
	}
	return fmt.Sprintf("%d", a.RepeatCount)
}

func messageCell(_ Model, a alarm.Alarm) string {
	return strings.Join(strings.Fields(a.Message), " ")
}

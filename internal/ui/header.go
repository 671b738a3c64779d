package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/klaxon/internal/alarm"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	b.WriteString(m.renderBanner())
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	b.WriteString(m.renderFooter())
	return b.String()
}

// outstandingBySeverity counts outstanding alarms per severity.
func outstandingBySeverity(alarms []alarm.Alarm) [alarm.SeverityCount]int {
	var counts [alarm.SeverityCount]int
	for _, a := range alarms {
		if a.State == alarm.StateOutstanding && a.Severity >= 0 && int(a.Severity) < len(counts) {
			counts[a.Severity]++
		}
	}
	return counts
}

// renderHeader renders the status bar: server, sync health and outstanding
// alarms by severity.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	sep := "  "

	parts := []string{styles.Logo.Render("klaxon")}
	if m.server != "" {
		parts = append(parts, styles.MutedText.Render(m.server))
	}

	snap := m.snapshot
	switch {
	case snap.LastError != nil && snap.IsOffline():
		parts = append(parts, styles.DangerText.Render("OFFLINE"), styles.MutedText.Render(truncate(snap.LastError.Error(), 48)))
	case snap.LastError != nil:
		parts = append(parts, styles.WarningText.Render("sync failed, retrying"))
	case snap.LastSync.IsZero():
		parts = append(parts, styles.WarningText.Render("connecting..."))
	default:
		parts = append(parts, styles.SuccessText.Render("online"))
	}

	parts = append(parts, styles.Text.Render(fmt.Sprintf("%d outstanding", snap.Outstanding)))
	counts := outstandingBySeverity(snap.Alarms)
	for sev := alarm.SeverityCritical; sev >= alarm.SeverityNormal; sev-- {
		if counts[sev] == 0 {
			continue
		}
		parts = append(parts, styles.SeverityBadge(sev).Render(fmt.Sprintf("%s %d", sev, counts[sev])))
	}

	if !snap.LastSync.IsZero() {
		parts = append(parts, styles.FaintText.Render("synced "+snap.LastSync.Local().Format("15:04:05")))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

// renderCommandBar shows the key hints, or the filter input while editing.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	if m.filtering {
		return m.filterInput.View()
	}
	hints := m.help.ShortHelpView(m.keys.ShortHelp())
	if m.filter != nil {
		if q := m.filter.QueryText(); q != "" {
			hints += "  " + styles.AccentText.Render("filter: "+truncate(q, 60))
		}
	}
	return hints
}

// renderBanner shows the error banner, falling back to the display advisory.
func (m Model) renderBanner() string {
	styles := m.theme.Styles()
	switch {
	case m.errBanner != "":
		text := strings.Join(strings.Split(m.errBanner, "\n"), ";")
		return styles.DangerText.Render(truncate(text, max(m.width-16, 20))) + styles.FaintText.Render("  (d dismiss)")
	case m.advisory != "":
		return styles.WarningText.Render(m.advisory)
	default:
		return ""
	}
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var parts []string
	parts = append(parts, fmt.Sprintf("%d shown", len(m.rows)))
	if n := len(m.selected); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	if m.lastSound != "" {
		if sev, ok := alarm.ParseSeverity(m.lastSound); ok {
			parts = append(parts, styles.SeverityText(sev).Render("♪ "+m.lastSound))
		} else {
			parts = append(parts, "♪ "+m.lastSound)
		}
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, m.theme.Name)
	return styles.Footer.Width(m.width).Render(strings.Join(parts, "  ·  "))
}

// truncate shortens s to width cells with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

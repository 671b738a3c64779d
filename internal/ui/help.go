package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Keys"))
	b.WriteString("\n\n")
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(styles.AccentText.Bold(true).Render("Filter"))
	b.WriteString("\n\n")
	for _, line := range []string{
		"State:Outstanding,Acknowledged   Severity:Major,Critical",
		"Source:router   Zone:north   Event:LINK   RepeatCount:>3",
		"NOT State:Resolved   AcknowledgedBy:alice   HasComments:yes",
		"Anything else matches message, source, event and helpdesk text.",
	} {
		b.WriteString(styles.MutedText.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("Press any key to close"))

	box := styles.Modal.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

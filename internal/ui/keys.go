package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Suspend    key.Binding
	Escape     key.Binding

	// Alarm list
	Select      key.Binding
	ClearSelect key.Binding
	Actions     key.Binding
	Filter      key.Binding
	Resync      key.Binding
	LocalSound  key.Binding
	Dismiss     key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Search/input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		// Global
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Suspend: key.NewBinding(
			key.WithKeys("ctrl+z"),
			key.WithHelp("ctrl+z", "Suspend"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close"),
		),

		// Alarm list
		Select: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Select alarm"),
		),
		ClearSelect: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Clear selection"),
		),
		Actions: key.NewBinding(
			key.WithKeys("enter", "a"),
			key.WithHelp("enter", "Alarm actions"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/", "f"),
			key.WithHelp("/", "Filter"),
		),
		Resync: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Resync alarms"),
		),
		LocalSound: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Toggle local sound"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Dismiss banner"),
		),

		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		// Search/input
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Actions, k.Select, k.Filter, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.Select, k.ClearSelect, k.Actions},
		{k.Filter, k.Resync, k.Dismiss},
		{k.LocalSound, k.CycleTheme, k.Suspend, k.Help, k.Quit},
	}
}

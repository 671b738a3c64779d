package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/command"
	"github.com/five82/klaxon/internal/prefs"
	"github.com/five82/klaxon/internal/projector"
	"github.com/five82/klaxon/internal/state"
)

// Commander runs operator actions against the server.
type Commander interface {
	Acknowledge(ctx context.Context, ids []int64, sticky bool, duration time.Duration) command.Report
	Resolve(ctx context.Context, ids []int64) command.Report
	Terminate(ctx context.Context, ids []int64) command.Report
}

// FilterControl edits the display filter query.
type FilterControl interface {
	SetQuery(text string)
	QueryText() string
}

// Projection re-runs the display projection.
type Projection interface {
	Refresh()
	SetActive(active bool)
}

// Visibility pauses and resumes display refreshes.
type Visibility interface {
	SetVisible(visible bool)
}

// Resyncer reloads the full alarm list.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// StatusSource supplies store snapshots for the header.
type StatusSource interface {
	Snapshot() state.Snapshot
}

// NameResolver maps ids to display names.
type NameResolver interface {
	Name(id int64) string
	ZoneName(uin int64) string
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Store      StatusSource
	Names      NameResolver
	Filter     FilterControl
	Projection Projection
	Scheduler  Visibility
	Commands   Commander
	Resync     Resyncer
	Prefs      *prefs.Manager
	// StrictFlow is read each time the action menu opens.
	StrictFlow func() bool
	TimedAck   bool
	Zoning     bool
	Server     string
	PollTick   time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx        context.Context
	store      StatusSource
	names      NameResolver
	filter     FilterControl
	projection Projection
	scheduler  Visibility
	commands   Commander
	resync     Resyncer
	prefs      *prefs.Manager
	strictFlow func() bool
	timedAck   bool
	zoning     bool
	server     string
	pollTick   time.Duration
	keys       keyMap

	// UI state
	theme    Theme
	width    int
	height   int
	ready    bool
	quitting bool
	showHelp bool
	help     help.Model

	// Data state
	rows        []*projector.Handle
	shown       int
	total       int
	selected    map[int64]bool
	table       table.Model
	snapshot    state.Snapshot
	lastUpdated time.Time

	// Banners
	advisory  string
	errBanner string
	status    string
	lastSound string

	// Filter input
	filtering   bool
	filterInput textinput.Model

	modal Modal
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type commandDoneMsg struct{ report command.Report }

type resyncDoneMsg struct{ err error }

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = DefaultUIInterval
	}

	strict := opts.StrictFlow
	if strict == nil {
		strict = func() bool { return true }
	}

	themeName := ""
	if opts.Prefs != nil {
		themeName = opts.Prefs.Get().Theme
	}

	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "State:Outstanding Severity:Major,Critical text"
	if opts.Filter != nil {
		input.SetValue(opts.Filter.QueryText())
	}

	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		names:       opts.Names,
		filter:      opts.Filter,
		projection:  opts.Projection,
		scheduler:   opts.Scheduler,
		commands:    opts.Commands,
		resync:      opts.Resync,
		prefs:       opts.Prefs,
		strictFlow:  strict,
		timedAck:    opts.TimedAck,
		zoning:      opts.Zoning,
		server:      opts.Server,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(themeName),
		help:        help.New(),
		selected:    make(map[int64]bool),
		filterInput: input,
		table: table.New(
			table.WithFocused(true),
			table.WithKeyMap(tableKeyMap()),
		),
	}
	m.applyTableStyles()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.projection != nil {
		cmds = append(cmds, refreshCmd(m.projection))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeTable()
		return m, nil

	case tea.ResumeMsg:
		m.setVisible(true)
		return m, nil

	case displayMsg:
		m.applyUpdate(projector.Update(msg))
		return m, nil

	case advisoryMsg:
		m.advisory = string(msg)
		return m, nil

	case soundMsg:
		m.lastSound = string(msg)
		return m, nil

	case reminderMsg:
		m.status = fmt.Sprintf("Reminder: %d outstanding alarm(s)", m.snapshot.Outstanding)
		return m, nil

	case errorMsg:
		m.errBanner = string(msg)
		return m, nil

	case reportMsg:
		m.errBanner = command.Report(msg).Summary()
		return m, nil

	case actionChosenMsg:
		m.selected = make(map[int64]bool)
		m.syncTable()
		return m, m.dispatch(msg)

	case commandDoneMsg:
		// Failed reports arrive separately through the command reporter.
		if msg.report.Clean() {
			m.status = msg.report.Summary()
		}
		return m, nil

	case resyncDoneMsg:
		if msg.err == nil {
			m.status = "Alarm list synchronized"
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.pollTick)}
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.modal != nil {
		modal, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
		} else {
			m.modal = modal
		}
		return m, cmd
	}

	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.projection != nil {
			m.projection.SetActive(false)
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.applyTableStyles()
		if m.prefs != nil {
			name := m.theme.Name
			if err := m.prefs.Update(func(p *prefs.Prefs) { p.Theme = name }); err != nil {
				m.errBanner = fmt.Sprintf("Cannot save preferences: %v", err)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Suspend):
		m.setVisible(false)
		return m, tea.Suspend

	case key.Matches(msg, m.keys.Select):
		if id, ok := m.cursorID(); ok {
			if m.selected[id] {
				delete(m.selected, id)
			} else {
				m.selected[id] = true
			}
			m.syncTable()
		}
		return m, nil

	case key.Matches(msg, m.keys.ClearSelect):
		m.selected = make(map[int64]bool)
		m.syncTable()
		return m, nil

	case key.Matches(msg, m.keys.Actions):
		m.openActions()
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		if m.filter == nil {
			return m, nil
		}
		m.filtering = true
		m.filterInput.SetValue(m.filter.QueryText())
		m.filterInput.CursorEnd()
		cmd := m.filterInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Resync):
		if m.resync == nil {
			return m, nil
		}
		m.status = "Synchronizing alarm list..."
		return m, resyncCmd(m.ctx, m.resync)

	case key.Matches(msg, m.keys.LocalSound):
		m.toggleLocalSound()
		return m, nil

	case key.Matches(msg, m.keys.Dismiss), key.Matches(msg, m.keys.Escape):
		m.errBanner = ""
		m.status = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
		m.filterInput.Blur()
		m.filter.SetQuery(m.filterInput.Value())
		m.advisory = ""
		if m.projection != nil {
			return m, refreshCmd(m.projection)
		}
		return m, nil
	case tea.KeyEsc:
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

// applyUpdate folds a projection result into the table. Patch updates carry
// handles already in m.rows, so only the rendered cells change.
func (m *Model) applyUpdate(u projector.Update) {
	if !u.Structural {
		m.syncTable()
		return
	}

	prev, hadCursor := m.cursorID()
	m.rows = u.Rows
	m.shown, m.total = u.Shown, u.Total

	present := make(map[int64]bool, len(m.rows))
	for _, h := range m.rows {
		present[h.ID()] = true
	}
	for id := range m.selected {
		if !present[id] {
			delete(m.selected, id)
		}
	}

	m.syncTable()
	if hadCursor {
		m.focusAlarm(prev)
	}
}

func (m Model) cursorID() (int64, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return 0, false
	}
	return m.rows[i].ID(), true
}

// targets returns the selected alarms in display order, or the alarm under
// the cursor when nothing is selected.
func (m Model) targets() ([]int64, []alarm.Alarm) {
	var (
		ids    []int64
		alarms []alarm.Alarm
	)
	if len(m.selected) > 0 {
		for _, h := range m.rows {
			if m.selected[h.ID()] {
				ids = append(ids, h.ID())
				alarms = append(alarms, h.Alarm())
			}
		}
		return ids, alarms
	}
	i := m.table.Cursor()
	if i >= 0 && i < len(m.rows) {
		return []int64{m.rows[i].ID()}, []alarm.Alarm{m.rows[i].Alarm()}
	}
	return nil, nil
}

func (m *Model) openActions() {
	ids, alarms := m.targets()
	if len(ids) == 0 || m.commands == nil {
		return
	}
	set := alarm.AvailableActions(alarm.StatesOf(alarms), m.strictFlow())
	presets := command.TimedAckPresets()
	if m.prefs != nil {
		presets = m.prefs.Get().AckPresets()
	}
	m.modal = &actionMenu{ids: ids, items: buildMenu(set, m.timedAck, presets)}
}

func (m Model) dispatch(msg actionChosenMsg) tea.Cmd {
	commands := m.commands
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, CommandTimeout)
		defer cancel()

		var rep command.Report
		switch msg.item.action {
		case alarm.ActionAcknowledge:
			rep = commands.Acknowledge(ctx, msg.ids, false, 0)
		case alarm.ActionStickyAcknowledge:
			rep = commands.Acknowledge(ctx, msg.ids, true, msg.item.duration)
		case alarm.ActionResolve:
			rep = commands.Resolve(ctx, msg.ids)
		case alarm.ActionTerminate:
			rep = commands.Terminate(ctx, msg.ids)
		}
		return commandDoneMsg{report: rep}
	}
}

func (m *Model) toggleLocalSound() {
	if m.prefs == nil {
		return
	}
	var on bool
	err := m.prefs.Update(func(p *prefs.Prefs) {
		p.LocalSound = !p.LocalSound
		on = p.LocalSound
	})
	if err != nil {
		m.errBanner = fmt.Sprintf("Cannot save preferences: %v", err)
	}
	if on {
		m.status = "Sound: alarms in this view"
	} else {
		m.status = "Sound: all alarms"
	}
}

func (m *Model) setVisible(visible bool) {
	if m.scheduler != nil {
		m.scheduler.SetVisible(visible)
	}
	if m.projection != nil {
		m.projection.SetActive(visible)
	}
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store StatusSource) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// refreshCmd runs the projection off the event loop; its results come back
// through the Renderer.
func refreshCmd(p Projection) tea.Cmd {
	return func() tea.Msg {
		p.Refresh()
		return nil
	}
}

func resyncCmd(ctx context.Context, r Resyncer) tea.Cmd {
	return func() tea.Msg {
		return resyncDoneMsg{err: r.Resync(ctx)}
	}
}

// Run starts the Bubble Tea program and attaches r to it until the program
// exits. Cancelling ctx stops the program.
func Run(ctx context.Context, opts Options, r *Renderer) error {
	opts.Context = ctx
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	r.Attach(p)
	defer r.Close()

	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

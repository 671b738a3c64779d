package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/command"
	"github.com/five82/klaxon/internal/prefs"
	"github.com/five82/klaxon/internal/projector"
	"github.com/five82/klaxon/internal/state"
)

type captureView struct {
	mu      sync.Mutex
	updates []projector.Update
}

func (v *captureView) OnDisplaySetChanged(u projector.Update) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates = append(v.updates, u)
}

func (v *captureView) OnAdvisory(string) {}

func (v *captureView) last(t *testing.T) projector.Update {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.updates) == 0 {
		t.Fatalf("no projection delivered")
	}
	return v.updates[len(v.updates)-1]
}

type fakeCommander struct {
	mu     sync.Mutex
	action alarm.Action
	ids    []int64
	sticky bool
	dur    time.Duration
}

func (f *fakeCommander) record(a alarm.Action, ids []int64) command.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.action = a
	f.ids = append([]int64(nil), ids...)
	return command.Report{Action: a, Requested: ids}
}

func (f *fakeCommander) Acknowledge(_ context.Context, ids []int64, sticky bool, d time.Duration) command.Report {
	f.mu.Lock()
	f.sticky, f.dur = sticky, d
	f.mu.Unlock()
	if sticky {
		return f.record(alarm.ActionStickyAcknowledge, ids)
	}
	return f.record(alarm.ActionAcknowledge, ids)
}

func (f *fakeCommander) Resolve(_ context.Context, ids []int64) command.Report {
	return f.record(alarm.ActionResolve, ids)
}

func (f *fakeCommander) Terminate(_ context.Context, ids []int64) command.Report {
	return f.record(alarm.ActionTerminate, ids)
}

type fakeFilter struct{ query string }

func (f *fakeFilter) SetQuery(text string) { f.query = text }
func (f *fakeFilter) QueryText() string    { return f.query }

type fakeProjection struct {
	refreshes int
	active    bool
}

func (p *fakeProjection) Refresh()              { p.refreshes++ }
func (p *fakeProjection) SetActive(active bool) { p.active = active }

type fakeScheduler struct{ visible bool }

func (s *fakeScheduler) SetVisible(v bool) { s.visible = v }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness projects a real store so the model receives genuine handles.
type harness struct {
	store     *state.Store
	view      *captureView
	projector *projector.Projector
}

func newHarness(t *testing.T, alarms ...alarm.Alarm) *harness {
	t.Helper()
	h := &harness{store: state.New(), view: &captureView{}}
	if _, err := h.store.ApplyFullSync(alarms); err != nil {
		t.Fatalf("ApplyFullSync: %v", err)
	}
	h.projector = projector.New(projector.Config{Store: h.store, View: h.view, Logger: zerolog.Nop()})
	h.projector.Run()
	return h
}

func outstanding(id int64, minutes int) alarm.Alarm {
	return alarm.Alarm{
		ID:             id,
		State:          alarm.StateOutstanding,
		Severity:       alarm.SeverityMajor,
		Message:        "link down",
		LastChangeTime: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(t *testing.T, opts Options) Model {
	t.Helper()
	m, _ := send(t, New(opts), tea.WindowSizeMsg{Width: 160, Height: 40})
	return m
}

func TestModel_StructuralUpdateKeepsCursorOnAlarm(t *testing.T) {
	h := newHarness(t, outstanding(1, 1), outstanding(2, 2), outstanding(3, 3))
	m := sized(t, Options{})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	if len(m.rows) != 3 || m.rows[0].ID() != 3 {
		t.Fatalf("rows = %d, first = %d; want 3 rows newest first", len(m.rows), m.rows[0].ID())
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if id, _ := m.cursorID(); id != 2 {
		t.Fatalf("cursor on %d, want 2", id)
	}

	// A newer alarm arrives at the top; the cursor stays on alarm 2.
	if _, err := h.store.Apply(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: outstanding(4, 4)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	h.projector.Run()
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	if id, _ := m.cursorID(); id != 2 {
		t.Fatalf("cursor moved to %d, want 2", id)
	}
}

func TestModel_FirstRowActionableAfterStartup(t *testing.T) {
	h := newHarness(t, outstanding(1, 1), outstanding(2, 2))
	m := sized(t, Options{Commands: &fakeCommander{}})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	if c := m.table.Cursor(); c != 0 {
		t.Fatalf("table cursor = %d after first update, want 0", c)
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := m.modal.(*actionMenu); !ok {
		t.Fatalf("modal = %T, want action menu without moving the cursor first", m.modal)
	}
}

func TestModel_ResizeKeepsCursorOnAlarm(t *testing.T) {
	h := newHarness(t, outstanding(1, 1), outstanding(2, 2), outstanding(3, 3))
	m := sized(t, Options{})
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})

	// Narrow enough to drop columns, then wide again.
	for _, width := range []int{80, 160} {
		m, _ = send(t, m, tea.WindowSizeMsg{Width: width, Height: 30})
		if id, ok := m.cursorID(); !ok || id != 2 {
			t.Fatalf("width %d: cursor on %d (ok=%v), want 2", width, id, ok)
		}
	}
}

func TestModel_CursorReturnsAfterListEmpties(t *testing.T) {
	h := newHarness(t, outstanding(1, 1))
	m := sized(t, Options{})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	if _, err := h.store.Apply(alarm.Notification{Kind: alarm.KindAlarmDeleted, Alarm: alarm.Alarm{ID: 1}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	h.projector.Run()
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	if _, ok := m.cursorID(); ok {
		t.Fatalf("cursor on a row of an empty list")
	}

	if _, err := h.store.Apply(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: outstanding(5, 5)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	h.projector.Run()
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	if id, ok := m.cursorID(); !ok || id != 5 {
		t.Fatalf("cursor on %d (ok=%v), want 5", id, ok)
	}
}

func TestModel_PatchUpdateRendersNewValue(t *testing.T) {
	h := newHarness(t, outstanding(1, 1))
	m := sized(t, Options{})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	changed := outstanding(1, 1)
	changed.State = alarm.StateAcknowledged
	if _, err := h.store.Apply(alarm.Notification{Kind: alarm.KindAlarmChanged, Alarm: changed}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	h.projector.Run()
	u := h.view.last(t)
	if u.Structural {
		t.Fatalf("expected a patch update")
	}
	m, _ = send(t, m, displayMsg(u))

	rows := m.table.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	found := false
	for _, cell := range rows[0] {
		if cell == "Acknowledged" {
			found = true
		}
	}
	if !found {
		t.Fatalf("row %v does not show the new state", rows[0])
	}
}

func TestModel_SelectionDroppedWhenAlarmLeaves(t *testing.T) {
	h := newHarness(t, outstanding(1, 1), outstanding(2, 2))
	m := sized(t, Options{})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.selected[2] {
		t.Fatalf("selected = %v, want alarm 2", m.selected)
	}

	if _, err := h.store.Apply(alarm.Notification{Kind: alarm.KindAlarmDeleted, Alarm: alarm.Alarm{ID: 2}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	h.projector.Run()
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	if len(m.selected) != 0 {
		t.Fatalf("selected = %v, want empty", m.selected)
	}
}

func TestModel_ActionMenuFollowsSelectionStates(t *testing.T) {
	resolved := outstanding(2, 2)
	resolved.State = alarm.StateResolved
	h := newHarness(t, outstanding(1, 1), resolved)

	strict := true
	m := sized(t, Options{
		Commands:   &fakeCommander{},
		StrictFlow: func() bool { return strict },
		Prefs:      prefs.NewManagerWith("", prefs.Default()),
	})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	// Cursor is on the resolved alarm (newest first).
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	menu, ok := m.modal.(*actionMenu)
	if !ok {
		t.Fatalf("modal = %T, want action menu", m.modal)
	}
	if len(menu.items) != 1 || menu.items[0].action != alarm.ActionTerminate {
		t.Fatalf("items = %+v, want terminate only", menu.items)
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	// Mixed outstanding and resolved: strict flow leaves nothing.
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if menu := m.modal.(*actionMenu); len(menu.items) != 0 {
		t.Fatalf("items = %+v, want none", menu.items)
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	// Strict flow is read when the menu opens.
	strict = false
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if menu := m.modal.(*actionMenu); len(menu.items) != 1 || menu.items[0].action != alarm.ActionTerminate {
		t.Fatalf("items = %+v, want terminate", menu.items)
	}
}

func TestModel_DispatchesChosenAction(t *testing.T) {
	h := newHarness(t, outstanding(1, 1), outstanding(2, 2))
	cmdr := &fakeCommander{}
	m := sized(t, Options{Commands: cmdr, TimedAck: true, Prefs: prefs.NewManagerWith("", prefs.Default())})
	m, _ = send(t, m, displayMsg(h.view.last(t)))

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	menu := m.modal.(*actionMenu)
	// Acknowledge, Sticky, four timed presets, Resolve.
	if len(menu.items) != 7 {
		t.Fatalf("items = %d, want 7", len(menu.items))
	}
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.modal != nil || cmd == nil {
		t.Fatalf("menu should close with a command")
	}

	m, cmd = send(t, m, cmd())
	if len(m.selected) != 0 {
		t.Fatalf("selection not cleared after dispatch")
	}
	done := cmd()
	m, _ = send(t, m, done)

	if cmdr.action != alarm.ActionStickyAcknowledge || !cmdr.sticky || cmdr.dur != time.Hour {
		t.Fatalf("dispatched %v sticky=%v dur=%v, want 1h sticky acknowledge", cmdr.action, cmdr.sticky, cmdr.dur)
	}
	if len(cmdr.ids) != 2 || cmdr.ids[0] != 2 || cmdr.ids[1] != 1 {
		t.Fatalf("ids = %v, want [2 1]", cmdr.ids)
	}
	if m.status == "" {
		t.Fatalf("clean report should set the status line")
	}
}

func TestModel_FilterInputAppliesQuery(t *testing.T) {
	f := &fakeFilter{query: "State:Outstanding"}
	p := &fakeProjection{}
	m := sized(t, Options{Filter: f, Projection: p})

	m, _ = send(t, m, keyRunes("/"))
	if !m.filtering {
		t.Fatalf("filter input not opened")
	}
	m, _ = send(t, m, keyRunes(" link"))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.filtering {
		t.Fatalf("filter input still open")
	}
	if f.query != "State:Outstanding link" {
		t.Fatalf("query = %q", f.query)
	}
	if cmd == nil {
		t.Fatalf("expected a refresh command")
	}
	cmd()
	if p.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", p.refreshes)
	}
}

func TestModel_FilterEscapeKeepsQuery(t *testing.T) {
	f := &fakeFilter{query: "Severity:Major"}
	m := sized(t, Options{Filter: f})

	m, _ = send(t, m, keyRunes("/"))
	m, _ = send(t, m, keyRunes("xyz"))
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.filtering || f.query != "Severity:Major" {
		t.Fatalf("filtering=%v query=%q", m.filtering, f.query)
	}
}

func TestModel_IgnoresUpdatesAfterQuit(t *testing.T) {
	h := newHarness(t, outstanding(1, 1))
	p := &fakeProjection{active: true}
	m := sized(t, Options{Projection: p})

	m, cmd := send(t, m, keyRunes("e"))
	if cmd == nil || !m.quitting {
		t.Fatalf("quit key did not quit")
	}
	if p.active {
		t.Fatalf("projection still active after quit")
	}
	m, _ = send(t, m, displayMsg(h.view.last(t)))
	if len(m.rows) != 0 {
		t.Fatalf("rows = %d after quit, want 0", len(m.rows))
	}
	if m.View() != "" {
		t.Fatalf("View after quit should be empty")
	}
}

func TestModel_BannersAndSuspend(t *testing.T) {
	sched := &fakeScheduler{visible: true}
	p := &fakeProjection{active: true}
	m := sized(t, Options{Scheduler: sched, Projection: p})

	m, _ = send(t, m, advisoryMsg("showing 100 of 250 alarms"))
	if got := m.renderBanner(); got == "" {
		t.Fatalf("advisory not shown")
	}
	m, _ = send(t, m, reportMsg(command.Report{
		Action:    alarm.ActionResolve,
		Requested: []int64{7},
		Failures:  []command.Failure{{ID: 7, Code: command.CodeAlarmNotOutstanding, Reason: "alarm is not outstanding"}},
	}))
	if m.errBanner == "" {
		t.Fatalf("report not shown")
	}
	m, _ = send(t, m, keyRunes("d"))
	if m.errBanner != "" {
		t.Fatalf("banner not dismissed")
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyCtrlZ})
	if sched.visible || p.active {
		t.Fatalf("suspend should hide the view")
	}
	_, _ = send(t, m, tea.ResumeMsg{})
	if !sched.visible || !p.active {
		t.Fatalf("resume should show the view")
	}
}

func TestModel_ToggleLocalSoundPersists(t *testing.T) {
	mgr := prefs.NewManagerWith("", prefs.Default())
	m := sized(t, Options{Prefs: mgr})
	_, _ = send(t, m, keyRunes("s"))
	if !mgr.LocalSound() {
		t.Fatalf("local sound not enabled")
	}
}

func TestBuildMenu(t *testing.T) {
	set := alarm.AvailableActions([]alarm.State{alarm.StateOutstanding}, true)
	items := buildMenu(set, false, []time.Duration{time.Hour})
	if len(items) != 3 {
		t.Fatalf("items = %+v, want ack, sticky, resolve", items)
	}
	items = buildMenu(set, true, []time.Duration{time.Hour, 48 * time.Hour})
	if len(items) != 5 || items[2].label != "Sticky acknowledge for 1 hour" || items[3].label != "Sticky acknowledge for 2 days" {
		t.Fatalf("items = %+v", items)
	}
}

package alarm

// Action is an operator command that changes alarm state.
type Action int

const (
	ActionAcknowledge Action = 1 << iota
	ActionStickyAcknowledge
	ActionResolve
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionAcknowledge:
		return "acknowledge"
	case ActionStickyAcknowledge:
		return "sticky-acknowledge"
	case ActionResolve:
		return "resolve"
	case ActionTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// ActionSet is a set of actions offered for a selection.
type ActionSet int

// Has reports whether a is in the set.
func (s ActionSet) Has(a Action) bool {
	return int(s)&int(a) != 0
}

// List returns the actions in menu order.
func (s ActionSet) List() []Action {
	var out []Action
	for _, a := range []Action{ActionAcknowledge, ActionStickyAcknowledge, ActionResolve, ActionTerminate} {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// AvailableActions computes which state-changing actions are legal for every
// alarm in a selection at once. An action is offered only when it is valid for
// each distinct selected state:
//
//   - acknowledge (plain and sticky) only when all alarms are outstanding;
//   - resolve when all alarms are outstanding or acknowledged;
//   - terminate when all alarms are resolved, or always when strict flow is off.
//
// The server stays the final authority; this only drives what is offered.
func AvailableActions(states []State, strictFlow bool) ActionSet {
	if len(states) == 0 {
		return 0
	}

	distinct := make(map[State]struct{}, 4)
	for _, s := range states {
		distinct[s] = struct{}{}
	}
	all := func(ok func(State) bool) bool {
		for s := range distinct {
			if !ok(s) {
				return false
			}
		}
		return true
	}

	var set ActionSet
	if all(func(s State) bool { return s == StateOutstanding }) {
		set |= ActionSet(ActionAcknowledge) | ActionSet(ActionStickyAcknowledge)
	}
	if all(func(s State) bool { return s == StateOutstanding || s == StateAcknowledged }) {
		set |= ActionSet(ActionResolve)
	}
	if !strictFlow || all(func(s State) bool { return s == StateResolved }) {
		set |= ActionSet(ActionTerminate)
	}
	return set
}

// StatesOf collects the states of the given alarms.
func StatesOf(alarms []Alarm) []State {
	out := make([]State, len(alarms))
	for i, a := range alarms {
		out[i] = a.State
	}
	return out
}

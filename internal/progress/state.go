// Package progress tracks the lifecycle of one project's export and forwards
// every change to a display sink.
package progress

// State is the lifecycle state of a project export.
type State string

const (
	StatePending   State = "pending"
	StateCounting  State = "counting"
	StateExporting State = "exporting"
	StateComplete  State = "complete"
	StateHidden    State = "hidden"
	StateError     State = "error"
)

var allowedTransitions = map[State]map[State]struct{}{
	StatePending: {
		StateCounting: {},
	},
	StateCounting: {
		StateHidden:    {},
		StateExporting: {},
		StateError:     {},
	},
	StateExporting: {
		StateComplete: {},
		StateError:    {},
	},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	targets, ok := allowedTransitions[s]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateHidden || s == StateError
}

// Label is the display text for the state.
func (s State) Label() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateCounting:
		return "Counting"
	case StateExporting:
		return "Exporting"
	case StateComplete:
		return "Complete"
	case StateHidden:
		return "No issues"
	case StateError:
		return "Error"
	default:
		return string(s)
	}
}

package present

import "chorus/internal/domain"

// FlagNotes is the refinement note attached when flagging interactively.
const FlagNotes = "Flagged from UI"

type ActionKind string

const (
	ActionTransition ActionKind = "transition"
	ActionFlag       ActionKind = "flag_refinement"
)

// Action is a user action offered for a task.
type Action struct {
	Kind   ActionKind
	Target domain.Status
	Label  string
}

// CanFlag reports whether flag-for-refinement is offered. Tasks already
// needing refinement are not flagged again.
func CanFlag(t domain.Task) bool {
	return t.Readiness != domain.ReadinessNeedsRefinement
}

// Actions lists the status transitions and the flag action available for t.
// The server remains the authority and may still reject any of them.
func Actions(t domain.Task) []Action {
	var out []Action
	for _, to := range domain.Transitions(t.Status) {
		out = append(out, Action{
			Kind:   ActionTransition,
			Target: to,
			Label:  "→ " + StatusBadge(to).Label,
		})
	}
	if CanFlag(t) {
		out = append(out, Action{Kind: ActionFlag, Label: "Flag refinement"})
	}
	return out
}

package domain

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// statusTransitions lists the targets offered from each status in display
// order. It must agree with the machine built by NextStatus.
var statusTransitions = map[Status][]Status{
	StatusTodo:   {StatusDoing, StatusWontDo},
	StatusDoing:  {StatusDone, StatusTodo, StatusWontDo},
	StatusDone:   {StatusTodo, StatusWontDo},
	StatusWontDo: {StatusTodo},
}

type statusContext struct{}

func ev(s Status) statekit.EventType { return statekit.EventType(s) }
func st(s Status) statekit.StateID   { return statekit.StateID(s) }

// NextStatus runs the status machine from one status with the target as the
// event. It returns the resulting status, which equals from when the event is
// not accepted.
func NextStatus(from, to Status) (Status, error) {
	if !ValidStatus(from) {
		return from, fmt.Errorf("unknown status %q", from)
	}
	builder := statekit.NewMachine[statusContext]("task-status").
		WithInitial(st(from)).
		WithContext(statusContext{})

	builder.State(st(StatusTodo)).
		On(ev(StatusDoing)).Target(st(StatusDoing)).
		On(ev(StatusWontDo)).Target(st(StatusWontDo)).
		Done()

	builder.State(st(StatusDoing)).
		On(ev(StatusDone)).Target(st(StatusDone)).
		On(ev(StatusTodo)).Target(st(StatusTodo)).
		On(ev(StatusWontDo)).Target(st(StatusWontDo)).
		Done()

	builder.State(st(StatusDone)).
		On(ev(StatusTodo)).Target(st(StatusTodo)).
		On(ev(StatusWontDo)).Target(st(StatusWontDo)).
		Done()

	builder.State(st(StatusWontDo)).
		On(ev(StatusTodo)).Target(st(StatusTodo)).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return from, fmt.Errorf("build status machine: %w", err)
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	interp.Send(statekit.Event{Type: ev(to)})
	return Status(interp.State().Value), nil
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	next, err := NextStatus(from, to)
	return err == nil && next == to
}

// Transitions returns the statuses reachable from s, in display order.
func Transitions(s Status) []Status {
	out := make([]Status, 0, len(statusTransitions[s]))
	for _, to := range statusTransitions[s] {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s Status) bool {
	_, ok := statusTransitions[s]
	return ok
}

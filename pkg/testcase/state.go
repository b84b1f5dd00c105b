package testcase

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/ajxudir/asttest/pkg/verbose"
)

// Lifecycle states.
const (
	StateCreated            = "created"
	StateAwaitingStart      = "awaiting_start"
	StateRunning            = "running"
	StateAwaitingPreChecks  = "awaiting_pre_checks"
	StateExecuting          = "executing"
	StateAwaitingPostChecks = "awaiting_post_checks"
	StateStopping           = "stopping"
	StateStopped            = "stopped"
)

// Lifecycle events.
const (
	eventStart      = "start"
	eventStarted    = "started"
	eventPreChecks  = "pre_checks"
	eventExecute    = "execute"
	eventPostChecks = "post_checks"
	eventStop       = "stop"
	eventStopped    = "stopped"
)

// newLifecycle builds the state machine of one test case. A start failure
// may go from awaiting_start straight to stopping; a stop requested during
// the pre-checks skips executing.
func newLifecycle(name string) *fsm.FSM {
	return fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventStart, Src: []string{StateCreated}, Dst: StateAwaitingStart},
			{Name: eventStarted, Src: []string{StateAwaitingStart}, Dst: StateRunning},
			{Name: eventPreChecks, Src: []string{StateRunning}, Dst: StateAwaitingPreChecks},
			{Name: eventExecute, Src: []string{StateAwaitingPreChecks}, Dst: StateExecuting},
			{Name: eventPostChecks, Src: []string{StateAwaitingPreChecks, StateExecuting}, Dst: StateAwaitingPostChecks},
			{Name: eventStop, Src: []string{StateAwaitingStart, StateAwaitingPostChecks}, Dst: StateStopping},
			{Name: eventStopped, Src: []string{StateStopping}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				verbose.StateChange(name, e.Src, e.Dst)
			},
		},
	)
}

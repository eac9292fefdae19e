// Package lifecycle implements the rollback execution phase state machine.
package lifecycle

import (
	"fmt"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Transition table: from -> allowed tos. Transitions are monotonic except for
// Failed, which is reachable from every non-terminal phase.
var validTransitions = map[types.PhaseState][]types.PhaseState{
	types.PhaseIdle:                    {types.PhaseValidatingPrerequisites, types.PhaseFailed},
	types.PhaseValidatingPrerequisites: {types.PhaseValidatingTarget, types.PhaseFailed},
	types.PhaseValidatingTarget:        {types.PhaseCreatingBackup, types.PhaseFailed},
	types.PhaseCreatingBackup:          {types.PhaseAwaitingConfirmation, types.PhaseFailed},
	types.PhaseAwaitingConfirmation:    {types.PhaseExecuting, types.PhaseFailed},
	types.PhaseExecuting:               {types.PhaseVerifying, types.PhaseFailed},
	types.PhaseVerifying:               {types.PhaseCompleted, types.PhaseFailed},
	types.PhaseCompleted:               {},
	types.PhaseFailed:                  {},
}

// Order is the forward progression of phases, used for status rendering and
// for pre-seeding pending phase maps.
var Order = []types.PhaseState{
	types.PhaseValidatingPrerequisites,
	types.PhaseValidatingTarget,
	types.PhaseCreatingBackup,
	types.PhaseAwaitingConfirmation,
	types.PhaseExecuting,
	types.PhaseVerifying,
	types.PhaseCompleted,
}

// CanTransition checks if moving from one phase to another is valid.
func CanTransition(from, to types.PhaseState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a phase transition, returning an error if it is invalid.
func Transition(from, to types.PhaseState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid phase transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the phase is final.
func IsTerminal(phase types.PhaseState) bool {
	return phase == types.PhaseCompleted || phase == types.PhaseFailed
}

// Cancellable reports whether an execution in the given phase may still honor
// cancellation. Once a destructive sub-step has started there is no partial
// undo, so Executing and later phases run to completion.
func Cancellable(phase types.PhaseState) bool {
	switch phase {
	case types.PhaseIdle, types.PhaseValidatingPrerequisites, types.PhaseValidatingTarget,
		types.PhaseCreatingBackup, types.PhaseAwaitingConfirmation:
		return true
	}
	return false
}

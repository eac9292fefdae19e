package lifecycle

import (
	"testing"

	"github.com/rollward-systems/rollward/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.PhaseState
		to    types.PhaseState
		valid bool
	}{
		{types.PhaseIdle, types.PhaseValidatingPrerequisites, true},
		{types.PhaseIdle, types.PhaseExecuting, false},
		{types.PhaseValidatingPrerequisites, types.PhaseValidatingTarget, true},
		{types.PhaseValidatingPrerequisites, types.PhaseCreatingBackup, false},
		{types.PhaseValidatingTarget, types.PhaseCreatingBackup, true},
		{types.PhaseCreatingBackup, types.PhaseAwaitingConfirmation, true},
		{types.PhaseCreatingBackup, types.PhaseExecuting, false},
		{types.PhaseAwaitingConfirmation, types.PhaseExecuting, true},
		{types.PhaseExecuting, types.PhaseVerifying, true},
		{types.PhaseExecuting, types.PhaseCompleted, false},
		{types.PhaseVerifying, types.PhaseCompleted, true},
		{types.PhaseCompleted, types.PhaseFailed, false},
		{types.PhaseCompleted, types.PhaseExecuting, false},
		{types.PhaseFailed, types.PhaseCompleted, false},
		{types.PhaseFailed, types.PhaseIdle, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
			err := Transition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// Failed must be reachable from every non-terminal phase.
func TestFailedReachableFromAllNonTerminal(t *testing.T) {
	nonTerminal := []types.PhaseState{
		types.PhaseIdle,
		types.PhaseValidatingPrerequisites,
		types.PhaseValidatingTarget,
		types.PhaseCreatingBackup,
		types.PhaseAwaitingConfirmation,
		types.PhaseExecuting,
		types.PhaseVerifying,
	}
	for _, from := range nonTerminal {
		assert.True(t, CanTransition(from, types.PhaseFailed), "from %s", from)
	}
}

// Completed and Failed are mutually exclusive terminal states: neither can
// transition anywhere, including to each other.
func TestTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []types.PhaseState{types.PhaseCompleted, types.PhaseFailed} {
		assert.True(t, IsTerminal(terminal))
		for _, to := range append(Order, types.PhaseIdle, types.PhaseFailed) {
			if to == terminal {
				continue
			}
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, Cancellable(types.PhaseValidatingPrerequisites))
	assert.True(t, Cancellable(types.PhaseValidatingTarget))
	assert.True(t, Cancellable(types.PhaseCreatingBackup))
	assert.True(t, Cancellable(types.PhaseAwaitingConfirmation))
	assert.False(t, Cancellable(types.PhaseExecuting))
	assert.False(t, Cancellable(types.PhaseVerifying))
	assert.False(t, Cancellable(types.PhaseCompleted))
	assert.False(t, Cancellable(types.PhaseFailed))
}

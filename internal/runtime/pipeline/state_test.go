package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		flow     Flow
		from, to State
		want     bool
	}{
		{FlowCombinedAPI, StateInit, StateCallA, true},
		{FlowCombinedAPI, StateInit, StateCallB, false},
		{FlowCombinedAPI, StateCallB, StatePublish, false},
		{FlowCombinedAPI, StateCallB, StateDone, true},
		{FlowAPIKafka, StateCallB, StateDone, false},
		{FlowAPIKafka, StateCallB, StatePublish, true},
		{FlowAPIKafka, StatePublish, StateDone, true},
		{FlowResume, StateInit, StateCallA, false},
		{FlowResume, StateInit, StateExtract, true},
		{FlowResume, StateExtract, StateParseFailed, true},
		{FlowResume, StateDone, StateInit, false},
		{Flow("unknown"), StateInit, StateCallA, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.flow, tt.from, tt.to), "%s %s->%s", tt.flow, tt.from, tt.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, flow := range Flows {
		for from, nexts := range transitions[flow] {
			assert.False(t, from.Terminal(), "%s: terminal state %s has exits %v", flow, from, nexts)
		}
	}
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateCallFailed.Terminal())
	assert.True(t, StateParseFailed.Terminal())
	assert.False(t, StatePublish.Terminal())
}

func TestRunContextAdvance(t *testing.T) {
	rc := newRunContext("run-1", FlowCombinedAPI, "4")
	assert.Equal(t, "4", rc.Headers.Get("param"))
	assert.Equal(t, "run-1", rc.Headers.Get("run_id"))

	require.NoError(t, rc.advance(StateCallA))
	err := rc.advance(StateDone)
	assert.ErrorIs(t, err, errspkg.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "combinedApi CALL_A -> DONE")
	assert.Equal(t, StateCallA, rc.State)
	assert.Equal(t, []State{StateInit, StateCallA}, rc.trail)
}

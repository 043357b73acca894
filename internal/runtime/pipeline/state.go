package pipeline

import (
	"fmt"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
)

// State is a step of a run.
type State string

const (
	StateInit        State = "INIT"
	StateExtract     State = "EXTRACT"
	StateCallA       State = "CALL_A"
	StateCallB       State = "CALL_B"
	StatePublish     State = "PUBLISH"
	StateDone        State = "DONE"
	StateCallFailed  State = "CALL_FAILED"
	StateParseFailed State = "PARSE_FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCallFailed || s == StateParseFailed
}

// Flow names one of the three fixed run topologies.
type Flow string

const (
	FlowCombinedAPI Flow = "combinedApi"
	FlowAPIKafka    Flow = "apiKafka"
	FlowResume      Flow = "kafkaConsumer"
)

// Flows lists every flow in a stable order.
var Flows = []Flow{FlowCombinedAPI, FlowAPIKafka, FlowResume}

var transitions = map[Flow]map[State][]State{
	FlowCombinedAPI: {
		StateInit:  {StateCallA},
		StateCallA: {StateCallB, StateCallFailed},
		StateCallB: {StateDone, StateCallFailed},
	},
	FlowAPIKafka: {
		StateInit:    {StateCallA},
		StateCallA:   {StateCallB, StateCallFailed},
		StateCallB:   {StatePublish, StateCallFailed},
		StatePublish: {StateDone},
	},
	FlowResume: {
		StateInit:    {StateExtract},
		StateExtract: {StateCallA, StateParseFailed},
		StateCallA:   {StateCallB, StateCallFailed},
		StateCallB:   {StateDone, StateCallFailed},
	},
}

// CanTransition reports whether flow allows moving from one state to another.
func CanTransition(flow Flow, from, to State) bool {
	for _, next := range transitions[flow][from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(flow Flow, from, to State) error {
	return fmt.Errorf("%w: %s %s -> %s", errspkg.ErrInvalidTransition, flow, from, to)
}

package pipeline

import (
	"time"

	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
)

// RunContext is the state of one run. It is created per trigger, mutated in
// place by each stage and never shared between runs.
type RunContext struct {
	RunID   string
	Flow    Flow
	Param   string
	Body    string
	Headers metadatapkg.Metadata
	State   State

	trail      []State
	publishErr error
}

func newRunContext(runID string, flow Flow, param string) *RunContext {
	rc := &RunContext{
		RunID: runID,
		Flow:  flow,
		State: StateInit,
		trail: []State{StateInit},
		Headers: metadatapkg.New(
			metadatapkg.KeyRunID, runID,
			metadatapkg.KeyFlow, string(flow),
		),
	}
	rc.setParam(param)
	return rc
}

func (rc *RunContext) setParam(param string) {
	rc.Param = param
	rc.Headers[metadatapkg.KeyParam] = param
}

func (rc *RunContext) advance(to State) error {
	if !CanTransition(rc.Flow, rc.State, to) {
		return transitionError(rc.Flow, rc.State, to)
	}
	rc.State = to
	rc.trail = append(rc.trail, to)
	return nil
}

// InboundMessage is a consumed broker message handed to Resume.
type InboundMessage struct {
	UUID     string
	Body     string
	Metadata metadatapkg.Metadata
}

// RunReport summarises a finished run. Body is only set when Final is DONE.
// PublishErr is set when the apiKafka flow could not publish; the run still
// completes.
type RunReport struct {
	RunID      string
	Flow       Flow
	Param      string
	States     []State
	Final      State
	Body       string
	Err        error
	PublishErr error
	StartedAt  time.Time
	Duration   time.Duration
}

// Succeeded reports whether the run reached DONE.
func (r RunReport) Succeeded() bool {
	return r.Final == StateDone
}

func (rc *RunContext) report(started time.Time, err error) RunReport {
	states := make([]State, len(rc.trail))
	copy(states, rc.trail)

	r := RunReport{
		RunID:      rc.RunID,
		Flow:       rc.Flow,
		Param:      rc.Param,
		States:     states,
		Final:      rc.State,
		Err:        err,
		PublishErr: rc.publishErr,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if rc.State == StateDone {
		r.Body = rc.Body
	}
	return r
}

// Package pipeline runs the fixed two-call enrichment chain. A run calls the
// users endpoint (A), then the posts endpoint (B), and keeps only B's body.
// The apiKafka flow additionally publishes that body; the resume flow starts
// from a consumed message whose correlation field supplies the parameter.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	"github.com/drblury/routeflow/internal/runtime/extract"
	idspkg "github.com/drblury/routeflow/internal/runtime/ids"
	"github.com/drblury/routeflow/internal/runtime/invoker"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
)

const tracerName = "github.com/drblury/routeflow/pipeline"

// Caller performs one downstream GET. *invoker.Invoker implements it.
type Caller interface {
	Invoke(ctx context.Context, urlTemplate, param string, t invoker.Timeouts) invoker.CallResult
}

// Publisher hands a result to the broker. *broker.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string, headers metadatapkg.Metadata) error
}

// Observer is told about every finished run.
type Observer interface {
	ObserveRun(report RunReport)
}

// Endpoint is one downstream call of the chain.
type Endpoint struct {
	URL      string
	Timeouts invoker.Timeouts
}

// Options configures an Orchestrator.
type Options struct {
	Users Endpoint
	Posts Endpoint

	PublishTopic string

	// CorrelationField names the payload field read by Resume.
	CorrelationField string
	// StrictCorrelationID turns an absent correlation field into PARSE_FAILED.
	StrictCorrelationID bool
}

// Orchestrator drives runs. It holds only read-only collaborators and is safe
// for concurrent use; every run gets its own RunContext.
type Orchestrator struct {
	opts      Options
	caller    Caller
	publisher Publisher
	logger    loggingpkg.ServiceLogger
	observers []Observer
	tracer    trace.Tracer
}

// New validates opts and builds an Orchestrator. publisher may be nil when the
// apiKafka flow is not used; its runs then record a publish error.
func New(opts Options, caller Caller, publisher Publisher, logger loggingpkg.ServiceLogger, observers ...Observer) (*Orchestrator, error) {
	if caller == nil {
		return nil, errspkg.ErrInvokerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if opts.Users.URL == "" || opts.Posts.URL == "" {
		return nil, errspkg.ErrEndpointURLRequired
	}
	if opts.CorrelationField == "" {
		opts.CorrelationField = "id"
	}
	return &Orchestrator{
		opts:      opts,
		caller:    caller,
		publisher: publisher,
		logger:    logger,
		observers: observers,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// CombinedAPI runs INIT -> CALL_A -> CALL_B -> DONE and returns B's body.
func (o *Orchestrator) CombinedAPI(ctx context.Context, param string) (string, error) {
	report := o.Run(ctx, FlowCombinedAPI, param)
	return report.Body, report.Err
}

// APIKafka runs the combined chain, then publishes B's body keyed by param.
// The body is returned whether or not the publish succeeded.
func (o *Orchestrator) APIKafka(ctx context.Context, param string) (string, error) {
	report := o.Run(ctx, FlowAPIKafka, param)
	return report.Body, report.Err
}

// Run executes a synchronous flow and returns its report.
func (o *Orchestrator) Run(ctx context.Context, flow Flow, param string) RunReport {
	rc := newRunContext(idspkg.NewRunID(), flow, param)
	return o.execute(ctx, rc, func(ctx context.Context, rc *RunContext, log loggingpkg.ServiceLogger) error {
		return o.chain(ctx, rc, log)
	})
}

// Resume runs INIT -> EXTRACT -> CALL_A -> CALL_B -> DONE for a consumed
// message. Failures end the run; they are reported, never returned to the
// broker.
func (o *Orchestrator) Resume(ctx context.Context, msg InboundMessage) RunReport {
	rc := newRunContext(idspkg.NewRunID(), FlowResume, "")
	correlationID := msg.Metadata.Get(metadatapkg.KeyCorrelationID)
	if correlationID == "" {
		correlationID = msg.UUID
	}
	rc.Headers[metadatapkg.KeyCorrelationID] = correlationID

	return o.execute(ctx, rc, func(ctx context.Context, rc *RunContext, log loggingpkg.ServiceLogger) error {
		log.Info("Received message", loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"body":         extract.Snippet(msg.Body),
		})
		if err := rc.advance(StateExtract); err != nil {
			return err
		}

		value, found, err := extract.Lookup(msg.Body, o.opts.CorrelationField)
		if err == nil && !found && o.opts.StrictCorrelationID {
			err = extract.Missing(msg.Body, o.opts.CorrelationField)
		}
		if err != nil {
			if advErr := rc.advance(StateParseFailed); advErr != nil {
				return advErr
			}
			log.Error("Consumed message rejected", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
			return err
		}
		if !found {
			log.Info("Correlation field absent, continuing with empty parameter", loggingpkg.LogFields{
				"field":        o.opts.CorrelationField,
				"message_uuid": msg.UUID,
			})
		}

		rc.setParam(value)
		return o.chain(ctx, rc, log)
	})
}

type stageFunc func(ctx context.Context, rc *RunContext, log loggingpkg.ServiceLogger) error

func (o *Orchestrator) execute(ctx context.Context, rc *RunContext, stages stageFunc) RunReport {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "routeflow."+string(rc.Flow), trace.WithAttributes(
		attribute.String("routeflow.run_id", rc.RunID),
		attribute.String("routeflow.flow", string(rc.Flow)),
	))
	defer span.End()

	log := o.logger.With(loggingpkg.LogFields{
		"run_id": rc.RunID,
		"flow":   string(rc.Flow),
	})
	log.Debug("Run started", loggingpkg.LogFields{"param": rc.Param})

	err := stages(ctx, rc, log)

	report := rc.report(started, err)

	span.SetAttributes(
		attribute.String("routeflow.param", rc.Param),
		attribute.String("routeflow.final_state", string(report.Final)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	log.Info("Run finished", loggingpkg.LogFields{
		"param":       rc.Param,
		"final_state": string(report.Final),
		"duration_ms": report.Duration.Milliseconds(),
		"published":   rc.Flow == FlowAPIKafka && report.Succeeded() && report.PublishErr == nil,
	})

	for _, obs := range o.observers {
		obs.ObserveRun(report)
	}
	return report
}

// chain runs CALL_A -> CALL_B (-> PUBLISH) -> DONE on rc. An A failure ends
// the run before B is called.
func (o *Orchestrator) chain(ctx context.Context, rc *RunContext, log loggingpkg.ServiceLogger) error {
	if err := rc.advance(StateCallA); err != nil {
		return err
	}
	resA := o.caller.Invoke(ctx, o.opts.Users.URL, rc.Param, o.opts.Users.Timeouts)
	if !resA.OK() {
		return o.fail(rc, log, "users", resA)
	}
	rc.Body = resA.Body
	log.Info("Users endpoint answered", loggingpkg.LogFields{
		"status": resA.StatusCode,
		"body":   resA.Body,
	})

	if err := rc.advance(StateCallB); err != nil {
		return err
	}
	// A's body is superseded here; only B's body leaves the run.
	rc.Body = ""
	resB := o.caller.Invoke(ctx, o.opts.Posts.URL, rc.Param, o.opts.Posts.Timeouts)
	if !resB.OK() {
		return o.fail(rc, log, "posts", resB)
	}
	rc.Body = resB.Body
	log.Info("Posts endpoint answered", loggingpkg.LogFields{
		"status": resB.StatusCode,
		"body":   resB.Body,
	})

	if rc.Flow == FlowAPIKafka {
		if err := rc.advance(StatePublish); err != nil {
			return err
		}
		o.publish(ctx, rc, log)
	}
	return rc.advance(StateDone)
}

func (o *Orchestrator) fail(rc *RunContext, log loggingpkg.ServiceLogger, endpoint string, res invoker.CallResult) error {
	rc.Body = ""
	if err := rc.advance(StateCallFailed); err != nil {
		return err
	}
	log.Error("Downstream call failed", res.Failure, loggingpkg.LogFields{
		"endpoint": endpoint,
		"kind":     string(res.Failure.Kind),
		"status":   res.Failure.StatusCode,
	})
	return res.Failure
}

func (o *Orchestrator) publish(ctx context.Context, rc *RunContext, log loggingpkg.ServiceLogger) {
	var err error
	if o.publisher == nil {
		err = errspkg.ErrPublisherRequired
	} else {
		err = o.publisher.Publish(ctx, o.opts.PublishTopic, rc.Param, rc.Body, rc.Headers.Clone())
	}
	if err != nil {
		rc.publishErr = err
		log.Error("Publishing run result failed", err, loggingpkg.LogFields{"topic": o.opts.PublishTopic})
	}
}

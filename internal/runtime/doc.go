/*
Package runtime assembles the routeflow service around the pipeline
orchestrator.

# Architecture Overview

A run calls the users endpoint, then the posts endpoint, and keeps only the
posts body. Runs are started three ways:
  - GET /api/start-combined-route/{param} returns the body.
  - GET /api/start-api-kafka-route/{param} returns the body and publishes it.
  - A message consumed from the consume topic supplies the parameter through
    its correlation field.

# Package Structure

## Core Service (service.go)

Service wires together:
  - the broker transport selected by PubSubSystem
  - the Watermill router running the consume loop
  - the endpoint invoker, broker producer and pipeline orchestrator
  - the trigger HTTP server

## Middleware (middleware.go, hooks.go)

The consume loop runs through:
  - CorrelationID: every consumed message gets a correlation_id
  - LogMessages: debug logging of payloads
  - Tracer: OpenTelemetry span per message
  - Metrics: Watermill Prometheus router metrics
  - JobHooks: lifecycle callbacks
  - Recoverer: panic recovery

There is no retry and no poison queue. A consumed message is acknowledged
whatever the outcome of its run.

## Trigger surface (trigger.go)

chi router with request ids, request logging, panic recovery and otelhttp
instrumentation. A failed run answers 502, or 504 when a call timed out.

## Stats & Monitoring (run_metrics.go, flow_stats.go, resources.go)

Every finished run is reported to:
  - RunMetrics: Prometheus counters per flow and final state
  - FlowStatsRegistry: latency percentiles, throughput, error categories,
    resource usage and endpoint health, served at /api/flows

# Sub-packages

  - broker/: publish with key, consume with always-ack handlers
  - config/: koanf-backed configuration with validation
  - errors/: sentinel errors
  - extract/: correlation field lookup in JSON payloads
  - ids/: ULID generation
  - invoker/: instrumented GET with connect and response timeouts
  - jsoncodec/: sonic-backed JSON
  - logging/: ServiceLogger and Watermill adapters
  - metadata/: message header helpers
  - pipeline/: the run state machine and orchestrator
  - transport/: transport factory over the transport registry

# Usage Example

	cfg, err := config.Load("routeflow.yaml")
	if err != nil {
		return err
	}

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Start(ctx)
*/
package runtime

// Package routeflow runs request pipelines that chain two downstream REST
// calls and optionally hand the result to a message broker. It reads the
// target transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS, HTTP or Go channels)
// from Config, bootstraps a Watermill router for the consuming side and
// serves the HTTP trigger routes.
//
// # Flows
//
// Three flows share one orchestrator:
//   - combinedApi: GET /api/start-combined-route/{param} calls the users endpoint,
//     then the posts endpoint, and returns the posts body.
//   - apiKafka: GET /api/start-api-kafka-route/{param} does the same and publishes the
//     posts body to the publish topic, keyed by the parameter.
//   - kafkaConsumer: every message on the consume topic is parsed as a JSON
//     object, its correlation field becomes the parameter, and the two calls
//     run again. Results are logged.
//
// Every run walks a fixed state machine (INIT, EXTRACT, CALL_A, CALL_B,
// PUBLISH, DONE, CALL_FAILED, PARSE_FAILED) and ends in a RunReport that
// observers such as RunMetrics and FlowStatsRegistry receive.
//
// # Transports
//
// routeflow supports 6 message transports out of the box:
//   - channel: In-memory Go channels for testing
//   - kafka: Keyed streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: High-performance messaging
//   - http: Webhook style publishing
//
// Only kafka keeps per-key ordering; the service logs a notice when another
// transport is selected.
//
// # Middleware
//
// The consumer handler runs behind correlation ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics and panic recovery.
// There is no retry or poison queue: a consumed message is acknowledged
// whatever the run outcome. Custom middleware can be added via
// ServiceDependencies.Middlewares.
//
// # Job Hooks
//
// JobHooksMiddleware provides OnJobStart, OnJobDone and OnJobError callbacks
// around each consumed message, e.g. for alerting with AlertingHooks.
//
// A minimal setup loads a Config, creates a Service and calls Start:
//
//	conf, err := routeflow.LoadConfig("routeflow.yaml")
//	if err != nil {
//		return err
//	}
//	svc, err := routeflow.NewService(ctx, conf, logger, routeflow.ServiceDependencies{})
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//	return svc.Start(ctx)
package routeflow

package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/routeflow/internal/runtime/broker"
	configpkg "github.com/drblury/routeflow/internal/runtime/config"
	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	"github.com/drblury/routeflow/internal/runtime/invoker"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
	"github.com/drblury/routeflow/internal/runtime/pipeline"
	transportpkg "github.com/drblury/routeflow/internal/runtime/transport"
)

// ConsumerHandlerName names the router handler of the consume-and-resume loop.
const ConsumerHandlerName = "routeflow-resume"

const shutdownTimeout = 10 * time.Second

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	Hooks                     JobHooks
	TransportFactory          transportpkg.Factory
	ErrorClassifier           ErrorClassifier
	// HTTPTransport replaces the dialing transport of the endpoint invoker.
	HTTPTransport http.RoundTripper
	// Observers are told about every finished run, after the built-in ones.
	Observers []pipeline.Observer
	// Registerer and Gatherer default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service wires the broker transport, the Watermill router running the
// consume loop, the pipeline orchestrator and the trigger HTTP surface.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	consumer   *message.Handler

	producer     *broker.Producer
	orchestrator *pipeline.Orchestrator
	handler      http.Handler

	runMetrics *RunMetrics
	flowStats  *FlowStatsRegistry
	hooks      JobHooks

	metricsRegisterer prometheus.Registerer
	metricsGatherer   prometheus.Gatherer
}

// NewService validates conf and builds every component. Call Start to run it.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating routeflow service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:              conf,
		Logger:            log,
		metricsRegisterer: deps.Registerer,
		metricsGatherer:   deps.Gatherer,
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber

	caps := transportpkg.CapabilitiesFor(conf.PubSubSystem)
	if conf.ConsumerEnabled && !caps.OrdersByKey() {
		log.Info("Transport does not order results by key; consumed runs may interleave", loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
		})
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: shutdownTimeout}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	if err := s.buildPipeline(deps); err != nil {
		return nil, err
	}

	if conf.ConsumerEnabled {
		if err := s.registerConsumer(); err != nil {
			return nil, err
		}
	}

	s.handler = s.buildTriggerHandler()
	return s, nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	s.hooks = LoggingHooks(s.Logger).Merge(deps.Hooks)
	registrations = append(registrations, JobHooksMiddleware(s.hooks))
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) buildPipeline(deps ServiceDependencies) error {
	invokerOpts := []invoker.Option{invoker.WithLogger(s.Logger)}
	if deps.HTTPTransport != nil {
		invokerOpts = append(invokerOpts, invoker.WithTransport(deps.HTTPTransport))
	}

	var observers []pipeline.Observer
	if s.Conf.MetricsEnabled {
		callMetrics := invoker.NewMetrics(s.registerer())
		if err := callMetrics.Register(); err != nil {
			return fmt.Errorf("register invoker metrics: %w", err)
		}
		invokerOpts = append(invokerOpts, invoker.WithMetrics(callMetrics))

		s.runMetrics = NewRunMetrics(s.registerer())
		if err := s.runMetrics.Register(); err != nil {
			return fmt.Errorf("register run metrics: %w", err)
		}
		observers = append(observers, s.runMetrics)
	}
	if s.Conf.StatsEnabled {
		consumeTopic := ""
		if s.Conf.ConsumerEnabled {
			consumeTopic = s.Conf.ConsumeTopic
		}
		s.flowStats = NewFlowStatsRegistry(s.Conf.PublishTopic, consumeTopic, deps.ErrorClassifier)
		observers = append(observers, s.flowStats)
	}
	observers = append(observers, deps.Observers...)

	producer, err := broker.NewProducer(s.publisher, s.Logger)
	if err != nil {
		return err
	}
	s.producer = producer

	s.orchestrator, err = pipeline.New(pipeline.Options{
		Users: pipeline.Endpoint{
			URL:      s.Conf.UsersEndpoint.URL,
			Timeouts: invoker.Timeouts{Connect: s.Conf.UsersEndpoint.ConnectTimeout, Response: s.Conf.UsersEndpoint.ResponseTimeout},
		},
		Posts: pipeline.Endpoint{
			URL:      s.Conf.PostsEndpoint.URL,
			Timeouts: invoker.Timeouts{Connect: s.Conf.PostsEndpoint.ConnectTimeout, Response: s.Conf.PostsEndpoint.ResponseTimeout},
		},
		PublishTopic:        s.Conf.PublishTopic,
		CorrelationField:    s.Conf.CorrelationField,
		StrictCorrelationID: s.Conf.StrictCorrelationID,
	}, invoker.New(invokerOpts...), producer, s.Logger, observers...)
	return err
}

func (s *Service) registerConsumer() error {
	h, err := broker.RegisterConsumer(s.router, broker.Subscription{
		HandlerName: ConsumerHandlerName,
		Topic:       s.Conf.ConsumeTopic,
		Subscriber:  s.subscriber,
		Handle: func(ctx context.Context, d broker.Delivery) {
			s.orchestrator.Resume(ctx, pipeline.InboundMessage{
				UUID:     d.UUID,
				Body:     d.Body,
				Metadata: d.Metadata,
			})
		},
		OnPanic: s.reportConsumerPanic,
	})
	if err != nil {
		return err
	}
	s.consumer = h
	return nil
}

// reportConsumerPanic hands a recovered panic to OnJobError. The message is
// acked regardless, so OnJobDone fires for it as well.
func (s *Service) reportConsumerPanic(ctx context.Context, d broker.Delivery, err error) {
	s.hooks.OnJobError(JobContext{
		HandlerName:   message.HandlerNameFromCtx(ctx),
		Topic:         message.SubscribeTopicFromCtx(ctx),
		MessageUUID:   d.UUID,
		CorrelationID: d.Metadata.Get(metadatapkg.KeyCorrelationID),
		Metadata:      metadatapkg.ToWatermill(d.Metadata),
		Context:       ctx,
		StartedAt:     time.Now(),
	}, err)
}

func (s *Service) buildTriggerHandler() http.Handler {
	opts := TriggerOptions{
		RequireNumericParam: s.Conf.TriggerRequireNumericParam,
		OperationName:       s.Conf.ServiceName,
		Stats:               s.flowStats,
	}
	if s.Conf.MetricsEnabled {
		gatherer := s.metricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		opts.Metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return NewTriggerHandler(s.orchestrator, s.Logger, opts)
}

// Orchestrator returns the pipeline orchestrator.
func (s *Service) Orchestrator() *pipeline.Orchestrator {
	return s.orchestrator
}

// Handler returns the trigger HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Router returns the Watermill router running the consume loop.
func (s *Service) Router() *message.Router {
	return s.router
}

// RunMetrics returns the run counters, or nil when metrics are disabled.
func (s *Service) RunMetrics() *RunMetrics {
	return s.runMetrics
}

// FlowStats returns the per-flow stats, or nil when stats are disabled.
func (s *Service) FlowStats() *FlowStatsRegistry {
	return s.flowStats
}

// Start serves the trigger surface and runs the consume loop until ctx is
// cancelled or either of them fails.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		err := s.serveHTTP(ctx)
		if err != nil {
			cancel()
		}
		httpErr <- err
	}()

	var routerErr error
	if s.consumer != nil {
		routerErr = routerRun(s.router, ctx)
	} else {
		<-ctx.Done()
	}
	cancel()

	if err := <-httpErr; err != nil {
		return err
	}
	return routerErr
}

func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Conf.TriggerAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting trigger HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("trigger server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("trigger server shutdown: %w", err)
		}
		return nil
	}
}

// Close stops the router and releases the transport.
func (s *Service) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	if s.subscriber != nil {
		errs = append(errs, s.subscriber.Close())
	}
	return errors.Join(errs...)
}

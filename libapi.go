package routeflow

import (
	runtimepkg "github.com/drblury/routeflow/internal/runtime"
	brokerpkg "github.com/drblury/routeflow/internal/runtime/broker"
	configpkg "github.com/drblury/routeflow/internal/runtime/config"
	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	extractpkg "github.com/drblury/routeflow/internal/runtime/extract"
	idspkg "github.com/drblury/routeflow/internal/runtime/ids"
	invokerpkg "github.com/drblury/routeflow/internal/runtime/invoker"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
	pipelinepkg "github.com/drblury/routeflow/internal/runtime/pipeline"
	transportpkg "github.com/drblury/routeflow/internal/runtime/transport"
	newtransport "github.com/drblury/routeflow/transport"
)

type (
	Config               = configpkg.Config
	EndpointConfig       = configpkg.EndpointConfig
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	TriggerOptions       = runtimepkg.TriggerOptions
	FlowRunner           = runtimepkg.FlowRunner
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError

	// Pipeline
	Orchestrator   = pipelinepkg.Orchestrator
	Flow           = pipelinepkg.Flow
	State          = pipelinepkg.State
	RunReport      = pipelinepkg.RunReport
	InboundMessage = pipelinepkg.InboundMessage
	Observer       = pipelinepkg.Observer

	// Failures
	CallFailure    = invokerpkg.CallFailure
	ParseError     = extractpkg.ParseError
	PublishFailure = brokerpkg.PublishFailure

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	// Run metrics and stats
	RunMetrics        = runtimepkg.RunMetrics
	FlowRunCounts     = runtimepkg.FlowRunCounts
	FlowStatsRegistry = runtimepkg.FlowStatsRegistry
	FlowInfo          = runtimepkg.FlowInfo
	FlowStats         = runtimepkg.FlowStats

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Transport capabilities
	Capabilities = transportpkg.Capabilities

	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewService     = runtimepkg.NewService
	LoadConfig     = configpkg.Load
	DefaultConfig  = configpkg.Defaults
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks
	AlertingHooks      = runtimepkg.AlertingHooks

	NewRunMetrics          = runtimepkg.NewRunMetrics
	NewFlowStatsRegistry   = runtimepkg.NewFlowStatsRegistry
	NewTriggerHandler      = runtimepkg.NewTriggerHandler
	DefaultErrorClassifier = runtimepkg.DefaultErrorClassifier
	CanTransition          = pipelinepkg.CanTransition

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger
	ParseLogLevel             = loggingpkg.ParseLevel

	CreateULID = idspkg.CreateULID

	CapabilitiesFor          = transportpkg.CapabilitiesFor
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
)

const (
	FlowCombinedAPI = pipelinepkg.FlowCombinedAPI
	FlowAPIKafka    = pipelinepkg.FlowAPIKafka
	FlowResume      = pipelinepkg.FlowResume

	StateInit        = pipelinepkg.StateInit
	StateExtract     = pipelinepkg.StateExtract
	StateCallA       = pipelinepkg.StateCallA
	StateCallB       = pipelinepkg.StateCallB
	StatePublish     = pipelinepkg.StatePublish
	StateDone        = pipelinepkg.StateDone
	StateCallFailed  = pipelinepkg.StateCallFailed
	StateParseFailed = pipelinepkg.StateParseFailed
)

const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryValidation = runtimepkg.ErrorCategoryValidation
	ErrorCategoryTransport  = runtimepkg.ErrorCategoryTransport
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

const (
	MetadataKeyParam         = metadatapkg.KeyParam
	MetadataKeyRunID         = metadatapkg.KeyRunID
	MetadataKeyFlow          = metadatapkg.KeyFlow
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyPartitionKey  = metadatapkg.KeyPartitionKey
)

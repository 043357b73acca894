package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired      = sterrors.New("routeflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("routeflow: logger is required")
	ErrServiceRequired     = sterrors.New("routeflow: service is required")
	ErrRouterRequired      = sterrors.New("routeflow: message router is required")
	ErrInvokerRequired     = sterrors.New("routeflow: endpoint invoker is required")
	ErrPublisherRequired   = sterrors.New("routeflow: publisher is required")
	ErrSubscriberRequired  = sterrors.New("routeflow: subscriber is required")
	ErrTopicRequired       = sterrors.New("routeflow: topic is required")
	ErrHandlerRequired     = sterrors.New("routeflow: handler function is required")
	ErrEndpointURLRequired = sterrors.New("routeflow: endpoint url template is required")
	ErrParamRequired       = sterrors.New("routeflow: run parameter is required")
	ErrInvalidTransition   = sterrors.New("routeflow: invalid run state transition")
	ErrConsumerPanic       = sterrors.New("routeflow: consume handler panicked")
)

// ConfigValidationError wraps the joined validation problems reported by
// Config.Validate so callers can tell configuration errors apart.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	if e.Err == nil {
		return "routeflow: invalid configuration"
	}
	return fmt.Sprintf("routeflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

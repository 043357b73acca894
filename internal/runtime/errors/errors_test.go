package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "routeflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "routeflow: logger is required"},
		{"ErrInvokerRequired", ErrInvokerRequired, "routeflow: endpoint invoker is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "routeflow: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "routeflow: topic is required"},
		{"ErrParamRequired", ErrParamRequired, "routeflow: run parameter is required"},
		{"ErrInvalidTransition", ErrInvalidTransition, "routeflow: invalid run state transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("kafka: brokers are required")
	err := ConfigValidationError{Err: inner}

	assert.Equal(t, "routeflow: invalid configuration: kafka: brokers are required", err.Error())
	assert.ErrorIs(t, err, inner)

	var target ConfigValidationError
	assert.True(t, errors.As(error(err), &target))

	assert.Equal(t, "routeflow: invalid configuration", ConfigValidationError{}.Error())
}

package invoker

import (
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindNon2xx    Kind = "non2xx"
	KindTransport Kind = "transport"
)

// CallFailure describes why a downstream call produced no usable body.
type CallFailure struct {
	Kind       Kind
	URL        string
	StatusCode int
	Cause      error
}

func (f *CallFailure) Error() string {
	switch f.Kind {
	case KindNon2xx:
		return fmt.Sprintf("GET %s: unexpected status %d %s", f.URL, f.StatusCode, http.StatusText(f.StatusCode))
	case KindTimeout:
		return fmt.Sprintf("GET %s: timed out: %v", f.URL, f.Cause)
	default:
		return fmt.Sprintf("GET %s: %v", f.URL, f.Cause)
	}
}

func (f *CallFailure) Unwrap() error {
	return f.Cause
}

// Timeout reports whether the call ran out of time.
func (f *CallFailure) Timeout() bool {
	return f.Kind == KindTimeout
}

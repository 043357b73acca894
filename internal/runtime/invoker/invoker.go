// Package invoker performs the single outbound GET each pipeline stage makes
// against a downstream REST endpoint.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/drblury/routeflow/internal/runtime/logging"
)

// Placeholder is replaced by the run parameter in endpoint URL templates.
const Placeholder = "{param}"

// Timeouts bounds one call. Connect covers dialing a new connection, Response
// covers the whole exchange including reading the body.
type Timeouts struct {
	Connect  time.Duration
	Response time.Duration
}

// CallResult is the outcome of one Invoke. Failure is nil on success.
type CallResult struct {
	URL        string
	StatusCode int
	Body       string
	Failure    *CallFailure
	Duration   time.Duration
}

// OK reports whether the call produced a 2xx response.
func (r CallResult) OK() bool {
	return r.Failure == nil
}

// Invoker issues GET requests through one shared, instrumented client. It is
// safe for concurrent use.
type Invoker struct {
	client  *http.Client
	metrics *Metrics
	logger  logging.ServiceLogger
}

// Option customises an Invoker.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	metrics   *Metrics
	logger    logging.ServiceLogger
}

// WithTransport replaces the dialing transport, for example with a recorder in
// tests. The connect timeout is then up to the given transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(l logging.ServiceLogger) Option {
	return func(o *options) { o.logger = l }
}

// New builds an Invoker. Without WithTransport it dials through a net.Dialer
// honouring the per-call connect timeout.
func New(opts ...Option) *Invoker {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = newDialingTransport()
	}
	if o.logger == nil {
		o.logger = logging.NewNopServiceLogger()
	}
	return &Invoker{
		client:  &http.Client{Transport: otelhttp.NewTransport(o.transport)},
		metrics: o.metrics,
		logger:  o.logger,
	}
}

// Invoke substitutes param into urlTemplate and issues a synchronous GET.
// Cancellation of ctx does not abort the call; only the timeouts do.
func (i *Invoker) Invoke(ctx context.Context, urlTemplate, param string, t Timeouts) CallResult {
	target := ExpandURL(urlTemplate, param)
	start := time.Now()

	result := i.do(ctx, target, t)
	result.URL = target
	result.Duration = time.Since(start)

	outcome := "ok"
	if result.Failure != nil {
		outcome = string(result.Failure.Kind)
	}
	if i.metrics != nil {
		i.metrics.ObserveCall(endpointLabel(urlTemplate), outcome, result.Duration)
	}
	i.logger.Debug("Downstream call finished", logging.LogFields{
		"url":         target,
		"status":      result.StatusCode,
		"outcome":     outcome,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result
}

func (i *Invoker) do(ctx context.Context, target string, t Timeouts) CallResult {
	ctx = context.WithoutCancel(ctx)
	if t.Connect > 0 {
		ctx = withConnectTimeout(ctx, t.Connect)
	}
	if t.Response > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Response)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CallResult{Failure: &CallFailure{Kind: KindTransport, URL: target, Cause: err}}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return CallResult{Failure: classify(target, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{StatusCode: resp.StatusCode, Failure: classify(target, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CallResult{
			StatusCode: resp.StatusCode,
			Failure:    &CallFailure{Kind: KindNon2xx, URL: target, StatusCode: resp.StatusCode},
		}
	}
	return CallResult{StatusCode: resp.StatusCode, Body: string(body)}
}

// ExpandURL replaces every {param} with the path-escaped param. A template
// without placeholder is treated as a base URL and gets "/{param}" appended.
func ExpandURL(urlTemplate, param string) string {
	escaped := url.PathEscape(param)
	if !strings.Contains(urlTemplate, Placeholder) {
		return strings.TrimSuffix(urlTemplate, "/") + "/" + escaped
	}
	return strings.ReplaceAll(urlTemplate, Placeholder, escaped)
}

func endpointLabel(urlTemplate string) string {
	u, err := url.Parse(urlTemplate)
	if err != nil {
		return "invalid"
	}
	return u.Host + u.Path
}

func classify(target string, err error) *CallFailure {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &CallFailure{Kind: kind, URL: target, Cause: err}
}

type connectTimeoutKey struct{}

func withConnectTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, connectTimeoutKey{}, d)
}

func newDialingTransport() *http.Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := net.Dialer{KeepAlive: 30 * time.Second}
		if d, ok := ctx.Value(connectTimeoutKey{}).(time.Duration); ok {
			dialer.Timeout = d
		}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		return conn, nil
	}
	return base
}

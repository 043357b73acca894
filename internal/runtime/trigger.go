package runtime

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/drblury/routeflow/internal/runtime/invoker"
	"github.com/drblury/routeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
)

const (
	routeCombined = "/api/start-combined-route/{param}"
	routeAPIKafka = "/api/start-api-kafka-route/{param}"
	routeFlows    = "/api/flows"
	routeMetrics  = "/metrics"
)

// FlowRunner runs the two synchronous flows. *pipeline.Orchestrator
// implements it.
type FlowRunner interface {
	CombinedAPI(ctx context.Context, param string) (string, error)
	APIKafka(ctx context.Context, param string) (string, error)
}

// TriggerOptions configures the trigger HTTP surface.
type TriggerOptions struct {
	// RequireNumericParam answers 400 to a path parameter that is not an
	// integer.
	RequireNumericParam bool
	// OperationName names the otelhttp server spans.
	OperationName string
	// Stats, when set, is served at /api/flows.
	Stats *FlowStatsRegistry
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// NewTriggerHandler builds the chi router exposing the synchronous flows.
func NewTriggerHandler(runner FlowRunner, logger loggingpkg.ServiceLogger, opts TriggerOptions) http.Handler {
	if opts.OperationName == "" {
		opts.OperationName = "routeflow"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, opts.OperationName)
	})

	t := &triggerHandler{requireNumeric: opts.RequireNumericParam}
	r.Get(routeCombined, t.serve(runner.CombinedAPI))
	r.Get(routeAPIKafka, t.serve(runner.APIKafka))

	if opts.Stats != nil {
		r.Get(routeFlows, flowsHandler(opts.Stats, logger))
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, routeMetrics, opts.Metrics)
	}
	return r
}

type triggerHandler struct {
	requireNumeric bool
}

func (t *triggerHandler) serve(run func(ctx context.Context, param string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		param, err := t.param(r)
		if err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}

		body, err := run(r.Context(), param)
		if err != nil {
			writeText(w, statusFor(err), err.Error())
			return
		}
		writeText(w, http.StatusOK, body)
	}
}

// param returns the path parameter. Numeric parameters are normalised to
// their decimal form so "007" and "7" address the same resource.
func (t *triggerHandler) param(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "param")
	if !t.requireNumeric {
		return raw, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return "", errors.New("param must be an integer")
	}
	return strconv.FormatInt(n, 10), nil
}

// statusFor maps a failed run onto the trigger response code.
func statusFor(err error) int {
	var callErr *invoker.CallFailure
	if errors.As(err, &callErr) {
		if callErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func flowsHandler(stats *FlowStatsRegistry, logger loggingpkg.ServiceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := jsoncodec.Marshal(stats.Flows())
		if err != nil {
			logger.Error("Failed to encode flow stats", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger loggingpkg.ServiceLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := loggingpkg.LogFields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Error("Request failed", errors.New(http.StatusText(ww.Status())), fields)
				return
			}
			logger.Info("Request completed", fields)
		})
	}
}

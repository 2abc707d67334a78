package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests that no mux pattern matched.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the handlers of the status listener. Each request gets a
// server span (continuing an incoming W3C traceparent), an X-Trace-ID
// response header, a [Metrics.HTTPRequestDuration] sample and a debug log
// line.
//
// Requests are labelled with the [http.ServeMux] pattern that served them
// rather than the raw path, so scanners probing random URLs cannot inflate
// metric cardinality.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			tid := TraceID(ctx)
			if tid != "" {
				w.Header().Set("X-Trace-ID", tid)
			}

			req := r.WithContext(ctx)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, req)

			// ServeMux records the matched pattern on the request it was given.
			route := req.Pattern
			if route == "" {
				route = unmatchedRoute
			} else {
				span.SetName("HTTP " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.Int("status", rec.statusCode),
				),
			)

			slog.LogAttrs(ctx, slog.LevelDebug, "request completed",
				slog.String("trace_id", tid),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", duration),
			)
		})
	}
}

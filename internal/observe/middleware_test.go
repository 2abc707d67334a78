package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// statusMux mimics the status listener: one pattern route, everything else 404.
func statusMux(t *testing.T, captured *string) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /statusz", func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = TraceID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func serve(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SetsTraceID(t *testing.T) {
	m, _, _ := testSetup(t)

	var tid string
	rec := serve(Middleware(m)(statusMux(t, &tid)), "/statusz", nil)

	if len(tid) != 32 {
		t.Fatalf("trace ID in handler = %q, want 32 hex chars", tid)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != tid {
		t.Errorf("response X-Trace-ID = %q, want %q", got, tid)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	m, _, exp := testSetup(t)

	serve(Middleware(m)(statusMux(t, nil)), "/statusz", nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /statusz" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /statusz")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.route" && a.Value.AsString() == "GET /statusz" {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.route attribute")
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := Middleware(m)(statusMux(t, nil))

	serve(h, "/statusz", nil)
	serve(h, "/wp-login.php", nil)
	serve(h, "/.env", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "pushtalk.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		counts[route.AsString()+" "+status.Emit()] += dp.Count
	}
	if counts["GET /statusz 200"] != 1 {
		t.Errorf("GET /statusz 200 count = %d, want 1 (all: %v)", counts["GET /statusz 200"], counts)
	}
	if counts["unmatched 404"] != 2 {
		t.Errorf("unmatched 404 count = %d, want 2 (all: %v)", counts["unmatched 404"], counts)
	}
	if len(counts) != 2 {
		t.Errorf("series = %v, want exactly two", counts)
	}
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	m, _, exp := testSetup(t)

	rec := serve(Middleware(m)(statusMux(t, nil)), "/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	if spans[0].Name != "HTTP GET" {
		t.Errorf("unmatched span name = %q, want %q", spans[0].Name, "HTTP GET")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)
	const want = "4bf92f3577b34da6a3ce929d0e0e4736"

	var tid string
	rec := serve(Middleware(m)(statusMux(t, &tid)), "/statusz", map[string]string{
		"traceparent": "00-" + want + "-00f067aa0ba902b7-01",
	})

	if tid != want {
		t.Errorf("trace ID = %q, want %q", tid, want)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != want {
		t.Errorf("response X-Trace-ID = %q, want %q", got, want)
	}
}

package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitProvider_ServesMetrics(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx := context.Background()
	p.Metrics.RecordEdge(ctx, "pressed")
	p.Metrics.RecordSessionStart(ctx)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{"pushtalk_hotkey_edges", "pushtalk_active_sessions", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestProvider_ShutdownTwice(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	// A second shutdown reports the SDK's "already shutdown" errors but
	// must not panic.
	_ = p.Shutdown(context.Background())
}

func TestInitProvider_ResourceMergesWithSDKDefaults(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceName: "pushtalk-test", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.Metrics.RecordEdge(context.Background(), "pressed")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`service_name="pushtalk-test"`,
		`service_version="1.2.3"`,
		`telemetry_sdk_language="go"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("target_info missing %s", want)
		}
	}
}

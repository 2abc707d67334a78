package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/pushtalk/internal/app"
	"github.com/MrWong99/pushtalk/internal/config"
	"github.com/MrWong99/pushtalk/internal/hotkey"
	injectmock "github.com/MrWong99/pushtalk/internal/inject/mock"
	"github.com/MrWong99/pushtalk/internal/observe"
	audiomock "github.com/MrWong99/pushtalk/pkg/audio/mock"
	"github.com/MrWong99/pushtalk/pkg/provider/stt"
	sttmock "github.com/MrWong99/pushtalk/pkg/provider/stt/mock"
)

// chanEdges is an edge source fed by the test.
type chanEdges struct {
	ch  chan hotkey.Edge
	err error
}

func newChanEdges() *chanEdges {
	return &chanEdges{ch: make(chan hotkey.Edge, 8)}
}

func (c *chanEdges) WaitForEdge(ctx context.Context, timeout time.Duration) (hotkey.Edge, bool, error) {
	if c.err != nil {
		return hotkey.Edge{}, false, c.err
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return hotkey.Edge{}, false, ctx.Err()
	case e := <-c.ch:
		return e, true, nil
	case <-t.C:
		return hotkey.Edge{}, false, nil
	}
}

func (c *chanEdges) send(kind hotkey.EdgeKind) {
	c.ch <- hotkey.Edge{Kind: kind, Device: "/dev/input/event3", Time: time.Now()}
}

// deviceEdges additionally reports its open devices.
type deviceEdges struct {
	*chanEdges
	devices []string
}

func (d *deviceEdges) Devices() []string { return d.devices }

type fixture struct {
	cfg     *config.Config
	edges   *chanEdges
	capture *audiomock.Capture
	engine  *sttmock.Engine
	output  *injectmock.Injector
}

func newFixture(texts ...string) *fixture {
	cfg := config.Default()
	cfg.Hotkey.DeviceNameMatch = []string{"keyboard"}
	cfg.Hotkey.WaitTimeout = 10 * time.Millisecond
	cfg.Hotkey.ReleaseTimeout = time.Second
	cfg.Audio.JoinTimeout = 20 * time.Millisecond

	transcripts := make([]stt.Transcript, 0, len(texts))
	for _, t := range texts {
		transcripts = append(transcripts, stt.Transcript{Text: t})
	}
	return &fixture{
		cfg:   cfg,
		edges: newChanEdges(),
		capture: &audiomock.Capture{
			NewSource: func() *audiomock.Source {
				return &audiomock.Source{Frames: [][]byte{{1, 0}, {2, 0}}}
			},
		},
		engine: &sttmock.Engine{Transcripts: transcripts},
		output: &injectmock.Injector{},
	}
}

func (f *fixture) providers() *app.Providers {
	return &app.Providers{STT: f.engine, Audio: f.capture, Output: f.output}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// start creates the app and runs it until the test ends.
func start(t *testing.T, f *fixture, opts ...app.Option) (*app.App, func() error) {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), f.cfg, f.providers(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
	t.Cleanup(func() {
		cancel()
		_ = a.Shutdown(context.Background())
	})
	return a, stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_PressReleaseTypesText(t *testing.T) {
	t.Parallel()

	f := newFixture("hello world")
	a, stop := start(t, f, app.WithEdgeSource(f.edges))

	f.edges.send(hotkey.Pressed)
	waitFor(t, "frames to be read", func() bool {
		src := f.capture.Source(0)
		return src != nil && src.Reads() >= 3
	})
	if got := a.Snapshot().State; got != "recording" {
		t.Errorf("state while held = %q, want recording", got)
	}
	f.edges.send(hotkey.Released)
	waitFor(t, "text to be typed", func() bool { return len(f.output.Typed()) == 1 })

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.output.Typed()[0]; got != "hello world" {
		t.Errorf("typed %q, want %q", got, "hello world")
	}
	if got := string(f.engine.Recognizers[0].Audio[0]); got != string([]byte{1, 0, 2, 0}) {
		t.Errorf("waveform = %v, want both frames in order", []byte(got))
	}
	if f.capture.Opens() != 1 {
		t.Errorf("audio opens = %d, want 1", f.capture.Opens())
	}
	if !f.capture.Source(0).Closed() {
		t.Error("audio source not closed after release")
	}
	snap := a.Snapshot()
	if snap.State != "idle" || snap.Sessions != 1 {
		t.Errorf("snapshot = %+v, want idle with one session", snap)
	}
}

func TestApp_NoPressNoAudio(t *testing.T) {
	t.Parallel()

	f := newFixture("unused")
	_, stop := start(t, f, app.WithEdgeSource(f.edges))

	f.edges.send(hotkey.Released)
	f.edges.send(hotkey.Repeat)
	time.Sleep(50 * time.Millisecond)

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.capture.Opens() != 0 {
		t.Errorf("audio opens = %d, want 0", f.capture.Opens())
	}
	if f.engine.RecognizerCount() != 0 || len(f.output.Typed()) != 0 {
		t.Error("sink was invoked without a press")
	}
}

func TestApp_ShutdownWhileRecordingDiscards(t *testing.T) {
	t.Parallel()

	f := newFixture("never")
	_, stop := start(t, f, app.WithEdgeSource(f.edges))

	f.edges.send(hotkey.Pressed)
	waitFor(t, "recording to start", func() bool { return f.capture.Opens() == 1 })

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !f.capture.Source(0).Closed() {
		t.Error("audio source not closed on shutdown")
	}
	if f.engine.RecognizerCount() != 0 || len(f.output.Typed()) != 0 {
		t.Error("recording was transcribed on shutdown")
	}
}

func TestApp_EdgeSourceErrorIsReturned(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.edges.err = hotkey.ErrNoDevices
	a, err := app.New(context.Background(), f.cfg, f.providers(),
		app.WithEdgeSource(f.edges),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if err := a.Run(context.Background()); !errors.Is(err, hotkey.ErrNoDevices) {
		t.Errorf("Run error = %v, want ErrNoDevices", err)
	}
}

func TestNew_NoMatchingKeyboard(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Hotkey.SysfsRoot = t.TempDir()
	f.cfg.Hotkey.DevRoot = t.TempDir()

	_, err := app.New(context.Background(), f.cfg, f.providers(), app.WithMetrics(testMetrics(t)))
	if !errors.Is(err, hotkey.ErrNoDevices) {
		t.Fatalf("New error = %v, want ErrNoDevices", err)
	}
	if f.engine.CallCountClose != 1 || f.capture.CallCountClose != 1 {
		t.Errorf("providers not closed after failed New: engine=%d capture=%d",
			f.engine.CallCountClose, f.capture.CallCountClose)
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.providers()
	p.Output = nil
	if _, err := app.New(context.Background(), f.cfg, p, app.WithEdgeSource(f.edges)); err == nil {
		t.Fatal("New without an output provider succeeded")
	}
}

func TestShutdown_ClosesProvidersOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, err := app.New(context.Background(), f.cfg, f.providers(),
		app.WithEdgeSource(f.edges),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
	if f.engine.CallCountClose != 1 || f.capture.CallCountClose != 1 {
		t.Errorf("close counts: engine=%d capture=%d, want 1 each",
			f.engine.CallCountClose, f.capture.CallCountClose)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, err := app.New(context.Background(), f.cfg, f.providers(),
		app.WithEdgeSource(f.edges),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown error = %v, want context.Canceled", err)
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func TestApp_ObservabilityEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Server.ListenAddr = "127.0.0.1:0"
	a, stop := start(t, f, app.WithEdgeSource(f.edges))
	base := "http://" + a.Addr()

	if code, _ := get(t, base+"/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code, body := get(t, base+"/readyz"); code != http.StatusOK {
		t.Errorf("/readyz = %d (%s), want 200", code, body)
	}

	code, body := get(t, base+"/statusz")
	if code != http.StatusOK {
		t.Fatalf("/statusz = %d, want 200", code)
	}
	var snap struct {
		State          string        `json:"state"`
		ReleaseTimeout time.Duration `json:"release_timeout"`
	}
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode /statusz: %v", err)
	}
	if snap.State != "idle" || snap.ReleaseTimeout != time.Second {
		t.Errorf("/statusz = %+v, want idle with 1s release timeout", snap)
	}

	code, body = get(t, base+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", code)
	}
	if !strings.Contains(body, "pushtalk_") {
		t.Error("/metrics does not expose pushtalk instruments")
	}

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestApp_ReadyzFailsWithoutDevices(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Server.ListenAddr = "127.0.0.1:0"
	a, stop := start(t, f, app.WithEdgeSource(&deviceEdges{chanEdges: f.edges}))

	if code, body := get(t, "http://"+a.Addr()+"/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d (%s), want 503", code, body)
	}
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestApp_ReadyzReportsUnusableEngine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Server.ListenAddr = "127.0.0.1:0"
	f.engine.ReadyErr = errors.New("model evicted")
	a, stop := start(t, f, app.WithEdgeSource(&deviceEdges{chanEdges: f.edges, devices: []string{"/dev/input/event3"}}))

	code, body := get(t, "http://"+a.Addr()+"/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d (%s), want 503", code, body)
	}
	if !strings.Contains(body, "model evicted") {
		t.Errorf("/readyz body %s does not name the engine failure", body)
	}

	f.engine.SetReadyErr(nil)
	if code, body := get(t, "http://"+a.Addr()+"/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after recovery = %d (%s), want 200", code, body)
	}
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestApp_NoListenerWithoutAddr(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a, _ := start(t, f, app.WithEdgeSource(f.edges))
	if a.Addr() != "" {
		t.Errorf("Addr() = %q, want empty", a.Addr())
	}
}

const reloadInitialYAML = `
server:
  log_level: info
hotkey:
  device_name_match: ["keyboard"]
  release_timeout: 150ms
transcript:
  vocabulary: ["Kubernetes"]
`

const reloadUpdatedYAML = `
server:
  log_level: debug
hotkey:
  device_name_match: ["keyboard"]
  release_timeout: 400ms
transcript:
  vocabulary: ["Grafana"]
`

func TestApp_HotReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pushtalk.yaml")
	if err := os.WriteFile(path, []byte(reloadInitialYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f := newFixture("ship it to grafanna")
	f.cfg = cfg
	f.cfg.Audio.JoinTimeout = 20 * time.Millisecond
	lv := new(slog.LevelVar)
	a, stop := start(t, f,
		app.WithEdgeSource(f.edges),
		app.WithConfigPath(path),
		app.WithLevelVar(lv),
	)

	if got := a.Snapshot().ReleaseTimeout; got != 150*time.Millisecond {
		t.Fatalf("initial release timeout = %s, want 150ms", got)
	}
	if err := os.WriteFile(path, []byte(reloadUpdatedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "release timeout reload", func() bool {
		return a.Snapshot().ReleaseTimeout == 400*time.Millisecond
	})
	waitFor(t, "log level reload", func() bool { return lv.Level() == slog.LevelDebug })

	f.edges.send(hotkey.Pressed)
	waitFor(t, "recording to start", func() bool { return f.capture.Opens() == 1 })
	f.edges.send(hotkey.Released)
	waitFor(t, "text to be typed", func() bool { return len(f.output.Typed()) == 1 })
	if got := f.output.Typed()[0]; got != "ship it to Grafana" {
		t.Errorf("typed %q, want the reloaded vocabulary applied", got)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

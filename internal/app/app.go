// Package app wires all pushtalk subsystems into a running application.
//
// The App struct owns the full lifecycle: New discovers the keyboards and
// connects the recording controller to the recognizer and the injector,
// Run executes the controller loop and the optional observability listener,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithEdgeSource,
// WithMetrics). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pushtalk/internal/config"
	"github.com/MrWong99/pushtalk/internal/health"
	"github.com/MrWong99/pushtalk/internal/hotkey"
	"github.com/MrWong99/pushtalk/internal/inject"
	"github.com/MrWong99/pushtalk/internal/observe"
	"github.com/MrWong99/pushtalk/internal/recorder"
	"github.com/MrWong99/pushtalk/internal/transcript"
	"github.com/MrWong99/pushtalk/pkg/audio"
	"github.com/MrWong99/pushtalk/pkg/provider/stt"
)

// serverShutdownTimeout bounds the graceful stop of the HTTP listener.
const serverShutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. All three are required.
type Providers struct {
	STT    stt.Engine
	Audio  audio.Capture
	Output inject.Injector
}

// App owns all subsystem lifetimes and orchestrates the push-to-talk loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or derived from options.
	edges      recorder.EdgeSource
	level      *slog.LevelVar
	configPath string
	metrics    *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	telemetry *observe.Provider
	sink      *transcript.Sink
	ctl       *recorder.Controller
	watcher   *config.Watcher
	server    *http.Server
	listener  net.Listener

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEdgeSource injects the hotkey edge source instead of opening the
// keyboards named by the config. The App does not close an injected source.
func WithEdgeSource(e recorder.EdgeSource) Option {
	return func(a *App) { a.edges = e }
}

// WithLevelVar hands the logger's level to the App so that a hot reload can
// change it.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigPath watches path and applies log level, release timeout and
// vocabulary changes without a restart.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithMetrics sets the metrics used when no listener is configured. With a
// listener the metrics of the telemetry provider take precedence.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: telemetry, keyboard
// discovery, controller assembly, the HTTP listener and the config watcher.
// The App takes ownership of the providers: Shutdown closes them, and so
// does a failed New along with everything created so far.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.Audio == nil || providers.Output == nil {
		return nil, errors.New("app: stt, audio and output providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	a.closers = append(a.closers, providers.STT.Close, providers.Audio.Close)

	ok := false
	defer func() {
		if !ok {
			a.runClosers()
		}
	}()

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Keyboards ─────────────────────────────────────────────────────
	if err := a.initHotkey(); err != nil {
		return nil, fmt.Errorf("app: init hotkey: %w", err)
	}

	// ── 3. Sink + controller ─────────────────────────────────────────────
	a.sink = transcript.NewSink(providers.STT, providers.Output,
		transcript.WithMetrics(a.metrics),
		transcript.WithDumpDir(cfg.Debug.AudioDumpDir),
		transcript.WithVocabulary(cfg.Transcript.Vocabulary),
	)
	a.ctl = recorder.New(a.edges, providers.Audio, a.sink,
		recorder.WithMetrics(a.metrics),
		recorder.WithFormat(audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}, cfg.Audio.FrameSize),
		recorder.WithWaitTimeout(cfg.Hotkey.WaitTimeout),
		recorder.WithJoinTimeout(cfg.Audio.JoinTimeout),
		recorder.WithReleaseTimeout(cfg.Hotkey.ReleaseTimeout),
	)

	// ── 4. HTTP listener ─────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	// ── 5. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.reload)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	ok = true
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the OTel providers when a listener will expose them.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		if a.metrics == nil {
			a.metrics = observe.DefaultMetrics()
		}
		return nil
	}
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "pushtalk"})
	if err != nil {
		return err
	}
	a.telemetry = p
	a.metrics = p.Metrics
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return p.Shutdown(ctx)
	})
	return nil
}

// initHotkey opens the keyboards unless an edge source was injected.
func (a *App) initHotkey() error {
	if a.edges != nil {
		return nil
	}
	hk := a.cfg.Hotkey
	paths := hk.Devices
	if len(paths) == 0 {
		found, err := hotkey.FindDevices(os.DirFS(hk.SysfsRoot), hk.DevRoot, hk.DeviceNameMatch)
		if err != nil {
			return err
		}
		paths = found
	}
	mon, err := hotkey.Open(paths, hk.Code,
		hotkey.WithRepeat(hk.KeepAlive()),
		hotkey.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	slog.Info("keyboards opened", "devices", mon.Devices(), "code", hk.Code)
	a.edges = mon
	a.closers = append(a.closers, mon.Close)
	return nil
}

// initServer binds the observability listener. Binding happens here so that
// an address conflict is a startup error.
func (a *App) initServer() error {
	if a.cfg.Server.ListenAddr == "" {
		return nil
	}
	h := health.New(
		health.WithChecker("devices", a.checkDevices),
		health.WithChecker("engine", a.checkEngine),
		health.WithStatus(func() any { return a.ctl.Snapshot() }),
	)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.telemetry.Handler())
	h.Register(mux)

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.closers = append(a.closers, func() error {
		// Serve may never have taken ownership of ln.
		err := errors.Join(a.server.Close(), ln.Close())
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})
	slog.Info("observability listener started", "addr", ln.Addr().String())
	return nil
}

// checkDevices fails once every keyboard has been lost. Sources that do not
// report their devices always pass.
func (a *App) checkDevices(context.Context) error {
	d, ok := a.edges.(interface{ Devices() []string })
	if !ok {
		return nil
	}
	if len(d.Devices()) == 0 {
		return hotkey.ErrNoDevices
	}
	return nil
}

// checkEngine asks the recognition engine whether its model is still loaded.
// Engines without a readiness probe always pass.
func (a *App) checkEngine(ctx context.Context) error {
	rc, ok := a.providers.STT.(stt.ReadinessChecker)
	if !ok {
		return nil
	}
	return rc.Ready(ctx)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the controller loop and the HTTP listener and blocks until ctx
// is cancelled or either of them fails. A cancelled ctx yields nil; a lost
// keyboard or a fatal audio error is returned.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return a.ctl.Run(egCtx)
	})

	if a.server != nil {
		eg.Go(func() error {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(sctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
			return nil
		})
	}

	return eg.Wait()
}

// Addr returns the bound listener address, or "" when no listener is
// configured.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Snapshot returns the controller state.
func (a *App) Snapshot() recorder.Snapshot {
	return a.ctl.Snapshot()
}

// reload applies the hot-reloadable subset of a config change.
func (a *App) reload(old, new *config.Config) {
	d := config.Diff(old, new)
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart", "section", section)
	}
	if d.Empty() {
		return
	}
	if d.VocabularyChanged {
		a.sink.SetVocabulary(d.NewVocabulary)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ReleaseTimeoutChanged {
		a.ctl.SetReleaseTimeout(d.NewReleaseTimeout)
		slog.Info("release timeout changed", "release_timeout", d.NewReleaseTimeout)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers undoes a partially completed New.
func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}

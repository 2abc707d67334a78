// Package recorder implements the push-to-talk state machine.
//
// A [Controller] consumes hotkey edges from an [EdgeSource], starts a
// capture goroutine on the first press, and stops it on release or when no
// hotkey record was seen for the release timeout. The captured frames are
// handed to a [Sink] once the capture goroutine has exited.
//
// Several input devices may report the same physical key. Duplicate presses
// are absorbed here: only a press while idle starts a session.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/pushtalk/internal/hotkey"
	"github.com/MrWong99/pushtalk/internal/observe"
	"github.com/MrWong99/pushtalk/pkg/audio"
)

// ErrFatalAudio is returned by [Controller.Run] when the audio source cannot
// be opened for a reason that will not go away on its own, such as missing
// permissions.
var ErrFatalAudio = errors.New("recorder: audio source unavailable")

// Defaults used when the corresponding option is not given.
const (
	DefaultWaitTimeout    = 50 * time.Millisecond
	DefaultReleaseTimeout = 150 * time.Millisecond
	DefaultJoinTimeout    = time.Second
	DefaultFrameSize      = 1024
)

// EdgeSource yields hotkey edges. *hotkey.Monitor implements it.
type EdgeSource interface {
	// WaitForEdge blocks for at most timeout. ok is false when no edge
	// arrived in time.
	WaitForEdge(ctx context.Context, timeout time.Duration) (e hotkey.Edge, ok bool, err error)
}

// Sink receives every finalized recording exactly once. Deliver runs on the
// controller goroutine; no new session starts until it returns.
type Sink interface {
	Deliver(ctx context.Context, rec Recording)
}

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateRecording
)

// String returns "idle" or "recording".
func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Snapshot is a point-in-time view of the controller for status reporting.
type Snapshot struct {
	State          string        `json:"state"`
	SessionID      string        `json:"session_id,omitempty"`
	RecordingSince time.Time     `json:"recording_since,omitzero"`
	LastEdge       time.Time     `json:"last_edge,omitzero"`
	ReleaseTimeout time.Duration `json:"release_timeout"`
	Sessions       int64         `json:"sessions"`
	Abandoned      int64         `json:"abandoned"`
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock replaces time.Now. Tests use it to drive the release timer.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFormat sets the capture format and the number of samples per channel
// read per frame.
func WithFormat(f audio.Format, frameSize int) Option {
	return func(c *Controller) {
		c.format = f
		if frameSize > 0 {
			c.frameSize = frameSize
		}
	}
}

// WithWaitTimeout bounds a single wait for edges.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithJoinTimeout bounds the wait for the capture goroutine after stop.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

// WithReleaseTimeout sets the initial forced-release window.
func WithReleaseTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.releaseTimeout.Store(int64(d))
		}
	}
}

// Controller is the recording state machine. Run must be called from a
// single goroutine; Snapshot and SetReleaseTimeout are safe to call
// concurrently with it.
type Controller struct {
	edges   EdgeSource
	capture audio.Capture
	sink    Sink
	metrics *observe.Metrics
	now     func() time.Time

	format      audio.Format
	frameSize   int
	waitTimeout time.Duration
	joinTimeout time.Duration

	releaseTimeout atomic.Int64

	// Owned by the Run goroutine.
	state    State
	session  *Session
	lastEdge time.Time

	mu        sync.Mutex
	snap      Snapshot
	sessions  int64
	abandoned int64
}

// New creates a Controller reading edges from edges, opening audio from
// capture and delivering recordings to sink.
func New(edges EdgeSource, capture audio.Capture, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		edges:       edges,
		capture:     capture,
		sink:        sink,
		now:         time.Now,
		format:      audio.Speech,
		frameSize:   DefaultFrameSize,
		waitTimeout: DefaultWaitTimeout,
		joinTimeout: DefaultJoinTimeout,
	}
	c.releaseTimeout.Store(int64(DefaultReleaseTimeout))
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.publish()
	return c
}

// SetReleaseTimeout changes the forced-release window. It takes effect on
// the next timer check.
func (c *Controller) SetReleaseTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.releaseTimeout.Store(int64(d))
}

// ReleaseTimeout returns the current forced-release window.
func (c *Controller) ReleaseTimeout() time.Duration {
	return time.Duration(c.releaseTimeout.Load())
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()
	snap.ReleaseTimeout = c.ReleaseTimeout()
	return snap
}

// Run drives the state machine until ctx is cancelled, in which case it
// returns nil. An active session is stopped and discarded on the way out.
//
// Run returns an error when the edge source fails (for example
// [hotkey.ErrNoDevices]) or when opening the audio source fails with
// [audio.ErrPermission], wrapped in [ErrFatalAudio].
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("ready",
		"release_timeout", c.ReleaseTimeout(),
		"wait_timeout", c.waitTimeout,
		"format", c.format,
	)
	for {
		e, ok, err := c.edges.WaitForEdge(ctx, c.waitTimeout)
		if err != nil {
			c.shutdown(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ok {
			if err := c.handle(ctx, e); err != nil {
				return err
			}
		}
		c.checkRelease(ctx)
	}
}

func (c *Controller) handle(ctx context.Context, e hotkey.Edge) error {
	switch {
	case c.state == StateIdle && e.Kind == hotkey.Pressed:
		c.lastEdge = c.now()
		return c.start(ctx, e)
	case c.state == StateRecording && (e.Kind == hotkey.Pressed || e.Kind == hotkey.Repeat):
		c.lastEdge = c.now()
	case c.state == StateRecording && e.Kind == hotkey.Released:
		c.lastEdge = c.now()
		c.finish(ctx, observe.EndReleased)
	default:
		// Released or Repeat while idle, e.g. a key already held at startup.
		return nil
	}
	c.publish()
	return nil
}

func (c *Controller) start(ctx context.Context, e hotkey.Edge) error {
	defer c.publish()

	src, err := c.capture.Open(c.format, c.frameSize)
	if err != nil {
		if errors.Is(err, audio.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrFatalAudio, err)
		}
		c.metrics.AudioOpenErrors.Add(ctx, 1)
		slog.Error("recorder: failed to open audio source", "device", e.Device, "err", err)
		return nil
	}

	s := newSession(src, c.lastEdge)
	c.session = s
	c.state = StateRecording
	go s.capture()

	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()
	c.metrics.RecordSessionStart(ctx)
	slog.Info("recording", "session_id", s.ID, "device", e.Device)
	return nil
}

// checkRelease ends the session when no hotkey record was seen for longer
// than the release timeout. It runs after the edges of a wait round were
// handled, so it cannot fire while records keep arriving inside the window.
func (c *Controller) checkRelease(ctx context.Context) {
	if c.state != StateRecording {
		return
	}
	if c.now().Sub(c.lastEdge) <= c.ReleaseTimeout() {
		return
	}
	slog.Debug("recorder: no hotkey record within release timeout, forcing release",
		"session_id", c.session.ID,
		"release_timeout", c.ReleaseTimeout(),
	)
	c.finish(ctx, observe.EndTimeout)
	c.publish()
}

// finish stops the active session and hands its frames to the sink, unless
// reason is observe.EndShutdown.
func (c *Controller) finish(ctx context.Context, reason string) {
	s := c.session
	c.session = nil
	c.state = StateIdle

	joined := s.stop(c.joinTimeout)
	if err := s.closeSource(); err != nil {
		slog.Warn("recorder: failed to close audio source", "session_id", s.ID, "err", err)
	}
	ended := c.now()

	if !joined {
		c.mu.Lock()
		c.abandoned++
		c.mu.Unlock()
		c.metrics.RecordSessionEnd(ctx, reason, ended.Sub(s.StartedAt), 0, false)
		slog.Error("recorder: capture goroutine did not exit, abandoning session",
			"session_id", s.ID,
			"reason", reason,
		)
		return
	}

	rec := Recording{
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		EndedAt:   ended,
		Reason:    reason,
		Format:    c.format,
		Frames:    s.frames,
		ReadErr:   s.readErr,
	}
	c.metrics.RecordSessionEnd(ctx, reason, rec.Held(), len(rec.Frames), rec.ReadErr != nil)
	if rec.ReadErr != nil {
		slog.Warn("recorder: capture ended early", "session_id", s.ID, "frames", len(rec.Frames), "err", rec.ReadErr)
	}

	if reason == observe.EndShutdown {
		slog.Info("recorder: discarding recording on shutdown", "session_id", s.ID, "frames", len(rec.Frames))
		return
	}

	slog.Info("processing",
		"session_id", s.ID,
		"reason", reason,
		"held", rec.Held(),
		"frames", len(rec.Frames),
	)
	c.publish()
	c.sink.Deliver(ctx, rec)
}

func (c *Controller) shutdown(ctx context.Context) {
	if c.state != StateRecording {
		return
	}
	c.finish(context.WithoutCancel(ctx), observe.EndShutdown)
	c.publish()
}

// publish refreshes the snapshot from the Run goroutine's state.
func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Snapshot{
		State:     c.state.String(),
		LastEdge:  c.lastEdge,
		Sessions:  c.sessions,
		Abandoned: c.abandoned,
	}
	if c.session != nil {
		c.snap.SessionID = c.session.ID.String()
		c.snap.RecordingSince = c.session.StartedAt
	}
}

package recorder

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/pushtalk/pkg/audio"
)

// Session is one recording, from the press that started it to the hand-off
// of its frames.
//
// frames and readErr are written only by the capture goroutine while active
// is true. The controller reads them only after done is closed.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	src    audio.Source
	active atomic.Bool
	done   chan struct{}

	frames  [][]byte
	readErr error

	closeOnce sync.Once
	closeErr  error
}

func newSession(src audio.Source, now time.Time) *Session {
	s := &Session{
		ID:        uuid.New(),
		StartedAt: now,
		src:       src,
		done:      make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

// capture pulls frames until the session is stopped or a read fails. It is
// run on its own goroutine and closes done on exit.
func (s *Session) capture() {
	defer close(s.done)
	for s.active.Load() {
		frame, err := s.src.ReadFrame()
		if err != nil {
			// A read interrupted by stop is not a capture failure.
			if s.active.Load() {
				s.readErr = err
			}
			return
		}
		s.frames = append(s.frames, frame)
	}
}

// stop clears the active flag and waits up to timeout for the capture
// goroutine. When the goroutine is still blocked in a read, the source is
// closed to unblock it and the wait is repeated once. It reports whether
// the goroutine exited.
func (s *Session) stop(timeout time.Duration) bool {
	s.active.Store(false)
	if s.wait(timeout) {
		return true
	}
	slog.Warn("recorder: capture did not stop in time, closing audio source",
		"session_id", s.ID,
		"join_timeout", timeout,
	)
	s.closeSource()
	return s.wait(timeout)
}

func (s *Session) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// closeSource closes the audio source exactly once.
func (s *Session) closeSource() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}

// Recording is the finalized output of a [Session], handed to the [Sink].
// Frames are in capture order and must be treated as read-only.
type Recording struct {
	SessionID uuid.UUID
	StartedAt time.Time
	EndedAt   time.Time

	// Reason is one of observe.EndReleased, observe.EndTimeout or
	// observe.EndShutdown.
	Reason string

	Format audio.Format
	Frames [][]byte

	// ReadErr is set when capture ended early on a read failure. The frames
	// read before the failure are still present.
	ReadErr error
}

// Held returns how long the key was held.
func (r Recording) Held() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

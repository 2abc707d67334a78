// Package mock provides in-memory implementations of [audio.Capture] and
// [audio.Source] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test sets before use to control behaviour.
//
// Typical usage:
//
//	capture := &mock.Capture{
//	    NewSource: func() *mock.Source {
//	        return &mock.Source{Frames: [][]byte{{1, 2}, {3, 4}}}
//	    },
//	}
//	src, err := capture.Open(audio.Speech, 1024)
package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/pushtalk/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
//
// ReadFrame first returns Frames in order. After that it calls Generate, if
// set, with a running frame index; otherwise it returns Err if set. With
// neither set it blocks until Close, then returns [audio.ErrSourceClosed].
//
// Stuck, when non-nil, models a driver read that ignores Close: once Frames
// are exhausted ReadFrame blocks until Stuck is closed.
type Source struct {
	mu sync.Mutex

	// Frames are returned first, in order.
	Frames [][]byte

	// Generate produces frame i after Frames are exhausted.
	Generate func(i int) []byte

	// FrameDelay is slept before every read, interrupted by Close.
	FrameDelay time.Duration

	// Err is returned once Frames are exhausted and Generate is nil.
	Err error

	// Stuck blocks reads past Frames until closed, ignoring Close.
	Stuck chan struct{}

	// CloseError is returned by Close.
	CloseError error

	// CallCountReadFrame records how many times ReadFrame was called.
	CallCountReadFrame int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next      int
	generated int
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Source) closedCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	return s.closed
}

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame() ([]byte, error) {
	closed := s.closedCh()

	s.mu.Lock()
	s.CallCountReadFrame++
	delay := s.FrameDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-closed:
			return nil, audio.ErrSourceClosed
		}
	}

	select {
	case <-closed:
		return nil, audio.ErrSourceClosed
	default:
	}

	s.mu.Lock()
	if s.next < len(s.Frames) {
		f := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	stuck := s.Stuck
	if stuck != nil {
		s.mu.Unlock()
		<-stuck
		return nil, audio.ErrSourceClosed
	}
	if s.Generate != nil {
		i := s.generated
		s.generated++
		gen := s.Generate
		s.mu.Unlock()
		return gen(i), nil
	}
	err := s.Err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	<-closed
	return nil, audio.ErrSourceClosed
}

// Close implements [audio.Source]. It unblocks pending reads.
func (s *Source) Close() error {
	closed := s.closedCh()
	s.closeOnce.Do(func() { close(closed) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// Reads returns the number of ReadFrame calls so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountReadFrame
}

// SequenceFrame returns a 4-byte frame carrying i, for order assertions.
func SequenceFrame(i int) []byte {
	return []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}
}

// SequenceIndex decodes a frame built by [SequenceFrame].
func SequenceIndex(f []byte) (int, error) {
	if len(f) != 4 {
		return 0, fmt.Errorf("mock: sequence frame has %d bytes", len(f))
	}
	return int(f[0])<<24 | int(f[1])<<16 | int(f[2])<<8 | int(f[3]), nil
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Capture.Open] invocation.
type OpenCall struct {
	Format    audio.Format
	FrameSize int
}

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// NewSource builds the source returned by each Open. Defaults to an
	// empty [Source] that blocks until closed.
	NewSource func() *Source

	// OpenError is returned by Open when non-nil.
	OpenError error

	// CloseError is returned by Close.
	CloseError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall

	// Sources records every source handed out, in order.
	Sources []*Source

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Open implements [audio.Capture].
func (c *Capture) Open(format audio.Format, frameSize int) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, OpenCall{Format: format, FrameSize: frameSize})
	if c.OpenError != nil {
		return nil, c.OpenError
	}
	var src *Source
	if c.NewSource != nil {
		src = c.NewSource()
	} else {
		src = &Source{}
	}
	c.Sources = append(c.Sources, src)
	return src, nil
}

// Close implements [audio.Capture].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return c.CloseError
}

// Opens returns the number of Open calls so far.
func (c *Capture) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.OpenCalls)
}

// Source returns the i-th source handed out, or nil.
func (c *Capture) Source(i int) *Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.Sources) {
		return nil
	}
	return c.Sources[i]
}

var (
	_ audio.Capture = (*Capture)(nil)
	_ audio.Source  = (*Source)(nil)
)

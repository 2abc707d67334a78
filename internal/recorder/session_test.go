package recorder

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/pushtalk/pkg/audio"
	audiomock "github.com/MrWong99/pushtalk/pkg/audio/mock"
)

func TestSession_StopJoinsCapture(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Generate: audiomock.SequenceFrame, FrameDelay: 200 * time.Microsecond}
	s := newSession(src, time.Now())
	go s.capture()

	time.Sleep(5 * time.Millisecond)
	if !s.stop(time.Second) {
		t.Fatal("stop did not join the capture goroutine")
	}
	n := len(s.frames)
	if n == 0 {
		t.Fatal("no frames captured")
	}
	for i, f := range s.frames {
		if got, _ := audiomock.SequenceIndex(f); got != i {
			t.Fatalf("frame %d carries index %d", i, got)
		}
	}
	if s.readErr != nil {
		t.Errorf("readErr = %v, want nil", s.readErr)
	}
	if src.Closed() {
		t.Error("source closed although the goroutine exited on its own")
	}
}

func TestSession_StopClosesBlockedSource(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	s := newSession(src, time.Now())
	go s.capture()
	waitBlockedInRead(t, src)

	if !s.stop(10 * time.Millisecond) {
		t.Fatal("stop did not join after closing the source")
	}
	if !src.Closed() {
		t.Error("blocked source was not closed")
	}
	if s.readErr != nil {
		t.Errorf("readErr = %v, want nil for a read interrupted by stop", s.readErr)
	}
	if err := s.closeSource(); err != nil {
		t.Errorf("second closeSource: %v", err)
	}
	if src.CallCountClose != 1 {
		t.Errorf("Close calls = %d, want 1", src.CallCountClose)
	}
}

func TestSession_ReadErrorEndsCapture(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Frames: [][]byte{{1}}, Err: audio.ErrSourceClosed}
	s := newSession(src, time.Now())
	go s.capture()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("capture did not exit on read error")
	}
	if !errors.Is(s.readErr, audio.ErrSourceClosed) {
		t.Errorf("readErr = %v, want %v", s.readErr, audio.ErrSourceClosed)
	}
	if len(s.frames) != 1 {
		t.Errorf("frames = %d, want 1", len(s.frames))
	}
}

// waitBlockedInRead returns once the capture goroutine has entered ReadFrame
// on a source with nothing to deliver.
func waitBlockedInRead(t *testing.T, src *audiomock.Source) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for src.Reads() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("capture goroutine never called ReadFrame")
		}
		time.Sleep(time.Millisecond)
	}
}

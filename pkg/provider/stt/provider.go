// Package stt defines the recognition engine abstraction used by the
// transcription sink.
//
// An [Engine] holds the loaded acoustic model and is shared for the whole
// process lifetime. A [Recognizer] is created from it per recording: it
// accepts the complete utterance and produces exactly one final
// [Transcript]. Recognizers are never reused across recordings.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrRecognizerClosed is returned by [Recognizer] methods after Close.
	ErrRecognizerClosed = errors.New("stt: recognizer closed")

	// ErrEngineClosed is returned once the engine's model has been released.
	ErrEngineClosed = errors.New("stt: engine closed")
)

// Recognizer turns one utterance into text.
//
// AcceptWaveform appends 16 kHz mono signed 16-bit little-endian PCM and may
// be called more than once. FinalResult runs recognition over everything
// accepted so far and must be called at most once. Close releases the
// recognizer; calling it more than once is safe.
type Recognizer interface {
	AcceptWaveform(pcm []byte) error
	FinalResult(ctx context.Context) (Transcript, error)
	Close() error
}

// Engine is a loaded recognition model.
//
// Implementations must be safe for concurrent use. Model load failures are
// reported by the engine constructor, not by NewRecognizer.
type Engine interface {
	// NewRecognizer returns a fresh recognizer bound to the engine's model.
	// Returns an error if ctx is already cancelled or the engine is closed.
	NewRecognizer(ctx context.Context) (Recognizer, error)

	// Close releases the model.
	Close() error
}

// ReadinessChecker is implemented by engines that can report whether their
// model is still usable. A nil error means recognizers can be created.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

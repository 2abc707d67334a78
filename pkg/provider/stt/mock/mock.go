// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to verify that the caller creates one recognizer per utterance
// and to script the transcript each recognizer returns. Every recognizer
// handed out is kept in Engine.Recognizers for later inspection.
//
// Example:
//
//	eng := &mock.Engine{Transcripts: []stt.Transcript{{Text: "hello"}}}
//	r, _ := eng.NewRecognizer(ctx)
//	_ = r.AcceptWaveform(pcm)
//	t, _ := r.FinalResult(ctx) // "hello"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pushtalk/pkg/provider/stt"
)

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Transcripts are returned by successive recognizers, in order. Once
	// exhausted, recognizers return the zero Transcript.
	Transcripts []stt.Transcript

	// FinalErr, if non-nil, is returned by every recognizer's FinalResult.
	FinalErr error

	// NewRecognizerErr, if non-nil, is returned by NewRecognizer.
	NewRecognizerErr error

	// Block, when non-nil, makes FinalResult wait until it is closed or the
	// context is done.
	Block chan struct{}

	// Recognizers records every recognizer handed out.
	Recognizers []*Recognizer

	// ReadyErr, if non-nil, is returned by Ready. A closed engine reports
	// stt.ErrEngineClosed regardless.
	ReadyErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var (
	_ stt.Engine           = (*Engine)(nil)
	_ stt.ReadinessChecker = (*Engine)(nil)
)

// SetReadyErr replaces ReadyErr while the engine is in use.
func (e *Engine) SetReadyErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ReadyErr = err
}

// Ready implements stt.ReadinessChecker.
func (e *Engine) Ready(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CallCountClose > 0 {
		return stt.ErrEngineClosed
	}
	return e.ReadyErr
}

// NewRecognizer records the call and returns a new scripted Recognizer.
func (e *Engine) NewRecognizer(ctx context.Context) (stt.Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewRecognizerErr != nil {
		return nil, e.NewRecognizerErr
	}
	var t stt.Transcript
	if n := len(e.Recognizers); n < len(e.Transcripts) {
		t = e.Transcripts[n]
	}
	r := &Recognizer{result: t, err: e.FinalErr, block: e.Block}
	e.Recognizers = append(e.Recognizers, r)
	return r, nil
}

// Close records the call.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountClose++
	return nil
}

// RecognizerCount returns the number of recognizers created so far.
func (e *Engine) RecognizerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Recognizers)
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	result stt.Transcript
	err    error
	block  chan struct{}

	// Audio holds every chunk passed to AcceptWaveform.
	Audio [][]byte

	// CallCountFinalResult records how many times FinalResult was called.
	CallCountFinalResult int

	// Closed is true after Close.
	Closed bool
}

// AcceptWaveform records the chunk.
func (r *Recognizer) AcceptWaveform(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return stt.ErrRecognizerClosed
	}
	r.Audio = append(r.Audio, pcm)
	return nil
}

// FinalResult returns the scripted transcript.
func (r *Recognizer) FinalResult(ctx context.Context) (stt.Transcript, error) {
	r.mu.Lock()
	r.CallCountFinalResult++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return stt.Transcript{}, stt.ErrRecognizerClosed
	}
	return r.result, r.err
}

// Close marks the recognizer closed.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

var (
	_ stt.Engine     = (*Engine)(nil)
	_ stt.Recognizer = (*Recognizer)(nil)
)

// Package whisper implements [stt.Engine] with the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/pushtalk/pkg/provider/stt"
)

const (
	defaultLanguage = "en"

	// sampleRate is the only rate whisper.cpp accepts.
	sampleRate = 16000
)

var (
	_ stt.Engine           = (*NativeEngine)(nil)
	_ stt.ReadinessChecker = (*NativeEngine)(nil)
)

// NativeEngine loads a ggml whisper model once and hands out recognizers that
// each run inference in their own whisper context.
type NativeEngine struct {
	model    whisperlib.Model
	language string
	threads  uint
	prompt   string

	mu     sync.RWMutex
	closed bool
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the language code for transcription (e.g. "en",
// "de", "auto"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithThreads(n uint) NativeOption {
	return func(e *NativeEngine) { e.threads = n }
}

// WithInitialPrompt primes the decoder with text, typically a list of names
// and jargon the speaker uses.
func WithInitialPrompt(prompt string) NativeOption {
	return func(e *NativeEngine) { e.prompt = prompt }
}

// NewNative loads the whisper.cpp model at modelPath. A load failure is
// fatal for the caller. The caller must call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	e := &NativeEngine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewRecognizer implements [stt.Engine]. The whisper context is created
// lazily in FinalResult because contexts are not thread-safe and hold
// sizeable buffers.
func (e *NativeEngine) NewRecognizer(ctx context.Context) (stt.Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("whisper: %w", stt.ErrEngineClosed)
	}
	return &recognizer{engine: e}, nil
}

// Ready implements [stt.ReadinessChecker].
func (e *NativeEngine) Ready(context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("whisper: %w", stt.ErrEngineClosed)
	}
	return nil
}

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.model.Close()
}

// recognizer buffers one utterance and runs inference once.
type recognizer struct {
	engine *NativeEngine

	mu     sync.Mutex
	pcm    []byte
	done   bool
	closed bool
}

func (r *recognizer) AcceptWaveform(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrRecognizerClosed
	}
	if r.done {
		return errors.New("whisper: waveform after final result")
	}
	r.pcm = append(r.pcm, pcm...)
	return nil
}

func (r *recognizer) FinalResult(ctx context.Context) (stt.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.Transcript{}, stt.ErrRecognizerClosed
	}
	if r.done {
		return stt.Transcript{}, errors.New("whisper: final result already taken")
	}
	r.done = true
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	r.engine.mu.RLock()
	defer r.engine.mu.RUnlock()
	if r.engine.closed {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", stt.ErrEngineClosed)
	}
	return r.engine.infer(samplesFromPCM(r.pcm))
}

func (r *recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.pcm = nil
	return nil
}

// infer runs whisper.cpp over samples using a fresh context and collects
// every segment.
func (e *NativeEngine) infer(samples []float32) (stt.Transcript, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", e.language, "err", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}
	if e.prompt != "" {
		wctx.SetInitialPrompt(e.prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	t := stt.Transcript{
		Language:      e.language,
		AudioDuration: time.Duration(len(samples)) * time.Second / sampleRate,
	}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		t.Segments = append(t.Segments, stt.Segment{Text: text, Start: segment.Start, End: segment.End})
	}
	t.Text = strings.Join(parts, " ")
	return t, nil
}

// samplesFromPCM converts signed 16-bit little-endian PCM to float32 samples
// in [-1, 1). A trailing odd byte is ignored.
func samplesFromPCM(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

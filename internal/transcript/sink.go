// Package transcript turns finalized recordings into typed text.
//
// A [Sink] is the hand-off target of the recording controller. For every
// recording it concatenates the frames, converts them to 16 kHz mono, runs
// them through a fresh recognizer, drops empty results, applies vocabulary
// correction and types the text through an [inject.Injector].
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/pushtalk/internal/inject"
	"github.com/MrWong99/pushtalk/internal/observe"
	"github.com/MrWong99/pushtalk/internal/recorder"
	"github.com/MrWong99/pushtalk/pkg/audio"
	"github.com/MrWong99/pushtalk/pkg/provider/stt"
)

// Option configures a [Sink].
type Option func(*Sink)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// WithDumpDir writes every recording, after conversion, as a WAV file into
// dir. An empty dir disables dumping.
func WithDumpDir(dir string) Option {
	return func(s *Sink) { s.dumpDir = dir }
}

// WithVocabulary sets the initial correction vocabulary.
func WithVocabulary(words []string) Option {
	return func(s *Sink) { s.corrector.Store(NewCorrector(words)) }
}

// Sink delivers recordings to the recognizer and the injector. Deliver is
// called from the controller goroutine; SetVocabulary may be called
// concurrently.
type Sink struct {
	engine   stt.Engine
	injector inject.Injector
	metrics  *observe.Metrics
	dumpDir  string

	corrector atomic.Pointer[Corrector]
}

var _ recorder.Sink = (*Sink)(nil)

// NewSink creates a Sink recognizing with engine and typing through injector.
func NewSink(engine stt.Engine, injector inject.Injector, opts ...Option) *Sink {
	s := &Sink{engine: engine, injector: injector}
	s.corrector.Store(NewCorrector(nil))
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetVocabulary replaces the correction vocabulary for later recordings.
func (s *Sink) SetVocabulary(words []string) {
	c := NewCorrector(words)
	s.corrector.Store(c)
	slog.Info("transcript: vocabulary updated", "entries", c.Len())
}

// Deliver transcribes rec and types the result. Failures are logged and
// counted; they never propagate to the caller.
func (s *Sink) Deliver(ctx context.Context, rec recorder.Recording) {
	id := rec.SessionID.String()
	if len(rec.Frames) == 0 {
		slog.Info("no audio recorded", "session_id", id, "reason", rec.Reason)
		s.metrics.RecordTranscript(ctx, observe.OutcomeNoAudio)
		return
	}

	ctx, span := observe.StartSessionSpan(ctx, "transcript.Deliver", id)
	defer span.End()
	log := observe.Logger(ctx).With("session_id", id)

	pcm := audio.Concat(rec.Frames)
	from := rec.Format
	if from.SampleRate == 0 {
		from = audio.Speech
	}
	if from != audio.Speech {
		pcm = audio.Convert(pcm, from, audio.Speech)
	}
	if s.dumpDir != "" {
		if path, err := audio.DumpWAV(s.dumpDir, id, pcm, audio.Speech); err != nil {
			log.Warn("transcript: failed to dump audio", "dir", s.dumpDir, "err", err)
		} else {
			log.Debug("transcript: audio dumped", "path", path)
		}
	}

	t, err := s.recognize(ctx, pcm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognition failed")
		log.Error("transcript: recognition failed", "err", err)
		s.metrics.RecordTranscript(ctx, observe.OutcomeError)
		return
	}
	if t.Empty() {
		log.Info("no speech detected", "audio", audio.Speech.Duration(len(pcm)))
		s.metrics.RecordTranscript(ctx, observe.OutcomeNoSpeech)
		return
	}

	text := strings.TrimSpace(t.Text)
	if fixed, corrections := s.corrector.Load().Correct(text); len(corrections) > 0 {
		for _, c := range corrections {
			log.Debug("transcript: vocabulary correction",
				"original", c.Original,
				"corrected", c.Corrected,
				"score", c.Score,
			)
		}
		text = fixed
	}
	log.Info("recognized", "text", text, "language", t.Language)

	start := time.Now()
	err = s.injector.Type(ctx, text)
	s.metrics.InjectionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "injection failed")
		log.Error("transcript: failed to type text", "err", err)
		s.metrics.InjectionErrors.Add(ctx, 1)
		s.metrics.RecordTranscript(ctx, observe.OutcomeError)
		return
	}
	s.metrics.RecordTranscript(ctx, observe.OutcomeInjected)
}

// recognize runs pcm through a recognizer created for this call only.
func (s *Sink) recognize(ctx context.Context, pcm []byte) (stt.Transcript, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())
	}()

	r, err := s.engine.NewRecognizer(ctx)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("transcript: new recognizer: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			slog.Warn("transcript: failed to close recognizer", "err", err)
		}
	}()

	if err := r.AcceptWaveform(pcm); err != nil {
		return stt.Transcript{}, fmt.Errorf("transcript: accept waveform: %w", err)
	}
	t, err := r.FinalResult(ctx)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("transcript: final result: %w", err)
	}
	return t, nil
}

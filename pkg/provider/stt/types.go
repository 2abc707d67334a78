package stt

import (
	"strings"
	"time"
)

// Transcript is the final recognition result for one utterance.
type Transcript struct {
	// Text is the recognized speech content. It may be empty or consist of
	// whitespace only when no speech was detected.
	Text string

	// Language is the recognition language, when known.
	Language string

	// Segments contains per-segment timing when the engine reports it.
	Segments []Segment

	// AudioDuration is the length of the recognized audio.
	AudioDuration time.Duration
}

// Empty reports whether t carries no speech.
func (t Transcript) Empty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Segment is a span of recognized text with timing relative to the start of
// the utterance.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

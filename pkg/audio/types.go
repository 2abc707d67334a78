// Package audio defines the capture abstraction used by the recorder and the
// PCM helpers shared by the capture backends and the transcription sink.
//
// A [Capture] backend is opened once per recording and yields a [Source]
// that hands out fixed-size frames of signed 16-bit little-endian PCM.
// Backend implementations live in sub-packages (audio/portaudio) so that
// cgo dependencies stay out of code that only needs the interfaces.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceClosed is returned by [Source.ReadFrame] after [Source.Close].
var ErrSourceClosed = errors.New("audio: source closed")

// Format describes the sample rate and channel count of an audio stream.
// Samples are always 16-bit signed little-endian.
type Format struct {
	SampleRate int
	Channels   int
}

// Speech is the format expected by the recognition engine.
var Speech = Format{SampleRate: 16000, Channels: 1}

// String returns a human-readable format such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// BytesPerSecond returns the PCM data rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback duration of n bytes of PCM in format f.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Source is an open capture stream.
//
// ReadFrame blocks until one frame of frameSize samples per channel is
// available and returns a buffer the caller may keep. It is called from a
// single goroutine. Close may be called concurrently with a blocked
// ReadFrame and must make it return.
type Source interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Capture opens microphone streams.
//
// Open returns an error wrapping [ErrPermission] when the device cannot be
// accessed. Implementations must be safe for concurrent use.
type Capture interface {
	Open(format Format, frameSize int) (Source, error)
	Close() error
}

// ErrPermission marks an audio open failure caused by missing access rights.
var ErrPermission = errors.New("audio: permission denied")

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/pushtalk/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestConcat_PreservesOrder(t *testing.T) {
	t.Parallel()
	got := audio.Concat([][]byte{{1, 2}, {3}, nil, {4, 5, 6}})
	want := []byte{1, 2, 3, 4, 5, 6}
	if !slices.Equal(got, want) {
		t.Errorf("Concat = %v, want %v", got, want)
	}
	if out := audio.Concat(nil); len(out) != 0 {
		t.Errorf("Concat(nil) = %v, want empty", out)
	}
}

func TestFormat_Duration(t *testing.T) {
	t.Parallel()
	if got := audio.Speech.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %s, want 1s", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("zero format Duration = %s, want 0", got)
	}
	if got := audio.Speech.String(); got != "16000Hz mono" {
		t.Errorf("String() = %q", got)
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		in          []int16
		from, to    audio.Format
		wantSamples int
		want        []int16
	}{
		{
			name:        "same format",
			in:          []int16{1, 2, 3},
			from:        audio.Speech,
			to:          audio.Speech,
			wantSamples: 3,
			want:        []int16{1, 2, 3},
		},
		{
			name:        "stereo to mono",
			in:          []int16{100, 200, -100, -200},
			from:        audio.Format{SampleRate: 16000, Channels: 2},
			to:          audio.Speech,
			wantSamples: 2,
			want:        []int16{150, -150},
		},
		{
			name:        "48k mono to 16k mono",
			in:          []int16{100, 200, 300, 400, 500, 600},
			from:        audio.Format{SampleRate: 48000, Channels: 1},
			to:          audio.Speech,
			wantSamples: 2,
		},
		{
			name:        "44.1k stereo to 16k mono",
			in:          make([]int16, 2*4410),
			from:        audio.Format{SampleRate: 44100, Channels: 2},
			to:          audio.Speech,
			wantSamples: 1600,
		},
		{
			name:        "16k mono to 48k stereo",
			in:          []int16{1000, 2000},
			from:        audio.Speech,
			to:          audio.Format{SampleRate: 48000, Channels: 2},
			wantSamples: 12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Convert(samplesToBytes(tt.in), tt.from, tt.to))
			if len(got) != tt.wantSamples {
				t.Fatalf("samples = %d, want %d", len(got), tt.wantSamples)
			}
			if tt.want != nil && !slices.Equal(got, tt.want) {
				t.Errorf("samples = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvert_OddByteCountTruncated(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF}
	out := audio.Convert(pcm, audio.Format{SampleRate: 16000, Channels: 2}, audio.Speech)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (one mono sample)", len(out))
	}
}

func TestConvert_StereoAverageStaysInRange(t *testing.T) {
	t.Parallel()
	stereo := audio.Format{SampleRate: 16000, Channels: 2}
	got := bytesToSamples(audio.Convert(samplesToBytes([]int16{32767, 32767, -32768, -32768}), stereo, audio.Speech))
	if !slices.Equal(got, []int16{32767, -32768}) {
		t.Errorf("samples = %v, want [32767 -32768]", got)
	}
}

func TestConvert_UpsampleInterpolates(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.Convert(samplesToBytes([]int16{1000, 2000}), audio.Speech, audio.Format{SampleRate: 48000, Channels: 1}))
	want := []int16{1000, 1333, 1666, 2000, 2000, 2000}
	if !slices.Equal(got, want) {
		t.Errorf("samples = %v, want %v", got, want)
	}
}

func TestConvert_MonoToStereoDuplicates(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.Convert(samplesToBytes([]int16{100, 200, 300}), audio.Speech, audio.Format{SampleRate: 16000, Channels: 2}))
	want := []int16{100, 100, 200, 200, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("samples = %v, want %v", got, want)
	}
}

func TestConvert_InvalidFormatUnchanged(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{100, 200})
	for _, from := range []audio.Format{{SampleRate: 0, Channels: 1}, {SampleRate: -1, Channels: 1}, {SampleRate: 48000, Channels: 0}} {
		if out := audio.Convert(pcm, from, audio.Speech); !slices.Equal(out, pcm) {
			t.Errorf("from %+v: expected unchanged output, got %v", from, out)
		}
	}
}

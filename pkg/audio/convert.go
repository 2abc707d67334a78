package audio

import (
	"encoding/binary"
	"log/slog"

	goaudio "github.com/go-audio/audio"
)

// Concat joins frames in order into one PCM buffer.
func Concat(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// Convert converts 16-bit little-endian PCM from one format to another.
// Channels are remixed before resampling, so a stereo capture bound for
// [Speech] resamples half the data. A trailing partial sample is dropped.
// If the formats match, or either sample rate is not positive, the input is
// returned unchanged.
func Convert(pcm []byte, from, to Format) []byte {
	if from == to || from.SampleRate <= 0 || to.SampleRate <= 0 || from.Channels <= 0 || to.Channels <= 0 {
		return pcm
	}
	if len(pcm)%2 != 0 {
		slog.Warn("audio: odd byte count in PCM data, truncating", "bytes", len(pcm), "format", from.String())
		pcm = pcm[:len(pcm)-1]
	}

	buf := intBuffer(pcm, from)
	buf = remix(buf, to.Channels)
	buf = resample(buf, to.SampleRate)
	return pcmBytes(buf)
}

// intBuffer decodes pcm into a go-audio buffer tagged with f.
func intBuffer(pcm []byte, f Format) *goaudio.IntBuffer {
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func pcmBytes(buf *goaudio.IntBuffer) []byte {
	out := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(s)))
	}
	return out
}

// remix changes the channel count. Going down, every output channel is the
// average of the input channels; going up, each input frame is repeated
// into every output channel.
func remix(buf *goaudio.IntBuffer, channels int) *goaudio.IntBuffer {
	in := buf.Format.NumChannels
	if in == channels {
		return buf
	}
	frames := len(buf.Data) / in
	data := make([]int, frames*channels)
	for i := range frames {
		frame := buf.Data[i*in : (i+1)*in]
		if channels < in {
			sum := 0
			for _, s := range frame {
				sum += s
			}
			for c := range channels {
				data[i*channels+c] = sum / in
			}
			continue
		}
		for c := range channels {
			data[i*channels+c] = frame[c%in]
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: buf.Format.SampleRate},
		Data:           data,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

// resample changes the sample rate with linear interpolation between
// neighbouring frames. The last frame is held at the end of the buffer.
func resample(buf *goaudio.IntBuffer, rate int) *goaudio.IntBuffer {
	src := buf.Format.SampleRate
	if src == rate || len(buf.Data) == 0 {
		return buf
	}
	ch := buf.Format.NumChannels
	srcFrames := len(buf.Data) / ch
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(src))

	data := make([]int, dstFrames*ch)
	ratio := float64(src) / float64(rate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range ch {
			s0 := float64(buf.Data[idx*ch+c])
			s1 := float64(buf.Data[next*ch+c])
			data[i*ch+c] = int(s0*(1-frac) + s1*frac)
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: ch, SampleRate: rate},
		Data:           data,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

func clamp16(s int) int16 {
	return int16(max(-32768, min(32767, s)))
}

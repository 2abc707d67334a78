// Package portaudio implements [audio.Capture] on top of the PortAudio C
// library (github.com/gordonklaus/portaudio). The library is initialised once
// in [New] and terminated in [Capture.Close].
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/pushtalk/pkg/audio"
)

// Capture opens blocking PortAudio input streams on the first device whose
// name contains DeviceMatch. It is safe for concurrent use.
type Capture struct {
	deviceMatch string

	mu     sync.Mutex
	closed bool
}

// New initialises PortAudio. deviceMatch is a case-insensitive substring of
// the microphone name; empty selects the default input device.
func New(deviceMatch string) (*Capture, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Capture{deviceMatch: deviceMatch}, nil
}

// Open implements [audio.Capture]. The device is looked up on every call so
// that a microphone plugged in after startup is picked up.
func (c *Capture) Open(format audio.Format, frameSize int) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("portaudio: capture closed")
	}

	dev, err := c.selectDevice()
	if err != nil {
		return nil, err
	}
	if dev.MaxInputChannels < format.Channels {
		return nil, fmt.Errorf("portaudio: %q has %d input channels, need %d", dev.Name, dev.MaxInputChannels, format.Channels)
	}

	buf := make([]int16, frameSize*format.Channels)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: format.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, classify(fmt.Errorf("portaudio: open %q: %w", dev.Name, err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, classify(fmt.Errorf("portaudio: start %q: %w", dev.Name, err))
	}
	slog.Debug("portaudio: stream started", "device", dev.Name, "format", format.String(), "frame_size", frameSize)
	return &source{stream: stream, buf: buf}, nil
}

// Close terminates PortAudio. Sources must be closed before.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return pa.Terminate()
}

// InputDevices lists the names of all devices with input channels.
func (c *Capture) InputDevices() ([]string, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var names []string
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func (c *Capture) selectDevice() (*pa.DeviceInfo, error) {
	if c.deviceMatch != "" {
		devs, err := pa.Devices()
		if err != nil {
			return nil, fmt.Errorf("portaudio: list devices: %w", err)
		}
		if d := matchDevice(devs, c.deviceMatch); d != nil {
			return d, nil
		}
	}
	def, err := pa.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("portaudio: default input device: %w", err)
	}
	if c.deviceMatch != "" {
		slog.Warn("portaudio: microphone not found, using default input", "match", c.deviceMatch, "device", def.Name)
	}
	return def, nil
}

// matchDevice returns the first input device whose name contains match.
func matchDevice(devs []*pa.DeviceInfo, match string) *pa.DeviceInfo {
	needle := strings.ToLower(match)
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d
		}
	}
	return nil
}

// classify wraps err with [audio.ErrPermission] when the host API reported
// an access failure.
func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return fmt.Errorf("%w: %w", audio.ErrPermission, err)
	}
	return err
}

// source is one started input stream. Close may run while ReadFrame is
// blocked: it aborts the stream, and whichever of the two finishes last
// closes it.
type source struct {
	stream *pa.Stream
	buf    []int16

	readMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *source) ReadFrame() ([]byte, error) {
	if s.closed.Load() {
		return nil, audio.ErrSourceClosed
	}
	s.readMu.Lock()
	err := s.stream.Read()
	out := int16ToBytes(s.buf)
	s.readMu.Unlock()

	if s.closed.Load() {
		s.release()
		return nil, audio.ErrSourceClosed
	}
	if err != nil && !errors.Is(err, pa.InputOverflowed) {
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	return out, nil
}

func (s *source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.readMu.TryLock() {
		s.readMu.Unlock()
		s.release()
		return s.closeErr
	}
	// A read is in flight; abort unblocks it and it releases the stream.
	if err := s.stream.Abort(); err != nil {
		slog.Debug("portaudio: abort stream", "err", err)
	}
	return nil
}

func (s *source) release() {
	s.closeOnce.Do(func() {
		stopErr := s.stream.Stop()
		if errors.Is(stopErr, pa.StreamIsStopped) {
			stopErr = nil
		}
		s.closeErr = errors.Join(stopErr, s.stream.Close())
	})
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

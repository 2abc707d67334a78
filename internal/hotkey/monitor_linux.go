//go:build linux

package hotkey

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MrWong99/pushtalk/internal/observe"
)

type device struct {
	path string
	f    *os.File
	fd   int
}

// Monitor waits on a set of evdev streams and yields hotkey edges. It is not
// safe for concurrent use; a single goroutine owns it.
type Monitor struct {
	code    uint16
	repeat  bool
	metrics *observe.Metrics

	devices []*device
	pending []Edge
	buf     []byte
	fds     []unix.PollFd
}

// Option configures a [Monitor].
type Option func(*Monitor)

// WithRepeat makes the monitor surface auto-repeat records as [Repeat]
// edges.
func WithRepeat(enabled bool) Option {
	return func(m *Monitor) { m.repeat = enabled }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Monitor) {
		if met != nil {
			m.metrics = met
		}
	}
}

// Open opens every path read-only and returns a monitor for key code.
// A permission failure on any path returns an error wrapping
// [ErrPermission]; already opened devices are closed again.
func Open(paths []string, code uint16, opts ...Option) (*Monitor, error) {
	if len(paths) == 0 {
		return nil, ErrNoDevices
	}
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			if errors.Is(err, fs.ErrPermission) {
				return nil, fmt.Errorf("%w: %w", ErrPermission, err)
			}
			return nil, fmt.Errorf("hotkey: open %s: %w", p, err)
		}
		files = append(files, f)
	}
	return NewMonitor(files, code, opts...)
}

// NewMonitor wraps already opened streams. The monitor takes ownership of
// files and closes them in [Monitor.Close].
func NewMonitor(files []*os.File, code uint16, opts ...Option) (*Monitor, error) {
	if len(files) == 0 {
		return nil, ErrNoDevices
	}
	m := &Monitor{
		code:    code,
		metrics: observe.DefaultMetrics(),
		buf:     make([]byte, RecordSize),
	}
	for _, o := range opts {
		o(m)
	}
	for _, f := range files {
		m.devices = append(m.devices, &device{path: f.Name(), f: f, fd: int(f.Fd())})
	}
	return m, nil
}

// Devices returns the paths of the devices still being watched.
func (m *Monitor) Devices() []string {
	out := make([]string, len(m.devices))
	for i, d := range m.devices {
		out[i] = d.path
	}
	return out
}

// WaitForEdge returns the next hotkey edge. Edges decoded in an earlier
// round are returned first, one per call. Otherwise it waits up to timeout
// for any device to become readable, reads one record from each ready
// device and queues the resulting edges. ok is false when the wait elapsed
// without an edge.
//
// A device that hangs up or fails a read is dropped. When no device is left
// the returned error wraps [ErrNoDevices].
func (m *Monitor) WaitForEdge(ctx context.Context, timeout time.Duration) (e Edge, ok bool, err error) {
	if len(m.pending) > 0 {
		return m.pop(), true, nil
	}
	if err := ctx.Err(); err != nil {
		return Edge{}, false, err
	}
	if len(m.devices) == 0 {
		return Edge{}, false, ErrNoDevices
	}

	m.fds = m.fds[:0]
	for _, d := range m.devices {
		m.fds = append(m.fds, unix.PollFd{Fd: int32(d.fd), Events: unix.POLLIN})
	}
	n, err := unix.Poll(m.fds, max(int(timeout/time.Millisecond), 0))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return Edge{}, false, nil
		}
		return Edge{}, false, fmt.Errorf("hotkey: poll: %w", err)
	}
	if n == 0 {
		return Edge{}, false, nil
	}

	var lost []*device
	for i, pfd := range m.fds {
		d := m.devices[i]
		switch {
		case pfd.Revents&unix.POLLIN != 0:
			if err := m.readOne(ctx, d); err != nil {
				slog.Warn("hotkey: input device lost", "device", d.path, "err", err)
				lost = append(lost, d)
			}
		case pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0:
			slog.Warn("hotkey: input device lost", "device", d.path, "revents", pfd.Revents)
			lost = append(lost, d)
		}
	}
	for _, d := range lost {
		m.drop(ctx, d)
	}

	if len(m.pending) > 0 {
		return m.pop(), true, nil
	}
	if len(m.devices) == 0 {
		return Edge{}, false, ErrNoDevices
	}
	return Edge{}, false, nil
}

// readOne reads a single record from d and queues it if it is a hotkey
// edge. Short records are counted and discarded.
func (m *Monitor) readOne(ctx context.Context, d *device) error {
	n, err := unix.Read(d.fd, m.buf)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return err
	}
	if n == 0 {
		return errors.New("end of stream")
	}
	ev, err := Decode(m.buf[:n])
	if err != nil {
		slog.Debug("hotkey: discarding record", "device", d.path, "bytes", n)
		m.metrics.RecordDroppedRecord(ctx, "short")
		return nil
	}
	kind, ok := Classify(ev, m.code, m.repeat)
	if !ok {
		return nil
	}
	m.metrics.RecordEdge(ctx, kind.String())
	m.pending = append(m.pending, Edge{Kind: kind, Device: d.path, Time: ev.Time})
	return nil
}

func (m *Monitor) drop(ctx context.Context, d *device) {
	for i, cur := range m.devices {
		if cur == d {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	d.f.Close()
	m.metrics.DevicesLost.Add(ctx, 1)
}

func (m *Monitor) pop() Edge {
	e := m.pending[0]
	m.pending = m.pending[1:]
	return e
}

// Close closes every remaining device.
func (m *Monitor) Close() error {
	var errs []error
	for _, d := range m.devices {
		if err := d.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hotkey: close %s: %w", d.path, err))
		}
	}
	m.devices = nil
	return errors.Join(errs...)
}

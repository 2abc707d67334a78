//go:build !linux

package hotkey

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/MrWong99/pushtalk/internal/observe"
)

var errUnsupported = errors.New("hotkey: evdev input is only available on linux")

// Monitor is unavailable outside Linux.
type Monitor struct{}

// Option configures a [Monitor].
type Option func(*Monitor)

// WithRepeat is a no-op outside Linux.
func WithRepeat(bool) Option { return func(*Monitor) {} }

// WithMetrics is a no-op outside Linux.
func WithMetrics(*observe.Metrics) Option { return func(*Monitor) {} }

// Open always fails outside Linux.
func Open([]string, uint16, ...Option) (*Monitor, error) { return nil, errUnsupported }

// NewMonitor always fails outside Linux.
func NewMonitor([]*os.File, uint16, ...Option) (*Monitor, error) { return nil, errUnsupported }

// Devices returns nil.
func (m *Monitor) Devices() []string { return nil }

// WaitForEdge always fails outside Linux.
func (m *Monitor) WaitForEdge(context.Context, time.Duration) (Edge, bool, error) {
	return Edge{}, false, errUnsupported
}

// Close is a no-op.
func (m *Monitor) Close() error { return nil }

// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for pushtalk.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default values applied by [ApplyDefaults] when a field is left empty.
const (
	// DefaultHotkeyCode is KEY_RIGHTCTRL from linux/input-event-codes.h.
	DefaultHotkeyCode uint16 = 97

	DefaultWaitTimeout    = 50 * time.Millisecond
	DefaultReleaseTimeout = 150 * time.Millisecond
	DefaultJoinTimeout    = time.Second

	DefaultSysfsRoot = "/sys/class/input"
	DefaultDevRoot   = "/dev/input"

	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameSize  = 1024

	DefaultOutputTimeout = 10 * time.Second
)

// Config is the root configuration structure for pushtalk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Debug      DebugConfig      `yaml:"debug"`
}

// ServerConfig holds logging and the optional observability listener.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz, /readyz and
	// /statusz (e.g. "127.0.0.1:9464"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// HotkeyConfig describes which key is monitored and on which devices.
type HotkeyConfig struct {
	// Code is the evdev key code of the push-to-talk key.
	Code uint16 `yaml:"code"`

	// Devices lists explicit /dev/input/eventN paths. When set, name matching
	// is skipped.
	Devices []string `yaml:"devices"`

	// DeviceNameMatch lists case-insensitive substrings matched against
	// /sys/class/input/eventN/device/name. Every matching device is opened.
	DeviceNameMatch []string `yaml:"device_name_match"`

	// SysfsRoot and DevRoot relocate the device scan. Mostly useful in tests.
	SysfsRoot string `yaml:"sysfs_root"`
	DevRoot   string `yaml:"dev_root"`

	// WaitTimeout bounds a single multiplexed wait over the device streams.
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	// ReleaseTimeout ends a recording when no hotkey record was seen for this
	// long. Hot-reloadable.
	ReleaseTimeout time.Duration `yaml:"release_timeout"`

	// RepeatKeepAlive makes auto-repeat records refresh the release timer.
	// Defaults to true when omitted.
	RepeatKeepAlive *bool `yaml:"repeat_keepalive"`
}

// KeepAlive reports whether auto-repeat records refresh the release timer.
func (h HotkeyConfig) KeepAlive() bool {
	return h.RepeatKeepAlive == nil || *h.RepeatKeepAlive
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the number of samples per channel read in one call.
	FrameSize int `yaml:"frame_size"`

	// JoinTimeout bounds the wait for the capture goroutine to exit after the
	// key is released.
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// ProvidersConfig selects the implementation for each external collaborator.
type ProvidersConfig struct {
	STT    ProviderEntry `yaml:"stt"`
	Audio  ProviderEntry `yaml:"audio"`
	Output ProviderEntry `yaml:"output"`
}

// ProviderEntry is the generic configuration block for a single provider.
type ProviderEntry struct {
	// Name selects the implementation (e.g. "whisper-native", "portaudio",
	// "wtype").
	Name string `yaml:"name"`

	// Model is a provider-specific model identifier or path.
	Model string `yaml:"model"`

	// Options holds arbitrary provider-specific key/value pairs.
	Options map[string]any `yaml:"options"`
}

// TranscriptConfig configures post-processing of recognized text.
type TranscriptConfig struct {
	// Vocabulary lists words and phrases that misrecognitions are snapped to
	// (names, jargon). Hot-reloadable.
	Vocabulary []string `yaml:"vocabulary"`
}

// DebugConfig holds troubleshooting switches.
type DebugConfig struct {
	// AudioDumpDir, when set, receives one WAV file per finalized session.
	AudioDumpDir string `yaml:"audio_dump_dir"`
}

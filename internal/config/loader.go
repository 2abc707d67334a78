package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"whisper-native"},
	"audio":  {"portaudio"},
	"output": {"wtype", "command"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field of cfg that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	h := &cfg.Hotkey
	if h.Code == 0 {
		h.Code = DefaultHotkeyCode
	}
	if h.SysfsRoot == "" {
		h.SysfsRoot = DefaultSysfsRoot
	}
	if h.DevRoot == "" {
		h.DevRoot = DefaultDevRoot
	}
	if h.WaitTimeout == 0 {
		h.WaitTimeout = DefaultWaitTimeout
	}
	if h.ReleaseTimeout == 0 {
		h.ReleaseTimeout = DefaultReleaseTimeout
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = DefaultChannels
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.JoinTimeout == 0 {
		a.JoinTimeout = DefaultJoinTimeout
	}

	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "whisper-native"
	}
	if cfg.Providers.Audio.Name == "" {
		cfg.Providers.Audio.Name = "portaudio"
	}
	if cfg.Providers.Output.Name == "" {
		cfg.Providers.Output.Name = "wtype"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Hotkey
	if cfg.Hotkey.Code == 0 {
		errs = append(errs, errors.New("hotkey.code must be a non-zero evdev key code"))
	}
	if len(cfg.Hotkey.Devices) == 0 && len(cfg.Hotkey.DeviceNameMatch) == 0 {
		errs = append(errs, errors.New("hotkey: either devices or device_name_match must be set"))
	}
	for i, m := range cfg.Hotkey.DeviceNameMatch {
		if m == "" {
			errs = append(errs, fmt.Errorf("hotkey.device_name_match[%d] must not be empty", i))
		}
	}
	if cfg.Hotkey.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("hotkey.wait_timeout %s must be positive", cfg.Hotkey.WaitTimeout))
	}
	if cfg.Hotkey.ReleaseTimeout < 0 {
		errs = append(errs, fmt.Errorf("hotkey.release_timeout %s must be positive", cfg.Hotkey.ReleaseTimeout))
	}
	if cfg.Hotkey.WaitTimeout > 0 && cfg.Hotkey.ReleaseTimeout > 0 && cfg.Hotkey.ReleaseTimeout < cfg.Hotkey.WaitTimeout {
		slog.Warn("hotkey.release_timeout is shorter than hotkey.wait_timeout; forced release will fire late",
			"release_timeout", cfg.Hotkey.ReleaseTimeout,
			"wait_timeout", cfg.Hotkey.WaitTimeout,
		)
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.JoinTimeout < 0 {
		errs = append(errs, fmt.Errorf("audio.join_timeout %s must be positive", cfg.Audio.JoinTimeout))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	validateProviderName("output", cfg.Providers.Output.Name)

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

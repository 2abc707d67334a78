package config

import (
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (devices, audio format, providers) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ReleaseTimeoutChanged bool
	NewReleaseTimeout     time.Duration

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists the top-level sections whose changes are ignored
	// until the process restarts.
	RestartRequired []string
}

// Empty reports whether d carries no applicable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ReleaseTimeoutChanged && !d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Hotkey.ReleaseTimeout != new.Hotkey.ReleaseTimeout {
		d.ReleaseTimeoutChanged = true
		d.NewReleaseTimeout = new.Hotkey.ReleaseTimeout
	}

	if !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Transcript.Vocabulary)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameHotkeyDevices(old.Hotkey, new.Hotkey) {
		d.RestartRequired = append(d.RestartRequired, "hotkey")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameEntry(old.Providers.STT, new.Providers.STT) ||
		!sameEntry(old.Providers.Audio, new.Providers.Audio) ||
		!sameEntry(old.Providers.Output, new.Providers.Output) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Debug != new.Debug {
		d.RestartRequired = append(d.RestartRequired, "debug")
	}

	return d
}

func sameHotkeyDevices(a, b HotkeyConfig) bool {
	return a.Code == b.Code &&
		a.WaitTimeout == b.WaitTimeout &&
		a.KeepAlive() == b.KeepAlive() &&
		a.SysfsRoot == b.SysfsRoot &&
		a.DevRoot == b.DevRoot &&
		slices.Equal(a.Devices, b.Devices) &&
		slices.Equal(a.DeviceNameMatch, b.DeviceNameMatch)
}

// sameEntry compares name and model only; option maps are not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.Model == b.Model
}

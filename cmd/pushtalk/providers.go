package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/pushtalk/internal/app"
	"github.com/MrWong99/pushtalk/internal/config"
	"github.com/MrWong99/pushtalk/internal/inject"
	"github.com/MrWong99/pushtalk/pkg/audio"
	"github.com/MrWong99/pushtalk/pkg/audio/portaudio"
	"github.com/MrWong99/pushtalk/pkg/provider/stt"
	"github.com/MrWong99/pushtalk/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		if modelPath == "" {
			return nil, errors.New("whisper-native: model path is required (providers.stt.model)")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n, ok := optInt(entry.Options, "threads"); ok && n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		if prompt := optString(entry.Options, "initial_prompt"); prompt != "" {
			opts = append(opts, whisper.WithInitialPrompt(prompt))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (audio.Capture, error) {
		return portaudio.New(optString(entry.Options, "device"))
	})

	// ── Output ────────────────────────────────────────────────────────────────

	reg.RegisterOutput("wtype", func(entry config.ProviderEntry) (inject.Injector, error) {
		timeout, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, fmt.Errorf("wtype: %w", err)
		}
		return inject.NewWtype(inject.WithTimeout(timeout)), nil
	})

	reg.RegisterOutput("command", func(entry config.ProviderEntry) (inject.Injector, error) {
		argv := optStrings(entry.Options, "command")
		if len(argv) == 0 {
			return nil, errors.New("command: options.command must list the program and its arguments")
		}
		timeout, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, fmt.Errorf("command: %w", err)
		}
		opts := []inject.Option{inject.WithTimeout(timeout)}
		if terminate, ok := optBool(entry.Options, "end_of_options"); !ok || terminate {
			opts = append(opts, inject.WithOptionTerminator())
		}
		return inject.NewCommand(argv, opts...)
	})

	for _, kind := range []string{"stt", "audio", "output"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Every slot is required; on failure the providers created so far
// are closed again.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	engine, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	capture, err := reg.CreateAudio(cfg.Providers.Audio)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("create audio provider %q: %w", cfg.Providers.Audio.Name, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Providers.Audio.Name)

	output, err := reg.CreateOutput(cfg.Providers.Output)
	if err != nil {
		_ = capture.Close()
		_ = engine.Close()
		return nil, fmt.Errorf("create output provider %q: %w", cfg.Providers.Output.Name, err)
	}
	slog.Info("provider created", "kind", "output", "name", cfg.Providers.Output.Name)

	return &app.Providers{STT: engine, Audio: capture, Output: output}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer. YAML decodes plain numbers as int; quoted
// numbers are parsed.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// optBool reads a boolean option. The second result is false when the key is
// absent or not a boolean.
func optBool(opts map[string]any, key string) (bool, bool) {
	v, ok := opts[key].(bool)
	return v, ok
}

// optStrings extracts a list of strings. A single string is taken as a
// one-element list. Non-string elements are formatted with %v.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(e))
			}
		}
		return out
	default:
		return nil
	}
}

// optDuration parses a Go duration string such as "5s". An absent key
// yields 0.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("options.%s: %w", key, err)
	}
	return d, nil
}

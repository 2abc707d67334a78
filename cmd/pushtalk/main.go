// Command pushtalk types what you say while a hotkey is held.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/pushtalk/internal/app"
	"github.com/MrWong99/pushtalk/internal/config"
	"github.com/MrWong99/pushtalk/internal/hotkey"
	"github.com/MrWong99/pushtalk/internal/recorder"
	"github.com/MrWong99/pushtalk/pkg/audio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pushtalk: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pushtalk: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(level, cfg.Server.LogLevel))

	slog.Info("pushtalk starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithConfigPath(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		printHint(err)
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		printHint(err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// printHint tells the user how to fix the fatal errors they can fix.
func printHint(err error) {
	switch {
	case errors.Is(err, hotkey.ErrPermission):
		fmt.Fprintln(os.Stderr, "pushtalk: cannot read the keyboard; add your user to the \"input\" group or run with sudo")
	case errors.Is(err, hotkey.ErrNoDevices):
		fmt.Fprintln(os.Stderr, "pushtalk: no keyboard found; check hotkey.device_name_match against /sys/class/input/event*/device/name")
	case errors.Is(err, audio.ErrPermission), errors.Is(err, recorder.ErrFatalAudio):
		fmt.Fprintln(os.Stderr, "pushtalk: cannot open the microphone; check providers.audio and your audio group membership")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        pushtalk: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Audio", cfg.Providers.Audio.Name, optString(cfg.Providers.Audio.Options, "device"))
	printProvider("Output", cfg.Providers.Output.Name, "")
	fmt.Printf("║  Hotkey code     : %-19d ║\n", cfg.Hotkey.Code)
	fmt.Printf("║  Release timeout : %-19s ║\n", cfg.Hotkey.ReleaseTimeout)
	fmt.Printf("║  Capture format  : %-19s ║\n", audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels})
	fmt.Printf("║  Vocabulary      : %-19d ║\n", len(cfg.Transcript.Vocabulary))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr whose level is held in lv, so a
// config reload can change it.
func newLogger(lv *slog.LevelVar, level config.LogLevel) *slog.Logger {
	lv.Set(level.Slog())
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Resolver finds the graphical session to type into.
//
// Lookup order: the invoking user when running under sudo (SUDO_USER and
// SUDO_UID), the active seat0 session from logind when running as root
// without sudo, otherwise the current user.
type Resolver struct {
	// Getenv reads the process environment.
	Getenv func(string) string

	// Geteuid returns the effective user id.
	Geteuid func() int

	// RunDir holds the per-user runtime directories, normally /run/user.
	RunDir string

	// ActiveSession returns the owner of the active seat0 session.
	ActiveSession func(ctx context.Context) (name string, uid uint32, err error)
}

// DefaultResolver reads the real environment and talks to logind over the
// system bus.
func DefaultResolver() *Resolver {
	return &Resolver{
		Getenv:        os.Getenv,
		Geteuid:       os.Geteuid,
		RunDir:        "/run/user",
		ActiveSession: ActiveSeatSession,
	}
}

// Resolve returns the target session.
func (r *Resolver) Resolve(ctx context.Context) (Target, error) {
	if name, uid := r.Getenv("SUDO_USER"), r.Getenv("SUDO_UID"); name != "" && uid != "" {
		return r.target(name, uid, ""), nil
	}

	if r.Geteuid() == 0 && r.ActiveSession != nil {
		name, uid, err := r.ActiveSession(ctx)
		if err == nil {
			return r.target(name, strconv.FormatUint(uint64(uid), 10), ""), nil
		}
		slog.Warn("inject: logind lookup failed, typing as root", "err", err)
	}

	u, err := user.Current()
	if err != nil {
		return Target{}, fmt.Errorf("inject: current user: %w", err)
	}
	return r.target(u.Username, u.Uid, r.Getenv("XDG_RUNTIME_DIR")), nil
}

func (r *Resolver) target(name, uid, runtimeDir string) Target {
	if runtimeDir == "" {
		runtimeDir = filepath.Join(r.RunDir, uid)
	}
	t := Target{User: name, RuntimeDir: runtimeDir}
	if d := r.Getenv("WAYLAND_DISPLAY"); d != "" && r.Getenv("SUDO_USER") == "" {
		t.WaylandDisplay = d
		return t
	}
	sock, err := FindWaylandSocket(runtimeDir)
	if err != nil {
		slog.Warn("inject: no wayland socket found", "runtime_dir", runtimeDir, "err", err)
		return t
	}
	t.WaylandDisplay = sock
	return t
}

// FindWaylandSocket returns the first wayland-* entry in dir, in name order,
// skipping lock files.
func FindWaylandSocket(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, "wayland-") && !strings.HasSuffix(n, ".lock") {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", errors.New("no wayland-* socket")
	}
	slices.Sort(names)
	return names[0], nil
}

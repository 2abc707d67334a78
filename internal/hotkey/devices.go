package hotkey

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrNoDevices is returned when no keyboard device matched at startup or
	// when every open device has been lost.
	ErrNoDevices = errors.New("hotkey: no input devices")

	// ErrPermission is returned when a device cannot be opened for reading.
	// Usually the process lacks membership of the "input" group.
	ErrPermission = errors.New("hotkey: permission denied")
)

// FindDevices scans sysfs (typically os.DirFS("/sys/class/input")) for
// eventN nodes whose device/name contains any of match, compared
// case-insensitively, and returns their paths under devRoot in event number
// order. Every match is returned. It returns [ErrNoDevices] when nothing
// matched.
func FindDevices(sysfs fs.FS, devRoot string, match []string) ([]string, error) {
	entries, err := fs.ReadDir(sysfs, ".")
	if err != nil {
		return nil, fmt.Errorf("hotkey: list input devices: %w", err)
	}

	needles := make([]string, 0, len(match))
	for _, m := range match {
		needles = append(needles, strings.ToLower(m))
	}

	type found struct {
		num  int
		path string
	}
	var hits []found
	for _, e := range entries {
		num, ok := eventNumber(e.Name())
		if !ok {
			continue
		}
		raw, err := fs.ReadFile(sysfs, path.Join(e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(raw))
		lower := strings.ToLower(name)
		if !slices.ContainsFunc(needles, func(n string) bool { return strings.Contains(lower, n) }) {
			continue
		}
		p := filepath.Join(devRoot, e.Name())
		slog.Info("hotkey: keyboard found", "device", p, "name", name)
		hits = append(hits, found{num: num, path: p})
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: nothing matches %q", ErrNoDevices, match)
	}

	slices.SortFunc(hits, func(a, b found) int { return a.num - b.num })
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.path
	}
	return paths, nil
}

func eventNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "event")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

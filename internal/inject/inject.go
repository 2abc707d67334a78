// Package inject types recognized text into the focused window of the
// user's graphical session by running an external tool such as wtype.
package inject

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"slices"
	"strings"
	"time"
)

// ErrCommandNotFound is returned when the injection tool is not installed.
var ErrCommandNotFound = errors.New("inject: command not found")

// DefaultTimeout bounds a single injection.
const DefaultTimeout = 10 * time.Second

// Injector delivers text to the user. Implementations must be safe for
// concurrent use.
type Injector interface {
	Type(ctx context.Context, text string) error
}

// Command runs argv with the text appended as one trailing argument, inside
// the graphical session returned by its resolver.
type Command struct {
	argv     []string
	timeout  time.Duration
	resolve  func(context.Context) (Target, error)
	lookPath func(string) (string, error)
}

var _ Injector = (*Command)(nil)

// Option configures a [Command].
type Option func(*Command)

// WithTimeout bounds each injection. Non-positive values keep
// [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Command) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOptionTerminator ends argv with "--" unless it already does, so text
// starting with a dash is never parsed as a flag by the tool.
func WithOptionTerminator() Option {
	return func(c *Command) {
		if c.argv[len(c.argv)-1] != "--" {
			c.argv = append(c.argv, "--")
		}
	}
}

// WithResolver replaces the session lookup.
func WithResolver(fn func(context.Context) (Target, error)) Option {
	return func(c *Command) {
		if fn != nil {
			c.resolve = fn
		}
	}
}

// NewCommand returns an injector running argv. argv must not be empty.
func NewCommand(argv []string, opts ...Option) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("inject: command must not be empty")
	}
	c := &Command{
		argv:     append([]string(nil), argv...),
		timeout:  DefaultTimeout,
		resolve:  DefaultResolver().Resolve,
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewWtype returns an injector running "wtype -- <text>".
func NewWtype(opts ...Option) *Command {
	c, _ := NewCommand([]string{"wtype"}, append([]Option{WithOptionTerminator()}, opts...)...)
	return c
}

// Argv returns the command line the text is appended to.
func (c *Command) Argv() []string { return slices.Clone(c.argv) }

// Type implements [Injector].
func (c *Command) Type(ctx context.Context, text string) error {
	if _, err := c.lookPath(c.argv[0]); err != nil {
		slog.Error("inject: command not found; install it or change providers.output", "command", c.argv[0])
		return fmt.Errorf("%w: %s", ErrCommandNotFound, c.argv[0])
	}

	target, err := c.resolve(ctx)
	if err != nil {
		return fmt.Errorf("inject: resolve graphical session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := c.build(ctx, target, text)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if ctx.Err() != nil {
			return fmt.Errorf("inject: %s timed out after %s: %w", c.argv[0], c.timeout, ctx.Err())
		}
		return fmt.Errorf("inject: %s failed: %w: %s", c.argv[0], err, msg)
	}
	slog.Debug("inject: text typed", "command", c.argv[0], "chars", len([]rune(text)), "user", target.User)
	return nil
}

// build assembles the command line and environment for target.
func (c *Command) build(ctx context.Context, target Target, text string) *exec.Cmd {
	args := append(append([]string(nil), c.argv...), text)
	if target.needsSudo() {
		args = append([]string{"sudo", "-u", target.User, "-E"}, args...)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = target.environ(os.Environ())
	return cmd
}

// Target describes the graphical session text is typed into.
type Target struct {
	// User is the session owner. When it differs from the user running the
	// process, the command runs through sudo -u.
	User string

	// RuntimeDir is the owner's XDG_RUNTIME_DIR.
	RuntimeDir string

	// WaylandDisplay is the compositor socket name, e.g. "wayland-0".
	WaylandDisplay string
}

func (t Target) needsSudo() bool {
	if t.User == "" {
		return false
	}
	if u, err := user.Current(); err == nil && u.Username == t.User {
		return false
	}
	return true
}

// environ returns base with the session variables of t overriding.
func (t Target) environ(base []string) []string {
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		if t.RuntimeDir != "" && strings.HasPrefix(kv, "XDG_RUNTIME_DIR=") {
			continue
		}
		if t.WaylandDisplay != "" && strings.HasPrefix(kv, "WAYLAND_DISPLAY=") {
			continue
		}
		env = append(env, kv)
	}
	if t.RuntimeDir != "" {
		env = append(env, "XDG_RUNTIME_DIR="+t.RuntimeDir)
	}
	if t.WaylandDisplay != "" {
		env = append(env, "WAYLAND_DISPLAY="+t.WaylandDisplay)
	}
	return env
}

// Package radio resets the local Bluetooth stack by running external commands.
//
// A CommandHook satisfies supervisor.RadioResetHook. A typical sequence
// power-cycles the adapter, waits for it to come back and then resets the
// sensor pairing:
//
//	hook := radio.NewCommandHook([]radio.Command{
//		radio.ParseCommand("/opt/beddit/restart_bluetooth_power"),
//		radio.ParseCommand("/opt/beddit/reset_device.sh"),
//	})
package radio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/arloliu/go-beddit/internal/pool"
	"github.com/arloliu/go-beddit/logger"
)

// Default hook settings.
const (
	// DefaultPause separates consecutive commands.
	DefaultPause = 2 * time.Second
	// DefaultCommandTimeout bounds one command.
	DefaultCommandTimeout = 30 * time.Second
)

// Command is an executable with its arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits line on white space into a Command. It does not
// interpret quotes or shell syntax.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}

	return Command{Name: fields[0], Args: fields[1:]}
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner executes a command and reports its output and exit code.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, exitCode int, err error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}

	exitCode := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}

	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// CommandHook runs its commands in order with a pause between them.
type CommandHook struct {
	cmds    []Command
	pause   time.Duration
	timeout time.Duration
	runner  CommandRunner
	logger  logger.Logger
}

// Option configures a CommandHook.
type Option func(*CommandHook)

// WithPause sets the pause between consecutive commands.
func WithPause(d time.Duration) Option {
	return func(h *CommandHook) { h.pause = d }
}

// WithCommandTimeout bounds each command. Zero disables the bound.
func WithCommandTimeout(d time.Duration) Option {
	return func(h *CommandHook) { h.timeout = d }
}

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) Option {
	return func(h *CommandHook) { h.runner = r }
}

// WithLogger sets the hook logger.
func WithLogger(l logger.Logger) Option {
	return func(h *CommandHook) { h.logger = l }
}

// NewCommandHook returns a hook running cmds. Commands with an empty name are skipped.
func NewCommandHook(cmds []Command, opts ...Option) *CommandHook {
	h := &CommandHook{
		pause:   DefaultPause,
		timeout: DefaultCommandTimeout,
		runner:  ExecRunner{},
		logger:  logger.GetLogger(),
	}

	for _, c := range cmds {
		if c.Name != "" {
			h.cmds = append(h.cmds, c)
		}
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Commands returns the commands the hook runs.
func (h *CommandHook) Commands() []Command { return h.cmds }

// Trigger runs every command. A failing command does not stop the
// sequence; all failures are joined into the returned error. Trigger stops
// early only when ctx is done.
func (h *CommandHook) Trigger(ctx context.Context) error {
	var errs []error

	for i, c := range h.cmds {
		if i > 0 {
			if err := pool.Sleep(ctx, h.pause); err != nil {
				return errors.Join(append(errs, err)...)
			}
		}

		if err := h.run(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *CommandHook) run(ctx context.Context, c Command) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, code, err := h.runner.Run(ctx, c.Name, c.Args...)
	elapsed := time.Since(start)

	if err != nil {
		h.logger.Error("radio: reset command failed",
			"cmd", c.String(), "exitCode", code, "elapsed", elapsed,
			"stderr", strings.TrimSpace(string(stderr)), "error", err)

		return fmt.Errorf("radio: %s: exit code %d: %w", c, code, err)
	}

	h.logger.Info("radio: reset command finished",
		"cmd", c.String(), "elapsed", elapsed, "stdout", strings.TrimSpace(string(stdout)))

	return nil
}

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// KilledExitCode is returned when the subprocess had to be force-killed
// (128 + SIGKILL).
const KilledExitCode = 137

// Process manages one bounded run of a subprocess.
type Process struct {
	id      string
	command string
	cmd     *exec.Cmd
	logger  logging.Logger
	stdout  io.Writer
	stderr  io.Writer

	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up
}

// New creates a supervised process for the given command string.
func New(id, command string, logger logging.Logger) *Process {
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		stdout:          io.Discard,
		stderr:          io.Discard,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// SetStdout routes subprocess stdout to w.
func (p *Process) SetStdout(w io.Writer) { p.stdout = w }

// SetStderr routes subprocess stderr to w.
// Capture jobs point this at their error log file.
func (p *Process) SetStderr(w io.Writer) { p.stderr = w }

// SetGracefulTimeout overrides the SIGINT-to-SIGKILL window.
func (p *Process) SetGracefulTimeout(d time.Duration) { p.gracefulTimeout = d }

// Command returns the command string.
func (p *Process) Command() string { return p.command }

// Run starts the subprocess and blocks until it exits or ctx is done.
// When ctx expires or is cancelled the subprocess receives SIGINT, then
// SIGKILL after the graceful timeout. The returned exit code is the
// subprocess's own, or KilledExitCode when it had to be killed. The error is
// the subprocess wait error or the context error on a bounded termination.
func (p *Process) Run(ctx context.Context) (int, error) {
	args, err := parseCommand(p.command)
	if err != nil {
		return 1, err
	}
	if len(args) == 0 {
		return 1, fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(args[0], args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr
	p.cmd.Stdin = nil

	if err := p.cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "error", err, "command", p.command)
		return 1, err
	}
	p.logger.Debug("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", p.command)

	done := make(chan error, 1)
	go func() {
		done <- p.cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		return exitCodeFromError(waitErr), waitErr
	case <-ctx.Done():
		p.sendStopSignal()
		code := p.waitForExit(done)
		return code, ctx.Err()
	}
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Debug("Sending SIGINT to process", "id", p.id, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

// waitForExit waits for the process to exit, force-killing after the
// graceful timeout.
func (p *Process) waitForExit(done <-chan error) int {
	select {
	case err := <-done:
		return exitCodeFromError(err)
	case <-time.After(p.gracefulTimeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.logger.Error("Failed to kill process", "id", p.id, "error", err)
			}
		}
		select {
		case <-done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal", "id", p.id)
		}
		return KilledExitCode
	}
}

// exitCodeFromError extracts an exit code from a Wait error.
// Returns 0 for nil, the exit code for ExitError, or 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// parseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}

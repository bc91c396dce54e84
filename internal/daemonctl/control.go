// Package daemonctl holds the CLI-side helpers that launch, find and stop a
// background quill process.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"

	"quill/internal/ipc"
)

// ErrNotRunning indicates no process answers on the control socket.
var ErrNotRunning = errors.New("quill is not running")

// LaunchOptions controls background process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	Tray       bool
	LogLevel   string
}

// StartState reports what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures stop/termination outcome.
type StopResult struct {
	QuitAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Args builds the command line for a background "run".
func (o LaunchOptions) Args() []string {
	args := []string{"run"}
	if cfg := strings.TrimSpace(o.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if o.Tray {
		args = append(args, "--tray")
	}
	if lvl := strings.TrimSpace(o.LogLevel); lvl != "" {
		args = append(args, "--log-level", lvl)
	}
	return args
}

// Launch starts a detached quill process in its own session.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.Args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch quill: %w", err)
	}
	return proc.Process.Release()
}

func pollBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return b
}

// WaitForClient dials socketPath until it answers or timeout elapses.
func WaitForClient(ctx context.Context, socketPath string, timeout time.Duration) (*ipc.Client, error) {
	client, err := backoff.Retry(ctx, func() (*ipc.Client, error) {
		return ipc.Dial(socketPath)
	}, backoff.WithBackOff(pollBackOff()), backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		return nil, fmt.Errorf("quill failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted launches quill unless it already answers on socketPath.
func EnsureStarted(ctx context.Context, socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	state := StartStateAlreadyRunning
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(ctx, socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		state = StartStateStarted
	}
	defer client.Close()

	status, err := client.Status(ctx)
	if err != nil {
		return StartResult{State: state}, err
	}
	return StartResult{State: state, PID: status.PID}, nil
}

// ProcessInfo returns the status of the running process, or ErrNotRunning.
func ProcessInfo(ctx context.Context, socketPath string) (*ipc.StatusResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isUnavailable(err) {
			return nil, ErrNotRunning
		}
		return nil, err
	}
	defer client.Close()
	return client.Status(ctx)
}

// StopAndTerminate asks the process to quit and kills it if it is still
// alive after gracePeriod.
func StopAndTerminate(ctx context.Context, socketPath, pidPath string, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isUnavailable(err) {
			return StopResult{}, ErrNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(ctx); statusErr == nil {
		pid = status.PID
	}
	resp, err := client.Quit(ctx)
	_ = client.Close()
	if err != nil {
		return StopResult{PID: pid}, err
	}
	result := StopResult{PID: pid, QuitAcknowledged: resp.Stopping}

	if pid <= 0 {
		pid, _ = ReadPID(pidPath)
		result.PID = pid
	}
	if pid <= 0 {
		return result, nil
	}
	if WaitForExit(ctx, pid, gracePeriod) {
		return result, nil
	}
	if err := ForceKill(pid); err != nil {
		return result, fmt.Errorf("failed to stop quill process: %w", err)
	}
	_ = os.Remove(socketPath)
	_ = os.Remove(pidPath)
	result.ForcedKill = true
	return result, nil
}

// WaitForExit polls until pid is gone; false means it outlived timeout.
func WaitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	errAlive := errors.New("process alive")
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if ProcessAlive(pid) {
			return struct{}{}, errAlive
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(pollBackOff()), backoff.WithMaxElapsedTime(timeout))
	return err == nil
}

// ReadPID reads a pid file written by the running process.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", path)
	}
	return pid, nil
}

// ProcessAlive reports whether pid exists. A process owned by another user
// counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ForceKill sends SIGKILL to pid.
func ForceKill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ECONNREFUSED)
}

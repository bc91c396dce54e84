package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/daemonctl"
	"quill/internal/daemonrun"
	"quill/internal/ipc"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newProcessCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRunCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var tray bool
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run quill in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			err = daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath:  ctx.resolvedConfigPath(),
				LogLevel:    strings.TrimSpace(logLevel),
				Development: development,
				Tray:        tray,
			})
			if errors.Is(err, daemonrun.ErrAlreadyRunning) {
				return fmt.Errorf("%w (socket %s)", err, cfg.SocketPath())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&tray, "tray", false, "Show the system tray icon")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Development logging (source locations)")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var tray bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start quill in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.socketPath(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.resolvedConfigPath(),
				Tray:       tray,
				LogLevel:   strings.TrimSpace(logLevel),
			}, startWaitTimeout)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(ctx, cmd, result); ok {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "quill already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "quill started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tray, "tray", false, "Show the system tray icon")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background quill process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.socketPath(), cfg.PIDPath(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "quill is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if ok, err := writeStructured(ctx, cmd, result); ok {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "quill (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "quill stopped")
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show process, server and checking status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.ProcessInfo(cmd.Context(), ctx.socketPath())
			if err != nil && !errors.Is(err, daemonctl.ErrNotRunning) {
				return err
			}
			if status == nil {
				return renderOfflineStatus(ctx, cmd)
			}
			if ok, err := writeStructured(ctx, cmd, status); ok {
				return err
			}
			renderStatus(cmd, status)
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, status *ipc.StatusResponse) {
	process := statusSection{title: "Process"}
	process.add("Quill", fmt.Sprintf("running (pid %d)", status.PID), toneActive)
	process.add("Run ID", status.RunID, toneNeutral)
	process.add("Uptime", time.Since(status.StartedAt).Round(time.Second).String(), toneNeutral)
	if status.LogPath != "" {
		process.add("Log", status.LogPath, toneNeutral)
	}
	if status.ConfigPath != "" {
		process.add("Config", status.ConfigPath, toneNeutral)
	}

	srv := statusSection{title: "HTTP server"}
	switch {
	case status.Server.Running:
		srv.add("Server", "running at "+status.Server.URL, toneActive)
	case status.Server.RunOnStartup:
		srv.add("Server", "enabled but not running", toneAlert)
	default:
		srv.add("Server", "stopped", toneIdle)
	}
	srv.toggle("Run on startup", status.Server.RunOnStartup)

	checking := statusSection{title: "Checking"}
	checking.add("Language", describeLanguage(status.Language), toneNeutral)
	checking.toggle("Auto-detect", status.AutoDetect)
	checking.toggle("Background check", status.BackgroundCheck)
	checking.add("Last sequence", fmt.Sprintf("%d", status.LastSequence), toneNeutral)
	switch {
	case status.CheckRunning && status.CheckPending:
		checking.add("Worker", "checking, more queued", toneActive)
	case status.CheckRunning:
		checking.add("Worker", "checking", toneActive)
	default:
		checking.add("Worker", "idle", toneIdle)
	}

	renderStatusSections(cmd.OutOrStdout(), []statusSection{process, srv, checking})
}

// offlineStatus is what status reports when nothing answers on the socket.
type offlineStatus struct {
	Running         bool   `json:"running" yaml:"running"`
	ConfigPath      string `json:"config_path" yaml:"config_path"`
	Socket          string `json:"socket" yaml:"socket"`
	Language        string `json:"language" yaml:"language"`
	AutoDetect      bool   `json:"auto_detect" yaml:"auto_detect"`
	BackgroundCheck bool   `json:"background_check" yaml:"background_check"`
	ServerOnStartup bool   `json:"server_run_on_startup" yaml:"server_run_on_startup"`
	ServerPort      int    `json:"server_port" yaml:"server_port"`
}

func renderOfflineStatus(ctx *commandContext, cmd *cobra.Command) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	status := offlineStatus{
		ConfigPath:      ctx.resolvedConfigPath(),
		Socket:          ctx.socketPath(),
		Language:        cfg.Checking.Language,
		AutoDetect:      cfg.Checking.AutoDetectLanguage,
		BackgroundCheck: cfg.Checking.BackgroundCheck,
		ServerOnStartup: cfg.Server.RunOnStartup,
		ServerPort:      cfg.Server.Port,
	}
	if ok, err := writeStructured(ctx, cmd, status); ok {
		return err
	}
	process := statusSection{title: "Process"}
	process.add("Quill", "not running", toneAlert)
	process.add("Socket", status.Socket, toneNeutral)
	process.add("Config", status.ConfigPath, toneNeutral)

	configured := statusSection{title: "Configured"}
	configured.add("Language", describeLanguage(status.Language), toneNeutral)
	configured.toggle("Auto-detect", status.AutoDetect)
	configured.toggle("Background check", status.BackgroundCheck)
	configured.toggle("Server on startup", status.ServerOnStartup)
	configured.add("Server port", fmt.Sprintf("%d", status.ServerPort), toneNeutral)

	renderStatusSections(cmd.OutOrStdout(), []statusSection{process, configured})
	return nil
}

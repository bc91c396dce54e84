// Package daemonrun hosts the long-running quill process: it wires the event
// bus, coordinator, embedded server and observers together and supervises
// the control socket and config watcher until shutdown.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quill/internal/config"
	"quill/internal/configwatch"
	"quill/internal/ipc"
	"quill/internal/logging"
	"quill/internal/tray"
)

// ErrAlreadyRunning is returned when another process holds the state lock.
var ErrAlreadyRunning = errors.New("quill is already running for this state directory")

const historyPruneInterval = time.Hour

// Options configures process runtime behavior.
type Options struct {
	ConfigPath  string
	LogLevel    string
	Development bool
	Tray        bool
}

// Run blocks until a signal, an IPC Quit or the tray Quit item ends the
// process.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	runCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	startedAt := time.Now()
	logPath := filepath.Join(cfg.LogDir(), fmt.Sprintf("quill-%s.log", startedAt.UTC().Format("20060102T150405.000Z")))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	baseLogger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With(logging.String(logging.FieldRunID, runID))

	if err := ensureCurrentLogPointer(cfg.LogDir(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update quill.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, logging.RunLogRetention{
		Dir:     cfg.LogDir(),
		Days:    cfg.Logging.RetentionDays,
		Current: logPath,
	})

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	c, err := build(cfg, opts.ConfigPath, logger)
	if err != nil {
		return err
	}
	defer c.close()

	// A failed bind is reported by the app; the process keeps running.
	_ = c.app.Startup()

	ipcServer, err := ipc.NewServer(runCtx, ipc.Params{
		Path:        cfg.SocketPath(),
		Coordinator: c.coord,
		Server:      c.server,
		App:         c.app,
		History:     c.history,
		Quit:        cancel,
		Info: ipc.Info{
			PID:        os.Getpid(),
			RunID:      runID,
			StartedAt:  startedAt,
			ConfigPath: opts.ConfigPath,
			LogPath:    logPath,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}

	logger.Info("quill starting",
		logging.String(logging.FieldEventType, "process_start"),
		logging.String(logging.FieldLanguage, c.coord.Language()),
		logging.String("socket", cfg.SocketPath()),
		logging.String("log_path", logPath),
		logging.Bool("tray", opts.Tray),
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		ipcServer.Serve()
		<-gctx.Done()
		ipcServer.Close()
		return nil
	})
	g.Go(func() error {
		return watchConfig(gctx, opts.ConfigPath, c, logger)
	})
	if c.history != nil {
		g.Go(func() error {
			pruneHistory(gctx, c, cfg.Logging.RetentionDays, logger)
			return nil
		})
	}

	if opts.Tray {
		t := tray.New(tray.Params{
			Controller: c.app,
			Server:     c.server,
			Bus:        c.bus,
			Logger:     logger,
			OnQuit:     cancel,
		})
		go func() {
			<-runCtx.Done()
			t.Quit()
		}()
		t.Run()
		cancel()
	} else {
		<-runCtx.Done()
	}

	logger.Info("quill shutting down", logging.String(logging.FieldEventType, "process_stop"))
	if err := c.app.Quit(); err != nil {
		logging.WarnWithContext(logger, "shutdown incomplete", "shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the active language may not be saved"),
		)
	}
	cancel()
	return g.Wait()
}

func watchConfig(ctx context.Context, path string, c *components, logger *slog.Logger) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := configwatch.New(path, func(next *config.Config) {
		if _, err := c.app.ReloadConfig(next); err != nil {
			logging.WarnWithContext(logger, "config reload not fully applied", "config_reload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the server port and language in the config file"),
			)
		}
	}, logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		// Editing the config still works through the CLI and IPC.
		logging.WarnWithContext(logger, "config watcher unavailable", "config_watch_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "edits to the config file apply on next start"),
		)
		<-ctx.Done()
		return nil
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func pruneHistory(ctx context.Context, c *components, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		<-ctx.Done()
		return
	}
	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		removed, err := c.history.Prune(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				logging.WarnWithContext(logger, "history prune failed", "history_prune_failed", logging.Error(err))
			}
			return
		}
		if removed > 0 {
			logger.Info("history pruned",
				logging.Int64("removed_count", removed),
				logging.Int("retention_days", retentionDays),
			)
		}
	}
	prune()
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "quill.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

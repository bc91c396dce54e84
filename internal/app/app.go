package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/coordinator"
	"quill/internal/language"
	"quill/internal/logging"
	"quill/internal/server"
)

// Checks is the coordinator surface the app drives.
type Checks interface {
	Language() string
	SetLanguage(lang string) error
	SetAutoDetect(enabled bool)
	SetBackgroundCheckEnabled(enabled bool)
	SetDebounce(d time.Duration)
	State() coordinator.State
}

// Listener is the server lifecycle surface the app drives.
type Listener interface {
	Start(port int) (server.Status, error)
	Stop() error
	Status() server.Status
	SetHost(host string)
}

// Options is the state shown in the options view.
type Options struct {
	RunServer       bool   `json:"run_server" yaml:"run_server"`
	Port            int    `json:"port" yaml:"port"`
	Language        string `json:"language" yaml:"language"`
	AutoDetect      bool   `json:"auto_detect" yaml:"auto_detect"`
	BackgroundCheck bool   `json:"background_check" yaml:"background_check"`
}

// Params wires an App.
type Params struct {
	Config     *config.Config
	ConfigPath string
	Checks     Checks
	Server     Listener
	Logger     *slog.Logger
}

// App is the session controller.
type App struct {
	checks Checks
	server Listener
	logger *slog.Logger
	path   string

	mu        sync.Mutex
	cfg       config.Config
	lastSaved config.Config
}

// New builds an App. The coordinator and server are expected to already be
// configured from cfg; Startup decides whether the server runs.
func New(p Params) (*App, error) {
	if p.Config == nil {
		return nil, errors.New("app requires a config")
	}
	if p.Checks == nil || p.Server == nil {
		return nil, errors.New("app requires a coordinator and a server")
	}
	a := &App{
		checks: p.Checks,
		server: p.Server,
		logger: logging.NewComponentLogger(p.Logger, "app"),
		path:   p.ConfigPath,
		cfg:    *p.Config,
	}
	a.lastSaved = a.cfg
	return a, nil
}

// Config returns a copy of the configuration as the app currently sees it.
func (a *App) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Options returns the options view.
func (a *App) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.optionsLocked()
}

func (a *App) optionsLocked() Options {
	state := a.checks.State()
	return Options{
		RunServer:       a.cfg.Server.RunOnStartup,
		Port:            a.cfg.Server.Port,
		Language:        state.Language,
		AutoDetect:      state.AutoDetect,
		BackgroundCheck: state.BackgroundCheck,
	}
}

// Startup starts the server when the configuration asks for it. A bind
// failure is logged and returned; the process is expected to keep running.
func (a *App) Startup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cfg.Server.RunOnStartup {
		return nil
	}
	if _, err := a.server.Start(a.cfg.Server.Port); err != nil {
		logging.ErrorWithContext(a.logger, "server could not start at startup", "startup_bind_failed",
			logging.Int(logging.FieldPort, a.cfg.Server.Port),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "pick another port in the options or run 'quill server start --port N'"),
		)
		return err
	}
	return nil
}

// SetServerEnabled handles the "Run HTTP server" toggle. Enabling writes back
// whether the server actually runs; a bind error is returned to the caller.
func (a *App) SetServerEnabled(enabled bool) (server.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !enabled {
		a.cfg.Server.RunOnStartup = false
		saveErr := a.persistLocked()
		stopErr := a.server.Stop()
		return a.server.Status(), errors.Join(stopErr, saveErr)
	}

	a.cfg.Server.RunOnStartup = true
	status, startErr := a.server.Start(a.cfg.Server.Port)
	a.cfg.Server.RunOnStartup = status.Running
	saveErr := a.persistLocked()
	return status, errors.Join(startErr, saveErr)
}

// ApplyOptions applies the options view. Settings are persisted first; the
// server is then stopped and started again when requested so a port change
// takes effect.
func (a *App) ApplyOptions(opts Options) (server.Status, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return server.Status{}, fmt.Errorf("port must be between 0 and 65535, got %d", opts.Port)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.applyCheckingLocked(opts.Language, opts.AutoDetect, opts.BackgroundCheck); err != nil {
		return a.server.Status(), err
	}
	a.cfg.Server.RunOnStartup = opts.RunServer
	a.cfg.Server.Port = opts.Port
	if err := a.persistLocked(); err != nil {
		return a.server.Status(), err
	}

	return a.restartLocked(true)
}

// SetLanguage switches the active language and persists it. The canonical
// tag is returned.
func (a *App) SetLanguage(lang string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.checks.State()
	if err := a.applyCheckingLocked(lang, state.AutoDetect, state.BackgroundCheck); err != nil {
		return a.checks.Language(), err
	}
	return a.cfg.Checking.Language, a.persistLocked()
}

// SetBackgroundCheck toggles checking on edit and persists the choice.
func (a *App) SetBackgroundCheck(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.checks.State()
	if err := a.applyCheckingLocked("", state.AutoDetect, enabled); err != nil {
		return err
	}
	return a.persistLocked()
}

// SetAutoDetect toggles language detection and persists the choice.
func (a *App) SetAutoDetect(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.checks.State()
	if err := a.applyCheckingLocked("", enabled, state.BackgroundCheck); err != nil {
		return err
	}
	return a.persistLocked()
}

// Quit stops the server and persists the active language.
func (a *App) Quit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stopErr := a.server.Stop()
	a.cfg.Checking.Language = a.checks.Language()
	saveErr := a.persistLocked()
	return errors.Join(stopErr, saveErr)
}

// ReloadConfig applies a configuration that changed on disk. A config equal
// to the one this app last wrote is ignored.
func (a *App) ReloadConfig(cfg *config.Config) (server.Status, error) {
	if cfg == nil {
		return a.server.Status(), nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if *cfg == a.lastSaved {
		a.logger.Debug("config change is our own write; ignored")
		return a.server.Status(), nil
	}
	prev := a.cfg
	a.cfg = *cfg
	a.lastSaved = *cfg

	a.checks.SetDebounce(cfg.Debounce())
	if err := a.applyCheckingLocked(cfg.Checking.Language, cfg.Checking.AutoDetectLanguage, cfg.Checking.BackgroundCheck); err != nil {
		return a.server.Status(), err
	}

	serverChanged := prev.Server != cfg.Server
	if !serverChanged {
		return a.server.Status(), nil
	}
	a.logger.Info("server settings changed; reconfiguring",
		logging.Bool("run_on_startup", cfg.Server.RunOnStartup),
		logging.Int(logging.FieldPort, cfg.Server.Port),
		logging.String("bind_host", cfg.Server.BindHost),
	)
	return a.restartLocked(false)
}

// restartLocked stops the server, applies the configured host and starts it
// again when RunOnStartup is set. The in-memory config follows the outcome;
// persist controls whether that outcome is written to disk.
func (a *App) restartLocked(persist bool) (server.Status, error) {
	if err := a.server.Stop(); err != nil {
		return a.server.Status(), err
	}
	a.server.SetHost(a.cfg.Server.BindHost)
	if !a.cfg.Server.RunOnStartup {
		return a.server.Status(), nil
	}
	status, err := a.server.Start(a.cfg.Server.Port)
	if err == nil {
		return status, nil
	}
	a.cfg.Server.RunOnStartup = false
	if persist {
		err = errors.Join(err, a.persistLocked())
	}
	return status, err
}

func (a *App) applyCheckingLocked(lang string, autoDetect, background bool) error {
	if lang != "" {
		tag, err := language.Normalize(lang)
		if err != nil {
			return err
		}
		if tag != a.checks.Language() {
			if err := a.checks.SetLanguage(tag); err != nil {
				return err
			}
		}
		a.cfg.Checking.Language = tag
	}
	a.checks.SetAutoDetect(autoDetect)
	a.checks.SetBackgroundCheckEnabled(background)
	a.cfg.Checking.AutoDetectLanguage = autoDetect
	a.cfg.Checking.BackgroundCheck = background
	return nil
}

func (a *App) persistLocked() error {
	if a.path == "" {
		return nil
	}
	if err := a.cfg.Save(a.path); err != nil {
		logging.WarnWithContext(a.logger, "config not saved", "config_save_failed",
			logging.String("path", a.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions of the config directory"),
			logging.String(logging.FieldImpact, "settings revert on next start"),
		)
		return fmt.Errorf("persist config: %w", err)
	}
	a.lastSaved = a.cfg
	return nil
}

package daemonrun

import (
	"fmt"
	"log/slog"
	"net/http"

	"quill/internal/app"
	"quill/internal/checker"
	"quill/internal/config"
	"quill/internal/coordinator"
	"quill/internal/events"
	"quill/internal/history"
	"quill/internal/logging"
	"quill/internal/metrics"
	"quill/internal/server"
)

// components is the wired object graph of one process.
type components struct {
	bus      *events.Bus
	coord    *coordinator.Coordinator
	server   *server.Manager
	app      *app.App
	metrics  *metrics.Metrics
	history  *history.Store
	recorder *history.Recorder
	metSub   events.Subscription
}

// build wires bus → coordinator → server → app plus the metrics and history
// observers. History is optional: a store that cannot be opened is logged
// and skipped.
func build(cfg *config.Config, configPath string, logger *slog.Logger) (*components, error) {
	c := &components{bus: events.NewBus()}

	c.metrics = metrics.New()
	c.metSub = c.metrics.Attach(c.bus)

	var opts []checker.Option
	if cfg.Checking.MotherTongue != "" {
		opts = append(opts, checker.WithMotherTongue(cfg.Checking.MotherTongue))
	}
	coord, err := coordinator.New(coordinator.Options{
		Checker:         checker.NewRuleChecker(opts...),
		Bus:             c.bus,
		Logger:          logger,
		Language:        cfg.Checking.Language,
		BackgroundCheck: cfg.Checking.BackgroundCheck,
		AutoDetect:      cfg.Checking.AutoDetectLanguage,
		Debounce:        cfg.Debounce(),
	})
	if err != nil {
		c.metSub.Unsubscribe()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}
	c.coord = coord

	c.server = server.NewManager(server.Options{
		Host:        cfg.Server.BindHost,
		Backend:     coord,
		Bus:         c.bus,
		Logger:      logger,
		Metrics:     c.metrics.Handler(),
		Middlewares: []func(http.Handler) http.Handler{c.metrics.Middleware},
	})

	c.app, err = app.New(app.Params{
		Config:     cfg,
		ConfigPath: configPath,
		Checks:     coord,
		Server:     c.server,
		Logger:     logger,
	})
	if err != nil {
		c.close()
		return nil, err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "check history disabled", "history_unavailable",
			logging.String("path", cfg.HistoryPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the history database; it is recreated on next start"),
			logging.String(logging.FieldImpact, "checks are not recorded"),
		)
	} else {
		c.history = store
		c.recorder = history.NewRecorder(store, c.bus, logger)
	}
	return c, nil
}

// close releases everything build created. The server is expected to be
// stopped already by app.Quit; Stop here covers early failures.
func (c *components) close() {
	if c.server != nil {
		_ = c.server.Stop()
	}
	if c.coord != nil {
		c.coord.Close()
	}
	if c.recorder != nil {
		c.recorder.Close()
	}
	if c.history != nil {
		_ = c.history.Close()
	}
	c.metSub.Unsubscribe()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"quill/internal/checker"
	"quill/internal/events"
	"quill/internal/logging"
)

const defaultShutdownTimeout = 5 * time.Second

// Backend answers check requests for the HTTP API.
type Backend interface {
	Analyze(ctx context.Context, text, lang string) (checker.Result, error)
	Language() string
}

// Status is the manager state as seen by observers.
type Status struct {
	Running bool   `json:"running" yaml:"running"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
}

// Options configures a Manager.
type Options struct {
	Host            string
	Backend         Backend
	Bus             *events.Bus
	Logger          *slog.Logger
	Metrics         http.Handler
	Middlewares     []func(http.Handler) http.Handler
	ShutdownTimeout time.Duration
}

// Manager starts and stops the embedded server.
type Manager struct {
	backend     Backend
	bus         *events.Bus
	logger      *slog.Logger
	metrics     http.Handler
	middlewares []func(http.Handler) http.Handler
	timeout     time.Duration

	// opMu serializes whole transitions including their publish.
	opMu sync.Mutex

	mu       sync.RWMutex
	host     string
	status   Status
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

// NewManager returns a stopped manager.
func NewManager(opts Options) *Manager {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &Manager{
		backend:     opts.Backend,
		bus:         opts.Bus,
		logger:      logging.NewComponentLogger(opts.Logger, "server"),
		metrics:     opts.Metrics,
		middlewares: opts.Middlewares,
		timeout:     timeout,
		host:        host,
	}
}

// SetHost changes the bind host used by the next Start.
func (m *Manager) SetHost(host string) {
	if host == "" {
		return
	}
	m.mu.Lock()
	m.host = host
	m.mu.Unlock()
}

// Start binds host:port and begins serving. Port 0 picks a free port; the
// returned status carries the real one. Starting a running manager is a
// no-op that returns the current status. A bind failure returns *BindError
// and leaves the manager stopped.
func (m *Manager) Start(port int) (Status, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if current := m.Status(); current.Running {
		return current, nil
	}

	m.mu.RLock()
	host := m.host
	m.mu.RUnlock()

	if port < 0 || port > 65535 {
		return m.failStart(&BindError{Host: host, Port: port, Err: fmt.Errorf("port out of range")})
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return m.failStart(&BindError{Host: host, Port: port, Err: err})
	}
	actual := port
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		actual = addr.Port
	}

	srv := &http.Server{
		Handler:           m.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	done := make(chan struct{})
	status := Status{Running: true, Port: actual, Host: host}
	m.mu.Lock()
	m.listener = listener
	m.server = srv
	m.done = done
	m.status = status
	m.mu.Unlock()

	go m.serve(srv, listener, done, actual)

	m.logger.Info("server listening",
		logging.String("address", listener.Addr().String()),
		logging.Int(logging.FieldPort, actual),
		logging.String(logging.FieldEventType, "server_started"),
	)
	m.publish(status, nil)
	return status, nil
}

// serve runs until Shutdown. Any other exit means the listener is gone, so
// the manager drops back to stopped and tells observers why. done is closed
// before taking opMu because Stop waits on it while holding opMu.
func (m *Manager) serve(srv *http.Server, listener net.Listener, done chan struct{}, port int) {
	err := srv.Serve(listener)
	close(done)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	logging.ErrorWithContext(m.logger, "server stopped unexpectedly", "server_serve_failed",
		logging.Int(logging.FieldPort, port),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "restart the server from the tray or CLI"),
	)
	_ = listener.Close()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	if m.server != srv {
		m.mu.Unlock()
		return
	}
	m.server = nil
	m.listener = nil
	m.done = nil
	m.status = Status{Host: m.host}
	status := m.status
	m.mu.Unlock()

	m.publish(status, fmt.Errorf("serve on port %d: %w", port, err))
}

func (m *Manager) failStart(bindErr *BindError) (Status, error) {
	logging.WarnWithContext(m.logger, "server bind failed; server stays stopped", "server_bind_failed",
		logging.String("host", bindErr.Host),
		logging.Int(logging.FieldPort, bindErr.Port),
		logging.Error(bindErr.Err),
		logging.String(logging.FieldErrorHint, "choose another port or stop the process holding it"),
		logging.String(logging.FieldImpact, "HTTP check API unavailable"),
	)
	status := m.Status()
	m.publish(status, bindErr)
	return status, bindErr
}

// Stop shuts the server down and returns once the port is released.
// Stopping a stopped manager is a no-op.
func (m *Manager) Stop() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	srv, done, listener, port := m.server, m.done, m.listener, m.status.Port
	running := m.status.Running
	m.mu.RUnlock()
	if !running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	var shutdownErr error
	if err := srv.Shutdown(ctx); err != nil {
		logging.WarnWithContext(m.logger, "graceful shutdown timed out; closing connections", "server_shutdown_forced",
			logging.Int(logging.FieldPort, port),
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight HTTP requests were aborted"),
		)
		if closeErr := srv.Close(); closeErr != nil {
			shutdownErr = fmt.Errorf("close server: %w", closeErr)
		}
	}
	<-done
	_ = listener.Close()

	m.mu.Lock()
	m.server = nil
	m.listener = nil
	m.done = nil
	m.status = Status{Host: m.host}
	status := m.status
	m.mu.Unlock()

	m.logger.Info("server stopped",
		logging.Int(logging.FieldPort, port),
		logging.String(logging.FieldEventType, "server_stopped"),
	)
	m.publish(status, shutdownErr)
	return shutdownErr
}

// Restart stops the server and starts it on port. It ends stopped if the new
// bind fails.
func (m *Manager) Restart(port int) (Status, error) {
	if err := m.Stop(); err != nil {
		return m.Status(), err
	}
	return m.Start(port)
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.status.Running {
		return Status{Host: m.host}
	}
	return m.status
}

// IsRunning reports whether a listener is bound.
func (m *Manager) IsRunning() bool {
	return m.Status().Running
}

// CurrentPort returns the bound port. The boolean is false when stopped.
func (m *Manager) CurrentPort() (int, bool) {
	status := m.Status()
	return status.Port, status.Running
}

// URL returns the base URL of the running server, or "" when stopped.
func (m *Manager) URL() string {
	status := m.Status()
	if !status.Running {
		return ""
	}
	return "http://" + net.JoinHostPort(status.Host, strconv.Itoa(status.Port))
}

func (m *Manager) publish(status Status, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.ServerStatusChanged{
		Status: events.ServerState{Running: status.Running, Port: status.Port, Host: status.Host},
		Err:    err,
	})
}

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quill/internal/app"
	"quill/internal/coordinator"
	"quill/internal/events"
	"quill/internal/history"
	"quill/internal/logging"
	"quill/internal/server"
)

const defaultCheckTimeout = 30 * time.Second

// Info is static process metadata reported by Status.
type Info struct {
	PID        int
	RunID      string
	StartedAt  time.Time
	ConfigPath string
	LogPath    string
}

// Params wires the IPC server to the running components.
type Params struct {
	Path        string
	Coordinator *coordinator.Coordinator
	Server      *server.Manager
	App         *app.App
	History     *history.Store
	Quit        func()
	Info        Info
	Logger      *slog.Logger
}

// Server exposes process control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the socket at p.Path, replacing a stale socket file.
func NewServer(ctx context.Context, p Params) (*Server, error) {
	if p.Coordinator == nil || p.Server == nil || p.App == nil {
		return nil, errors.New("ipc server requires coordinator, server and app")
	}
	logger := logging.NewComponentLogger(p.Logger, "ipc")

	if err := os.RemoveAll(p.Path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", p.Path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	svc := &service{
		coord:   p.Coordinator,
		server:  p.Server,
		app:     p.App,
		history: p.History,
		quit:    p.Quit,
		info:    p.Info,
		logger:  logger,
		ctx:     serverCtx,
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      p.Path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket location.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts RPC connections until Close is called or the context ends.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart quill if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops the server and removes the socket file. Open client
// connections are served until the clients hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	coord   *coordinator.Coordinator
	server  *server.Manager
	app     *app.App
	history *history.Store
	quit    func()
	info    Info
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) serverInfo() ServerInfo {
	status := s.server.Status()
	return ServerInfo{
		Running:      status.Running,
		Port:         status.Port,
		Host:         status.Host,
		URL:          s.server.URL(),
		RunOnStartup: s.app.Options().RunServer,
	}
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	state := s.coord.State()
	resp.PID = s.info.PID
	resp.RunID = s.info.RunID
	resp.StartedAt = s.info.StartedAt
	resp.ConfigPath = s.info.ConfigPath
	resp.LogPath = s.info.LogPath
	if s.history != nil {
		resp.HistoryPath = s.history.Path()
	}
	resp.Language = state.Language
	resp.AutoDetect = state.AutoDetect
	resp.BackgroundCheck = state.BackgroundCheck
	resp.LastSequence = state.LastSequence
	resp.CheckRunning = state.Running
	resp.CheckPending = state.Pending
	resp.Server = s.serverInfo()
	return nil
}

func (s *service) Check(req CheckRequest, resp *CheckResponse) error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("text is required")
	}
	caller := req.Caller
	if caller == "" {
		caller = CallerPrefix + uuid.NewString()
	}
	resp.Caller = caller

	if req.Language != "" {
		start := time.Now()
		result, err := s.coord.Analyze(s.ctx, req.Text, req.Language)
		if err != nil {
			return err
		}
		resp.Result = result
		resp.DurationMs = time.Since(start).Milliseconds()
		return nil
	}

	timeout := defaultCheckTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	w := newCheckWaiter(caller)
	sub := s.coord.Bus().Subscribe(w.observe)
	defer sub.Unsubscribe()

	seq := s.coord.TriggerCheck(req.Text, caller)
	resp.Sequence = seq
	if seq == 0 {
		resp.Stale = true
		resp.StaleReason = StaleClosed
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	finished, reason := w.wait(ctx, seq)
	if reason != "" {
		resp.Stale = true
		resp.StaleReason = reason
		s.logger.Debug("ipc check not delivered",
			logging.String(logging.FieldCaller, caller),
			logging.Uint64(logging.FieldSequence, seq),
			logging.String("reason", reason),
		)
		return nil
	}
	resp.Result = finished.Result
	resp.DurationMs = finished.DurationMs()
	return nil
}

func (s *service) Edit(req EditRequest, resp *EditResponse) error {
	if req.Caller == "" {
		return errors.New("caller is required")
	}
	resp.Accepted = s.coord.BackgroundCheckEnabled()
	s.coord.TextEdited(req.Text, req.Caller)
	return nil
}

func (s *service) Tag(req TagRequest, resp *TagResponse) error {
	sentences, err := s.coord.Tag(s.ctx, req.Text)
	if err != nil {
		return err
	}
	resp.Sentences = sentences
	return nil
}

func (s *service) SetLanguage(req SetLanguageRequest, resp *SetLanguageResponse) error {
	tag, err := s.app.SetLanguage(req.Language)
	resp.Language = tag
	return err
}

func (s *service) SetBackground(req ToggleRequest, resp *ToggleResponse) error {
	if err := s.app.SetBackgroundCheck(req.Enabled); err != nil {
		return err
	}
	resp.Enabled = s.coord.BackgroundCheckEnabled()
	return nil
}

func (s *service) SetAutoDetect(req ToggleRequest, resp *ToggleResponse) error {
	if err := s.app.SetAutoDetect(req.Enabled); err != nil {
		return err
	}
	resp.Enabled = s.coord.State().AutoDetect
	return nil
}

// ServerStart starts the server for this session only; the persisted
// run-on-startup flag is left alone. ServerEnable changes both.
func (s *service) ServerStart(req ServerStartRequest, resp *ServerResponse) error {
	port := s.app.Config().Server.Port
	if req.Port != nil {
		port = *req.Port
	}
	if _, err := s.server.Start(port); err != nil {
		resp.Error = err.Error()
	}
	resp.Server = s.serverInfo()
	return nil
}

func (s *service) ServerStop(_ ServerStopRequest, resp *ServerResponse) error {
	if err := s.server.Stop(); err != nil {
		resp.Error = err.Error()
	}
	resp.Server = s.serverInfo()
	return nil
}

func (s *service) ServerEnable(req ToggleRequest, resp *ServerResponse) error {
	if _, err := s.app.SetServerEnabled(req.Enabled); err != nil {
		resp.Error = err.Error()
	}
	resp.Server = s.serverInfo()
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	if s.history == nil {
		return errors.New("history is not available")
	}
	if req.Clear {
		removed, err := s.history.Clear(s.ctx)
		if err != nil {
			return err
		}
		resp.Removed = removed
		s.logger.Info("history cleared",
			logging.String(logging.FieldEventType, "history_clear"),
			logging.Int64("removed_count", removed),
		)
	}
	entries, err := s.history.List(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	stats, err := s.history.Stats(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = entries
	resp.Stats = stats
	return nil
}

func (s *service) Quit(_ QuitRequest, resp *QuitResponse) error {
	if s.quit == nil {
		return errors.New("quit is not supported by this process")
	}
	s.logger.Info("quit requested via IPC", logging.String(logging.FieldEventType, "quit_requested"))
	resp.Stopping = true
	// The reply has to reach the client before shutdown closes the socket.
	go s.quit()
	return nil
}

// checkWaiter collects the bus events relevant to one caller in publish
// order.
type checkWaiter struct {
	caller string
	events chan events.Event
}

func newCheckWaiter(caller string) *checkWaiter {
	return &checkWaiter{caller: caller, events: make(chan events.Event, 64)}
}

func (w *checkWaiter) observe(e events.Event) {
	switch ev := e.(type) {
	case events.CheckStarted:
		if ev.Caller != w.caller {
			return
		}
	case events.CheckFinished:
		if ev.Caller != w.caller {
			return
		}
	case events.LanguageChanged:
	default:
		return
	}
	select {
	case w.events <- e:
	default:
	}
}

// wait blocks until the Finished event for seq arrives. A non-empty reason
// means the request will never be delivered.
func (w *checkWaiter) wait(ctx context.Context, seq uint64) (events.CheckFinished, string) {
	started := false
	for {
		select {
		case <-ctx.Done():
			return events.CheckFinished{}, StaleTimeout
		case e := <-w.events:
			switch ev := e.(type) {
			case events.CheckStarted:
				if ev.Sequence == seq {
					started = true
				} else if ev.Sequence > seq {
					return events.CheckFinished{}, StaleSuperseded
				}
			case events.CheckFinished:
				if ev.Sequence == seq {
					return ev, ""
				}
			case events.LanguageChanged:
				// Auto-detect may switch language just before our Started.
				if started {
					return events.CheckFinished{}, StaleLanguageChanged
				}
			}
		}
	}
}

package tray

import (
	_ "embed"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"quill/internal/app"
	"quill/internal/events"
	"quill/internal/logging"
	"quill/internal/server"
)

//go:embed icon.png
var iconData []byte

// Controller receives menu actions.
type Controller interface {
	SetServerEnabled(enabled bool) (server.Status, error)
	SetBackgroundCheck(enabled bool) error
	Options() app.Options
}

// StatusSource is polled after every server transition.
type StatusSource interface {
	Status() server.Status
}

// Params wires a Tray.
type Params struct {
	Controller Controller
	Server     StatusSource
	Bus        *events.Bus
	Logger     *slog.Logger
	// OnReady runs once the menu exists; start services here.
	OnReady func()
	// OnQuit is called when the Quit item is clicked.
	OnQuit func()
	// OnExit runs after the tray loop ends.
	OnExit func()
}

// Tray owns the systray menu.
type Tray struct {
	p      Params
	logger *slog.Logger

	mu    sync.Mutex
	state State
	ready bool
	sub   events.Subscription

	statusItem     *systray.MenuItem
	serverItem     *systray.MenuItem
	backgroundItem *systray.MenuItem
	quitItem       *systray.MenuItem
	done           chan struct{}
}

// New builds a tray; nothing is shown until Run.
func New(p Params) *Tray {
	opts := p.Controller.Options()
	return &Tray{
		p:      p,
		logger: logging.NewComponentLogger(p.Logger, "tray"),
		state: State{
			Server:          p.Server.Status(),
			Language:        opts.Language,
			BackgroundCheck: opts.BackgroundCheck,
		},
		done: make(chan struct{}),
	}
}

// Run shows the tray and blocks until Quit. It must be called from the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit ends the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTemplateIcon(iconData, iconData)
	systray.SetTitle("")

	header := systray.AddMenuItem("Quill", "")
	header.Disable()
	t.statusItem = systray.AddMenuItem("", "")
	t.statusItem.Disable()
	systray.AddSeparator()

	state := t.snapshot()
	t.serverItem = systray.AddMenuItemCheckbox("Run HTTP server", "Serve the check API on localhost", state.Server.Running)
	t.backgroundItem = systray.AddMenuItemCheckbox("Check while typing", "Check text automatically after edits", state.BackgroundCheck)
	systray.AddSeparator()
	t.quitItem = systray.AddMenuItem("Quit", "Stop quill")

	if t.p.OnReady != nil {
		t.p.OnReady()
	}

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	if t.p.Bus != nil {
		t.sub = t.p.Bus.Subscribe(t.observe)
	}
	t.refresh()
	go t.handleClicks()
}

func (t *Tray) onExit() {
	t.sub.Unsubscribe()
	close(t.done)
	if t.p.OnExit != nil {
		t.p.OnExit()
	}
}

// observe runs on the publisher's goroutine and only touches tray state.
func (t *Tray) observe(e events.Event) {
	var pulled *server.Status
	if _, ok := e.(events.ServerStatusChanged); ok {
		status := t.p.Server.Status()
		pulled = &status
	}
	t.mu.Lock()
	t.state = Reduce(t.state, e)
	if pulled != nil {
		t.state.Server = *pulled
	}
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}
	systray.SetTooltip(FormatTooltip(t.state))
	t.statusItem.SetTitle(ServerLabel(t.state))
	setChecked(t.serverItem, t.state.Server.Running)
	setChecked(t.backgroundItem, t.state.BackgroundCheck)
}

func setChecked(item *systray.MenuItem, checked bool) {
	if item.Checked() == checked {
		return
	}
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func (t *Tray) handleClicks() {
	for {
		select {
		case <-t.done:
			return
		case <-t.serverItem.ClickedCh:
			t.toggleServer(!t.serverItem.Checked())
		case <-t.backgroundItem.ClickedCh:
			t.toggleBackground(!t.backgroundItem.Checked())
		case <-t.quitItem.ClickedCh:
			if t.p.OnQuit != nil {
				t.p.OnQuit()
			} else {
				systray.Quit()
			}
		}
	}
}

// The toggles call into the app without holding t.mu: the app and the
// coordinator publish while holding their own locks, and observe needs t.mu.

func (t *Tray) toggleServer(enable bool) {
	if _, err := t.p.Controller.SetServerEnabled(enable); err != nil {
		logging.WarnWithContext(t.logger, "server toggle failed", "tray_server_toggle_failed",
			logging.Bool("enable", enable),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "choose another port in the config file"),
			logging.String(logging.FieldImpact, "HTTP check API unavailable"),
		)
	}
	t.refresh()
}

func (t *Tray) toggleBackground(enable bool) {
	if err := t.p.Controller.SetBackgroundCheck(enable); err != nil {
		logging.WarnWithContext(t.logger, "background check toggle not saved", "tray_background_toggle_failed",
			logging.Error(err),
		)
	}
	opts := t.p.Controller.Options()
	t.mu.Lock()
	t.state.BackgroundCheck = opts.BackgroundCheck
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

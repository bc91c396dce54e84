package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quill/internal/checker"
	"quill/internal/events"
	"quill/internal/language"
	"quill/internal/logging"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("coordinator closed")

// LanguageSetter is implemented by checkers that hold per-language state and
// need to be told when the active language changes.
type LanguageSetter interface {
	SetLanguage(tag string) error
}

// Options configures a Coordinator.
type Options struct {
	Checker         checker.Checker
	Bus             *events.Bus
	Logger          *slog.Logger
	Language        string
	BackgroundCheck bool
	AutoDetect      bool
	Debounce        time.Duration
}

// State is a point-in-time snapshot for status displays.
type State struct {
	Language        string `json:"language" yaml:"language"`
	BackgroundCheck bool   `json:"background_check" yaml:"background_check"`
	AutoDetect      bool   `json:"auto_detect" yaml:"auto_detect"`
	LastSequence    uint64 `json:"last_sequence" yaml:"last_sequence"`
	Running         bool   `json:"running" yaml:"running"`
	Pending         bool   `json:"pending" yaml:"pending"`
}

type request struct {
	text     string
	caller   string
	language string
	seq      uint64
	epoch    uint64
}

// Coordinator owns the checker and serializes access to it.
type Coordinator struct {
	checker checker.Checker
	bus     *events.Bus
	logger  *slog.Logger

	// checkMu serializes every call into the checker.
	checkMu sync.Mutex

	// pending holds at most one queued request per caller; order lists those
	// callers first come, first served.
	mu         sync.Mutex
	language   string
	epoch      uint64
	seq        uint64
	latest     map[string]uint64
	pending    map[string]*request
	order      []string
	running    bool
	closed     bool
	background bool
	autoDetect bool
	debounce   time.Duration
	edits      map[string]*pendingEdit

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Coordinator and starts its worker goroutine.
func New(opts Options) (*Coordinator, error) {
	if opts.Checker == nil {
		return nil, errors.New("coordinator requires a checker")
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	lang := opts.Language
	if lang == "" {
		lang = language.Fallback
	}
	tag, err := language.Normalize(lang)
	if err != nil {
		return nil, fmt.Errorf("coordinator language: %w", err)
	}
	if setter, ok := opts.Checker.(LanguageSetter); ok {
		if err := setter.SetLanguage(tag); err != nil {
			return nil, fmt.Errorf("configure checker language: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		checker:    opts.Checker,
		bus:        bus,
		logger:     logging.NewComponentLogger(opts.Logger, "coordinator"),
		language:   tag,
		latest:     make(map[string]uint64),
		pending:    make(map[string]*request),
		background: opts.BackgroundCheck,
		autoDetect: opts.AutoDetect,
		debounce:   opts.Debounce,
		edits:      make(map[string]*pendingEdit),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Bus returns the bus the coordinator publishes on.
func (c *Coordinator) Bus() *events.Bus {
	return c.bus
}

// TriggerCheck queues text for checking on behalf of caller and returns the
// assigned sequence number without waiting for the result. It returns 0 once
// the Coordinator is closed.
func (c *Coordinator) TriggerCheck(text, caller string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}

	if c.autoDetect {
		c.applyDetectedLocked(text)
	}

	c.seq++
	req := &request{
		text:     text,
		caller:   caller,
		language: c.language,
		seq:      c.seq,
		epoch:    c.epoch,
	}
	c.latest[caller] = req.seq

	if prev := c.pending[caller]; prev != nil {
		c.logger.Debug("pending check superseded",
			logging.String(logging.FieldCaller, prev.caller),
			logging.Uint64(logging.FieldSequence, prev.seq),
			logging.Uint64("superseded_by", req.seq),
			logging.String(logging.FieldEventType, "check_superseded"),
		)
	} else {
		c.order = append(c.order, caller)
	}
	c.pending[caller] = req

	c.bus.Publish(events.CheckStarted{Caller: caller, Sequence: req.seq, At: time.Now()})

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return req.seq
}

// SetLanguage switches the checking language. Every queued and running
// request becomes stale; LanguageChanged is published with the canonical tag.
func (c *Coordinator) SetLanguage(lang string) error {
	tag, err := language.Normalize(lang)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.setLanguageLocked(tag)
}

func (c *Coordinator) setLanguageLocked(tag string) error {
	if setter, ok := c.checker.(LanguageSetter); ok {
		if err := setter.SetLanguage(tag); err != nil {
			return fmt.Errorf("configure checker language: %w", err)
		}
	}
	c.epoch++
	for _, caller := range c.order {
		req := c.pending[caller]
		c.logger.Debug("pending check dropped by language change",
			logging.String(logging.FieldCaller, req.caller),
			logging.Uint64(logging.FieldSequence, req.seq),
		)
	}
	c.clearPendingLocked()
	prev := c.language
	c.language = tag
	c.logger.Info("language changed",
		logging.String(logging.FieldLanguage, tag),
		logging.String("previous", prev),
		logging.String(logging.FieldEventType, "language_changed"),
	)
	c.bus.Publish(events.LanguageChanged{Language: tag})
	return nil
}

func (c *Coordinator) applyDetectedLocked(text string) {
	detected, ok := language.Detect(text)
	if !ok || detected == language.Base(c.language) {
		return
	}
	if err := c.setLanguageLocked(detected); err != nil {
		logging.WarnWithContext(c.logger, "detected language rejected; keeping current language", "language_detect_failed",
			logging.String(logging.FieldLanguage, detected),
			logging.Error(err),
			logging.String(logging.FieldImpact, "text is checked with the previous language"),
		)
	}
}

// Language returns the active language tag.
func (c *Coordinator) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// SetAutoDetect toggles per-request language detection.
func (c *Coordinator) SetAutoDetect(enabled bool) {
	c.mu.Lock()
	c.autoDetect = enabled
	c.mu.Unlock()
}

// State reports the current coordinator state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Language:        c.language,
		BackgroundCheck: c.background,
		AutoDetect:      c.autoDetect,
		LastSequence:    c.seq,
		Running:         c.running,
		Pending:         len(c.order) > 0,
	}
}

// Close stops the worker and pending background timers. A check that is
// running when Close is called sees its context cancelled and its result is
// discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.clearPendingLocked()
	c.dropEditsLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			req := c.take()
			if req == nil {
				break
			}
			c.execute(req)
		}
	}
}

func (c *Coordinator) take() *request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return nil
	}
	caller := c.order[0]
	c.order = c.order[1:]
	req := c.pending[caller]
	delete(c.pending, caller)
	c.running = true
	return req
}

func (c *Coordinator) clearPendingLocked() {
	clear(c.pending)
	c.order = nil
}

func (c *Coordinator) execute(req *request) {
	start := time.Now()
	result := c.analyze(c.ctx, req.text, req.language)
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if reason := c.staleReasonLocked(req); reason != "" {
		c.logger.Debug("stale check result discarded",
			logging.String(logging.FieldCaller, req.caller),
			logging.Uint64(logging.FieldSequence, req.seq),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "check_stale"),
		)
		return
	}
	if result.Failed() {
		logging.WarnWithContext(c.logger, "check failed; error reported inline", "check_failed",
			logging.String(logging.FieldCaller, req.caller),
			logging.Uint64(logging.FieldSequence, req.seq),
			logging.String("error", result.Error),
			logging.String(logging.FieldErrorHint, "inspect the checker error in the result"),
			logging.String(logging.FieldImpact, "no matches for this request"),
		)
	} else {
		c.logger.Debug("check finished",
			logging.String(logging.FieldCaller, req.caller),
			logging.Uint64(logging.FieldSequence, req.seq),
			logging.Int("matches", len(result.Matches)),
			logging.Duration("duration", elapsed),
		)
	}
	c.bus.Publish(events.CheckFinished{
		Caller:   req.caller,
		Sequence: req.seq,
		Duration: elapsed,
		Result:   result,
	})
}

func (c *Coordinator) staleReasonLocked(req *request) string {
	switch {
	case c.closed:
		return "closed"
	case req.epoch != c.epoch:
		return "language changed"
	case c.latest[req.caller] != req.seq:
		return "superseded"
	}
	return ""
}

// analyze calls the checker under checkMu and converts errors and panics
// into an inline Result.Error.
func (c *Coordinator) analyze(ctx context.Context, text, lang string) (result checker.Result) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("checker panicked",
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "checker_panic"),
			)
			result = checker.Result{Language: lang, Error: fmt.Sprintf("checker panic: %v", r)}
		}
	}()
	res, err := c.checker.Analyze(ctx, text, lang)
	if err != nil {
		return checker.Result{Language: lang, Error: err.Error()}
	}
	if res.Language == "" {
		res.Language = lang
	}
	return res
}

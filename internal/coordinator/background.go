package coordinator

import (
	"time"

	"quill/internal/logging"
)

type pendingEdit struct {
	text  string
	gen   uint64
	timer *time.Timer
}

// SetBackgroundCheckEnabled toggles checking while typing. Disabling drops
// edits still waiting for their debounce window.
func (c *Coordinator) SetBackgroundCheckEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background = enabled
	if !enabled {
		c.dropEditsLocked()
	}
	c.logger.Info("background check toggled",
		logging.Bool("enabled", enabled),
		logging.String(logging.FieldEventType, "background_check_toggled"),
	)
}

// BackgroundCheckEnabled reports whether edits trigger checks.
func (c *Coordinator) BackgroundCheckEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.background
}

// SetDebounce changes the coalescing window for later edits.
func (c *Coordinator) SetDebounce(d time.Duration) {
	c.mu.Lock()
	c.debounce = d
	c.mu.Unlock()
}

// TextEdited records an edit from caller. With background checking enabled
// a check of the latest text is triggered once no further edit arrived for
// the debounce window.
func (c *Coordinator) TextEdited(text, caller string) {
	c.mu.Lock()
	if c.closed || !c.background {
		c.mu.Unlock()
		return
	}
	if c.debounce <= 0 {
		c.mu.Unlock()
		c.TriggerCheck(text, caller)
		return
	}
	edit, ok := c.edits[caller]
	if !ok {
		edit = &pendingEdit{}
		c.edits[caller] = edit
	}
	if edit.timer != nil {
		edit.timer.Stop()
	}
	edit.text = text
	edit.gen++
	gen := edit.gen
	edit.timer = time.AfterFunc(c.debounce, func() {
		c.fireEdit(caller, gen)
	})
	c.mu.Unlock()
}

func (c *Coordinator) fireEdit(caller string, gen uint64) {
	c.mu.Lock()
	edit, ok := c.edits[caller]
	if !ok || edit.gen != gen || c.closed || !c.background {
		c.mu.Unlock()
		return
	}
	text := edit.text
	delete(c.edits, caller)
	c.mu.Unlock()

	c.TriggerCheck(text, caller)
}

func (c *Coordinator) dropEditsLocked() {
	for caller, edit := range c.edits {
		if edit.timer != nil {
			edit.timer.Stop()
		}
		delete(c.edits, caller)
	}
}

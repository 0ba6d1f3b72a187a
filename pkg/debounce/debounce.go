package debounce

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultWindow is the debounce window used when none is configured.
const DefaultWindow = 100 * time.Millisecond

// State is the debounce state machine position.
type State int

const (
	WaitingForPress State = iota
	DebouncingPress
	WaitingForRelease
	DebouncingRelease
)

func (s State) String() string {
	switch s {
	case WaitingForPress:
		return "waiting_for_press"
	case DebouncingPress:
		return "debouncing_press"
	case WaitingForRelease:
		return "waiting_for_release"
	case DebouncingRelease:
		return "debouncing_release"
	default:
		return "unknown"
	}
}

// Signal is the instantaneous input level. It is written by the signal
// source (an edge goroutine) and read by the poll loop.
type Signal struct {
	v atomic.Bool
}

// Set stores the current level.
func (s *Signal) Set(asserted bool) { s.v.Store(asserted) }

// Asserted reports the last stored level.
func (s *Signal) Asserted() bool { return s.v.Load() }

// Window is a restartable debounce timer.
type Window interface {
	// Arm restarts the window.
	Arm()
	// Elapsed reports whether the window has run out since the last Arm.
	Elapsed() bool
}

// Debouncer turns a noisy level into single release events.
// It is not safe for concurrent use; poll it from one goroutine.
type Debouncer struct {
	state  State
	window Window
}

// New creates a Debouncer in WaitingForPress.
func New(window Window) *Debouncer {
	return &Debouncer{state: WaitingForPress, window: window}
}

// State returns the current state.
func (d *Debouncer) State() State { return d.state }

// Poll advances the state machine once and reports whether a clean
// release was recognised. It never blocks.
func (d *Debouncer) Poll(asserted bool) bool {
	switch d.state {
	case WaitingForPress:
		if asserted {
			d.window.Arm()
			d.transition(DebouncingPress)
		}
	case DebouncingPress:
		if d.window.Elapsed() {
			if asserted {
				d.transition(WaitingForRelease)
			} else {
				d.transition(WaitingForPress)
			}
		}
	case WaitingForRelease:
		if !asserted {
			d.window.Arm()
			d.transition(DebouncingRelease)
		}
	case DebouncingRelease:
		if d.window.Elapsed() {
			if asserted {
				d.transition(WaitingForRelease)
			} else {
				d.transition(WaitingForPress)
				return true
			}
		}
	}
	return false
}

func (d *Debouncer) transition(next State) {
	log.Debug().
		Str("from", d.state.String()).
		Str("to", next.String()).
		Msg("debounce state changed")
	d.state = next
}

// Deadline is a wall-clock Window.
type Deadline struct {
	d     time.Duration
	now   func() time.Time
	until time.Time
}

// NewDeadline returns a Window of length d. now defaults to time.Now.
func NewDeadline(d time.Duration, now func() time.Time) *Deadline {
	if d <= 0 {
		d = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deadline{d: d, now: now}
}

// Arm implements Window.
func (w *Deadline) Arm() { w.until = w.now().Add(w.d) }

// Elapsed implements Window.
func (w *Deadline) Elapsed() bool { return !w.now().Before(w.until) }

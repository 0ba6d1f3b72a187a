package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/spotcheck/pkg/debounce"
)

const (
	// DefaultThreshold is the number of ticks between periodic fetches.
	DefaultThreshold = 4
	// DefaultTickPeriod is the tick period in periodic mode.
	DefaultTickPeriod = time.Second
)

// Trigger decides when a fetch cycle starts.
type Trigger interface {
	// Poll reports whether a cycle should start now. Never blocks.
	Poll() bool
	// Reset prepares the trigger for the next cycle.
	Reset()
}

var (
	_ Trigger         = (*Periodic)(nil)
	_ Trigger         = (*Button)(nil)
	_ debounce.Window = (*Counter)(nil)
)

// Counter accumulates ticks from a timer source. Tick may be called from
// any goroutine; the rest is meant for the single polling consumer.
//
// Used as a debounce window, Arm asks the Clock to restart its period so
// the window always lasts at least one full period. Elapsed stays false
// until the Clock has acknowledged the latest Arm.
type Counter struct {
	n atomic.Int64

	armed  atomic.Int64 // generation requested by Arm
	synced atomic.Int64 // generation the tick phase was restarted for

	once    sync.Once
	rearmCh chan struct{}
}

// Tick increments the counter.
func (c *Counter) Tick() { c.n.Add(1) }

// Count returns the current number of ticks.
func (c *Counter) Count() int64 { return c.n.Load() }

// TakeAndReset returns the accumulated ticks and zeroes the counter.
func (c *Counter) TakeAndReset() int64 { return c.n.Swap(0) }

// Arm restarts the counter when it is used as a debounce window.
func (c *Counter) Arm() {
	c.n.Store(0)
	c.armed.Add(1)
	select {
	case c.rearm() <- struct{}{}:
	default:
	}
}

// Elapsed reports whether a full period passed since Arm.
func (c *Counter) Elapsed() bool {
	return c.synced.Load() == c.armed.Load() && c.n.Load() >= 1
}

func (c *Counter) rearm() chan struct{} {
	c.once.Do(func() { c.rearmCh = make(chan struct{}, 1) })
	return c.rearmCh
}

// restart is called by the tick source right after it restarted its
// period. Ticks counted before this point do not count for the window.
func (c *Counter) restart() {
	gen := c.armed.Load()
	c.n.Store(0)
	c.synced.Store(gen)
}

// Clock drives a Counter at a fixed period.
type Clock struct {
	Period time.Duration
}

// Run ticks c every Period until ctx is done. An Arm on c restarts the
// period.
func (k Clock) Run(ctx context.Context, c *Counter) {
	period := k.Period
	if period <= 0 {
		period = DefaultTickPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	rearm := c.rearm()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rearm:
			ticker.Reset(period)
			c.restart()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Periodic fires once the counter reaches Threshold ticks.
type Periodic struct {
	Counter   *Counter
	Threshold int64
}

// NewPeriodic creates a periodic trigger over c.
func NewPeriodic(c *Counter, threshold int64) *Periodic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Periodic{Counter: c, Threshold: threshold}
}

// Poll implements Trigger.
func (p *Periodic) Poll() bool { return p.Counter.Count() >= p.Threshold }

// Reset implements Trigger.
func (p *Periodic) Reset() { p.Counter.TakeAndReset() }

// Button fires on a debounced button release.
type Button struct {
	Debouncer *debounce.Debouncer
	Signal    *debounce.Signal
}

// NewButton creates a button trigger whose debounce window is clocked by c.
func NewButton(sig *debounce.Signal, c *Counter) *Button {
	return &Button{Debouncer: debounce.New(c), Signal: sig}
}

// Poll implements Trigger.
func (b *Button) Poll() bool { return b.Debouncer.Poll(b.Signal.Asserted()) }

// Reset implements Trigger. The debouncer is already back in
// WaitingForPress after emitting a release.
func (b *Button) Reset() {}

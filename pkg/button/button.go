// Package button samples a GPIO push button into a debounce.Signal.
package button

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/itohio/spotcheck/pkg/debounce"
)

// edgeTimeout bounds each edge wait so Run notices cancellation.
const edgeTimeout = 100 * time.Millisecond

// Input is the part of gpio.PinIn the button needs.
type Input interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Halt() error
}

var _ Input = (gpio.PinIn)(nil)

// Config describes the button wiring.
type Config struct {
	Pin    string // e.g. "GPIO13"
	Pull   string // "up", "down" or "none"
	Invert bool   // pressed == low
}

// Button mirrors the logical pressed level of a pin into a Signal.
type Button struct {
	in     Input
	invert bool
	signal *debounce.Signal
}

// Open initialises the host GPIO drivers and configures the pin.
func Open(cfg Config, sig *debounce.Signal) (*Button, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	p := gpioreg.ByName(cfg.Pin)
	if p == nil {
		return nil, fmt.Errorf("failed to find button pin %q", cfg.Pin)
	}

	return New(p, cfg, sig)
}

// New configures in as a both-edge input and returns a Button over it.
func New(in Input, cfg Config, sig *debounce.Signal) (*Button, error) {
	if err := in.In(pullFor(cfg.Pull), gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure button pin %q: %w", cfg.Pin, err)
	}

	b := &Button{in: in, invert: cfg.Invert, signal: sig}
	b.sample()
	return b, nil
}

// Run waits for edges and stores the level after each one until ctx is
// done. The level is also resampled on every timeout so a missed edge
// cannot leave the signal stale.
func (b *Button) Run(ctx context.Context) {
	log.Debug().Msg("button sampler started")
	defer log.Debug().Msg("button sampler stopped")

	for ctx.Err() == nil {
		b.in.WaitForEdge(edgeTimeout)
		b.sample()
	}
}

// Close releases the pin.
func (b *Button) Close() error {
	return b.in.Halt()
}

func (b *Button) sample() {
	level := bool(b.in.Read())
	if b.invert {
		level = !level
	}
	b.signal.Set(level)
}

func pullFor(name string) gpio.Pull {
	switch name {
	case "down":
		return gpio.PullDown
	case "none":
		return gpio.Float
	default:
		return gpio.PullUp
	}
}

package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// step is one input level held for a duration, polled every millisecond.
type step struct {
	asserted bool
	hold     time.Duration
}

func run(d *Debouncer, clk *fakeClock, steps []step) int {
	events := 0
	for _, s := range steps {
		for elapsed := time.Duration(0); elapsed < s.hold; elapsed += time.Millisecond {
			if d.Poll(s.asserted) {
				events++
			}
			clk.advance(time.Millisecond)
		}
	}
	return events
}

func newTestDebouncer() (*Debouncer, *fakeClock) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	return New(NewDeadline(100*time.Millisecond, clk.now)), clk
}

func TestDebouncer_InitialState(t *testing.T) {
	d, _ := newTestDebouncer()
	assert.Equal(t, WaitingForPress, d.State())
}

func TestDebouncer_CleanPressRelease(t *testing.T) {
	d, clk := newTestDebouncer()

	events := run(d, clk, []step{
		{false, 50 * time.Millisecond},
		{true, 300 * time.Millisecond},
		{false, 300 * time.Millisecond},
	})

	assert.Equal(t, 1, events)
	assert.Equal(t, WaitingForPress, d.State())
}

func TestDebouncer_NoiseRejection(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name:  "single short glitch",
			steps: []step{{true, 20 * time.Millisecond}, {false, 500 * time.Millisecond}},
		},
		{
			name: "chatter shorter than window",
			steps: []step{
				{true, 10 * time.Millisecond}, {false, 10 * time.Millisecond},
				{true, 10 * time.Millisecond}, {false, 10 * time.Millisecond},
				{true, 30 * time.Millisecond}, {false, 500 * time.Millisecond},
			},
		},
		{
			name:  "level never changes",
			steps: []step{{false, time.Second}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, clk := newTestDebouncer()
			assert.Equal(t, 0, run(d, clk, tt.steps))
			assert.Equal(t, WaitingForPress, d.State())
		})
	}
}

func TestDebouncer_RepressDuringReleaseDebounce(t *testing.T) {
	d, clk := newTestDebouncer()

	events := run(d, clk, []step{
		{true, 200 * time.Millisecond},
		{false, 50 * time.Millisecond},
		{true, 200 * time.Millisecond},
	})
	assert.Equal(t, 0, events)
	assert.Equal(t, WaitingForRelease, d.State())

	events = run(d, clk, []step{{false, 200 * time.Millisecond}})
	assert.Equal(t, 1, events)
}

func TestDebouncer_HeldButtonEmitsNothing(t *testing.T) {
	d, clk := newTestDebouncer()

	events := run(d, clk, []step{{true, 5 * time.Second}})
	assert.Equal(t, 0, events)
	assert.Equal(t, WaitingForRelease, d.State())
}

func TestDebouncer_Transitions(t *testing.T) {
	d, clk := newTestDebouncer()

	require.False(t, d.Poll(true))
	assert.Equal(t, DebouncingPress, d.State())

	clk.advance(100 * time.Millisecond)
	require.False(t, d.Poll(true))
	assert.Equal(t, WaitingForRelease, d.State())

	require.False(t, d.Poll(false))
	assert.Equal(t, DebouncingRelease, d.State())

	clk.advance(99 * time.Millisecond)
	require.False(t, d.Poll(false))
	assert.Equal(t, DebouncingRelease, d.State())

	clk.advance(time.Millisecond)
	assert.True(t, d.Poll(false))
	assert.Equal(t, WaitingForPress, d.State())
}

func TestSignal(t *testing.T) {
	var s Signal
	assert.False(t, s.Asserted())
	s.Set(true)
	assert.True(t, s.Asserted())
	s.Set(false)
	assert.False(t, s.Asserted())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting_for_press", WaitingForPress.String())
	assert.Equal(t, "debouncing_release", DebouncingRelease.String())
	assert.Equal(t, "unknown", State(42).String())
}

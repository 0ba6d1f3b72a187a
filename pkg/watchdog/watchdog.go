// Package watchdog reports liveness to systemd. Outside a unit with
// WatchdogSec set every call is a no-op.
package watchdog

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
)

type notifier func(unsetEnvironment bool, state string) (bool, error)

// Watchdog sends WATCHDOG=1 at most once per half interval.
type Watchdog struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	notify   notifier
}

// New reads the watchdog interval from the environment. When enabled is
// false or no interval is configured the watchdog is disabled.
func New(enabled bool) *Watchdog {
	w := &Watchdog{now: time.Now, notify: daemon.SdNotify}
	if !enabled {
		return w
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn().Err(err).Msg("invalid systemd watchdog settings, watchdog disabled")
		return w
	}
	if interval == 0 {
		log.Debug().Msg("not running under a systemd watchdog")
		return w
	}
	w.interval = interval
	log.Info().Dur("interval", interval).Msg("systemd watchdog enabled")
	return w
}

// Enabled reports whether Feed sends anything.
func (w *Watchdog) Enabled() bool { return w.interval > 0 }

// Feed signals liveness.
func (w *Watchdog) Feed() {
	if w.interval <= 0 {
		return
	}
	now := w.now()
	if !w.last.IsZero() && now.Sub(w.last) < w.interval/2 {
		return
	}
	if _, err := w.notify(false, daemon.SdNotifyWatchdog); err != nil {
		log.Warn().Err(err).Msg("failed to notify watchdog")
		return
	}
	w.last = now
}

// Ready tells the service manager startup is complete.
func (w *Watchdog) Ready() {
	sent, err := w.notify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn().Err(err).Msg("failed to notify readiness")
		return
	}
	if sent {
		log.Debug().Msg("notified service manager: ready")
	}
}

// Stopping tells the service manager shutdown has begun.
func (w *Watchdog) Stopping() {
	if _, err := w.notify(false, daemon.SdNotifyStopping); err != nil {
		log.Warn().Err(err).Msg("failed to notify stopping")
	}
}

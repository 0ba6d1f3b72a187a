// Package relay runs the fetch-and-forward loop: wait for a trigger,
// fetch the next endpoint, decode the list and send it to the display.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/itohio/spotcheck/pkg/decode"
	"github.com/itohio/spotcheck/pkg/display"
	"github.com/itohio/spotcheck/pkg/framing"
	"github.com/itohio/spotcheck/pkg/session"
	"github.com/itohio/spotcheck/pkg/trigger"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the idle sleep between trigger polls.
const DefaultPollInterval = 10 * time.Millisecond

// Watchdog receives a liveness signal once per loop iteration.
type Watchdog interface {
	Feed()
}

type nopWatchdog struct{}

func (nopWatchdog) Feed() {}

// InvariantViolation means a believed-good response decoded to an empty
// list. It is fatal: the loop stops and the process should be restarted.
type InvariantViolation struct {
	Endpoint string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s returned an empty list", e.Endpoint)
}

// LinkError is a display write failure. The link is closed and reopened
// on the next cycle.
type LinkError struct {
	Err error
}

func (e *LinkError) Error() string { return "display link: " + e.Err.Error() }

func (e *LinkError) Unwrap() error { return e.Err }

// Options configures what is fetched.
type Options struct {
	BaseURL      string
	Endpoints    [2]string
	Days         int
	Spot         string
	Field        string
	PollInterval time.Duration
}

// Result describes one cycle. Err holds the recoverable error, if any.
type Result struct {
	Endpoint string
	Sent     int
	Err      error
}

// Relay owns the session and the display link for the life of the
// process. It is driven by a single goroutine.
type Relay struct {
	trigger  trigger.Trigger
	session  *session.Session
	link     display.Link
	watchdog Watchdog
	opts     Options

	second bool
}

// New creates a relay. wd may be nil.
func New(tr trigger.Trigger, s *session.Session, link display.Link, wd Watchdog, opts Options) *Relay {
	if wd == nil {
		wd = nopWatchdog{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Relay{
		trigger:  tr,
		session:  s,
		link:     link,
		watchdog: wd,
		opts:     opts,
	}
}

// Run loops until ctx is cancelled or a fatal error occurs. Cancellation
// returns nil.
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		if err := r.session.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing http client")
		}
		if err := r.link.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing display link")
		}
	}()

	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.watchdog.Feed()

		if !r.trigger.Poll() {
			timer.Reset(r.opts.PollInterval)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			continue
		}
		r.trigger.Reset()

		res, err := r.Cycle(ctx)
		if err != nil {
			return err
		}
		if res.Err != nil && ctx.Err() == nil {
			log.Warn().Err(res.Err).Str("component", res.Endpoint).Msg("cycle skipped")
		}
	}
}

// Cycle runs one fetch-decode-transmit pass. The returned error is non-nil
// only for fatal conditions; recoverable failures are reported in
// Result.Err.
func (r *Relay) Cycle(ctx context.Context) (Result, error) {
	if !r.session.Inited() {
		if err := r.session.EnsureSession(ctx); err != nil {
			log.Error().Err(err).Msg("failed to reinitialize session")
			return Result{Err: err}, nil
		}
	}

	endpoint := r.nextEndpoint()
	res := Result{Endpoint: endpoint}
	logger := log.With().Str("component", endpoint).Logger()

	req := session.BuildRequest(r.opts.BaseURL, endpoint,
		session.QueryParam{Key: "days", Value: strconv.Itoa(r.opts.Days)},
		session.QueryParam{Key: "spot", Value: r.opts.Spot},
	)

	buf, err := r.session.Perform(ctx, req)
	defer buf.Release()
	if err != nil {
		res.Err = err
		return res, nil
	}
	logger.Debug().Int("bytes", buf.Len()).Msg("response received")

	list, err := decode.Decode(buf.Bytes(), r.opts.Field)
	if err != nil {
		logger.Error().Err(err).Msg("error parsing response")
		res.Err = err
		return res, nil
	}

	if !r.link.IsConnected() {
		if err := r.link.Connect(); err != nil {
			res.Err = &LinkError{Err: err}
			return res, nil
		}
	}

	n, err := framing.Transmit(r.link, list)
	res.Sent = n
	if err != nil {
		if cerr := r.link.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("error closing display link")
		}
		res.Err = &LinkError{Err: err}
		return res, nil
	}
	if n == 0 {
		v := &InvariantViolation{Endpoint: endpoint}
		res.Err = v
		return res, v
	}

	logger.Info().Int("sent", n).Msg("list transmitted")
	return res, nil
}

// nextEndpoint flips between the two endpoints, starting with the first.
func (r *Relay) nextEndpoint() string {
	e := r.opts.Endpoints[0]
	if r.second {
		e = r.opts.Endpoints[1]
	}
	r.second = !r.second
	return e
}

// IsFatal reports whether err should stop the process.
func IsFatal(err error) bool {
	var v *InvariantViolation
	return errors.As(err, &v)
}

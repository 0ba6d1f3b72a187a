package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Session owns the single reusable request client and knows whether it is
// usable. It is not safe for concurrent use.
type Session struct {
	factory    Factory
	associator Associator
	alloc      *Allocator

	client Client
	inited bool
}

// New creates an uninitialised session. associator may be nil when the
// network is assumed to be up.
func New(factory Factory, associator Associator, alloc *Allocator) *Session {
	if alloc == nil {
		alloc = NewAllocator(DefaultMaxBodySize)
	}
	return &Session{
		factory:    factory,
		associator: associator,
		alloc:      alloc,
	}
}

// Inited reports whether a usable client exists.
func (s *Session) Inited() bool { return s.inited }

// Allocator returns the buffer allocator used for responses.
func (s *Session) Allocator() *Allocator { return s.alloc }

// EnsureSession brings the network up and creates a client if none is
// usable. On failure the session stays uninitialised and the caller
// retries on a later cycle.
func (s *Session) EnsureSession(ctx context.Context) error {
	if s.inited {
		log.Debug().Msg("http client already set up, no need to re-init")
		return nil
	}

	if s.associator != nil {
		if err := s.associator.Associate(ctx); err != nil {
			return fmt.Errorf("network association failed: %w", err)
		}
	}

	log.Info().Msg("initializing http client")
	c, err := s.factory()
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}
	if c == nil {
		return errors.New("failed to create http client: factory returned nil")
	}

	s.client = c
	s.inited = true
	log.Info().Msg("http client initialized")
	return nil
}

// Perform runs req and returns the body in a buffer sized to the declared
// content length. The caller releases the buffer. The response is always
// closed before returning; the client is destroyed only on transport
// failure.
func (s *Session) Perform(ctx context.Context, req Request) (*Buffer, error) {
	if !s.inited || s.client == nil {
		return nil, ErrNotInited
	}

	u := req.URL()
	log.Debug().Str("url", u).Msg("performing request")

	resp, err := s.client.Get(ctx, u)
	if err != nil {
		s.teardown()
		return nil, &TransportError{Op: "get", Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing http connection")
		}
	}()

	status := resp.StatusCode
	length := resp.ContentLength
	limit := s.alloc.Limit()

	if status < 200 || status > 299 {
		log.Warn().Int("status", status).Int64("content_length", length).Msg("GET failed")
		return nil, &ProtocolError{Status: status, ContentLength: length, Limit: limit, Reason: "unexpected status"}
	}
	if length < 0 {
		log.Warn().Int("status", status).Msg("response has no declared content length")
		return nil, &ProtocolError{Status: status, ContentLength: length, Limit: limit, Reason: "unknown content length"}
	}
	// One byte of the cap is the terminator slot.
	if length >= int64(limit) {
		log.Warn().Int64("content_length", length).Int("limit", limit).Msg("not enough room in read buffer")
		return nil, &ProtocolError{Status: status, ContentLength: length, Limit: limit, Reason: "body exceeds buffer limit"}
	}
	log.Debug().Int("status", status).Int64("content_length", length).Msg("GET success")

	buf, err := s.alloc.Alloc(int(length) + 1)
	if err != nil {
		return nil, &ProtocolError{Status: status, ContentLength: length, Limit: limit, Reason: err.Error()}
	}

	n, err := io.ReadFull(resp.Body, buf.data[:length])
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		log.Warn().Int("received", n).Int64("content_length", length).Msg("short response body")
	default:
		buf.Release()
		s.teardown()
		return nil, &TransportError{Op: "read", Err: err}
	}

	buf.terminate(n)
	return buf, nil
}

// Close destroys the client.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.inited = false
	return err
}

func (s *Session) teardown() {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("error cleaning up http client")
	}
}

package session

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tidesBody = `{"data":["High 5.2ft 06:14","Low 0.3ft 12:40"]}`

func fixedLengthHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

type countingFactory struct {
	calls int
	inner Factory
	err   error
}

func (f *countingFactory) build() (Client, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.inner()
}

func newTestSession(t *testing.T, h http.Handler, limit int) (*Session, *countingFactory, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	f := &countingFactory{inner: NewHTTPFactory(srv.URL+"/", time.Second)}
	s := New(f.build, nil, NewAllocator(limit))
	require.NoError(t, s.EnsureSession(context.Background()))
	return s, f, srv
}

func TestBuildRequest(t *testing.T) {
	params := []QueryParam{{Key: "days", Value: "2"}, {Key: "spot", Value: "wedge"}}
	req := BuildRequest("http://spotcheck.example/", "tides", params...)

	assert.Equal(t, "http://spotcheck.example/tides", req.BasePath)
	assert.Equal(t, "http://spotcheck.example/tides?days=2&spot=wedge", req.URL())

	params[0].Value = "7"
	assert.Equal(t, "http://spotcheck.example/tides?days=2&spot=wedge", req.URL(), "request must not alias caller params")
}

func TestBuildRequest_NoParams(t *testing.T) {
	req := BuildRequest("http://spotcheck.example/", "swell")
	assert.Equal(t, "http://spotcheck.example/swell", req.URL())
}

func TestPerform_Success(t *testing.T) {
	var gotQuery string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Path + "?" + r.URL.RawQuery
		fixedLengthHandler(http.StatusOK, tidesBody)(w, r)
	})
	s, _, srv := newTestSession(t, h, DefaultMaxBodySize)

	req := BuildRequest(srv.URL+"/", "tides", QueryParam{"days", "2"}, QueryParam{"spot", "wedge"})
	buf, err := s.Perform(context.Background(), req)
	require.NoError(t, err)
	defer buf.Release()

	assert.Equal(t, "/tides?days=2&spot=wedge", gotQuery)
	assert.Equal(t, tidesBody, string(buf.Bytes()))
	assert.Equal(t, len(tidesBody), buf.Len())
	assert.Equal(t, len(tidesBody)+1, buf.Cap())
	assert.Equal(t, byte(0), buf.data[buf.Len()])
	assert.True(t, s.Inited())
}

func TestPerform_BadStatus(t *testing.T) {
	s, _, srv := newTestSession(t, fixedLengthHandler(http.StatusNotFound, "nope"), DefaultMaxBodySize)

	buf, err := s.Perform(context.Background(), BuildRequest(srv.URL+"/", "tides"))
	assert.Nil(t, buf)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusNotFound, perr.Status)
	assert.True(t, s.Inited(), "http-level failures keep the session")
	assert.Equal(t, int64(0), s.Allocator().Allocated())
}

func TestPerform_ClosesConnection(t *testing.T) {
	var (
		mu    sync.Mutex
		state = map[string]http.ConnState{}
	)
	srv := httptest.NewUnstartedServer(fixedLengthHandler(http.StatusOK, tidesBody))
	srv.Config.ConnState = func(c net.Conn, cs http.ConnState) {
		mu.Lock()
		state[c.RemoteAddr().String()] = cs
		mu.Unlock()
	}
	srv.Start()
	t.Cleanup(srv.Close)

	s := New(NewHTTPFactory(srv.URL+"/", time.Second), nil, NewAllocator(DefaultMaxBodySize))
	require.NoError(t, s.EnsureSession(context.Background()))

	for i := 0; i < 2; i++ {
		buf, err := s.Perform(context.Background(), BuildRequest(srv.URL+"/", "tides"))
		require.NoError(t, err)
		buf.Release()
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(state) != 2 {
			return false
		}
		for _, cs := range state {
			if cs != http.StateClosed {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "every request must use its own connection and leave it closed")
}

func TestPerform_BufferCap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"well under cap", 100, false},
		{"one below cap", 4095, false},
		{"exactly cap", 4096, true},
		{"over cap", 5000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Repeat("x", tt.size)
			s, _, srv := newTestSession(t, fixedLengthHandler(http.StatusOK, body), 4096)

			buf, err := s.Perform(context.Background(), BuildRequest(srv.URL+"/", "swell"))
			if tt.wantErr {
				var perr *ProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, int64(tt.size), perr.ContentLength)
				assert.Nil(t, buf)
				assert.Equal(t, int64(0), s.Allocator().Allocated(), "nothing may be allocated")
				assert.True(t, s.Inited())
				return
			}
			require.NoError(t, err)
			assert.LessOrEqual(t, buf.Cap(), 4096)
			assert.Equal(t, tt.size, buf.Len())
			buf.Release()
			assert.Equal(t, int64(0), s.Allocator().Outstanding())
		})
	}
}

func TestPerform_UnknownLength(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, tidesBody)
	})
	s, _, srv := newTestSession(t, h, DefaultMaxBodySize)

	_, err := s.Perform(context.Background(), BuildRequest(srv.URL+"/", "tides"))
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int64(-1), perr.ContentLength)
	assert.True(t, s.Inited())
}

func TestPerform_TransportFailureRecreates(t *testing.T) {
	s, f, srv := newTestSession(t, fixedLengthHandler(http.StatusOK, tidesBody), DefaultMaxBodySize)
	req := BuildRequest(srv.URL+"/", "tides")
	srv.Close()

	buf, err := s.Perform(context.Background(), req)
	assert.Nil(t, buf)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.False(t, s.Inited())

	_, err = s.Perform(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotInited)

	require.NoError(t, s.EnsureSession(context.Background()))
	assert.True(t, s.Inited())
	assert.Equal(t, 2, f.calls)
}

func TestEnsureSession_Idempotent(t *testing.T) {
	s, f, _ := newTestSession(t, fixedLengthHandler(http.StatusOK, tidesBody), DefaultMaxBodySize)
	require.NoError(t, s.EnsureSession(context.Background()))
	assert.Equal(t, 1, f.calls)
}

func TestEnsureSession_FactoryError(t *testing.T) {
	f := &countingFactory{err: errors.New("no sockets")}
	s := New(f.build, nil, nil)

	err := s.EnsureSession(context.Background())
	assert.Error(t, err)
	assert.False(t, s.Inited())
}

type fakeAssociator struct {
	calls int
	err   error
}

func (p *fakeAssociator) Associate(context.Context) error {
	p.calls++
	return p.err
}

func TestEnsureSession_AssociatorFirst(t *testing.T) {
	p := &fakeAssociator{err: errors.New("no route")}
	f := &countingFactory{inner: NewHTTPFactory("http://127.0.0.1/", time.Second)}
	s := New(f.build, p, nil)

	assert.Error(t, s.EnsureSession(context.Background()))
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, f.calls, "client must not be built while offline")
	assert.False(t, s.Inited())

	p.err = nil
	require.NoError(t, s.EnsureSession(context.Background()))
	assert.Equal(t, 1, f.calls)
	assert.True(t, s.Inited())
}

// stubClient returns a canned response.
type stubClient struct {
	resp   *http.Response
	closed bool
}

func (c *stubClient) Get(context.Context, string) (*http.Response, error) { return c.resp, nil }
func (c *stubClient) Close() error                                         { c.closed = true; return nil }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func stubSession(t *testing.T, resp *http.Response) (*Session, *stubClient) {
	t.Helper()
	c := &stubClient{resp: resp}
	s := New(func() (Client, error) { return c, nil }, nil, nil)
	require.NoError(t, s.EnsureSession(context.Background()))
	return s, c
}

func TestPerform_ShortBody(t *testing.T) {
	s, _ := stubSession(t, &http.Response{
		StatusCode:    http.StatusOK,
		ContentLength: 10,
		Body:          io.NopCloser(strings.NewReader("12345")),
	})

	buf, err := s.Perform(context.Background(), BuildRequest("http://x/", "tides"))
	require.NoError(t, err)
	assert.Equal(t, "12345", string(buf.Bytes()))
	assert.Equal(t, 11, buf.Cap())
	buf.Release()
}

func TestPerform_ReadErrorTearsDown(t *testing.T) {
	s, c := stubSession(t, &http.Response{
		StatusCode:    http.StatusOK,
		ContentLength: 10,
		Body:          io.NopCloser(failingReader{}),
	})

	buf, err := s.Perform(context.Background(), BuildRequest("http://x/", "tides"))
	assert.Nil(t, buf)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "read", terr.Op)
	assert.False(t, s.Inited())
	assert.True(t, c.closed)
	assert.Equal(t, int64(0), s.Allocator().Outstanding())
}

func TestHTTPClient_RejectsForeignHost(t *testing.T) {
	c, err := NewHTTPClient("http://spotcheck.example/", time.Second)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "http://elsewhere.example/tides")
	assert.Error(t, err)
}

func TestNewHTTPClient_InvalidBase(t *testing.T) {
	_, err := NewHTTPClient("spotcheck", time.Second)
	assert.Error(t, err)
}

func TestTCPAssociator(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p, err := NewTCPAssociator("http://"+ln.Addr().String()+"/", 2, time.Second)
	require.NoError(t, err)
	assert.NoError(t, p.Associate(context.Background()))
}

func TestTCPAssociator_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p, err := NewTCPAssociator("http://"+addr+"/", 3, 100*time.Millisecond)
	require.NoError(t, err)
	p.Backoff = time.Millisecond
	beats := 0
	p.Heartbeat = func() { beats++ }

	err = p.Associate(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, beats, "liveness is reported on every attempt")
}

func TestNewTCPAssociator_DefaultPorts(t *testing.T) {
	p, err := NewTCPAssociator("http://spotcheck.example/", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "spotcheck.example:80", p.Addr)
	assert.Equal(t, DefaultConnectRetries, p.Retries)

	p, err = NewTCPAssociator("https://spotcheck.example/", 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "spotcheck.example:443", p.Addr)
}

func TestAllocator(t *testing.T) {
	a := NewAllocator(16)

	_, err := a.Alloc(17)
	assert.Error(t, err)
	assert.Equal(t, int64(0), a.Allocated())

	b, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Outstanding())

	b.Release()
	b.Release()
	assert.True(t, b.Released())
	assert.Nil(t, b.Bytes())
	assert.Equal(t, int64(0), a.Outstanding())

	var nilBuf *Buffer
	nilBuf.Release()
	assert.True(t, nilBuf.Released())
}

package display

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/itohio/spotcheck/pkg/framing"
	"github.com/rs/zerolog/log"
)

// Mock simulates a display controller for testing and development. It
// parses every flushed frame the way the controller does and optionally
// echoes the raw bytes to a writer.
type Mock struct {
	echo io.Writer

	mu        sync.RWMutex
	pending   bytes.Buffer
	lists     [][]string
	connected bool

	// FailWrites makes every Write fail, simulating a dead link.
	FailWrites bool
}

// NewMock creates a mocked display. echo may be nil.
func NewMock(echo io.Writer) *Mock {
	return &Mock{echo: echo}
}

// Connect simulates connecting to the controller.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Close stops the mocked display.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.pending.Reset()
	return nil
}

// Write buffers p until the next Flush.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}
	if m.FailWrites {
		return 0, io.ErrClosedPipe
	}
	return m.pending.Write(p)
}

// Flush parses the buffered frames and records each list.
func (m *Mock) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	raw := m.pending.Bytes()
	if m.echo != nil {
		if _, err := m.echo.Write(raw); err != nil {
			return fmt.Errorf("failed to echo frame: %w", err)
		}
	}

	r := framing.NewReader(bytes.NewReader(raw))
	for {
		list, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			m.pending.Reset()
			return fmt.Errorf("malformed frame: %w", err)
		}
		log.Debug().Int("entries", len(list)).Msg("mock display received list")
		m.lists = append(m.lists, list)
	}
	m.pending.Reset()
	return nil
}

// IsConnected returns whether the mock is connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Lists returns every list received so far.
func (m *Mock) Lists() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]string, len(m.lists))
	copy(out, m.lists)
	return out
}

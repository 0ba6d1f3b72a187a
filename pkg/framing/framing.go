// Package framing implements the line protocol used to send a list of
// strings to the display controller.
//
//	START_LIST%
//	<text>$
//	...
//	END_LIST%
//
// Element text must not contain the terminator or a newline. This is not
// checked.
package framing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	StartList  = "START_LIST%"
	EndList    = "END_LIST%"
	Terminator = '$'
)

type flusher interface {
	Flush() error
}

// Transmit writes one framed list to w and returns the number of elements
// sent. If w can be flushed it is flushed after the end sentinel.
func Transmit(w io.Writer, list []string) (int, error) {
	if _, err := io.WriteString(w, StartList+"\n"); err != nil {
		return 0, fmt.Errorf("failed to write start of list: %w", err)
	}

	sent := 0
	for _, s := range list {
		if _, err := io.WriteString(w, s+string(Terminator)+"\n"); err != nil {
			return sent, fmt.Errorf("failed to write element %d: %w", sent, err)
		}
		sent++
	}

	if _, err := io.WriteString(w, EndList+"\n"); err != nil {
		return sent, fmt.Errorf("failed to write end of list: %w", err)
	}

	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return sent, fmt.Errorf("failed to flush: %w", err)
		}
	}
	return sent, nil
}

// ErrUnterminated is returned when the stream ends inside a list.
var ErrUnterminated = errors.New("framing: stream ended before end of list")

// Reader parses framed lists, the way the display controller does. Lines
// outside a START/END pair are skipped.
type Reader struct {
	s *bufio.Scanner
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{s: bufio.NewScanner(r)}
}

// Next returns the next complete list. It returns io.EOF when the stream
// ends between lists.
func (r *Reader) Next() ([]string, error) {
	inList := false
	var list []string

	for r.s.Scan() {
		line := strings.TrimRight(r.s.Text(), "\r")
		switch {
		case line == StartList:
			// A new start discards a list that never ended.
			inList = true
			list = []string{}
		case line == EndList:
			if inList {
				return list, nil
			}
		case inList:
			list = append(list, strings.TrimSuffix(line, string(Terminator)))
		}
	}

	if err := r.s.Err(); err != nil {
		return nil, err
	}
	if inList {
		return nil, ErrUnterminated
	}
	return nil, io.EOF
}

// Package sse reads Server-Sent Events as emitted by chat completion
// endpoints. Only the fields those endpoints use are interpreted: "event"
// and "data". Everything else ("id", "retry", comments) is skipped.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Tool-call argument fragments are
// small, but some providers send a whole buffered response in one event.
const maxLineSize = 1 << 20

// Event is one dispatched SSE event.
type Event struct {
	// Name is the value of the "event:" field, empty for the default type.
	Name string
	// Data joins all "data:" lines of the event with "\n".
	Data string
}

// Scanner splits an event stream into events. It is single-pass and
// not safe for concurrent use.
type Scanner struct {
	lines *bufio.Scanner
	event Event
	err   error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{lines: lines}
}

// Next advances to the next event and reports whether one is available.
// A trailing event that is not followed by a blank line is still
// dispatched when the reader ends.
func (s *Scanner) Next() bool {
	var (
		name    string
		data    strings.Builder
		hasData bool
	)
	for s.lines.Scan() {
		line := strings.TrimSuffix(s.lines.Text(), "\r")
		if line == "" {
			if hasData {
				s.event = Event{Name: name, Data: data.String()}
				return true
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}

	s.err = s.lines.Err()
	if s.err == nil && hasData {
		s.event = Event{Name: name, Data: data.String()}
		return true
	}
	return false
}

// Event returns the event produced by the last successful Next.
func (s *Scanner) Event() Event {
	return s.event
}

// Err returns the read error that stopped the scanner, or nil when the
// reader ended cleanly. A clean end says nothing about whether the
// producer finished its response; callers check for their own terminal
// marker.
func (s *Scanner) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

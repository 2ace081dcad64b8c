// Package sse reads server-sent-event style text streams: "event:" lines
// set the type of the next record, "data:" lines carry its payload, blank
// lines separate records.
package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"

	// Done is the sentinel payload marking the logical end of a stream.
	Done = "[DONE]"
)

// Event is one data record of the stream. Type is empty for unmarked
// records.
type Event struct {
	Type string
	Data string
}

// IsDone reports whether the record carries the stream-end sentinel.
func (e Event) IsDone() bool {
	return e.Data == Done
}

type Scanner struct {
	scanner   *bufio.Scanner
	eventType string
}

func NewScanner(r io.Reader) *Scanner {
	scanner := bufio.NewScanner(r)
	// Single chunks can be large; grow the line buffer well past the default.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{scanner: scanner}
}

// Next returns the next data record. A trailing partial line at the end of
// the underlying stream is handled like any complete line. ok is false once
// the stream is exhausted.
func (s *Scanner) Next() (event Event, ok bool) {
	for s.scanner.Scan() {
		line := s.scanner.Text()

		switch {
		case line == "":
			// Record separator resets the declared event type.
			s.eventType = ""
		case strings.HasPrefix(line, ":"):
			// Comment line.
		case strings.HasPrefix(line, eventPrefix):
			s.eventType = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
		case strings.HasPrefix(line, dataPrefix):
			data := strings.TrimPrefix(line, dataPrefix)
			data = strings.TrimPrefix(data, " ")
			return Event{Type: s.eventType, Data: data}, true
		}
	}
	return Event{}, false
}

// Err returns the first non-EOF error hit by the underlying reader.
func (s *Scanner) Err() error {
	return s.scanner.Err()
}

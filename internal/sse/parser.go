// Package sse implements an incremental parser for the portal's
// server-push telemetry stream.
//
// The parser is transport-agnostic: it is fed raw byte chunks split at
// arbitrary boundaries and emits the same ordered event sequence no
// matter where the boundaries fall. The networking layer is a thin
// adapter that reads from a response body and calls Feed.
package sse

import (
	"encoding/json"
	"strings"
)

// Type discriminates stream events.
type Type int

const (
	// Telemetry is a decoded telemetry record frame.
	Telemetry Type = iota
	// Error is a server-reported stream error frame.
	Error
	// Heartbeat is a liveness comment frame.
	Heartbeat
)

// TelemetryRecord is the payload of a telemetry frame.
type TelemetryRecord struct {
	ID               int64          `json:"id"`
	ProjectID        string         `json:"project_id,omitempty"`
	SensorID         string         `json:"sensor_id"`
	Timestamp        string         `json:"timestamp"`
	RawValue         float64        `json:"raw_value"`
	PhysicalValue    *float64       `json:"physical_value"`
	RunID            string         `json:"run_id,omitempty"`
	CaptureSessionID string         `json:"capture_session_id,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// Event is one parsed stream event.
//
// For Telemetry events, Record holds the decoded payload; when decoding
// fails the frame degrades to a raw passthrough with Record nil and Data
// carrying the undecoded text. For Error events, Data is the message.
type Event struct {
	Type   Type
	Record *TelemetryRecord
	Data   string
}

// Parser accumulates decoded text until complete frames (terminated by a
// blank line) are available. It is restartable via Reset.
type Parser struct {
	buf       string
	pendingCR bool
}

// Feed appends a chunk to the internal buffer and returns all events for
// frames completed by it, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	s := string(chunk)
	if p.pendingCR {
		s = "\r" + s
		p.pendingCR = false
	}
	// Hold back a trailing CR: it may be the first half of a CRLF split
	// across chunk boundaries.
	if strings.HasSuffix(s, "\r") {
		s = s[:len(s)-1]
		p.pendingCR = true
	}
	p.buf += strings.ReplaceAll(s, "\r\n", "\n")

	var events []Event
	for {
		idx := strings.Index(p.buf, "\n\n")
		if idx < 0 {
			break
		}
		frame := p.buf[:idx]
		p.buf = p.buf[idx+2:]
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Reset discards buffered bytes so the parser can be reused for a new
// connection. No partial frame is flushed.
func (p *Parser) Reset() {
	p.buf = ""
	p.pendingCR = false
}

// parseFrame classifies one complete frame. Frames that are neither
// comments nor recognized events are silently dropped.
func parseFrame(frame string) (Event, bool) {
	lines := strings.Split(frame, "\n")

	if len(lines) == 1 && strings.HasPrefix(lines[0], ":") {
		return Event{Type: Heartbeat}, true
	}

	var event string
	var dataLines []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line[len("data:"):], " "))
		}
	}
	data := strings.Join(dataLines, "\n")

	switch event {
	case "telemetry":
		var rec TelemetryRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			// Degrade to a raw passthrough rather than dropping the frame.
			return Event{Type: Telemetry, Data: data}, true
		}
		return Event{Type: Telemetry, Record: &rec, Data: data}, true
	case "error":
		return Event{Type: Error, Data: data}, true
	}
	return Event{}, false
}

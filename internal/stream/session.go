// Package stream owns one live connection to the portal's telemetry
// push stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/sse"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// ErrBusy is returned when Run is called while a session is already
// connecting or connected. Callers must cancel the previous run first.
var ErrBusy = errors.New("stream session already active")

// CursorSink receives stream cursor advances. Implementations must only
// move the cursor forward (state.Store satisfies this).
type CursorSink interface {
	AdvanceCursor(sensorKey string, id int64) bool
}

// Recorder archives received telemetry records. Archive failures are
// logged, never fatal to the session.
type Recorder interface {
	RecordEvent(sensorKey string, rec *sse.TelemetryRecord) error
}

// Options configures a Session.
type Options struct {
	Client  httputil.HTTPClient
	BaseURL string
	// AuthBaseURL hosts /auth/refresh; defaults to BaseURL.
	AuthBaseURL string

	SensorKey string
	SensorID  string
	Token     string

	// SinceID resumes the stream strictly after this record id.
	SinceID int64
	// SinceTS is the optional timestamp half of a history handoff cursor.
	SinceTS time.Time

	// BufferCap bounds the live event ring buffer (default 200).
	BufferCap int

	Cursors  CursorSink
	Recorder Recorder

	// Cookies are the portal session cookies sent with the one-shot
	// refresh call; a csrf_token cookie also supplies the CSRF header.
	Cookies []*http.Cookie
}

// Session drives one streaming connection: it opens the request, feeds
// chunks to the frame parser, performs the single reconnect-after-refresh
// retry on 401, and keeps a bounded buffer of received telemetry.
type Session struct {
	opts   Options
	parser sse.Parser

	mu          sync.Mutex
	state       State
	lastErr     string
	events      []sse.Event
	received    int64
	heartbeatAt time.Time
}

// New creates an idle session.
func New(opts Options) *Session {
	if opts.BufferCap <= 0 {
		opts.BufferCap = 200
	}
	if opts.AuthBaseURL == "" {
		opts.AuthBaseURL = opts.BaseURL
	}
	return &Session{opts: opts}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent visible error message, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Received returns the number of telemetry events seen this session.
func (s *Session) Received() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

// LastHeartbeat returns the time of the last liveness frame.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeatAt
}

// Events returns a snapshot of the buffered telemetry events, oldest
// first.
func (s *Session) Events() []sse.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sse.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Run opens the stream and consumes it until the context is cancelled or
// the server ends the stream. It returns ErrBusy if a run is already in
// flight. Disconnection always transitions back to idle; the session
// never re-opens the stream on its own.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateConnecting
	s.lastErr = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		// A failed connect keeps the visible error state; any run that
		// reached the stream returns to idle and never re-opens itself.
		if s.state != StateError {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()

	resp, err := s.connect(ctx)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	defer resp.Body.Close()

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()
	s.parser.Reset()

	buf := make([]byte, 4096)
	for {
		// Cancellation is cooperative: checked between read iterations,
		// and a cancelled session flushes no partial frame.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			for _, ev := range s.parser.Feed(buf[:n]) {
				s.handle(ev)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.mu.Lock()
			s.lastErr = rerr.Error()
			s.mu.Unlock()
			return fmt.Errorf("stream read failed: %w", rerr)
		}
	}
}

// connect issues the streaming GET, performing at most one
// refresh-and-retry cycle when the initial response is a 401.
func (s *Session) connect(ctx context.Context) (*http.Response, error) {
	resp, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if rerr := s.refresh(ctx); rerr != nil {
			return nil, fmt.Errorf("stream unauthorized and refresh failed: %w", rerr)
		}
		// One retry after a successful refresh; never a loop.
		resp, err = s.open(ctx)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed with HTTP %d", status)
	}
	return resp, nil
}

func (s *Session) open(ctx context.Context) (*http.Response, error) {
	q := url.Values{}
	q.Set("sensor_id", s.opts.SensorID)
	if s.opts.SinceID > 0 {
		q.Set("since_id", strconv.FormatInt(s.opts.SinceID, 10))
	}
	if !s.opts.SinceTS.IsZero() {
		q.Set("since_ts", s.opts.SinceTS.UTC().Format(time.RFC3339Nano))
	}

	u := s.opts.BaseURL + "/api/v1/telemetry/stream?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return s.opts.Client.Do(req)
}

// refresh performs the single session-refresh call, carrying the CSRF
// token derived from the csrf_token cookie when present.
func (s *Session) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.AuthBaseURL+"/auth/refresh", nil)
	if err != nil {
		return fmt.Errorf("failed to build refresh request: %w", err)
	}
	for _, c := range s.opts.Cookies {
		req.AddCookie(c)
		if c.Name == "csrf_token" && c.Value != "" {
			req.Header.Set("X-CSRF-Token", c.Value)
		}
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refresh rejected with HTTP %d", resp.StatusCode)
	}
	return nil
}

// handle applies one parsed event to the session.
func (s *Session) handle(ev sse.Event) {
	switch ev.Type {
	case sse.Heartbeat:
		// Liveness only; never buffered.
		s.mu.Lock()
		s.heartbeatAt = time.Now()
		s.mu.Unlock()

	case sse.Error:
		// Visible error state, but the session loop keeps running.
		s.mu.Lock()
		s.lastErr = ev.Data
		s.mu.Unlock()
		log.Printf("stream error from server (sensor %s): %s", s.opts.SensorKey, ev.Data)

	case sse.Telemetry:
		s.mu.Lock()
		s.received++
		s.events = append(s.events, ev)
		if len(s.events) > s.opts.BufferCap {
			// Drop oldest once the cap is exceeded.
			s.events = s.events[len(s.events)-s.opts.BufferCap:]
		}
		s.mu.Unlock()

		if ev.Record != nil {
			if ev.Record.ID > 0 && s.opts.Cursors != nil {
				s.opts.Cursors.AdvanceCursor(s.opts.SensorKey, ev.Record.ID)
			}
			if s.opts.Recorder != nil {
				if err := s.opts.Recorder.RecordEvent(s.opts.SensorKey, ev.Record); err != nil {
					log.Printf("failed to archive telemetry event %d: %v", ev.Record.ID, err)
				}
			}
		}
	}
}

func (s *Session) fail(msg string) {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = msg
	s.mu.Unlock()
}

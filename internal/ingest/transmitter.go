// Package ingest posts synthetic reading batches to the portal's
// telemetry ingest boundary.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/simulate"
	"github.com/banshee-data/sensor.bench/internal/state"
)

// wireReading is the ingest request representation of one reading.
type wireReading struct {
	Timestamp     string         `json:"timestamp"`
	RawValue      float64        `json:"raw_value"`
	PhysicalValue float64        `json:"physical_value"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// wireBatch is the ingest request body.
type wireBatch struct {
	SensorID         string         `json:"sensor_id"`
	RunID            string         `json:"run_id,omitempty"`
	CaptureSessionID string         `json:"capture_session_id,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"`
	Readings         []wireReading  `json:"readings"`
}

// acceptedResponse is the ingest success body; accepted may be absent on
// older backends.
type acceptedResponse struct {
	Accepted *int `json:"accepted"`
}

// Outcome classifies one send: accepted (2xx), rejected (non-2xx, Status
// retained for display), or network failure (Err set, no status).
type Outcome struct {
	Accepted int
	Status   int
	Err      error
}

// Rejected reports whether the server answered with a non-2xx status.
func (o Outcome) Rejected() bool { return o.Err == nil && (o.Status < 200 || o.Status >= 300) }

// Stats accumulates per-sensor transmission counters.
type Stats struct {
	Sent       int64  `json:"sent"`
	Accepted   int64  `json:"accepted"`
	Errors     int64  `json:"errors"`
	LastStatus int    `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Transmitter sends reading batches with the sensor's bearer credential.
// Each send is independent: there are no automatic retries, and a failed
// tick never blocks subsequent ticks for the same or other sensors.
type Transmitter struct {
	client  httputil.HTTPClient
	baseURL string

	mu    sync.Mutex
	stats map[string]*Stats
}

// NewTransmitter creates a transmitter posting to baseURL.
func NewTransmitter(client httputil.HTTPClient, baseURL string) *Transmitter {
	return &Transmitter{
		client:  client,
		baseURL: baseURL,
		stats:   make(map[string]*Stats),
	}
}

// Send posts one batch for the given sensor and records the outcome in
// the sensor's counters.
func (t *Transmitter) Send(ctx context.Context, cfg state.SensorConfig, readings []simulate.Reading, s simulate.Settings) Outcome {
	batch := wireBatch{
		SensorID:         cfg.SensorID,
		RunID:            cfg.RunID,
		CaptureSessionID: cfg.CaptureSessionID,
		Meta: map[string]any{
			"source":    "sensor.bench",
			"scenario":  s.Scenario,
			"waveform":  s.Waveform,
			"rate_hz":   s.RateHz,
			"seed":      s.Seed,
			"amplitude": s.Amplitude,
		},
		Readings: make([]wireReading, 0, len(readings)),
	}
	for _, r := range readings {
		batch.Readings = append(batch.Readings, wireReading{
			Timestamp:     r.Timestamp.UTC().Format(time.RFC3339Nano),
			RawValue:      r.RawValue,
			PhysicalValue: r.PhysicalValue,
			Meta:          map[string]any{"seq": r.Seq},
		})
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return t.record(cfg.Key, Outcome{Err: fmt.Errorf("failed to encode batch: %w", err)}, len(readings))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/telemetry", bytes.NewReader(body))
	if err != nil {
		return t.record(cfg.Key, Outcome{Err: fmt.Errorf("failed to build request: %w", err)}, len(readings))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.SensorToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return t.record(cfg.Key, Outcome{Err: err}, len(readings))
	}
	defer resp.Body.Close()

	out := Outcome{Status: resp.StatusCode}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Accepted = len(readings)
		var acc acceptedResponse
		if data, rerr := io.ReadAll(resp.Body); rerr == nil {
			if jerr := json.Unmarshal(data, &acc); jerr == nil && acc.Accepted != nil {
				out.Accepted = *acc.Accepted
			}
		}
	}
	return t.record(cfg.Key, out, len(readings))
}

// record folds an outcome into the sensor's counters.
func (t *Transmitter) record(sensorKey string, out Outcome, sent int) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.stats[sensorKey]
	if !ok {
		st = &Stats{}
		t.stats[sensorKey] = st
	}
	st.Sent += int64(sent)
	switch {
	case out.Err != nil:
		st.Errors++
		st.LastStatus = 0
		st.LastError = out.Err.Error()
	case out.Rejected():
		st.Errors++
		st.LastStatus = out.Status
		st.LastError = fmt.Sprintf("rejected with HTTP %d", out.Status)
	default:
		st.Accepted += int64(out.Accepted)
		st.LastStatus = out.Status
		st.LastError = ""
	}
	return out
}

// Stats returns a copy of one sensor's counters.
func (t *Transmitter) Stats(sensorKey string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.stats[sensorKey]; ok {
		return *st
	}
	return Stats{}
}

// AllStats returns a copy of every sensor's counters.
func (t *Transmitter) AllStats() map[string]Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Stats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}

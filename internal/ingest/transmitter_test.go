package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/banshee-data/sensor.bench/internal/httputil"
	"github.com/banshee-data/sensor.bench/internal/simulate"
	"github.com/banshee-data/sensor.bench/internal/state"
)

func benchSensor() state.SensorConfig {
	return state.SensorConfig{
		Key:              "k1",
		Label:            "bench",
		SensorID:         "0a8b6f3e-23a4-4c8e-9f6a-0f2d6f1a9b3c",
		SensorToken:      "tok-abc",
		CaptureSessionID: "9d1b54a0-1111-4222-8333-444455556666",
		Settings:         simulate.DefaultSettings(),
	}
}

func sampleReadings(n int) []simulate.Reading {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	out := make([]simulate.Reading, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, simulate.Reading{
			Timestamp:     base.Add(time.Duration(i) * 100 * time.Millisecond),
			RawValue:      20 + float64(i),
			PhysicalValue: 20 + float64(i),
			Seq:           int64(i),
		})
	}
	return out
}

func TestSendAcceptedUsesServerCount(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(202, `{"status":"accepted","accepted":4}`)
	tx := NewTransmitter(mock, "http://portal")

	out := tx.Send(context.Background(), benchSensor(), sampleReadings(5), simulate.DefaultSettings())
	if out.Err != nil || out.Rejected() {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Accepted != 4 {
		t.Errorf("accepted = %d, want server-reported 4", out.Accepted)
	}

	st := tx.Stats("k1")
	if st.Sent != 5 || st.Accepted != 4 || st.Errors != 0 {
		t.Errorf("stats = %+v", st)
	}

	req := mock.GetRequest(0)
	if req.URL.String() != "http://portal/api/v1/telemetry" {
		t.Errorf("posted to %s", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-abc" {
		t.Errorf("auth header = %q", got)
	}
}

func TestSendAcceptedFallsBackToBatchLength(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(202, `{"status":"accepted"}`)
	tx := NewTransmitter(mock, "http://portal")

	out := tx.Send(context.Background(), benchSensor(), sampleReadings(3), simulate.DefaultSettings())
	if out.Accepted != 3 {
		t.Errorf("accepted = %d, want batch length 3", out.Accepted)
	}
}

func TestSendRejectedKeepsStatus(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(422, `{"error":"scope mismatch"}`)
	tx := NewTransmitter(mock, "http://portal")

	out := tx.Send(context.Background(), benchSensor(), sampleReadings(2), simulate.DefaultSettings())
	if !out.Rejected() || out.Status != 422 {
		t.Fatalf("expected rejection with status 422, got %+v", out)
	}

	st := tx.Stats("k1")
	if st.Errors != 1 || st.LastStatus != 422 {
		t.Errorf("stats = %+v", st)
	}
	if st.Accepted != 0 {
		t.Errorf("rejected batch counted as accepted: %+v", st)
	}
}

func TestSendNetworkFailure(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))
	tx := NewTransmitter(mock, "http://portal")

	out := tx.Send(context.Background(), benchSensor(), sampleReadings(2), simulate.DefaultSettings())
	if out.Err == nil {
		t.Fatal("expected transport error")
	}
	if out.Status != 0 {
		t.Errorf("network failure should carry no status, got %d", out.Status)
	}

	st := tx.Stats("k1")
	if st.Errors != 1 || st.LastStatus != 0 || st.LastError == "" {
		t.Errorf("stats = %+v", st)
	}
}

func TestSendFailureDoesNotBlockNextTick(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))
	mock.AddResponse(202, `{"accepted":2}`)
	tx := NewTransmitter(mock, "http://portal")

	first := tx.Send(context.Background(), benchSensor(), sampleReadings(2), simulate.DefaultSettings())
	if first.Err == nil {
		t.Fatal("expected first send to fail")
	}
	second := tx.Send(context.Background(), benchSensor(), sampleReadings(2), simulate.DefaultSettings())
	if second.Err != nil || second.Accepted != 2 {
		t.Fatalf("second send should succeed independently: %+v", second)
	}

	st := tx.Stats("k1")
	if st.Sent != 4 || st.Accepted != 2 || st.Errors != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSendWireFormat(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(202, `{"accepted":1}`)
	tx := NewTransmitter(mock, "http://portal")

	cfg := benchSensor()
	s := simulate.DefaultSettings()
	tx.Send(context.Background(), cfg, sampleReadings(1), s)

	req := mock.GetRequest(0)
	data, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("failed to read request body: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["sensor_id"] != cfg.SensorID {
		t.Errorf("sensor_id = %v", body["sensor_id"])
	}
	if body["capture_session_id"] != cfg.CaptureSessionID {
		t.Errorf("capture_session_id = %v", body["capture_session_id"])
	}
	if _, present := body["run_id"]; present {
		t.Error("empty run_id should be omitted")
	}

	readings, ok := body["readings"].([]any)
	if !ok || len(readings) != 1 {
		t.Fatalf("readings = %v", body["readings"])
	}
	first := readings[0].(map[string]any)
	if first["timestamp"] != "2026-08-30T12:00:00Z" {
		t.Errorf("timestamp = %v", first["timestamp"])
	}
	meta := first["meta"].(map[string]any)
	if meta["seq"] != float64(0) {
		t.Errorf("meta.seq = %v", meta["seq"])
	}

	batchMeta := body["meta"].(map[string]any)
	if batchMeta["scenario"] != string(s.Scenario) {
		t.Errorf("batch meta scenario = %v", batchMeta["scenario"])
	}
}

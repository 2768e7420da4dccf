package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sensor.bench/internal/simulate"
)

func TestMigrateV1FansOutSharedSettings(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"settings": {"scenario": "bursts", "rate_hz": 25, "seed": 7, "waveform": "saw", "amplitude": 3, "period_seconds": 2},
		"sensors": [
			{"key": "k1", "label": "one", "sensor_id": "", "sensor_token": "", "stream_cursor": 5},
			{"key": "k2", "label": "two", "sensor_id": "", "sensor_token": "", "stream_cursor": 0}
		],
		"selected_sensor_key": "k2"
	}`)

	st, err := decodePersistedState(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if st.Version != 2 {
		t.Errorf("version = %d, want 2", st.Version)
	}
	if len(st.Sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(st.Sensors))
	}
	if st.SelectedSensorKey != "k2" {
		t.Errorf("selected = %q, want k2", st.SelectedSensorKey)
	}

	// Each entry carries an initially identical, independent settings copy.
	if diff := cmp.Diff(st.Sensors[0].Settings, st.Sensors[1].Settings); diff != "" {
		t.Errorf("fanned-out settings differ (-first +second):\n%s", diff)
	}
	if st.Sensors[0].Settings.Scenario != simulate.ScenarioBursts {
		t.Errorf("scenario = %q, want bursts", st.Sensors[0].Settings.Scenario)
	}
	if st.Sensors[0].StreamCursor != 5 {
		t.Errorf("stream cursor lost in migration: %d", st.Sensors[0].StreamCursor)
	}

	// Mutating one copy must not touch the other.
	st.Sensors[0].Settings.RateHz = 99
	if st.Sensors[1].Settings.RateHz == 99 {
		t.Error("settings copies are aliased across sensors")
	}
}

func TestDecodeV2Passthrough(t *testing.T) {
	data := []byte(`{
		"version": 2,
		"sensors": [{"key": "k1", "label": "one", "sensor_id": "", "sensor_token": "", "stream_cursor": 0,
			"settings": {"scenario": "steady", "rate_hz": 10, "waveform": "sine"}}],
		"selected_sensor_key": "k1"
	}`)
	st, err := decodePersistedState(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st.Sensors[0].Key != "k1" || st.SelectedSensorKey != "k1" {
		t.Errorf("unexpected decode result: %+v", st)
	}
}

func TestDecodeCorrectsDanglingSelectedKey(t *testing.T) {
	data := []byte(`{
		"version": 2,
		"sensors": [{"key": "k1", "label": "one", "settings": {"scenario": "steady"}}],
		"selected_sensor_key": "gone"
	}`)
	st, err := decodePersistedState(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st.SelectedSensorKey != "k1" {
		t.Errorf("dangling selected key not corrected: %q", st.SelectedSensorKey)
	}
}

func TestDecodeRejectsUnknownShapes(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"unknown version", `{"version": 3, "sensors": [{"key": "k"}]}`},
		{"no sensors", `{"version": 2, "sensors": []}`},
		{"not json", `sensors=1`},
		{"wrong types", `{"version": "two"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodePersistedState([]byte(tc.data)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

package state

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/sensor.bench/internal/simulate"
)

// CurrentVersion is the persisted envelope version this build writes.
const CurrentVersion = 2

// persistedState is the version-2 envelope: settings embedded per sensor.
type persistedState struct {
	Version           int            `json:"version"`
	Sensors           []SensorConfig `json:"sensors"`
	SelectedSensorKey string         `json:"selected_sensor_key"`
}

// persistedStateV1 is the legacy envelope with one settings object shared
// by every sensor.
type persistedStateV1 struct {
	Version           int               `json:"version"`
	Settings          simulate.Settings `json:"settings"`
	Sensors           []sensorConfigV1  `json:"sensors"`
	SelectedSensorKey string            `json:"selected_sensor_key"`
}

type sensorConfigV1 struct {
	Key              string `json:"key"`
	Label            string `json:"label"`
	SensorID         string `json:"sensor_id"`
	SensorToken      string `json:"sensor_token"`
	RunID            string `json:"run_id,omitempty"`
	CaptureSessionID string `json:"capture_session_id,omitempty"`
	StreamCursor     int64  `json:"stream_cursor"`
}

// decodePersistedState decodes any recognized envelope version and applies
// migrations in sequence until reaching CurrentVersion. Unrecognized
// shapes are rejected so the caller can reset to defaults.
func decodePersistedState(data []byte) (persistedState, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return persistedState{}, fmt.Errorf("unreadable envelope: %w", err)
	}

	var st persistedState
	switch probe.Version {
	case 1:
		var v1 persistedStateV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return persistedState{}, fmt.Errorf("invalid v1 envelope: %w", err)
		}
		st = migrateV1(v1)
	case 2:
		if err := json.Unmarshal(data, &st); err != nil {
			return persistedState{}, fmt.Errorf("invalid v2 envelope: %w", err)
		}
	default:
		return persistedState{}, fmt.Errorf("unknown envelope version %d", probe.Version)
	}

	if len(st.Sensors) == 0 {
		return persistedState{}, fmt.Errorf("envelope has no sensors")
	}
	normalizeSelected(&st)
	return st, nil
}

// migrateV1 fans the single shared settings object out to every sensor
// entry, each receiving an independent copy.
func migrateV1(v1 persistedStateV1) persistedState {
	st := persistedState{
		Version:           2,
		Sensors:           make([]SensorConfig, 0, len(v1.Sensors)),
		SelectedSensorKey: v1.SelectedSensorKey,
	}
	for _, c := range v1.Sensors {
		st.Sensors = append(st.Sensors, SensorConfig{
			Key:              c.Key,
			Label:            c.Label,
			SensorID:         c.SensorID,
			SensorToken:      c.SensorToken,
			RunID:            c.RunID,
			CaptureSessionID: c.CaptureSessionID,
			StreamCursor:     c.StreamCursor,
			Settings:         v1.Settings, // value copy, independent per sensor
		})
	}
	return st
}

// normalizeSelected corrects a dangling selected key to the first entry.
func normalizeSelected(st *persistedState) {
	for _, c := range st.Sensors {
		if c.Key == st.SelectedSensorKey {
			return
		}
	}
	st.SelectedSensorKey = st.Sensors[0].Key
}

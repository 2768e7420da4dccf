// Package state persists multi-sensor workbench configuration and owns
// the per-sensor runtime counters that never leave memory.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/sensor.bench/internal/simulate"
)

// SensorConfig is one simulated sensor. Key is a stable opaque local
// identity; SensorID and SensorToken are the server-side provisioned
// identity and may be blank until the sensor is registered.
type SensorConfig struct {
	Key              string            `json:"key"`
	Label            string            `json:"label"`
	SensorID         string            `json:"sensor_id"`
	SensorToken      string            `json:"sensor_token"`
	RunID            string            `json:"run_id,omitempty"`
	CaptureSessionID string            `json:"capture_session_id,omitempty"`
	StreamCursor     int64             `json:"stream_cursor"`
	Settings         simulate.Settings `json:"settings"`
}

// Ready reports whether the sensor can talk to the portal: both
// credentials present and the sensor id UUID-shaped.
func (c SensorConfig) Ready() bool {
	if c.SensorToken == "" || c.SensorID == "" {
		return false
	}
	_, err := uuid.Parse(c.SensorID)
	return err == nil
}

// Store is the versioned, migratable sensor-state store. Configuration is
// saved to a JSON envelope on disk; runtime counters (sequence, last
// timestamp, RNG state) live only in the runtime map and reset on reload.
type Store struct {
	mu       sync.Mutex
	path     string
	sensors  []SensorConfig
	selected string
	runtime  map[string]*simulate.Runtime
}

// Open loads the store from path. Malformed or missing state is treated
// as absent: a single default sensor entry is created in its place.
func Open(path string) *Store {
	s := &Store{path: path, runtime: make(map[string]*simulate.Runtime)}

	data, err := os.ReadFile(path)
	if err == nil {
		if st, derr := decodePersistedState(data); derr == nil {
			s.sensors = st.Sensors
			s.selected = st.SelectedSensorKey
			return s
		} else {
			log.Printf("discarding unrecognized sensor state in %s: %v", path, derr)
		}
	}

	cfg := defaultSensor(1)
	s.sensors = []SensorConfig{cfg}
	s.selected = cfg.Key
	return s
}

func defaultSensor(n int) SensorConfig {
	return SensorConfig{
		Key:      uuid.NewString(),
		Label:    fmt.Sprintf("Sensor %d", n),
		Settings: simulate.DefaultSettings(),
	}
}

// Save writes the current configuration as a version-2 envelope.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	st := persistedState{
		Version:           CurrentVersion,
		Sensors:           s.sensors,
		SelectedSensorKey: s.selected,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sensor state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sensor state: %w", err)
	}
	return nil
}

// Sensors returns a copy of all sensor configurations.
func (s *Store) Sensors() []SensorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SensorConfig, len(s.sensors))
	copy(out, s.sensors)
	return out
}

// ReadySensors returns the sensors that are provisioned for transmission.
func (s *Store) ReadySensors() []SensorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SensorConfig
	for _, c := range s.sensors {
		if c.Ready() {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the sensor with the given key.
func (s *Store) Get(key string) (SensorConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sensors {
		if c.Key == key {
			return c, true
		}
	}
	return SensorConfig{}, false
}

// Selected returns the selected sensor key.
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Select marks the given sensor as selected.
func (s *Store) Select(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.sensors {
		if c.Key == key {
			s.selected = key
			return s.saveLocked()
		}
	}
	return fmt.Errorf("unknown sensor key %q", key)
}

// Add creates a new sensor entry with a fresh opaque key and default
// settings, and returns it.
func (s *Store) Add(label string) (SensorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := defaultSensor(len(s.sensors) + 1)
	if label != "" {
		cfg.Label = label
	}
	s.sensors = append(s.sensors, cfg)
	if s.selected == "" {
		s.selected = cfg.Key
	}
	return cfg, s.saveLocked()
}

// Remove deletes a sensor entry and purges its runtime counters so no
// sequence or RNG state survives onto a later sensor with a similar seed.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, c := range s.sensors {
		if c.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown sensor key %q", key)
	}
	s.sensors = append(s.sensors[:idx], s.sensors[idx+1:]...)
	delete(s.runtime, key)
	if s.selected == key {
		s.selected = ""
		if len(s.sensors) > 0 {
			s.selected = s.sensors[0].Key
		}
	}
	return s.saveLocked()
}

// Update replaces the configuration for an existing sensor, matched by key.
func (s *Store) Update(cfg SensorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.sensors {
		if c.Key == cfg.Key {
			s.sensors[i] = cfg
			return s.saveLocked()
		}
	}
	return fmt.Errorf("unknown sensor key %q", cfg.Key)
}

// Runtime returns the in-memory counters for a sensor, creating them on
// first use. Returns nil for unknown keys.
func (s *Store) Runtime(key string) *simulate.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtime[key]; ok {
		return rt
	}
	for _, c := range s.sensors {
		if c.Key == key {
			rt := &simulate.Runtime{}
			s.runtime[key] = rt
			return rt
		}
	}
	return nil
}

// AdvanceCursor moves a sensor's persisted stream cursor forward, but only
// if id is strictly greater than the stored value. Reports whether the
// cursor moved.
func (s *Store) AdvanceCursor(key string, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.sensors {
		if c.Key != key {
			continue
		}
		if id <= c.StreamCursor {
			return false
		}
		s.sensors[i].StreamCursor = id
		if err := s.saveLocked(); err != nil {
			log.Printf("failed to persist stream cursor for %s: %v", key, err)
		}
		return true
	}
	return false
}

// Package simulate generates deterministic synthetic sensor readings.
//
// The generator layers three pure pieces: a waveform evaluated at a point
// in time, a seeded noise source keyed per sensor, and a scenario clock
// that maps elapsed seconds to pacing decisions (dropouts, bursts). The
// batch builder composes them into timestamped readings.
package simulate

// Scenario names a synthetic failure/behavior mode used to exercise
// downstream ingestion robustness.
type Scenario string

const (
	ScenarioSteady     Scenario = "steady"
	ScenarioBursts     Scenario = "bursts"
	ScenarioDropout    Scenario = "dropout"
	ScenarioOutOfOrder Scenario = "out_of_order"
	ScenarioLateData   Scenario = "late_data"
)

// Waveform names a signal family.
type Waveform string

const (
	WaveformSine   Waveform = "sine"
	WaveformPulses Waveform = "pulses"
	WaveformSaw    Waveform = "saw"
)

// Settings holds per-sensor generation parameters.
type Settings struct {
	Scenario  Scenario `json:"scenario"`
	RateHz    float64  `json:"rate_hz"`
	BatchSize int      `json:"batch_size"`
	Seed      int64    `json:"seed"`

	BurstEverySeconds      int64 `json:"burst_every_seconds"`
	BurstDurationSeconds   int64 `json:"burst_duration_seconds"`
	DropoutEverySeconds    int64 `json:"dropout_every_seconds"`
	DropoutDurationSeconds int64 `json:"dropout_duration_seconds"`

	LateOffsetSeconds  float64 `json:"late_offset_seconds"`
	OutOfOrderFraction float64 `json:"out_of_order_fraction"`

	Waveform      Waveform `json:"waveform"`
	Amplitude     float64  `json:"amplitude"`
	PeriodSeconds float64  `json:"period_seconds"`
	DutyCycle     float64  `json:"duty_cycle"` // pulses only
}

// DefaultSettings returns the settings a freshly added sensor starts with.
func DefaultSettings() Settings {
	return Settings{
		Scenario:               ScenarioSteady,
		RateHz:                 10,
		BatchSize:              25,
		Seed:                   42,
		BurstEverySeconds:      10,
		BurstDurationSeconds:   2,
		DropoutEverySeconds:    10,
		DropoutDurationSeconds: 3,
		LateOffsetSeconds:      120,
		OutOfOrderFraction:     0.25,
		Waveform:               WaveformSine,
		Amplitude:              10,
		PeriodSeconds:          5,
		DutyCycle:              0.5,
	}
}

package simulate

import (
	"math"
	"sync"
	"time"
)

// Reading is one synthetic sample. Seq is strictly increasing per sensor
// regardless of how the containing batch is later reordered: array order
// models arrival, Seq models generation.
type Reading struct {
	Timestamp     time.Time
	RawValue      float64
	PhysicalValue float64
	Seq           int64
}

// Runtime holds the per-sensor generation counters that live only in
// memory. Entries are created on sensor add and purged on sensor remove;
// they intentionally reset on process restart while configuration persists.
//
// Build locks the runtime for its whole duration: a scheduled tick and a
// manual batch for the same sensor may run concurrently, and each reading
// must still get a unique, strictly increasing Seq.
type Runtime struct {
	mu            sync.Mutex
	Seq           int64
	LastTimestamp time.Time

	noise *NoiseSource
}

// Noise returns the sensor's noise source, re-keying only when the seed
// value changed so an unchanged seed preserves a continuous noise
// trajectory across batches.
func (rt *Runtime) Noise(seed int64, sensorKey string) *NoiseSource {
	if rt.noise == nil || rt.noise.Seed() != seed {
		rt.noise = NewNoiseSource(seed, sensorKey)
	}
	return rt.noise
}

// Builder composes waveform, noise, and scenario skew into reading batches.
type Builder struct {
	// Now is the time source; replaced in tests.
	Now func() time.Time
}

// NewBuilder returns a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

// rawOffset keeps raw values positive-biased so they read like an
// unsigned ADC output.
const rawOffset = 20.0

// Build produces count readings for one sensor and advances its runtime
// counters. When continuous (a scheduled tick), timestamps continue from
// the sensor's last emitted timestamp or now, whichever is later; a manual
// one-shot batch always anchors to now.
func (b *Builder) Build(rt *Runtime, sensorKey string, count int, effectiveRateHz float64, s Settings, continuous bool) []Reading {
	if count <= 0 {
		return nil
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	rate := clamp(effectiveRateHz, 1, MaxRateHz)
	step := time.Duration(1000 / rate * float64(time.Millisecond))

	base := b.Now()
	if continuous && !rt.LastTimestamp.IsZero() {
		if next := rt.LastTimestamp.Add(step); next.After(base) {
			base = next
		}
	}

	noise := rt.Noise(s.Seed, sensorKey)
	lateSkew := time.Duration(s.LateOffsetSeconds * float64(time.Second))

	readings := make([]Reading, 0, count)
	for i := 0; i < count; i++ {
		ts := base.Add(time.Duration(i) * step)
		t := float64(ts.UnixNano()) / 1e9

		raw := WaveValue(s.Waveform, t, s.Amplitude, s.PeriodSeconds, s.DutyCycle) +
			10*noise.Next() + rawOffset

		emitted := ts
		if s.Scenario == ScenarioLateData {
			// Skew the emitted timestamp only: late data models readings
			// whose wall-clock timestamp is older than their arrival time.
			emitted = ts.Add(-lateSkew)
		}

		readings = append(readings, Reading{
			Timestamp:     emitted,
			RawValue:      raw,
			PhysicalValue: raw, // 1:1 transform in the simulator
			Seq:           rt.Seq,
		})
		rt.Seq++
	}

	rt.LastTimestamp = base.Add(time.Duration(count-1) * step)

	if s.Scenario == ScenarioOutOfOrder {
		shufflePairs(readings, s.OutOfOrderFraction, noise)
	}

	return readings
}

// Preview builds a batch against a throwaway runtime so persisted counters
// and the live noise trajectory are left untouched. Used by the monitor's
// dry-run chart endpoints.
func (b *Builder) Preview(sensorKey string, count int, effectiveRateHz float64, s Settings) []Reading {
	return b.Build(&Runtime{}, sensorKey, count, effectiveRateHz, s, false)
}

// shufflePairs performs floor(len·fraction) random pairwise swaps. Each
// reading keeps its own Seq and Timestamp; only array position changes.
func shufflePairs(readings []Reading, fraction float64, noise *NoiseSource) {
	n := len(readings)
	if n < 2 {
		return
	}
	swaps := int(math.Floor(float64(n) * clamp(fraction, 0, 1)))
	for k := 0; k < swaps; k++ {
		i := noise.IntN(n)
		j := noise.IntN(n)
		readings[i], readings[j] = readings[j], readings[i]
	}
}

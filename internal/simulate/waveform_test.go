package simulate

import (
	"math"
	"testing"
)

func TestSineIsPeriodic(t *testing.T) {
	const period = 5.0
	for _, tt := range []float64{0, 0.3, 1.7, 2.5, 4.99, 123.456} {
		v1 := WaveValue(WaveformSine, tt, 10, period, 0)
		v2 := WaveValue(WaveformSine, tt+period, 10, period, 0)
		if math.Abs(v1-v2) > 1e-9 {
			t.Errorf("sine not periodic at t=%v: %v vs %v", tt, v1, v2)
		}
	}
}

func TestPulsesDutyCycle(t *testing.T) {
	// duty=0.5, period=10: on for the first half of each period.
	if got := WaveValue(WaveformPulses, 2, 7, 10, 0.5); got != 7 {
		t.Errorf("WaveValue(pulses, t=2) = %v, want 7", got)
	}
	if got := WaveValue(WaveformPulses, 7, 7, 10, 0.5); got != 0 {
		t.Errorf("WaveValue(pulses, t=7) = %v, want 0", got)
	}
}

func TestSawRampsAcrossPeriod(t *testing.T) {
	// Start of period is -A, midpoint is 0, approaching the end is +A.
	if got := WaveValue(WaveformSaw, 0, 4, 8, 0); got != -4 {
		t.Errorf("saw at phase 0 = %v, want -4", got)
	}
	if got := WaveValue(WaveformSaw, 4, 4, 8, 0); math.Abs(got) > 1e-9 {
		t.Errorf("saw at midpoint = %v, want 0", got)
	}
	if got := WaveValue(WaveformSaw, 7.9999, 4, 8, 0); got < 3.99 {
		t.Errorf("saw near period end = %v, want ≈4", got)
	}
}

func TestWaveValueClamps(t *testing.T) {
	// Zero period is floored, not a division by zero.
	if got := WaveValue(WaveformSine, 1, 10, 0, 0); math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("zero period produced %v", got)
	}

	// Amplitude clamps to [0, 1e6].
	if got := WaveValue(WaveformPulses, 0, 2_000_000, 10, 1); got != maxAmplitude {
		t.Errorf("amplitude not clamped: %v", got)
	}
	if got := WaveValue(WaveformPulses, 0, -5, 10, 1); got != 0 {
		t.Errorf("negative amplitude not clamped: %v", got)
	}

	// Duty cycle above 1 behaves as 1 (always on).
	if got := WaveValue(WaveformPulses, 9.99, 3, 10, 2); got != 3 {
		t.Errorf("duty>1 should be always-on, got %v", got)
	}
}

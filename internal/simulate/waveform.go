package simulate

import "math"

const (
	// minPeriodSeconds floors the waveform period to avoid division by zero.
	minPeriodSeconds = 1e-6
	// maxAmplitude bounds user-supplied amplitudes.
	maxAmplitude = 1_000_000
)

// WaveValue computes the pure signal value at tSeconds for the given
// waveform family.
//
//	sine:   amplitude * sin(2π·phase)
//	saw:    amplitude * (2·phase − 1), ramping -A to +A once per period
//	pulses: amplitude while phase < dutyCycle, else 0
func WaveValue(w Waveform, tSeconds, amplitude, periodSeconds, dutyCycle float64) float64 {
	period := math.Max(periodSeconds, minPeriodSeconds)
	amp := clamp(amplitude, 0, maxAmplitude)
	duty := clamp(dutyCycle, 0, 1)

	phase := math.Mod(tSeconds, period) / period
	if phase < 0 {
		phase += 1
	}

	switch w {
	case WaveformSine:
		return amp * math.Sin(2*math.Pi*phase)
	case WaveformSaw:
		return amp * (2*phase - 1)
	case WaveformPulses:
		if phase < duty {
			return amp
		}
		return 0
	default:
		return amp * math.Sin(2*math.Pi*phase)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

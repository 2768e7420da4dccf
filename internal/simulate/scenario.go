package simulate

const (
	burstMultiplier = 8
	// MaxRateHz caps the effective sample rate in all scenarios.
	MaxRateHz = 10_000
)

// IsPaused reports whether the tick at elapsed second n is suppressed.
// Only the dropout scenario pauses ticks: the cycle runs for
// dropout_every seconds, then suppresses for dropout_duration seconds.
func IsPaused(s Settings, n int64) bool {
	if s.Scenario != ScenarioDropout {
		return false
	}
	cycle := s.DropoutEverySeconds + s.DropoutDurationSeconds
	if cycle <= 0 {
		return false
	}
	return mod(n, cycle) >= s.DropoutEverySeconds
}

// EffectiveRate returns the sample rate in effect at elapsed second n.
// The bursts scenario multiplies the base rate by 8 (capped at MaxRateHz)
// inside the burst window; every other scenario leaves the base rate
// unchanged, their effect being applied during batch construction instead.
func EffectiveRate(s Settings, n int64) float64 {
	if s.Scenario != ScenarioBursts {
		return s.RateHz
	}
	cycle := s.BurstEverySeconds + s.BurstDurationSeconds
	if cycle <= 0 {
		return s.RateHz
	}
	if mod(n, cycle) >= s.BurstEverySeconds {
		rate := s.RateHz * burstMultiplier
		if rate > MaxRateHz {
			rate = MaxRateHz
		}
		return rate
	}
	return s.RateHz
}

// mod is a non-negative modulo for elapsed-second arithmetic.
func mod(n, m int64) int64 {
	r := n % m
	if r < 0 {
		r += m
	}
	return r
}

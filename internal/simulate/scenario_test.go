package simulate

import "testing"

func TestEffectiveRateBursts(t *testing.T) {
	s := Settings{
		Scenario:             ScenarioBursts,
		RateHz:               5,
		BurstEverySeconds:    10,
		BurstDurationSeconds: 2,
	}

	if got := EffectiveRate(s, 5); got != 5 {
		t.Errorf("EffectiveRate(n=5) = %v, want 5", got)
	}
	if got := EffectiveRate(s, 11); got != 40 {
		t.Errorf("EffectiveRate(n=11) = %v, want 40", got)
	}
}

func TestEffectiveRateBurstCap(t *testing.T) {
	s := Settings{
		Scenario:             ScenarioBursts,
		RateHz:               5000,
		BurstEverySeconds:    1,
		BurstDurationSeconds: 1,
	}
	if got := EffectiveRate(s, 1); got != MaxRateHz {
		t.Errorf("burst rate not capped: %v", got)
	}
}

func TestEffectiveRateOtherScenariosUnchanged(t *testing.T) {
	for _, sc := range []Scenario{ScenarioSteady, ScenarioDropout, ScenarioOutOfOrder, ScenarioLateData} {
		s := Settings{Scenario: sc, RateHz: 7}
		for n := int64(0); n < 30; n++ {
			if got := EffectiveRate(s, n); got != 7 {
				t.Errorf("scenario %s changed rate at n=%d: %v", sc, n, got)
			}
		}
	}
}

func TestIsPausedDropoutWindows(t *testing.T) {
	s := Settings{
		Scenario:               ScenarioDropout,
		DropoutEverySeconds:    10,
		DropoutDurationSeconds: 3,
	}

	for n := int64(0); n < 10; n++ {
		if IsPaused(s, n) {
			t.Errorf("n=%d should not be paused", n)
		}
	}
	for n := int64(10); n < 13; n++ {
		if !IsPaused(s, n) {
			t.Errorf("n=%d should be paused", n)
		}
	}
	// Next cycle.
	if IsPaused(s, 13) {
		t.Error("n=13 should not be paused")
	}
	if !IsPaused(s, 23) {
		t.Error("n=23 should be paused")
	}
}

func TestIsPausedOnlyForDropout(t *testing.T) {
	for _, sc := range []Scenario{ScenarioSteady, ScenarioBursts, ScenarioOutOfOrder, ScenarioLateData} {
		s := Settings{Scenario: sc, DropoutEverySeconds: 1, DropoutDurationSeconds: 100}
		if IsPaused(s, 50) {
			t.Errorf("scenario %s should never pause", sc)
		}
	}
}

func TestIsPausedZeroCycle(t *testing.T) {
	s := Settings{Scenario: ScenarioDropout}
	if IsPaused(s, 5) {
		t.Error("zero-length dropout cycle should never pause")
	}
}

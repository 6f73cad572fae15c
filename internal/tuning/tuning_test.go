package tuning

import "testing"

func TestApplyOverclockZeroTiersIsIdentity(t *testing.T) {
	duration, eu := ApplyOverclock(100, 10, 0)
	if duration != 100 || eu != 10 {
		t.Fatalf("expected (100,10), got (%d,%d)", duration, eu)
	}
}

func TestApplyOverclockTwoTiers(t *testing.T) {
	duration, eu := ApplyOverclock(100, 10, 2)
	if duration != 25 || eu != 160 {
		t.Fatalf("expected (25,160), got (%d,%d)", duration, eu)
	}
}

func TestApplyOverclockMonotonic(t *testing.T) {
	prevDuration, prevEU := ApplyOverclock(937, 13, 0)
	for tiers := 1; tiers <= 16; tiers++ {
		duration, eu := ApplyOverclock(937, 13, tiers)
		if duration > prevDuration {
			t.Fatalf("duration increased at tiers=%d: %d > %d", tiers, duration, prevDuration)
		}
		if eu < prevEU {
			t.Fatalf("energy decreased at tiers=%d: %d < %d", tiers, eu, prevEU)
		}
		prevDuration, prevEU = duration, eu
	}
}

func TestApplyOverclockClampsDurationToOneTick(t *testing.T) {
	duration, _ := ApplyOverclock(3, 1, 10)
	if duration != 1 {
		t.Fatalf("expected duration clamp to 1, got %d", duration)
	}
	if duration, _ := ApplyOverclock(0, 1, 0); duration != 1 {
		t.Fatalf("expected zero duration normalized to 1, got %d", duration)
	}
}

func TestApplyMachineBonus(t *testing.T) {
	cases := []struct {
		name         string
		duration, eu int
		bonus        MachineBonus
		wantDuration int
		wantEU       int
	}{
		{"no-op", 100, 10, MachineBonus{}, 100, 10},
		{"speed halves duration", 100, 10, MachineBonus{SpeedBonus: 2}, 50, 10},
		{"speed floors", 25, 10, MachineBonus{SpeedBonus: 2}, 12, 10},
		{"duration never below one", 2, 10, MachineBonus{SpeedBonus: 8}, 1, 10},
		{"efficiency rounds half away from zero", 100, 5, MachineBonus{EfficiencyBonus: 0.9}, 100, 5},
		{"efficiency scales energy", 100, 10, MachineBonus{EfficiencyBonus: 0.8}, 100, 8},
		{"negative multipliers ignored", 100, 10, MachineBonus{SpeedBonus: -1, EfficiencyBonus: -2}, 100, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			duration, eu := ApplyMachineBonus(tc.duration, tc.eu, tc.bonus)
			if duration != tc.wantDuration || eu != tc.wantEU {
				t.Fatalf("got (%d,%d), want (%d,%d)", duration, eu, tc.wantDuration, tc.wantEU)
			}
		})
	}
}

func TestEffectiveParallel(t *testing.T) {
	cases := []struct {
		name   string
		tuning MachineTuning
		bonus  MachineBonus
		want   float64
	}{
		{"default is one", MachineTuning{}, MachineBonus{}, 1},
		{"tuning parallel", MachineTuning{Parallel: 4}, MachineBonus{}, 4},
		{"bonus multiplies", MachineTuning{Parallel: 4}, MachineBonus{ParallelBonus: 2}, 8},
		{"cap applies", MachineTuning{Parallel: 4}, MachineBonus{ParallelBonus: 4, MaxParallel: 6}, 6},
		{"cap ignored when unset", MachineTuning{Parallel: 3}, MachineBonus{ParallelBonus: 3}, 9},
		{"floored at one", MachineTuning{Parallel: -5}, MachineBonus{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveParallel(tc.tuning, tc.bonus); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRatePerSecond(t *testing.T) {
	if got := RatePerSecond(64, 200); got != 6.4 {
		t.Fatalf("expected 6.4, got %v", got)
	}
	if got := RatePerSecond(1, 0); got != TicksPerSecond {
		t.Fatalf("zero duration should clamp to one tick, got %v", got)
	}
}

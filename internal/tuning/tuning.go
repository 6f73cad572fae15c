// Package tuning holds the pure arithmetic that turns a recipe's base
// duration and energy figures into effective values under overclocking and
// machine-specific bonuses. All functions are side-effect free and exact for
// identical inputs.
package tuning

import "math"

// TicksPerSecond is the simulation tick rate used for all rate conversions.
const TicksPerSecond = 20.0

// MachineTuning is the caller-supplied tuning applied to a recipe's machine.
type MachineTuning struct {
	OverclockTiers int `json:"overclock_tiers"`
	Parallel       int `json:"parallel"`
}

// MachineBonus is a per-machine-type multiplier set derived from the bonus
// index. Zero or negative multipliers are treated as 1.0 (no-op).
// MaxParallel of 0 means uncapped.
type MachineBonus struct {
	SpeedBonus      float64 `json:"speed_bonus"`
	EfficiencyBonus float64 `json:"efficiency_bonus"`
	ParallelBonus   float64 `json:"parallel_bonus"`
	MaxParallel     float64 `json:"max_parallel,omitempty"`
}

// ApplyOverclock applies tiers of overclocking: each tier halves the duration
// (floor division, never below one tick) and quadruples the energy draw.
func ApplyOverclock(durationTicks, eut, tiers int) (int, int) {
	duration := max(1, durationTicks)
	eu := max(0, eut)
	for i := 0; i < max(0, tiers); i++ {
		duration = max(1, duration/2)
		eu *= 4
	}
	return duration, eu
}

// ApplyMachineBonus adjusts overclocked duration/energy by the machine bonus.
// Duration floor-divides by the speed multiplier and clamps to at least one
// tick; energy scales by the efficiency multiplier, rounded half away from
// zero. Call after ApplyOverclock.
func ApplyMachineBonus(durationTicks, eut int, bonus MachineBonus) (int, int) {
	speed := bonus.SpeedBonus
	if speed <= 0 {
		speed = 1.0
	}
	efficiency := bonus.EfficiencyBonus
	if efficiency <= 0 {
		efficiency = 1.0
	}
	duration := max(1, int(math.Floor(float64(max(1, durationTicks))/speed)))
	eu := int(math.Round(float64(max(0, eut)) * efficiency))
	return duration, eu
}

// EffectiveParallel combines the requested parallel machine multiplier with
// the machine's parallel bonus, honoring its cap when set.
func EffectiveParallel(t MachineTuning, bonus MachineBonus) float64 {
	parallelBonus := bonus.ParallelBonus
	if parallelBonus <= 0 {
		parallelBonus = 1.0
	}
	parallel := float64(max(1, t.Parallel)) * parallelBonus
	if bonus.MaxParallel > 0 && parallel > bonus.MaxParallel {
		parallel = bonus.MaxParallel
	}
	return math.Max(1.0, parallel)
}

// RatePerSecond converts an amount produced or consumed per cycle into a
// per-second rate for the given cycle duration.
func RatePerSecond(amount, durationTicks int) float64 {
	return float64(amount) / float64(max(1, durationTicks)) * TicksPerSecond
}

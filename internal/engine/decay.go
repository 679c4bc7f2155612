package engine

// Decay model:
//   - K0 = 100*(0.4*attention + 0.3*interest + 0.3*base_memory), frozen at creation
//   - retention(t) = M + (K0eff - M) * e^(-k*t), M = memory_floor*100
//   - k = base_k * (1+difficulty) * sleep_factor(S) / (1 + revision_freq + usage_freq)
//   - sleep_factor(S) = 1 + sleep_penalty*(1-S)
//   - A review resets the anchor; t is measured in days from the anchor.

import (
	"math"

	"github.com/lazypower/decaytrack/internal/config"
)

// Model holds the tunable constants of the decay formula.
type Model struct {
	BaseK           float64
	SleepPenalty    float64
	PracticeWeight  float64
	RevisionWeight  float64
	ForgetThreshold float64
}

// DefaultModel returns the model with a 14-day baseline half-life.
func DefaultModel() Model {
	return ModelFromConfig(config.Default().Model)
}

// ModelFromConfig builds a Model from the [model] config table.
func ModelFromConfig(c config.ModelConfig) Model {
	return Model{
		BaseK:           c.BaseK,
		SleepPenalty:    c.SleepPenalty,
		PracticeWeight:  c.PracticeWeight,
		RevisionWeight:  c.RevisionWeight,
		ForgetThreshold: c.ForgetThreshold,
	}
}

// K0 returns the initial encoding strength in percent.
func K0(attention, interest, baseMemory float64) float64 {
	return 100 * (0.4*attention + 0.3*interest + 0.3*baseMemory)
}

// SleepFactor multiplies the decay rate for poor sleep. It is 1 at perfect
// sleep and strictly decreasing in s.
func (m Model) SleepFactor(s float64) float64 {
	return 1 + m.SleepPenalty*(1-s)
}

// DecayRate returns k for the given difficulty, sleep snapshot and
// accumulated frequencies.
func (m Model) DecayRate(difficulty, sleep, revisionFreq, usageFreq float64) float64 {
	return m.BaseK * (1 + difficulty) * m.SleepFactor(sleep) / (1 + revisionFreq + usageFreq)
}

func effectiveK0(k0, floor float64) float64 {
	return math.Max(k0, floor*100)
}

// Retention returns retention in percent after elapsedDays from the anchor,
// clamped to [floor*100, 100]. Negative elapsed time is treated as zero.
func Retention(k0, k, floor, elapsedDays float64) float64 {
	m := floor * 100
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	r := m + (effectiveK0(k0, floor)-m)*math.Exp(-k*elapsedDays)
	return math.Min(100, math.Max(m, r))
}

// HalfLife returns the days for retention to fall halfway toward the floor.
func HalfLife(k float64) float64 {
	return math.Ln2 / k
}

// DaysToForget returns the days from the anchor until retention reaches
// threshold. ok is false, and days +Inf, when the floor keeps retention at or
// above the threshold forever.
func DaysToForget(k0, k, floor, threshold float64) (days float64, ok bool) {
	m := floor * 100
	if threshold <= m {
		return math.Inf(1), false
	}
	eff := effectiveK0(k0, floor)
	if eff <= m {
		return 0, true
	}
	days = math.Log((eff-m)/(threshold-m)) / k
	if days < 0 {
		days = 0
	}
	return days, true
}

// Package depth derives the behavioral capability set of the sales agent
// from a single integer depth level (1-10).
package depth

import "castline/internal/domain"

const (
	MinLevel = 1
	MaxLevel = 10
)

// Resolve maps a depth level to its capability context. Pure and total:
// out-of-range levels are clamped, never rejected, so the same level always
// yields the same context.
func Resolve(level int) domain.CapabilityContext {
	safe := clamp(level)
	return domain.CapabilityContext{
		DepthLevel:               safe,
		HorizonHours:             24 * safe,
		MemoryDepth:              10 + safe*2,
		InferencePasses:          (safe-1)/3 + 1,
		ConfidenceThreshold:      50 + int(float64(safe)*3.5),
		SimulationAggressiveness: 10 * safe,
		VariationDepth:           10 * safe,
		CanPredictTrends:         safe >= 3,
		CanAnalyzeHiddenSignals:  safe >= 5,
		CanAutoReplyStrategic:    safe >= 7,
	}
}

func clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

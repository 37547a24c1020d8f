package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveClampsOutOfRangeLevels(t *testing.T) {
	low := Resolve(1)
	assert.Equal(t, low, Resolve(0))
	assert.Equal(t, low, Resolve(-5))

	high := Resolve(10)
	assert.Equal(t, high, Resolve(11))
	assert.Equal(t, high, Resolve(100))
}

func TestResolveIsDeterministic(t *testing.T) {
	for level := 1; level <= 10; level++ {
		assert.Equal(t, Resolve(level), Resolve(level), "level %d", level)
	}
}

func TestResolveFormulas(t *testing.T) {
	cc := Resolve(4)
	assert.Equal(t, 4, cc.DepthLevel)
	assert.Equal(t, 96, cc.HorizonHours)
	assert.Equal(t, 18, cc.MemoryDepth)
	assert.Equal(t, 2, cc.InferencePasses)
	assert.Equal(t, 64, cc.ConfidenceThreshold)
	assert.Equal(t, 40, cc.SimulationAggressiveness)
	assert.Equal(t, 40, cc.VariationDepth)
}

func TestResolveMonotonicParameters(t *testing.T) {
	prev := Resolve(1)
	for level := 2; level <= 10; level++ {
		cur := Resolve(level)
		assert.GreaterOrEqual(t, cur.HorizonHours, prev.HorizonHours)
		assert.GreaterOrEqual(t, cur.MemoryDepth, prev.MemoryDepth)
		assert.GreaterOrEqual(t, cur.ConfidenceThreshold, prev.ConfidenceThreshold)
		assert.GreaterOrEqual(t, cur.VariationDepth, prev.VariationDepth)
		prev = cur
	}
}

func TestResolveInferencePassTiers(t *testing.T) {
	assert.Equal(t, 1, Resolve(1).InferencePasses)
	assert.Equal(t, 1, Resolve(3).InferencePasses)
	assert.Equal(t, 2, Resolve(4).InferencePasses)
	assert.Equal(t, 2, Resolve(6).InferencePasses)
	assert.Equal(t, 3, Resolve(7).InferencePasses)
	assert.Equal(t, 3, Resolve(9).InferencePasses)
	assert.Equal(t, 4, Resolve(10).InferencePasses)
}

func TestResolveFlagBoundaries(t *testing.T) {
	assert.False(t, Resolve(2).CanPredictTrends)
	assert.True(t, Resolve(3).CanPredictTrends)

	assert.False(t, Resolve(4).CanAnalyzeHiddenSignals)
	assert.True(t, Resolve(5).CanAnalyzeHiddenSignals)

	assert.False(t, Resolve(6).CanAutoReplyStrategic)
	assert.True(t, Resolve(7).CanAutoReplyStrategic)
}

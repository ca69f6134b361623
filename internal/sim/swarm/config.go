package swarm

import (
	"math"
	"time"
)

// ProximityConfig tunes the pairwise influence computation. Zero values are
// never used directly; construct via DefaultProximityConfig and override.
type ProximityConfig struct {
	// MaxInfluenceDistance is the hard range cutoff in world units. Influence
	// falls off quadratically and reaches zero exactly at this distance.
	MaxInfluenceDistance float64

	// UpdateInterval is the minimum wall time between full recomputation
	// passes. Position updates arriving sooner only refresh the snapshot.
	UpdateInterval time.Duration

	// MinSignificance drops influences weaker than this instead of keeping
	// zero-ish entries, bounding per-agent list size.
	MinSignificance float64

	// RoleInfluence and EmotionInfluence scale the strength a source exerts.
	// Missing entries fall back to 1.0.
	RoleInfluence    map[Role]float64
	EmotionInfluence map[Emotion]float64

	// Compatibility scores pairs of emotions in [0,1]. Pairs at or above
	// CompatibilityThreshold fade at CompatibleDecay per tick, the rest at
	// IncompatibleDecay.
	Compatibility          [NumEmotions][NumEmotions]float64
	CompatibilityThreshold float64
	CompatibleDecay        float64
	IncompatibleDecay      float64
}

// ContagionConfig tunes advisory transition emission.
type ContagionConfig struct {
	// ProcessInterval is the minimum wall time between contagion passes.
	ProcessInterval time.Duration

	// InfluenceStrength is a global damping factor applied to every
	// proximity influence before aggregation.
	InfluenceStrength float64

	// PropagationSpeed scales the suggested transition speed.
	PropagationSpeed float64

	// MomentumConstant scales history-based resistance. An agent whose last
	// MomentumWindow recorded states all match its current emotion gains the
	// full constant as extra resistance.
	MomentumConstant float64
	MomentumWindow   int

	// RoleResistance is each role's baseline reluctance to change. Missing
	// entries fall back to DefaultResistance.
	RoleResistance    map[Role]float64
	DefaultResistance float64

	// HistoryCap bounds the per-agent emotion history (FIFO eviction).
	HistoryCap int
}

func DefaultProximityConfig() ProximityConfig {
	return ProximityConfig{
		MaxInfluenceDistance: 150,
		UpdateInterval:       100 * time.Millisecond,
		MinSignificance:      0.1,
		RoleInfluence: map[Role]float64{
			RoleWorker:    1.0,
			RoleScout:     1.1,
			RoleGuard:     1.2,
			RoleProphet:   1.5,
			RoleAscendant: 1.8,
			RoleQueen:     2.0,
		},
		EmotionInfluence: map[Emotion]float64{
			EmotionCalm:       0.8,
			EmotionFocused:    1.0,
			EmotionExcited:    1.3,
			EmotionProtective: 1.4,
			EmotionDivine:     1.6,
		},
		Compatibility:          defaultCompatibility(),
		CompatibilityThreshold: 0.5,
		CompatibleDecay:        0.95,
		IncompatibleDecay:      0.85,
	}
}

func DefaultContagionConfig() ContagionConfig {
	return ContagionConfig{
		ProcessInterval:   200 * time.Millisecond,
		InfluenceStrength: 0.7,
		PropagationSpeed:  0.5,
		MomentumConstant:  0.6,
		MomentumWindow:    5,
		RoleResistance: map[Role]float64{
			RoleScout:     0.4,
			RoleProphet:   0.6,
			RoleWorker:    0.7,
			RoleGuard:     0.8,
			RoleAscendant: 0.85,
			RoleQueen:     0.9,
		},
		DefaultResistance: 0.5,
		HistoryCap:        10,
	}
}

func defaultCompatibility() [NumEmotions][NumEmotions]float64 {
	var m [NumEmotions][NumEmotions]float64
	set := func(a, b Emotion, v float64) {
		m[a][b] = v
		m[b][a] = v
	}
	for e := 0; e < NumEmotions; e++ {
		m[e][e] = 1.0
	}
	set(EmotionCalm, EmotionExcited, 0.3)
	set(EmotionCalm, EmotionFocused, 0.7)
	set(EmotionCalm, EmotionProtective, 0.4)
	set(EmotionCalm, EmotionDivine, 0.6)
	set(EmotionExcited, EmotionFocused, 0.5)
	set(EmotionExcited, EmotionProtective, 0.6)
	set(EmotionExcited, EmotionDivine, 0.7)
	set(EmotionFocused, EmotionProtective, 0.5)
	set(EmotionFocused, EmotionDivine, 0.6)
	set(EmotionProtective, EmotionDivine, 0.5)
	return m
}

// sanitize clamps a tunable to a non-negative value. NaN keeps the previous
// value: a malformed reconfigure must not poison every later computation.
func sanitize(v, prev float64) float64 {
	if math.IsNaN(v) {
		return prev
	}
	if v < 0 {
		return 0
	}
	return v
}

func sanitizeInterval(v, prev time.Duration) time.Duration {
	if v < 0 {
		return prev
	}
	return v
}

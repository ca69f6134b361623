package swarm

import (
	"math"
	"sort"
	"time"
)

// ProximityIndex owns the latest snapshot of every tracked agent and the
// pairwise influences between them. All state must be accessed from a single
// goroutine; the hive loop is the only writer in the server.
//
// Recomputation is O(n^2) in agent count; swarms stay small enough that no
// spatial index is needed.
type ProximityIndex struct {
	cfg ProximityConfig

	agents     map[string]AgentSnapshot
	influences map[string][]ProximityInfluence // keyed by target id, sorted by descending strength

	lastPass time.Time
	now      func() time.Time
}

func NewProximityIndex(cfg ProximityConfig) *ProximityIndex {
	return &ProximityIndex{
		cfg:        cfg,
		agents:     make(map[string]AgentSnapshot),
		influences: make(map[string][]ProximityInfluence),
		now:        time.Now,
	}
}

// ProximityOptions carries optional reconfiguration; nil fields keep the
// current value. Distances are clamped non-negative, NaN is ignored.
type ProximityOptions struct {
	MaxInfluenceDistance *float64
	UpdateInterval       *time.Duration
}

// Configure applies new tunables. In-flight passes are unaffected; the next
// recomputation uses the new values.
func (ix *ProximityIndex) Configure(o ProximityOptions) {
	if o.MaxInfluenceDistance != nil {
		ix.cfg.MaxInfluenceDistance = sanitize(*o.MaxInfluenceDistance, ix.cfg.MaxInfluenceDistance)
	}
	if o.UpdateInterval != nil {
		ix.cfg.UpdateInterval = sanitizeInterval(*o.UpdateInterval, ix.cfg.UpdateInterval)
	}
}

// UpdatePosition inserts or wholesale-replaces the snapshot for snap.ID and
// stamps it with the current time. Coordinates are stored as-is; the index
// does not know world bounds. If the update interval has elapsed since the
// last full pass, influences are recomputed synchronously before returning.
func (ix *ProximityIndex) UpdatePosition(snap AgentSnapshot) {
	snap.UpdatedAt = ix.now()
	ix.agents[snap.ID] = snap

	if ix.now().Sub(ix.lastPass) >= ix.cfg.UpdateInterval {
		ix.recompute()
	}
}

// RemoveAgent drops the agent's snapshot and influence list and strips it as
// a source from every other agent's list. Removing an unknown id is a no-op.
func (ix *ProximityIndex) RemoveAgent(id string) {
	delete(ix.agents, id)
	delete(ix.influences, id)
	for target, list := range ix.influences {
		kept := list[:0]
		for _, inf := range list {
			if inf.SourceID != id {
				kept = append(kept, inf)
			}
		}
		if len(kept) == 0 {
			delete(ix.influences, target)
			continue
		}
		ix.influences[target] = kept
	}
}

// InfluencesFor returns a copy of the agent's current influence list, sorted
// by descending strength. Unknown ids yield an empty list. Reading never
// triggers recomputation.
func (ix *ProximityIndex) InfluencesFor(id string) []ProximityInfluence {
	list := ix.influences[id]
	out := make([]ProximityInfluence, len(list))
	copy(out, list)
	return out
}

// AllSnapshots returns a copy of every tracked snapshot, sorted by id.
func (ix *ProximityIndex) AllSnapshots() []AgentSnapshot {
	out := make([]AgentSnapshot, 0, len(ix.agents))
	for _, a := range ix.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of tracked agents.
func (ix *ProximityIndex) Len() int { return len(ix.agents) }

// Recompute forces a full pass regardless of the update throttle.
func (ix *ProximityIndex) Recompute() {
	ix.recompute()
}

func (ix *ProximityIndex) recompute() {
	ix.lastPass = ix.now()
	for id := range ix.influences {
		delete(ix.influences, id)
	}

	maxDist := ix.cfg.MaxInfluenceDistance
	if maxDist <= 0 {
		return
	}

	for targetID, target := range ix.agents {
		var list []ProximityInfluence
		for sourceID, source := range ix.agents {
			if sourceID == targetID {
				continue
			}
			dx := source.X - target.X
			dy := source.Y - target.Y
			dist := math.Sqrt(dx*dx + dy*dy)
			if !(dist <= maxDist) { // NaN positions never influence
				continue
			}

			// Quadratic falloff: zero exactly at the range boundary,
			// dropping fast near it.
			ratio := dist / maxDist
			base := math.Max(0, 1-ratio*ratio)
			strength := base * ix.roleMultiplier(source.Role) * ix.emotionMultiplier(source.Emotion)
			if strength <= ix.cfg.MinSignificance {
				continue
			}

			list = append(list, ProximityInfluence{
				SourceID: sourceID,
				TargetID: targetID,
				Distance: dist,
				Strength: strength,
				Emotion:  source.Emotion,
				Decay:    ix.decayFor(source.Emotion, target.Emotion),
			})
		}
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Strength != list[j].Strength {
				return list[i].Strength > list[j].Strength
			}
			return list[i].SourceID < list[j].SourceID
		})
		ix.influences[targetID] = list
	}
}

func (ix *ProximityIndex) roleMultiplier(r Role) float64 {
	if m, ok := ix.cfg.RoleInfluence[r]; ok {
		return m
	}
	return 1.0
}

func (ix *ProximityIndex) emotionMultiplier(e Emotion) float64 {
	if m, ok := ix.cfg.EmotionInfluence[e]; ok {
		return m
	}
	return 1.0
}

// decayFor picks the per-tick fade factor from emotional compatibility:
// compatible pairs linger, clashing ones fade fast.
func (ix *ProximityIndex) decayFor(source, target Emotion) float64 {
	if !source.Valid() || !target.Valid() {
		return ix.cfg.IncompatibleDecay
	}
	if ix.cfg.Compatibility[source][target] >= ix.cfg.CompatibilityThreshold {
		return ix.cfg.CompatibleDecay
	}
	return ix.cfg.IncompatibleDecay
}

// Snapshot returns the tracked snapshot for id, if any.
func (ix *ProximityIndex) Snapshot(id string) (AgentSnapshot, bool) {
	a, ok := ix.agents[id]
	return a, ok
}

// outgoingFrom collects every influence the given agent currently exerts,
// across all targets. Used by wave injection.
func (ix *ProximityIndex) outgoingFrom(id string) []ProximityInfluence {
	var out []ProximityInfluence
	for _, list := range ix.influences {
		for _, inf := range list {
			if inf.SourceID == id {
				out = append(out, inf)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// activeInfluenceCount is the total size of all influence lists.
func (ix *ProximityIndex) activeInfluenceCount() int {
	n := 0
	for _, list := range ix.influences {
		n += len(list)
	}
	return n
}

package swarm

import (
	"io"
	"log"
	"math"
	"sort"
	"time"
)

// ContagionEngine turns proximity influence lists into at most one advisory
// transition per agent per pass. It never applies transitions itself: the
// consumer calls RecordHistory once it actually shifts an agent's state.
//
// Single-writer, same contract as ProximityIndex.
type ContagionEngine struct {
	cfg   ContagionConfig
	index *ProximityIndex
	log   *log.Logger

	active  map[string]EmotionalInfluence // by target id, current pass + waves
	history map[string][]Emotion
	events  uint64

	lastPass   time.Time
	lastResult []EmotionalInfluence
	now        func() time.Time
}

func NewContagionEngine(index *ProximityIndex, cfg ContagionConfig, logger *log.Logger) *ContagionEngine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ContagionEngine{
		cfg:     cfg,
		index:   index,
		log:     logger,
		active:  make(map[string]EmotionalInfluence),
		history: make(map[string][]Emotion),
		now:     time.Now,
	}
}

// ContagionOptions carries optional reconfiguration; nil fields keep the
// current value. Scalars are clamped non-negative, NaN is ignored.
type ContagionOptions struct {
	InfluenceStrength *float64
	PropagationSpeed  *float64
	MomentumConstant  *float64
	ProcessInterval   *time.Duration
	RoleResistance    map[Role]float64 // replaces the whole table when non-nil
}

func (ce *ContagionEngine) Configure(o ContagionOptions) {
	if o.InfluenceStrength != nil {
		ce.cfg.InfluenceStrength = sanitize(*o.InfluenceStrength, ce.cfg.InfluenceStrength)
	}
	if o.PropagationSpeed != nil {
		ce.cfg.PropagationSpeed = sanitize(*o.PropagationSpeed, ce.cfg.PropagationSpeed)
	}
	if o.MomentumConstant != nil {
		ce.cfg.MomentumConstant = sanitize(*o.MomentumConstant, ce.cfg.MomentumConstant)
	}
	if o.ProcessInterval != nil {
		ce.cfg.ProcessInterval = sanitizeInterval(*o.ProcessInterval, ce.cfg.ProcessInterval)
	}
	if o.RoleResistance != nil {
		ce.cfg.RoleResistance = o.RoleResistance
	}
}

// ProcessTick runs one contagion pass over every agent with a non-empty
// influence list and returns the advisory transitions. Calls arriving within
// ProcessInterval of the previous pass are no-ops: they return the previous
// pass's result unchanged with ran=false, and the caller must not treat that
// output as new (republishing it would double-count every transition
// downstream).
func (ce *ContagionEngine) ProcessTick() (advisories []EmotionalInfluence, ran bool) {
	if ce.now().Sub(ce.lastPass) < ce.cfg.ProcessInterval {
		return ce.lastResult, false
	}
	ce.lastPass = ce.now()

	for id := range ce.active {
		delete(ce.active, id)
	}

	var emitted []EmotionalInfluence
	for _, agent := range ce.index.AllSnapshots() {
		infs := ce.index.influences[agent.ID]
		if len(infs) == 0 {
			continue
		}

		adv, ok := ce.evaluate(agent, infs)
		if !ok {
			continue
		}
		ce.active[agent.ID] = adv
		emitted = append(emitted, adv)
	}

	ce.events += uint64(len(emitted))
	ce.lastResult = emitted
	return emitted, true
}

// evaluate aggregates one agent's influences by source emotion and checks the
// strongest candidate against the agent's resistance + momentum.
func (ce *ContagionEngine) evaluate(agent AgentSnapshot, infs []ProximityInfluence) (EmotionalInfluence, bool) {
	var totals [NumEmotions]float64
	var present [NumEmotions]bool
	for _, inf := range infs {
		if !inf.Emotion.Valid() {
			continue
		}
		totals[inf.Emotion] += inf.Strength * ce.cfg.InfluenceStrength
		present[inf.Emotion] = true
	}

	winner := EmotionCalm
	best := 0.0
	found := false
	for e := 0; e < NumEmotions; e++ {
		if present[e] && totals[e] > best {
			winner = Emotion(e)
			best = totals[e]
			found = true
		}
	}
	if !found || winner == agent.Emotion {
		return EmotionalInfluence{}, false
	}
	if best <= ce.resistance(agent) {
		return EmotionalInfluence{}, false
	}

	var sources []Emotion
	for e := 0; e < NumEmotions; e++ {
		if present[e] {
			sources = append(sources, Emotion(e))
		}
	}
	return EmotionalInfluence{
		TargetID:        agent.ID,
		SourceEmotions:  sources,
		TargetEmotion:   winner,
		Strength:        best,
		TransitionSpeed: ce.transitionSpeed(best),
	}, true
}

func (ce *ContagionEngine) transitionSpeed(strength float64) float64 {
	return ce.cfg.PropagationSpeed * math.Min(strength*2, 2.0)
}

// resistance is the agent's role baseline plus emotional momentum: holding
// the same emotion across the recent history makes it harder to dislodge.
func (ce *ContagionEngine) resistance(agent AgentSnapshot) float64 {
	base, ok := ce.cfg.RoleResistance[agent.Role]
	if !ok {
		base = ce.cfg.DefaultResistance
	}
	return base + ce.momentum(agent.ID, agent.Emotion)
}

func (ce *ContagionEngine) momentum(agentID string, current Emotion) float64 {
	hist := ce.history[agentID]
	if len(hist) == 0 {
		return 0
	}
	window := ce.cfg.MomentumWindow
	if window <= 0 {
		return 0
	}
	recent := hist
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	matches := 0
	for _, e := range recent {
		if e == current {
			matches++
		}
	}
	return float64(matches) / float64(window) * ce.cfg.MomentumConstant
}

// TriggerWave injects an artificially amplified burst of the given emotion
// from sourceID to every agent it currently influences, bypassing the normal
// resistance check and overwriting any advisory already active for those
// targets. An unknown source is an expected race (the agent may have just
// left) and degrades to a logged no-op.
func (ce *ContagionEngine) TriggerWave(sourceID string, emotion Emotion, intensity float64) []EmotionalInfluence {
	if _, ok := ce.index.Snapshot(sourceID); !ok {
		ce.log.Printf("wave: unknown source agent %q, skipping", sourceID)
		return nil
	}

	outgoing := ce.index.outgoingFrom(sourceID)
	if len(outgoing) == 0 {
		return nil
	}

	strength := intensity * 2.0
	waves := make([]EmotionalInfluence, 0, len(outgoing))
	for _, inf := range outgoing {
		adv := EmotionalInfluence{
			TargetID:        inf.TargetID,
			SourceEmotions:  []Emotion{emotion},
			TargetEmotion:   emotion,
			Strength:        strength,
			TransitionSpeed: ce.transitionSpeed(strength),
		}
		ce.active[inf.TargetID] = adv
		waves = append(waves, adv)
	}
	ce.events += uint64(len(waves))
	return waves
}

// RemoveAgent drops the agent's emotion history and any advisory still active
// for it. Paired with ProximityIndex.RemoveAgent; without it, session churn
// leaves dead agents' history entries behind forever.
func (ce *ContagionEngine) RemoveAgent(agentID string) {
	delete(ce.history, agentID)
	delete(ce.active, agentID)
}

// RecordHistory appends an applied emotional state to the agent's bounded
// history. The engine never calls this itself; the layer that actually
// performs a transition reports it here.
func (ce *ContagionEngine) RecordHistory(agentID string, emotion Emotion) {
	hist := append(ce.history[agentID], emotion)
	if ce.cfg.HistoryCap > 0 && len(hist) > ce.cfg.HistoryCap {
		hist = hist[len(hist)-ce.cfg.HistoryCap:]
	}
	ce.history[agentID] = hist
}

// History returns a copy of the agent's recorded emotion history.
func (ce *ContagionEngine) History(agentID string) []Emotion {
	hist := ce.history[agentID]
	out := make([]Emotion, len(hist))
	copy(out, hist)
	return out
}

// Active returns the currently active advisories, sorted by target id.
func (ce *ContagionEngine) Active() []EmotionalInfluence {
	out := make([]EmotionalInfluence, 0, len(ce.active))
	for _, adv := range ce.active {
		out = append(out, adv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// Metrics summarizes the currently active advisory set.
func (ce *ContagionEngine) Metrics() Metrics {
	m := Metrics{
		ActiveInfluences: len(ce.active),
		ContagionEvents:  ce.events,
		DominantEmotion:  EmotionCalm,
	}
	if len(ce.active) == 0 {
		return m
	}

	var counts [NumEmotions]int
	sum := 0.0
	for _, adv := range ce.active {
		sum += adv.Strength
		if adv.TargetEmotion.Valid() {
			counts[adv.TargetEmotion]++
		}
	}
	m.AvgStrength = sum / float64(len(ce.active))

	bestCount := -1
	for e := 0; e < NumEmotions; e++ {
		if counts[e] > bestCount {
			bestCount = counts[e]
			m.DominantEmotion = Emotion(e)
		}
	}

	// Shannon entropy over the target-emotion distribution: zero when every
	// active advisory pushes toward the same emotion.
	total := float64(len(ce.active))
	for e := 0; e < NumEmotions; e++ {
		if counts[e] == 0 {
			continue
		}
		p := float64(counts[e]) / total
		m.Diversity -= p * math.Log2(p)
	}
	return m
}

// Reset clears all active advisories, history buffers, and the event counter.
func (ce *ContagionEngine) Reset() {
	ce.active = make(map[string]EmotionalInfluence)
	ce.history = make(map[string][]Emotion)
	ce.events = 0
	ce.lastResult = nil
	ce.lastPass = time.Time{}
}

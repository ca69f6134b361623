package protocol

import "hivesim.ai/internal/sim/swarm"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Subscribe asks the server to stream TRANSITIONS/METRICS to this
	// session. Pure feeder clients leave it false.
	Subscribe bool `json:"subscribe,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	HiveParams      HiveParams `json:"hive_params"`
}

type HiveParams struct {
	TickRateHz           int     `json:"tick_rate_hz"`
	MaxInfluenceDistance float64 `json:"max_influence_distance"`
	UpdateIntervalMs     int     `json:"update_interval_ms"`
	ProcessIntervalMs    int     `json:"process_interval_ms"`
}

// UPDATE (client -> server): full snapshots for one or more agents.
type UpdateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Agents          []AgentUpdate `json:"agents"`
}

type AgentUpdate struct {
	ID      string        `json:"id"`
	Role    swarm.Role    `json:"role"`
	Emotion swarm.Emotion `json:"emotion"`
	X       float64       `json:"x"`
	Y       float64       `json:"y"`
}

// REMOVE (client -> server)
type RemoveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
}

// WAVE (client -> server): operator-triggered emotional burst.
type WaveMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SourceID        string        `json:"source_id"`
	Emotion         swarm.Emotion `json:"emotion"`
	Intensity       float64       `json:"intensity"`
}

// APPLIED (client -> server): the animation layer reports that it actually
// performed a transition, feeding the agent's emotional history.
type AppliedMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	AgentID         string        `json:"agent_id"`
	Emotion         swarm.Emotion `json:"emotion"`
}

// TUNE (client -> server): hot reconfiguration; absent fields keep their
// current values.
type TuneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	MaxInfluenceDistance *float64 `json:"max_influence_distance,omitempty"`
	UpdateIntervalMs     *int     `json:"update_interval_ms,omitempty"`
	ProcessIntervalMs    *int     `json:"process_interval_ms,omitempty"`
	InfluenceStrength    *float64 `json:"influence_strength,omitempty"`
	PropagationSpeed     *float64 `json:"propagation_speed,omitempty"`
	MomentumConstant     *float64 `json:"momentum_constant,omitempty"`
}

// TRANSITIONS (server -> subscribers): advisory records for one pass.
type TransitionsMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Transitions     []Transition `json:"transitions"`
}

type Transition struct {
	TargetID        string          `json:"target_id"`
	SourceEmotions  []swarm.Emotion `json:"source_emotions"`
	TargetEmotion   swarm.Emotion   `json:"target_emotion"`
	Strength        float64         `json:"strength"`
	TransitionSpeed float64         `json:"transition_speed"`
}

func TransitionFrom(adv swarm.EmotionalInfluence) Transition {
	return Transition{
		TargetID:        adv.TargetID,
		SourceEmotions:  adv.SourceEmotions,
		TargetEmotion:   adv.TargetEmotion,
		Strength:        adv.Strength,
		TransitionSpeed: adv.TransitionSpeed,
	}
}

// METRICS (server -> subscribers)
type MetricsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Agents          int         `json:"agents"`
	Metrics         MetricsBody `json:"metrics"`
}

type MetricsBody struct {
	ActiveInfluences int           `json:"active_influences"`
	ContagionEvents  uint64        `json:"contagion_events"`
	AvgStrength      float64       `json:"avg_strength"`
	DominantEmotion  swarm.Emotion `json:"dominant_emotion"`
	Diversity        float64       `json:"diversity"`
}

func MetricsFrom(m swarm.Metrics) MetricsBody {
	return MetricsBody{
		ActiveInfluences: m.ActiveInfluences,
		ContagionEvents:  m.ContagionEvents,
		AvgStrength:      m.AvgStrength,
		DominantEmotion:  m.DominantEmotion,
		Diversity:        m.Diversity,
	}
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

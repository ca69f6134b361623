package swarm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is an agent's fixed position in the hive hierarchy. It scales both
// the influence an agent exerts and its resistance to incoming influence.
type Role int

const (
	RoleWorker Role = iota
	RoleScout
	RoleGuard
	RoleQueen
	RoleProphet
	RoleAscendant
)

var roleNames = [...]string{
	RoleWorker:    "worker",
	RoleScout:     "scout",
	RoleGuard:     "guard",
	RoleQueen:     "queen",
	RoleProphet:   "prophet",
	RoleAscendant: "ascendant",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

func (r Role) Valid() bool { return r >= 0 && int(r) < len(roleNames) }

func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Emotion is an agent's current emotional state.
type Emotion int

const (
	EmotionCalm Emotion = iota
	EmotionExcited
	EmotionFocused
	EmotionProtective
	EmotionDivine
)

var emotionNames = [...]string{
	EmotionCalm:       "calm",
	EmotionExcited:    "excited",
	EmotionFocused:    "focused",
	EmotionProtective: "protective",
	EmotionDivine:     "divine",
}

// NumEmotions is the size of the closed emotion set.
const NumEmotions = len(emotionNames)

func (e Emotion) String() string {
	if e < 0 || int(e) >= len(emotionNames) {
		return fmt.Sprintf("emotion(%d)", int(e))
	}
	return emotionNames[e]
}

func (e Emotion) Valid() bool { return e >= 0 && int(e) < len(emotionNames) }

func ParseEmotion(s string) (Emotion, error) {
	for i, name := range emotionNames {
		if name == s {
			return Emotion(i), nil
		}
	}
	return 0, fmt.Errorf("unknown emotion %q", s)
}

func (r Role) MarshalJSON() ([]byte, error)    { return json.Marshal(r.String()) }
func (e Emotion) MarshalJSON() ([]byte, error) { return json.Marshal(e.String()) }

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (e *Emotion) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseEmotion(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// AgentSnapshot is the latest known state of one tracked agent. It is
// replaced wholesale on every update; the index never mutates fields in place.
type AgentSnapshot struct {
	ID        string
	X, Y      float64
	Role      Role
	Emotion   Emotion
	UpdatedAt time.Time
}

// ProximityInfluence is a directed source->target influence computed fresh
// each recalculation pass. It never survives across passes.
type ProximityInfluence struct {
	SourceID string
	TargetID string
	Distance float64
	Strength float64 // significance-filtered, so always > MinSignificance
	Emotion  Emotion // the source's emotion at computation time
	Decay    float64 // per-tick fade factor suggested to the consumer
}

// EmotionalInfluence is an advisory transition record. The engine never
// applies it; the consuming layer decides whether the agent actually shifts
// and reports back via RecordHistory when it does.
type EmotionalInfluence struct {
	TargetID        string
	SourceEmotions  []Emotion
	TargetEmotion   Emotion
	Strength        float64
	TransitionSpeed float64
}

// Metrics is an aggregate view over the engine's currently active advisories.
type Metrics struct {
	ActiveInfluences int
	ContagionEvents  uint64 // monotonic, survives everything except Reset
	AvgStrength      float64
	DominantEmotion  Emotion
	Diversity        float64 // Shannon entropy over target emotions, 0 = uniform consensus
}

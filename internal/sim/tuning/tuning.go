package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hivesim.ai/internal/sim/swarm"
)

// Tuning is the on-disk shape of configs/tuning.yaml. Role and emotion
// tables are string-keyed in the file and converted to enum-keyed swarm
// configs at load time, so typos fail loudly instead of silently falling
// back to defaults.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz        int `yaml:"tick_rate_hz"`
	MetricsEveryTicks int `yaml:"metrics_every_ticks"`

	Proximity ProximityTuning `yaml:"proximity"`
	Contagion ContagionTuning `yaml:"contagion"`
}

type ProximityTuning struct {
	MaxInfluenceDistance float64 `yaml:"max_influence_distance"`
	UpdateIntervalMs     int     `yaml:"update_interval_ms"`
	MinSignificance      float64 `yaml:"min_significance"`

	RoleInfluence    map[string]float64 `yaml:"role_influence"`
	EmotionInfluence map[string]float64 `yaml:"emotion_influence"`

	Compatibility          map[string]map[string]float64 `yaml:"compatibility"`
	CompatibilityThreshold float64                       `yaml:"compatibility_threshold"`
	CompatibleDecay        float64                       `yaml:"compatible_decay"`
	IncompatibleDecay      float64                       `yaml:"incompatible_decay"`
}

type ContagionTuning struct {
	ProcessIntervalMs int     `yaml:"process_interval_ms"`
	InfluenceStrength float64 `yaml:"influence_strength"`
	PropagationSpeed  float64 `yaml:"propagation_speed"`
	MomentumConstant  float64 `yaml:"momentum_constant"`
	MomentumWindow    int     `yaml:"momentum_window"`

	RoleResistance    map[string]float64 `yaml:"role_resistance"`
	DefaultResistance float64            `yaml:"default_resistance"`
	HistoryCap        int                `yaml:"history_cap"`
}

// Load reads tuning from path, overlaying the file on top of Defaults so a
// partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	prox := swarm.DefaultProximityConfig()
	cont := swarm.DefaultContagionConfig()

	return Tuning{
		ProtocolVersion:   "1.0",
		TickRateHz:        20,
		MetricsEveryTicks: 20,
		Proximity: ProximityTuning{
			MaxInfluenceDistance:   prox.MaxInfluenceDistance,
			UpdateIntervalMs:       int(prox.UpdateInterval / time.Millisecond),
			MinSignificance:        prox.MinSignificance,
			RoleInfluence:          roleTableNames(prox.RoleInfluence),
			EmotionInfluence:       emotionTableNames(prox.EmotionInfluence),
			Compatibility:          compatNames(prox.Compatibility),
			CompatibilityThreshold: prox.CompatibilityThreshold,
			CompatibleDecay:        prox.CompatibleDecay,
			IncompatibleDecay:      prox.IncompatibleDecay,
		},
		Contagion: ContagionTuning{
			ProcessIntervalMs: int(cont.ProcessInterval / time.Millisecond),
			InfluenceStrength: cont.InfluenceStrength,
			PropagationSpeed:  cont.PropagationSpeed,
			MomentumConstant:  cont.MomentumConstant,
			MomentumWindow:    cont.MomentumWindow,
			RoleResistance:    roleTableNames(cont.RoleResistance),
			DefaultResistance: cont.DefaultResistance,
			HistoryCap:        cont.HistoryCap,
		},
	}
}

// ProximityConfig converts the string-keyed file tables into the enum-keyed
// config the index consumes. Unknown role or emotion names are errors.
func (t Tuning) ProximityConfig() (swarm.ProximityConfig, error) {
	cfg := swarm.DefaultProximityConfig()
	cfg.MaxInfluenceDistance = t.Proximity.MaxInfluenceDistance
	cfg.UpdateInterval = time.Duration(t.Proximity.UpdateIntervalMs) * time.Millisecond
	cfg.MinSignificance = t.Proximity.MinSignificance
	cfg.CompatibilityThreshold = t.Proximity.CompatibilityThreshold
	cfg.CompatibleDecay = t.Proximity.CompatibleDecay
	cfg.IncompatibleDecay = t.Proximity.IncompatibleDecay

	var err error
	if cfg.RoleInfluence, err = parseRoleTable(t.Proximity.RoleInfluence); err != nil {
		return cfg, fmt.Errorf("proximity.role_influence: %w", err)
	}
	if cfg.EmotionInfluence, err = parseEmotionTable(t.Proximity.EmotionInfluence); err != nil {
		return cfg, fmt.Errorf("proximity.emotion_influence: %w", err)
	}
	for aName, row := range t.Proximity.Compatibility {
		a, err := swarm.ParseEmotion(aName)
		if err != nil {
			return cfg, fmt.Errorf("proximity.compatibility: %w", err)
		}
		for bName, score := range row {
			b, err := swarm.ParseEmotion(bName)
			if err != nil {
				return cfg, fmt.Errorf("proximity.compatibility.%s: %w", aName, err)
			}
			cfg.Compatibility[a][b] = score
			cfg.Compatibility[b][a] = score
		}
	}
	return cfg, nil
}

func (t Tuning) ContagionConfig() (swarm.ContagionConfig, error) {
	cfg := swarm.DefaultContagionConfig()
	cfg.ProcessInterval = time.Duration(t.Contagion.ProcessIntervalMs) * time.Millisecond
	cfg.InfluenceStrength = t.Contagion.InfluenceStrength
	cfg.PropagationSpeed = t.Contagion.PropagationSpeed
	cfg.MomentumConstant = t.Contagion.MomentumConstant
	cfg.MomentumWindow = t.Contagion.MomentumWindow
	cfg.DefaultResistance = t.Contagion.DefaultResistance
	cfg.HistoryCap = t.Contagion.HistoryCap

	var err error
	if cfg.RoleResistance, err = parseRoleTable(t.Contagion.RoleResistance); err != nil {
		return cfg, fmt.Errorf("contagion.role_resistance: %w", err)
	}
	return cfg, nil
}

func parseRoleTable(in map[string]float64) (map[swarm.Role]float64, error) {
	out := make(map[swarm.Role]float64, len(in))
	for name, v := range in {
		r, err := swarm.ParseRole(name)
		if err != nil {
			return nil, err
		}
		out[r] = v
	}
	return out, nil
}

func parseEmotionTable(in map[string]float64) (map[swarm.Emotion]float64, error) {
	out := make(map[swarm.Emotion]float64, len(in))
	for name, v := range in {
		e, err := swarm.ParseEmotion(name)
		if err != nil {
			return nil, err
		}
		out[e] = v
	}
	return out, nil
}

func roleTableNames(in map[swarm.Role]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for r, v := range in {
		out[r.String()] = v
	}
	return out
}

func emotionTableNames(in map[swarm.Emotion]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for e, v := range in {
		out[e.String()] = v
	}
	return out
}

func compatNames(m [swarm.NumEmotions][swarm.NumEmotions]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, swarm.NumEmotions)
	for a := 0; a < swarm.NumEmotions; a++ {
		row := make(map[string]float64, swarm.NumEmotions)
		for b := 0; b < swarm.NumEmotions; b++ {
			row[swarm.Emotion(b).String()] = m[a][b]
		}
		out[swarm.Emotion(a).String()] = row
	}
	return out
}

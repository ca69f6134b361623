package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/swarm"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	updateSchema := compile("update.schema.json")
	waveSchema := compile("wave.schema.json")
	transitionsSchema := compile("transitions.schema.json")
	metricsSchema := compile("metrics.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"garden-ui",
	  "subscribe":true
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"S1",
	  "hive_params":{
	    "tick_rate_hz":20,
	    "max_influence_distance":150,
	    "update_interval_ms":100,
	    "process_interval_ms":200
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var update any
	_ = json.Unmarshal([]byte(`{
	  "type":"UPDATE",
	  "protocol_version":"1.0",
	  "agents":[
	    {"id":"bee-1","role":"queen","emotion":"excited","x":10.5,"y":-3.25},
	    {"id":"bee-2","role":"worker","emotion":"calm","x":60.5,"y":-3.25}
	  ]
	}`), &update)
	validate(updateSchema, update)

	var wave any
	_ = json.Unmarshal([]byte(`{
	  "type":"WAVE",
	  "protocol_version":"1.0",
	  "source_id":"bee-1",
	  "emotion":"divine",
	  "intensity":1.5
	}`), &wave)
	validate(waveSchema, wave)

	var transitions any
	_ = json.Unmarshal([]byte(`{
	  "type":"TRANSITIONS",
	  "protocol_version":"1.0",
	  "tick":42,
	  "transitions":[
	    {"target_id":"bee-2","source_emotions":["excited"],"target_emotion":"excited",
	     "strength":1.617,"transition_speed":1.0}
	  ]
	}`), &transitions)
	validate(transitionsSchema, transitions)

	var metrics any
	_ = json.Unmarshal([]byte(`{
	  "type":"METRICS",
	  "protocol_version":"1.0",
	  "tick":42,
	  "agents":2,
	  "metrics":{
	    "active_influences":1,
	    "contagion_events":7,
	    "avg_strength":1.617,
	    "dominant_emotion":"excited",
	    "diversity":0.0
	  }
	}`), &metrics)
	validate(metricsSchema, metrics)
}

// The Go structs must marshal into documents the schemas accept; this guards
// against tag drift between the wire types and schemas/.
func TestSchemas_AcceptMarshaledStructs(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "transitions.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	msg := protocol.TransitionsMsg{
		Type:            protocol.TypeTransitions,
		ProtocolVersion: protocol.Version,
		Tick:            3,
		Transitions: []protocol.Transition{
			protocol.TransitionFrom(swarm.EmotionalInfluence{
				TargetID:        "bee-9",
				SourceEmotions:  []swarm.Emotion{swarm.EmotionProtective},
				TargetEmotion:   swarm.EmotionProtective,
				Strength:        0.93,
				TransitionSpeed: 0.93,
			}),
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("schema rejects marshaled struct: %v", err)
	}
}

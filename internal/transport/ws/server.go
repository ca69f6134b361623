package ws

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/hive"
	"hivesim.ai/internal/sim/swarm"
)

type Server struct {
	hive   *hive.Hive
	params protocol.HiveParams
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(h *hive.Hive, params protocol.HiveParams, logger *log.Logger) *Server {
	return &Server{
		hive:   h,
		params: params,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Agents this session pushed; purged wholesale on disconnect so a
		// vanished UI cannot leave ghost bees influencing the hive.
		owned := make(map[string]bool)

		// Reader loop. Errors go back through out so the writer goroutine
		// stays the only writer on the connection.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(out, msg, owned)
		}

		// Cleanup.
		s.hive.Unsubscribe() <- sessionID
		for id := range owned {
			s.hive.Removals() <- id
		}
	}
}

func (s *Server) route(out chan []byte, msg []byte, owned map[string]bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(out, protocol.ErrProtoBadRequest, "malformed message")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.sendError(out, protocol.ErrProtoVersion, "unsupported protocol_version")
		return
	}

	switch base.Type {
	case protocol.TypeUpdate:
		var m protocol.UpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad UPDATE: "+err.Error())
			return
		}
		batch := make([]swarm.AgentSnapshot, 0, len(m.Agents))
		for _, a := range m.Agents {
			if a.ID == "" {
				continue
			}
			owned[a.ID] = true
			batch = append(batch, swarm.AgentSnapshot{
				ID: a.ID, X: a.X, Y: a.Y, Role: a.Role, Emotion: a.Emotion,
			})
		}
		if len(batch) > 0 {
			s.hive.Updates() <- batch
		}

	case protocol.TypeRemove:
		var m protocol.RemoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad REMOVE: "+err.Error())
			return
		}
		delete(owned, m.AgentID)
		s.hive.Removals() <- m.AgentID

	case protocol.TypeWave:
		var m protocol.WaveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad WAVE: "+err.Error())
			return
		}
		s.hive.Waves() <- hive.WaveRequest{SourceID: m.SourceID, Emotion: m.Emotion, Intensity: m.Intensity, Reply: out}

	case protocol.TypeApplied:
		var m protocol.AppliedMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad APPLIED: "+err.Error())
			return
		}
		s.hive.Applied() <- hive.AppliedReport{AgentID: m.AgentID, Emotion: m.Emotion}

	case protocol.TypeTune:
		var m protocol.TuneMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(out, protocol.ErrProtoBadRequest, "bad TUNE: "+err.Error())
			return
		}
		if field := invalidTunable(m); field != "" {
			s.sendError(out, protocol.ErrBadTunable, "bad tunable "+field)
			return
		}
		s.hive.Tune() <- m

	default:
		s.sendError(out, protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

// invalidTunable names the first TUNE field carrying a value the hive would
// have to reject (negative or NaN); empty means the message is acceptable.
func invalidTunable(m protocol.TuneMsg) string {
	bad := func(v *float64) bool { return v != nil && (math.IsNaN(*v) || *v < 0) }
	switch {
	case bad(m.MaxInfluenceDistance):
		return "max_influence_distance"
	case m.UpdateIntervalMs != nil && *m.UpdateIntervalMs < 0:
		return "update_interval_ms"
	case m.ProcessIntervalMs != nil && *m.ProcessIntervalMs < 0:
		return "process_interval_ms"
	case bad(m.InfluenceStrength):
		return "influence_strength"
	case bad(m.PropagationSpeed):
		return "propagation_speed"
	case bad(m.MomentumConstant):
		return "momentum_constant"
	}
	return ""
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	sessionID = uuid.NewString()
	out = make(chan []byte, 32)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		HiveParams:      s.params,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}

	if hello.Subscribe {
		s.hive.Subscribe() <- hive.SubscribeRequest{SessionID: sessionID, Out: out}
	}
	s.log.Printf("session %s connected (%s, subscribe=%v)", sessionID, hello.ClientName, hello.Subscribe)
	return sessionID, out
}

func (s *Server) sendError(out chan []byte, code, message string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/swarm"
)

// bee is the bot's local view of one agent it drives.
type bee struct {
	id      string
	role    swarm.Role
	emotion swarm.Emotion
	x, y    float64
}

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		count = flag.Int("bees", 12, "number of bees to drive")
		seed  = flag.Int64("seed", 0, "rng seed (0 = time-based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(*seed))

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Subscribe:       true,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	bees := spawnBees(r, *count)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// mu guards bee state and serializes conn writes between the driver
	// goroutine and the read loop.
	var mu sync.Mutex

	// Drive the swarm from a ticker; the read loop below only consumes
	// server output and acknowledges transitions.
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		var step uint64
		for range ticker.C {
			step++
			mu.Lock()
			wander(r, bees)
			update := protocol.UpdateMsg{
				Type:            protocol.TypeUpdate,
				ProtocolVersion: protocol.Version,
			}
			for _, b := range bees {
				update.Agents = append(update.Agents, protocol.AgentUpdate{
					ID: b.id, Role: b.role, Emotion: b.emotion, X: b.x, Y: b.y,
				})
			}
			if err := conn.WriteJSON(update); err != nil {
				mu.Unlock()
				return
			}
			// An occasional wave from a random bee keeps the hive lively.
			if step%40 == 0 {
				src := randomBee(r, bees)
				wave := protocol.WaveMsg{
					Type:            protocol.TypeWave,
					ProtocolVersion: protocol.Version,
					SourceID:        src.id,
					Emotion:         swarm.Emotion(r.Intn(swarm.NumEmotions)),
					Intensity:       0.5 + r.Float64(),
				}
				if err := conn.WriteJSON(wave); err != nil {
					mu.Unlock()
					return
				}
				logger.Printf("WAVE source=%s emotion=%s intensity=%.2f", wave.SourceID, wave.Emotion, wave.Intensity)
			}
			mu.Unlock()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s tick_rate=%d range=%.0f", w.SessionID, w.HiveParams.TickRateHz, w.HiveParams.MaxInfluenceDistance)

		case protocol.TypeTransitions:
			var tr protocol.TransitionsMsg
			if err := json.Unmarshal(msg, &tr); err != nil {
				continue
			}
			mu.Lock()
			handleTransitions(conn, logger, bees, &tr)
			mu.Unlock()

		case protocol.TypeMetrics:
			var m protocol.MetricsMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			logger.Printf("METRICS tick=%d agents=%d active=%d events=%d dominant=%s diversity=%.2f",
				m.Tick, m.Agents, m.Metrics.ActiveInfluences, m.Metrics.ContagionEvents, m.Metrics.DominantEmotion, m.Metrics.Diversity)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)
		}
	}
}

// handleTransitions applies each advisory locally and reports it back with
// APPLIED so the server's momentum history sees the new state.
func handleTransitions(conn *websocket.Conn, logger *log.Logger, bees map[string]*bee, tr *protocol.TransitionsMsg) {
	for _, t := range tr.Transitions {
		b, ok := bees[t.TargetID]
		if !ok {
			continue
		}
		b.emotion = t.TargetEmotion
		applied := protocol.AppliedMsg{
			Type:            protocol.TypeApplied,
			ProtocolVersion: protocol.Version,
			AgentID:         t.TargetID,
			Emotion:         t.TargetEmotion,
		}
		if err := conn.WriteJSON(applied); err != nil {
			return
		}
	}
	if len(tr.Transitions) > 0 {
		logger.Printf("tick=%d applied %d transitions", tr.Tick, len(tr.Transitions))
	}
}

func spawnBees(r *rand.Rand, n int) map[string]*bee {
	roles := []swarm.Role{swarm.RoleWorker, swarm.RoleWorker, swarm.RoleWorker, swarm.RoleScout, swarm.RoleGuard, swarm.RoleProphet}
	bees := make(map[string]*bee, n+1)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("bee-%d", i)
		bees[id] = &bee{
			id:      id,
			role:    roles[r.Intn(len(roles))],
			emotion: swarm.Emotion(r.Intn(swarm.NumEmotions)),
			x:       r.Float64() * 400,
			y:       r.Float64() * 400,
		}
	}
	bees["queen"] = &bee{id: "queen", role: swarm.RoleQueen, emotion: swarm.EmotionCalm, x: 200, y: 200}
	return bees
}

func randomBee(r *rand.Rand, bees map[string]*bee) *bee {
	ids := make([]string, 0, len(bees))
	for id := range bees {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return bees[ids[r.Intn(len(ids))]]
}

func wander(r *rand.Rand, bees map[string]*bee) {
	for _, b := range bees {
		if b.role == swarm.RoleQueen {
			continue
		}
		b.x += r.Float64()*30 - 15
		b.y += r.Float64()*30 - 15
		if b.x < 0 {
			b.x = 0
		}
		if b.x > 400 {
			b.x = 400
		}
		if b.y < 0 {
			b.y = 0
		}
		if b.y > 400 {
			b.y = 400
		}
	}
}

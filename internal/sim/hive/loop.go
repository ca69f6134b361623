package hive

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/swarm"
)

// Run drives the hive until ctx is canceled or Stop is called. It is the
// only goroutine allowed to touch the index and engine.
func (h *Hive) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(h.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingUpdates []swarm.AgentSnapshot
	var pendingRemovals []string
	var pendingApplied []AppliedReport
	var pendingTunes []protocol.TuneMsg
	var pendingWaves []WaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case batch := <-h.updates:
			pendingUpdates = append(pendingUpdates, batch...)
		case id := <-h.removals:
			pendingRemovals = append(pendingRemovals, id)
		case rep := <-h.applied:
			pendingApplied = append(pendingApplied, rep)
		case msg := <-h.tune:
			pendingTunes = append(pendingTunes, msg)
		case req := <-h.waves:
			pendingWaves = append(pendingWaves, req)
		case req := <-h.subscribe:
			h.subscribers[req.SessionID] = req.Out
		case id := <-h.unsubscribe:
			delete(h.subscribers, id)
		case <-ticker.C:
			h.stepInternal(pendingUpdates, pendingRemovals, pendingApplied, pendingTunes, pendingWaves)
			pendingUpdates = pendingUpdates[:0]
			pendingRemovals = pendingRemovals[:0]
			pendingApplied = pendingApplied[:0]
			pendingTunes = pendingTunes[:0]
			pendingWaves = pendingWaves[:0]
		}
	}
}

// StepOnce advances the hive by a single tick with the same ordering
// semantics as the server loop. Intended for tests and deterministic drives.
func (h *Hive) StepOnce(updates []swarm.AgentSnapshot, removals []string, applied []AppliedReport, waves []WaveRequest) []protocol.Transition {
	return h.stepInternal(updates, removals, applied, nil, waves)
}

func (h *Hive) stepInternal(updates []swarm.AgentSnapshot, removals []string, applied []AppliedReport, tunes []protocol.TuneMsg, waves []WaveRequest) []protocol.Transition {
	nowTick := h.tick.Load()

	for _, msg := range tunes {
		h.applyTune(msg)
	}

	// History first: an APPLIED report and the matching UPDATE may arrive in
	// the same tick, and momentum must see the applied state.
	for _, rep := range applied {
		h.engine.RecordHistory(rep.AgentID, rep.Emotion)
	}

	for _, snap := range updates {
		h.index.UpdatePosition(snap)
	}
	for _, id := range removals {
		h.index.RemoveAgent(id)
		h.engine.RemoveAgent(id)
	}

	// A throttled pass returns its cached result; only a fresh pass may be
	// published, or every transition would be re-journaled and re-applied on
	// each of the ~4 loop ticks inside one process interval.
	advisories, ran := h.engine.ProcessTick()

	// Waves land after the pass so they overwrite this cycle's advisories.
	byTarget := make(map[string]swarm.EmotionalInfluence, len(advisories))
	if ran {
		for _, adv := range advisories {
			byTarget[adv.TargetID] = adv
		}
	}
	for _, req := range waves {
		if _, ok := h.index.Snapshot(req.SourceID); !ok {
			h.replyError(req.Reply, protocol.ErrUnknownAgent, "unknown wave source "+req.SourceID)
			continue
		}
		for _, adv := range h.engine.TriggerWave(req.SourceID, req.Emotion, req.Intensity) {
			byTarget[adv.TargetID] = adv
		}
	}

	transitions := make([]protocol.Transition, 0, len(byTarget))
	for _, adv := range byTarget {
		transitions = append(transitions, protocol.TransitionFrom(adv))
	}
	sort.Slice(transitions, func(i, j int) bool { return transitions[i].TargetID < transitions[j].TargetID })

	h.publish(nowTick, transitions)
	h.tick.Add(1)
	return transitions
}

func (h *Hive) applyTune(msg protocol.TuneMsg) {
	var prox swarm.ProximityOptions
	prox.MaxInfluenceDistance = msg.MaxInfluenceDistance
	if msg.UpdateIntervalMs != nil {
		d := time.Duration(*msg.UpdateIntervalMs) * time.Millisecond
		prox.UpdateInterval = &d
	}
	h.index.Configure(prox)

	var cont swarm.ContagionOptions
	cont.InfluenceStrength = msg.InfluenceStrength
	cont.PropagationSpeed = msg.PropagationSpeed
	cont.MomentumConstant = msg.MomentumConstant
	if msg.ProcessIntervalMs != nil {
		d := time.Duration(*msg.ProcessIntervalMs) * time.Millisecond
		cont.ProcessInterval = &d
	}
	h.engine.Configure(cont)
}

func (h *Hive) publish(nowTick uint64, transitions []protocol.Transition) {
	agents := h.index.Len()

	if len(transitions) > 0 {
		msg := protocol.TransitionsMsg{
			Type:            protocol.TypeTransitions,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Transitions:     transitions,
		}
		h.broadcast(msg)
		if h.journal != nil {
			h.journal.AppendTransitions(nowTick, transitions)
		}
	}

	var metricsBody *protocol.MetricsBody
	if nowTick%uint64(h.cfg.MetricsEveryTicks) == 0 {
		m := protocol.MetricsFrom(h.engine.Metrics())
		metricsBody = &m
		h.broadcast(protocol.MetricsMsg{
			Type:            protocol.TypeMetrics,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Agents:          agents,
			Metrics:         m,
		})
		if h.journal != nil {
			h.journal.AppendMetrics(nowTick, agents, m)
		}
	}

	if h.tickLogger != nil && (len(transitions) > 0 || metricsBody != nil) {
		entry := TickLogEntry{
			Tick:        nowTick,
			At:          time.Now().UTC(),
			Transitions: transitions,
			Metrics:     metricsBody,
			Agents:      agents,
		}
		if err := h.tickLogger.WriteTick(entry); err != nil {
			h.log.Printf("tick log: %v", err)
		}
	}
}

// replyError pushes an ERROR message to the session that issued a request.
// Nil reply channels (internal callers) are fine.
func (h *Hive) replyError(out chan []byte, code, message string) {
	if out == nil {
		return
	}
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	sendLatest(out, b)
}

func (h *Hive) broadcast(v any) {
	if len(h.subscribers) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("broadcast marshal: %v", err)
		return
	}
	for _, ch := range h.subscribers {
		sendLatest(ch, b)
	}
}

// sendLatest delivers b without blocking the loop: if the subscriber is
// full, the oldest queued message is dropped in its favor.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

package hive

import (
	"io"
	"log"
	"sync/atomic"
	"time"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/swarm"
)

type Config struct {
	TickRateHz        int
	MetricsEveryTicks int
}

// TickLogEntry is one JSONL record per tick that produced output.
type TickLogEntry struct {
	Tick        uint64                `json:"tick"`
	At          time.Time             `json:"at"`
	Transitions []protocol.Transition `json:"transitions,omitempty"`
	Metrics     *protocol.MetricsBody `json:"metrics,omitempty"`
	Agents      int                   `json:"agents"`
}

// TickLogger receives tick entries. Implemented in internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Journal receives durable rows. Implemented in internal/persistence/journal.
type Journal interface {
	AppendTransitions(tick uint64, transitions []protocol.Transition)
	AppendMetrics(tick uint64, agents int, m protocol.MetricsBody)
}

type WaveRequest struct {
	SourceID  string
	Emotion   swarm.Emotion
	Intensity float64

	// Reply, when set, receives an ERROR message if the wave is rejected
	// (unknown source). Internal callers may leave it nil.
	Reply chan []byte
}

type AppliedReport struct {
	AgentID string
	Emotion swarm.Emotion
}

type SubscribeRequest struct {
	SessionID string
	Out       chan []byte
}

// Hive is the single-threaded simulation runtime. It owns one ProximityIndex
// and one ContagionEngine; all state must be accessed only from the hive
// loop goroutine. Transport sessions talk to it exclusively through channels.
type Hive struct {
	cfg    Config
	index  *swarm.ProximityIndex
	engine *swarm.ContagionEngine
	log    *log.Logger

	tick atomic.Uint64

	updates     chan []swarm.AgentSnapshot
	removals    chan string
	waves       chan WaveRequest
	applied     chan AppliedReport
	tune        chan protocol.TuneMsg
	subscribe   chan SubscribeRequest
	unsubscribe chan string
	stop        chan struct{}

	subscribers map[string]chan []byte

	// Optional sinks (may be nil).
	tickLogger TickLogger
	journal    Journal
}

func New(cfg Config, index *swarm.ProximityIndex, engine *swarm.ContagionEngine, logger *log.Logger) *Hive {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.MetricsEveryTicks <= 0 {
		cfg.MetricsEveryTicks = 20
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hive{
		cfg:         cfg,
		index:       index,
		engine:      engine,
		log:         logger,
		updates:     make(chan []swarm.AgentSnapshot, 256),
		removals:    make(chan string, 256),
		waves:       make(chan WaveRequest, 64),
		applied:     make(chan AppliedReport, 256),
		tune:        make(chan protocol.TuneMsg, 16),
		subscribe:   make(chan SubscribeRequest, 16),
		unsubscribe: make(chan string, 16),
		stop:        make(chan struct{}),
		subscribers: make(map[string]chan []byte),
	}
}

func (h *Hive) SetTickLogger(l TickLogger) { h.tickLogger = l }
func (h *Hive) SetJournal(j Journal)       { h.journal = j }

func (h *Hive) Updates() chan<- []swarm.AgentSnapshot { return h.updates }
func (h *Hive) Removals() chan<- string               { return h.removals }
func (h *Hive) Waves() chan<- WaveRequest             { return h.waves }
func (h *Hive) Applied() chan<- AppliedReport         { return h.applied }
func (h *Hive) Tune() chan<- protocol.TuneMsg         { return h.tune }
func (h *Hive) Subscribe() chan<- SubscribeRequest    { return h.subscribe }
func (h *Hive) Unsubscribe() chan<- string            { return h.unsubscribe }

func (h *Hive) CurrentTick() uint64 { return h.tick.Load() }

func (h *Hive) Stop() { close(h.stop) }

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"hivesim.ai/internal/protocol"
)

// SQLiteJournal records emitted transitions and metrics snapshots off the
// hive loop. Writes are queued to a single writer goroutine and batched into
// transactions; if the writer falls behind, rows are dropped rather than
// stalling the sim (the JSONL logs remain the source of truth).
type SQLiteJournal struct {
	db *sql.DB

	insertTransition *sql.Stmt
	insertMetrics    *sql.Stmt

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTransitions reqKind = iota + 1
	reqMetrics
)

type req struct {
	kind reqKind

	tick        uint64
	transitions []protocol.Transition
	agents      int
	metrics     protocol.MetricsBody
}

func Open(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	insertTransition, err := db.Prepare(`INSERT OR REPLACE INTO transitions(tick,seq,target_id,target_emotion,strength,transition_speed,source_emotions,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	insertMetrics, err := db.Prepare(`INSERT OR REPLACE INTO metrics(tick,agents,active_influences,contagion_events,avg_strength,dominant_emotion,diversity,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = insertTransition.Close()
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{
		db:               db,
		insertTransition: insertTransition,
		insertMetrics:    insertMetrics,
		ch:               make(chan req, 16384),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			target_id TEXT NOT NULL,
			target_emotion TEXT NOT NULL,
			strength REAL NOT NULL,
			transition_speed REAL NOT NULL,
			source_emotions TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_target_tick ON transitions(target_id, tick);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			tick INTEGER PRIMARY KEY,
			agents INTEGER NOT NULL,
			active_influences INTEGER NOT NULL,
			contagion_events INTEGER NOT NULL,
			avg_strength REAL NOT NULL,
			dominant_emotion TEXT NOT NULL,
			diversity REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		_ = j.insertTransition.Close()
		_ = j.insertMetrics.Close()
		err = j.db.Close()
	})
	return err
}

// AppendTransitions implements hive.Journal.
func (j *SQLiteJournal) AppendTransitions(tick uint64, transitions []protocol.Transition) {
	if j == nil || j.closed.Load() || len(transitions) == 0 {
		return
	}
	select {
	case j.ch <- req{kind: reqTransitions, tick: tick, transitions: transitions}:
	default:
	}
}

// AppendMetrics implements hive.Journal.
func (j *SQLiteJournal) AppendMetrics(tick uint64, agents int, m protocol.MetricsBody) {
	if j == nil || j.closed.Load() {
		return
	}
	select {
	case j.ch <- req{kind: reqMetrics, tick: tick, agents: agents, metrics: m}:
	default:
	}
}

func (j *SQLiteJournal) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range j.ch {
		begin()
		if tx == nil {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqTransitions:
			failed := false
			for seq, tr := range r.transitions {
				emotions, _ := json.Marshal(tr.SourceEmotions)
				if _, err := tx.Stmt(j.insertTransition).Exec(
					int64(r.tick), seq, tr.TargetID, tr.TargetEmotion.String(),
					tr.Strength, tr.TransitionSpeed, string(emotions), now,
				); err != nil {
					rollback()
					failed = true
					break
				}
				opCount++
			}
			if failed {
				continue
			}
		case reqMetrics:
			if _, err := tx.Stmt(j.insertMetrics).Exec(
				int64(r.tick), r.agents, r.metrics.ActiveInfluences,
				int64(r.metrics.ContagionEvents), r.metrics.AvgStrength,
				r.metrics.DominantEmotion.String(), r.metrics.Diversity, now,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

// TransitionRow is one persisted advisory.
type TransitionRow struct {
	Tick            uint64
	TargetID        string
	TargetEmotion   string
	Strength        float64
	TransitionSpeed float64
}

// RecentTransitions returns up to limit rows, newest tick first.
func (j *SQLiteJournal) RecentTransitions(limit int) ([]TransitionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`SELECT tick,target_id,target_emotion,strength,transition_speed FROM transitions ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var tick int64
		if err := rows.Scan(&tick, &r.TargetID, &r.TargetEmotion, &r.Strength, &r.TransitionSpeed); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MetricsRow is one persisted metrics snapshot.
type MetricsRow struct {
	Tick             uint64
	Agents           int
	ActiveInfluences int
	ContagionEvents  uint64
	AvgStrength      float64
	DominantEmotion  string
	Diversity        float64
}

// LatestMetrics returns the most recent metrics snapshot, if any.
func (j *SQLiteJournal) LatestMetrics() (*MetricsRow, error) {
	row := j.db.QueryRow(`SELECT tick,agents,active_influences,contagion_events,avg_strength,dominant_emotion,diversity FROM metrics ORDER BY tick DESC LIMIT 1`)
	var m MetricsRow
	var tick, events int64
	err := row.Scan(&tick, &m.Agents, &m.ActiveInfluences, &events, &m.AvgStrength, &m.DominantEmotion, &m.Diversity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Tick = uint64(tick)
	m.ContagionEvents = uint64(events)
	return &m, nil
}

package journal

import (
	"os"
	"path/filepath"
	"testing"

	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/swarm"
)

func TestSQLiteJournal_TransitionsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	j.AppendTransitions(7, []protocol.Transition{
		{
			TargetID:        "bee-2",
			SourceEmotions:  []swarm.Emotion{swarm.EmotionExcited},
			TargetEmotion:   swarm.EmotionExcited,
			Strength:        1.617,
			TransitionSpeed: 1.0,
		},
	})
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	rows, err := j2.RecentTransitions(10)
	if err != nil {
		t.Fatalf("RecentTransitions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: got %d want 1", len(rows))
	}
	r := rows[0]
	if r.Tick != 7 || r.TargetID != "bee-2" || r.TargetEmotion != "excited" {
		t.Fatalf("row mismatch: %+v", r)
	}
	if r.Strength != 1.617 || r.TransitionSpeed != 1.0 {
		t.Fatalf("row values: %+v", r)
	}
}

func TestSQLiteJournal_LatestMetrics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for tick := uint64(0); tick < 3; tick++ {
		j.AppendMetrics(tick*20, 5, protocol.MetricsBody{
			ActiveInfluences: int(tick),
			ContagionEvents:  tick * 2,
			AvgStrength:      0.5,
			DominantEmotion:  swarm.EmotionFocused,
			Diversity:        0.25,
		})
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	m, err := j2.LatestMetrics()
	if err != nil {
		t.Fatalf("LatestMetrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected a metrics row")
	}
	if m.Tick != 40 || m.Agents != 5 || m.ContagionEvents != 4 || m.DominantEmotion != "focused" {
		t.Fatalf("row mismatch: %+v", m)
	}
}

func TestSQLiteJournal_OpenRejectsBadPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}

	dir := t.TempDir()
	occupied := filepath.Join(dir, "occupied")
	if err := os.WriteFile(occupied, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Parent is a regular file: Open must fail instead of handing back a
	// journal whose writer would blow up later.
	if _, err := Open(filepath.Join(occupied, "journal.db")); err == nil {
		t.Fatal("expected error when the parent path is a file")
	}
}

func TestSQLiteJournal_EmptyMetrics(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	m, err := j.LatestMetrics()
	if err != nil {
		t.Fatalf("LatestMetrics: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil on empty journal, got %+v", m)
	}
}

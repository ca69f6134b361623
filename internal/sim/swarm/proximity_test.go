package swarm

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIndex(clk *fakeClock) *ProximityIndex {
	ix := NewProximityIndex(DefaultProximityConfig())
	ix.now = clk.now
	return ix
}

func bee(id string, x, y float64, role Role, emotion Emotion) AgentSnapshot {
	return AgentSnapshot{ID: id, X: x, Y: y, Role: role, Emotion: emotion}
}

func TestProximityIndex_RangeCutoff(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("a", 0, 0, RoleQueen, EmotionExcited))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 200, 0, RoleWorker, EmotionCalm))

	if got := ix.InfluencesFor("a"); len(got) != 0 {
		t.Fatalf("a should have no influences at 200 units, got %d", len(got))
	}
	if got := ix.InfluencesFor("b"); len(got) != 0 {
		t.Fatalf("b should have no influences at 200 units, got %d", len(got))
	}
}

func TestProximityIndex_QueenExcitedScenario(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("queen", 0, 0, RoleQueen, EmotionExcited))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("worker", 50, 0, RoleWorker, EmotionCalm))

	infs := ix.InfluencesFor("worker")
	if len(infs) != 1 {
		t.Fatalf("expected 1 influence, got %d", len(infs))
	}
	inf := infs[0]
	if inf.SourceID != "queen" || inf.TargetID != "worker" {
		t.Fatalf("wrong endpoints: %+v", inf)
	}
	if inf.Distance != 50 {
		t.Fatalf("distance: got %v want 50", inf.Distance)
	}
	// base = 1 - (50/150)^2, times queen 2.0 and excited 1.3.
	want := (1 - math.Pow(50.0/150.0, 2)) * 2.0 * 1.3
	if math.Abs(inf.Strength-want) > 1e-9 {
		t.Fatalf("strength: got %v want %v", inf.Strength, want)
	}
	if inf.Emotion != EmotionExcited {
		t.Fatalf("emotion: got %v", inf.Emotion)
	}
	// excited vs calm compatibility is 0.3 < 0.5: fast decay tier.
	if inf.Decay != 0.85 {
		t.Fatalf("decay: got %v want 0.85", inf.Decay)
	}
}

func TestProximityIndex_CompatibleDecayTier(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("a", 0, 0, RoleQueen, EmotionCalm))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 50, 0, RoleWorker, EmotionFocused))

	infs := ix.InfluencesFor("b")
	if len(infs) != 1 {
		t.Fatalf("expected 1 influence, got %d", len(infs))
	}
	// calm vs focused compatibility is 0.7 >= 0.5: slow decay tier.
	if infs[0].Decay != 0.95 {
		t.Fatalf("decay: got %v want 0.95", infs[0].Decay)
	}
}

func TestProximityIndex_SignificanceThreshold(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	// A calm worker at 141 units: base*0.8 ~ 0.093, below the 0.1 floor.
	ix.UpdatePosition(bee("far", 0, 0, RoleWorker, EmotionCalm))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("target", 141, 0, RoleWorker, EmotionCalm))

	if got := ix.InfluencesFor("target"); len(got) != 0 {
		t.Fatalf("sub-threshold influence should be omitted, got %+v", got)
	}

	// Move closer: at 100 units the same pair clears the threshold.
	clk.advance(time.Second)
	ix.UpdatePosition(bee("far", 41, 0, RoleWorker, EmotionCalm))
	if got := ix.InfluencesFor("target"); len(got) != 1 {
		t.Fatalf("expected influence at 100 units, got %d", len(got))
	}
}

func TestProximityIndex_SortedByDescendingStrength(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("near", 10, 0, RoleWorker, EmotionCalm))
	ix.UpdatePosition(bee("mid", 60, 0, RoleWorker, EmotionCalm))
	ix.UpdatePosition(bee("queen", 100, 0, RoleQueen, EmotionDivine))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("target", 0, 0, RoleWorker, EmotionCalm))

	infs := ix.InfluencesFor("target")
	if len(infs) < 2 {
		t.Fatalf("expected several influences, got %d", len(infs))
	}
	for i := 1; i < len(infs); i++ {
		if infs[i].Strength > infs[i-1].Strength {
			t.Fatalf("not sorted at %d: %v > %v", i, infs[i].Strength, infs[i-1].Strength)
		}
	}
}

func TestProximityIndex_RemovePurgesAllReferences(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("a", 0, 0, RoleQueen, EmotionExcited))
	ix.UpdatePosition(bee("b", 30, 0, RoleWorker, EmotionCalm))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("c", 60, 0, RoleGuard, EmotionProtective))

	if len(ix.InfluencesFor("b")) == 0 {
		t.Fatal("setup: b should be influenced")
	}

	ix.RemoveAgent("a")
	if _, ok := ix.Snapshot("a"); ok {
		t.Fatal("snapshot should be gone")
	}
	if got := ix.InfluencesFor("a"); len(got) != 0 {
		t.Fatalf("removed agent still has influences: %+v", got)
	}
	for _, id := range []string{"b", "c"} {
		for _, inf := range ix.InfluencesFor(id) {
			if inf.SourceID == "a" {
				t.Fatalf("dangling source reference on %s: %+v", id, inf)
			}
		}
	}

	// Idempotent.
	ix.RemoveAgent("a")
	ix.RemoveAgent("never-existed")
}

func TestProximityIndex_UpdateThrottle(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("a", 0, 0, RoleQueen, EmotionExcited))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 50, 0, RoleWorker, EmotionCalm))
	before := ix.InfluencesFor("b")
	if len(before) != 1 {
		t.Fatalf("setup: expected 1 influence, got %d", len(before))
	}

	// Within the interval the snapshot refreshes but lists stay stale.
	clk.advance(10 * time.Millisecond)
	ix.UpdatePosition(bee("a", 500, 0, RoleQueen, EmotionExcited))
	if got := ix.InfluencesFor("b"); len(got) != 1 {
		t.Fatalf("throttled update must not recompute, got %d influences", len(got))
	}

	// Past the interval the move takes effect.
	clk.advance(200 * time.Millisecond)
	ix.UpdatePosition(bee("a", 500, 0, RoleQueen, EmotionExcited))
	if got := ix.InfluencesFor("b"); len(got) != 0 {
		t.Fatalf("expected recompute to drop out-of-range influence, got %d", len(got))
	}
}

func TestProximityIndex_ConfigureClamps(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	neg := -50.0
	ix.Configure(ProximityOptions{MaxInfluenceDistance: &neg})
	if ix.cfg.MaxInfluenceDistance != 0 {
		t.Fatalf("negative distance should clamp to 0, got %v", ix.cfg.MaxInfluenceDistance)
	}

	ok := 80.0
	ix.Configure(ProximityOptions{MaxInfluenceDistance: &ok})
	nan := math.NaN()
	ix.Configure(ProximityOptions{MaxInfluenceDistance: &nan})
	if ix.cfg.MaxInfluenceDistance != 80 {
		t.Fatalf("NaN should keep previous value, got %v", ix.cfg.MaxInfluenceDistance)
	}

	negIv := -time.Second
	iv := 250 * time.Millisecond
	ix.Configure(ProximityOptions{UpdateInterval: &iv})
	ix.Configure(ProximityOptions{UpdateInterval: &negIv})
	if ix.cfg.UpdateInterval != iv {
		t.Fatalf("negative interval should keep previous value, got %v", ix.cfg.UpdateInterval)
	}
}

func TestProximityIndex_ConfigureShrinksRange(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("a", 0, 0, RoleQueen, EmotionExcited))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 100, 0, RoleWorker, EmotionCalm))
	if len(ix.InfluencesFor("b")) != 1 {
		t.Fatal("setup: expected influence at 100 units")
	}

	shorter := 90.0
	ix.Configure(ProximityOptions{MaxInfluenceDistance: &shorter})
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 100, 0, RoleWorker, EmotionCalm))
	if got := ix.InfluencesFor("b"); len(got) != 0 {
		t.Fatalf("expected no influence after shrinking range, got %d", len(got))
	}
}

func TestProximityIndex_AllSnapshotsSortedCopy(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("z", 0, 0, RoleWorker, EmotionCalm))
	ix.UpdatePosition(bee("a", 1, 1, RoleScout, EmotionFocused))

	snaps := ix.AllSnapshots()
	if len(snaps) != 2 || snaps[0].ID != "a" || snaps[1].ID != "z" {
		t.Fatalf("want sorted [a z], got %+v", snaps)
	}
	if snaps[0].UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt should be stamped")
	}

	snaps[0].X = 999
	if fresh := ix.AllSnapshots(); fresh[0].X == 999 {
		t.Fatal("AllSnapshots must return a copy")
	}
}

func TestProximityIndex_NaNPositionNeverInfluences(t *testing.T) {
	clk := newFakeClock()
	ix := newTestIndex(clk)

	ix.UpdatePosition(bee("broken", math.NaN(), 0, RoleQueen, EmotionExcited))
	clk.advance(time.Second)
	ix.UpdatePosition(bee("b", 10, 0, RoleWorker, EmotionCalm))

	if got := ix.InfluencesFor("b"); len(got) != 0 {
		t.Fatalf("NaN-positioned agent must not influence, got %+v", got)
	}
}

package services

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestQueue(clock *fakeClock) *QueueService {
	q := NewQueueService()
	q.now = clock.Now
	return q
}

func TestJoinRejectsDuplicate(t *testing.T) {
	q := newTestQueue(newFakeClock())

	if !q.Join(1, 1500, "english") {
		t.Fatal("first join should succeed")
	}
	if q.Join(1, 1500, "english") {
		t.Error("second join of the same player should return false")
	}
	if q.Join(1, 1500, "spanish") {
		t.Error("joining another language while queued should return false")
	}
}

func TestLeave(t *testing.T) {
	q := newTestQueue(newFakeClock())

	q.Join(1, 1500, "english")
	if !q.Leave(1) {
		t.Error("leave should succeed for a queued player")
	}
	if q.Leave(1) {
		t.Error("leave should fail for a player no longer queued")
	}
	if q.IsQueued(1) {
		t.Error("player should not be queued after leaving")
	}
}

func TestSweepNeedsTwoPlayers(t *testing.T) {
	q := newTestQueue(newFakeClock())

	if _, ok := q.Sweep("english"); ok {
		t.Error("sweep of an empty pool should produce nothing")
	}
	q.Join(1, 1500, "english")
	if _, ok := q.Sweep("english"); ok {
		t.Error("sweep of a single-player pool should produce nothing")
	}
}

func TestSweepToleranceBoundary(t *testing.T) {
	tests := []struct {
		name      string
		ratingA   int
		ratingB   int
		wantMatch bool
	}{
		{"equal ratings", 1500, 1500, true},
		{"exactly 150 apart", 1500, 1650, true},
		{"just over 150 apart", 1500, 1651, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueue(newFakeClock())
			q.Join(1, tt.ratingA, "english")
			q.Join(2, tt.ratingB, "english")

			_, ok := q.Sweep("english")
			if ok != tt.wantMatch {
				t.Errorf("sweep with ratings %d/%d: matched=%v, want %v", tt.ratingA, tt.ratingB, ok, tt.wantMatch)
			}
		})
	}
}

func TestSweepToleranceWidensAfterNinetySeconds(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	q.Join(1, 1500, "english")
	q.Join(2, 1680, "english") // 180 apart, beyond the base tolerance

	if _, ok := q.Sweep("english"); ok {
		t.Fatal("players 180 apart should not match before the tolerance widens")
	}

	clock.Advance(89 * time.Second)
	if _, ok := q.Sweep("english"); ok {
		t.Fatal("tolerance should not widen before 90 seconds of waiting")
	}

	clock.Advance(1 * time.Second)
	pairing, ok := q.Sweep("english")
	if !ok {
		t.Fatal("players 180 apart should match once the lower-rated one waited 90s")
	}
	if pairing.PlayerA.UserID != 1 || pairing.PlayerB.UserID != 2 {
		t.Errorf("unexpected pairing %d vs %d", pairing.PlayerA.UserID, pairing.PlayerB.UserID)
	}
	if q.IsQueued(1) || q.IsQueued(2) {
		t.Error("matched players must leave the pool")
	}
}

func TestSweepPicksClosestRating(t *testing.T) {
	q := newTestQueue(newFakeClock())

	q.Join(1, 1500, "english")
	q.Join(2, 1640, "english")
	q.Join(3, 1520, "english")

	pairing, ok := q.Sweep("english")
	if !ok {
		t.Fatal("expected a pairing")
	}
	if pairing.PlayerA.UserID != 1 || pairing.PlayerB.UserID != 3 {
		t.Errorf("got pairing %d vs %d, want 1 vs 3 (closest rating)", pairing.PlayerA.UserID, pairing.PlayerB.UserID)
	}
	if !q.IsQueued(2) {
		t.Error("unmatched player should stay in the pool")
	}
}

func TestSweepIsolatedPerLanguage(t *testing.T) {
	q := newTestQueue(newFakeClock())

	q.Join(1, 1500, "english")
	q.Join(2, 1500, "spanish")

	if _, ok := q.Sweep("english"); ok {
		t.Error("players in different languages must never pair")
	}
}

func TestReap(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(clock)

	q.Join(1, 1500, "english")
	clock.Advance(10 * time.Minute)
	q.Join(2, 1500, "spanish")
	clock.Advance(6 * time.Minute) // player 1 is now 16 minutes old

	reaped := q.Reap(15 * time.Minute)
	if len(reaped) != 1 || reaped[0].UserID != 1 {
		t.Fatalf("reap returned %+v, want only player 1", reaped)
	}
	if q.IsQueued(1) {
		t.Error("reaped player should be gone")
	}
	if !q.IsQueued(2) {
		t.Error("fresh player should remain queued")
	}
}

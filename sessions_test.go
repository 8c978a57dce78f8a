package main

import (
	"testing"
	"time"
)

func testCache(t *testing.T) (*SessionCache, *time.Time) {
	t.Helper()
	c := NewSessionCache(15 * time.Second)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &now
	c.now = func() time.Time { return *clock }
	return c, clock
}

func workPayload(id, userID string) SessionPayload {
	return SessionPayload{ID: id, UserID: userID, Username: "ann", Task: "write report", Type: KindWork, Duration: 25}
}

func TestSessionCache_StartSupersedesSameIdentity(t *testing.T) {
	c, _ := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))
	res := c.Start("c1", workPayload("s2", "u1"))

	if len(res.Superseded) != 1 || res.Superseded[0].ID != "s1" {
		t.Fatalf("expected s1 superseded, got %+v", res.Superseded)
	}
	if c.Len() != 1 || c.Get("s2") == nil {
		t.Fatalf("cache must converge to exactly the new session, have %d", c.Len())
	}
}

func TestSessionCache_StartFromOtherConnectionSameIdentity(t *testing.T) {
	c, _ := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))
	c.Start("c2", workPayload("s2", "u1"))
	if c.Len() != 1 || c.Get("s2") == nil {
		t.Fatalf("same identity on another tab must still supersede, have %d sessions", c.Len())
	}
}

func TestSessionCache_EndOwnershipGate(t *testing.T) {
	c, _ := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))

	outcome, _ := c.End("c2", "u2", "", "s1")
	if outcome != EndNotOwner {
		t.Fatalf("non-owner end must be rejected, got %v", outcome)
	}
	if c.Get("s1") == nil {
		t.Fatal("session removed by a non-owning connection")
	}

	outcome, s := c.End("c1", "u1", "", "s1")
	if outcome != EndRemoved || s == nil {
		t.Fatalf("owner end must remove, got %v", outcome)
	}
	if outcome, _ := c.End("c1", "u1", "", "s1"); outcome != EndUnknown {
		t.Errorf("ending a vanished session must be a silent unknown, got %v", outcome)
	}
}

func TestSessionCache_EndAfterDisconnectBySameIdentity(t *testing.T) {
	c, _ := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))
	c.ReleaseConn("c1")

	if outcome, _ := c.End("c9", "u2", "", "s1"); outcome != EndNotOwner {
		t.Fatalf("different identity must not claim an ownerless session, got %v", outcome)
	}
	if outcome, _ := c.End("c2", "u1", "", "s1"); outcome != EndRemoved {
		t.Fatalf("reconnected owner identity must be able to end, got %v", outcome)
	}
}

func TestSessionCache_PauseFreezesCountdown(t *testing.T) {
	c, clock := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))

	*clock = clock.Add(5 * time.Minute)
	if !c.SetPaused("s1", true) {
		t.Fatal("pause on an active session must apply")
	}
	remAtPause := c.Get("s1").Remaining(*clock)

	*clock = clock.Add(10 * time.Minute)
	if got := c.Get("s1").Remaining(*clock); got != remAtPause {
		t.Errorf("remaining must freeze while paused: %d != %d", got, remAtPause)
	}

	if !c.SetPaused("s1", false) {
		t.Fatal("resume on a paused session must apply")
	}
	if got := c.Get("s1").Remaining(*clock); got != remAtPause {
		t.Errorf("resume must not lose time: %d != %d", got, remAtPause)
	}
	*clock = clock.Add(time.Minute)
	if got := c.Get("s1").Remaining(*clock); got != remAtPause-60 {
		t.Errorf("countdown must run again after resume: got %d, want %d", got, remAtPause-60)
	}
}

func TestSessionCache_PauseUnknownSessionIsNoOp(t *testing.T) {
	c, _ := testCache(t)
	if c.SetPaused("missing", true) {
		t.Error("pausing an unknown session must be a silent no-op")
	}
}

func TestSessionCache_TickThrottlesBroadcasts(t *testing.T) {
	c, clock := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))

	known, broadcast := c.Tick("c1", "s1", 1490)
	if !known || !broadcast {
		t.Fatalf("first tick must broadcast, got known=%v broadcast=%v", known, broadcast)
	}
	*clock = clock.Add(1 * time.Second)
	if _, broadcast := c.Tick("c1", "s1", 1489); broadcast {
		t.Error("tick inside the minimum interval must not broadcast")
	}
	*clock = clock.Add(15 * time.Second)
	if _, broadcast := c.Tick("c1", "s1", 1474); !broadcast {
		t.Error("tick past the minimum interval must broadcast")
	}
}

func TestSessionCache_TickHandsOverOwnership(t *testing.T) {
	c, _ := testCache(t)
	c.Start("c1", workPayload("s1", "u1"))
	c.ReleaseConn("c1")

	c.Tick("c2", "s1", 1200)
	if owner := c.Get("s1").OwnerConn; owner != "c2" {
		t.Errorf("tick must re-anchor ownership to the sender, got %q", owner)
	}

	if known, _ := c.Tick("c2", "missing", 100); known {
		t.Error("tick on an unknown session must be ignored")
	}
}

func TestSessionCache_ExpireOlderThanGrace(t *testing.T) {
	c, clock := testCache(t)
	c.Start("c1", workPayload("s1", "u1")) // 25 min

	*clock = clock.Add(29 * time.Minute)
	if expired := c.ExpireOlderThan(5 * time.Minute); len(expired) != 0 {
		t.Fatalf("session inside the grace window must survive, got %v", expired)
	}

	*clock = clock.Add(2 * time.Minute)
	expired := c.ExpireOlderThan(5 * time.Minute)
	if len(expired) != 1 || expired[0].ID != "s1" {
		t.Fatalf("session past duration+grace must be evicted, got %v", expired)
	}
	if c.Len() != 0 {
		t.Errorf("cache should be empty after expiry, have %d", c.Len())
	}
}

func TestSessionCache_ViewsHideInternalBookkeeping(t *testing.T) {
	c, clock := testCache(t)
	rem := 600
	p := workPayload("s1", "u1")
	p.TimeRemaining = &rem
	c.Start("c1", p)

	views := c.Views()
	if len(views) != 1 {
		t.Fatalf("expected one view, got %d", len(views))
	}
	v := views[0]
	if v.TimeRemaining != rem {
		t.Errorf("anchor must be derived from reported remaining: got %d, want %d", v.TimeRemaining, rem)
	}
	*clock = clock.Add(30 * time.Second)
	if got := c.Views()[0].TimeRemaining; got != rem-30 {
		t.Errorf("countdown must follow the anchor: got %d, want %d", got, rem-30)
	}
}

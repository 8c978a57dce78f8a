package main

import "testing"

func countOnline(transitions []PresenceTransition, userID string, online bool) int {
	n := 0
	for _, t := range transitions {
		if t.UserID == userID && t.Online == online {
			n++
		}
	}
	return n
}

func TestRegistry_SingleTransitionAcrossManyConnections(t *testing.T) {
	r := NewRegistry()

	var all []PresenceTransition
	for _, conn := range []string{"c1", "c2", "c3"} {
		r.RegisterConnection(conn)
		all = append(all, r.AnnounceIdentity(conn, "u1", "", "ann")...)
	}
	if got := countOnline(all, "u1", true); got != 1 {
		t.Fatalf("expected exactly one online transition, got %d", got)
	}

	all = nil
	all = append(all, r.DropConnection("c1")...)
	all = append(all, r.DropConnection("c2")...)
	if got := countOnline(all, "u1", false); got != 0 {
		t.Fatalf("went offline with a connection still open: %v", all)
	}

	all = r.DropConnection("c3")
	if got := countOnline(all, "u1", false); got != 1 {
		t.Fatalf("expected exactly one offline transition on the last drop, got %d", got)
	}
	if len(r.OnlineUsers()) != 0 {
		t.Errorf("no users should remain online, got %v", r.OnlineUsers())
	}
}

func TestRegistry_ReAnnounceSameIdentityIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection("c1")
	first := r.AnnounceIdentity("c1", "u1", "", "ann")
	if countOnline(first, "u1", true) != 1 {
		t.Fatalf("expected online transition on first announce, got %v", first)
	}
	again := r.AnnounceIdentity("c1", "u1", "", "ann")
	if len(again) != 0 {
		t.Fatalf("re-announce must not touch counts, got %v", again)
	}
	if got := r.DropConnection("c1"); countOnline(got, "u1", false) != 1 {
		t.Fatalf("refcount was double-counted: drop produced %v", got)
	}
}

func TestRegistry_IdentitySwitchReleasesOldAssociation(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection("c1")
	r.AnnounceIdentity("c1", "u1", "", "")

	transitions := r.AnnounceIdentity("c1", "u2", "", "")
	if countOnline(transitions, "u1", false) != 1 {
		t.Errorf("old identity must go offline, got %v", transitions)
	}
	if countOnline(transitions, "u2", true) != 1 {
		t.Errorf("new identity must come online, got %v", transitions)
	}
	if users := r.OnlineUsers(); len(users) != 1 || users[0] != "u2" {
		t.Errorf("expected only u2 online, got %v", users)
	}
}

func TestRegistry_GuestAuthenticatingKeepsAnonymousCount(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection("c1")
	r.AnnounceIdentity("c1", "", "anon-1", "")
	if r.OnlineAnonymous() != 1 {
		t.Fatalf("expected one anonymous identity, got %d", r.OnlineAnonymous())
	}

	// guest logs in without reloading the tab
	r.AnnounceIdentity("c1", "u1", "anon-1", "")
	if r.OnlineAnonymous() != 1 {
		t.Errorf("anonymous refcount must survive authentication, got %d", r.OnlineAnonymous())
	}
	if len(r.OnlineUsers()) != 1 {
		t.Errorf("expected user online after authenticating, got %v", r.OnlineUsers())
	}

	r.DropConnection("c1")
	if r.OnlineAnonymous() != 0 || len(r.OnlineUsers()) != 0 {
		t.Errorf("drop must release both identity kinds")
	}
}

func TestRegistry_AnonymousTabsCountOnce(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection("c1")
	r.RegisterConnection("c2")
	r.AnnounceIdentity("c1", "", "anon-1", "")
	r.AnnounceIdentity("c2", "", "anon-1", "")
	if r.OnlineAnonymous() != 1 {
		t.Errorf("two tabs from one guest must count once, got %d", r.OnlineAnonymous())
	}
	r.DropConnection("c1")
	if r.OnlineAnonymous() != 1 {
		t.Errorf("guest still has a tab open, got %d", r.OnlineAnonymous())
	}
	r.DropConnection("c2")
	if r.OnlineAnonymous() != 0 {
		t.Errorf("guest should be gone, got %d", r.OnlineAnonymous())
	}
}

func TestRegistry_PruneGhosts(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnection("live")
	r.RegisterConnection("ghost")
	r.AnnounceIdentity("live", "u1", "", "")
	r.AnnounceIdentity("ghost", "u2", "", "")

	transitions, pruned := r.PruneGhosts(map[string]bool{"live": true})
	if pruned != 1 {
		t.Fatalf("expected one pruned record, got %d", pruned)
	}
	if countOnline(transitions, "u2", false) != 1 {
		t.Errorf("ghost identity must go offline, got %v", transitions)
	}
	if users := r.OnlineUsers(); len(users) != 1 || users[0] != "u1" {
		t.Errorf("live identity must survive the sweep, got %v", users)
	}
}

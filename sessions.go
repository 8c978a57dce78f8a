package main

import (
	"sort"
	"time"
)

// SessionState is the explicit lifecycle state of a cached session.
// Ended is not represented: an ended session is removed from the map.
type SessionState int

const (
	StateActive SessionState = iota
	StatePaused
)

func (s SessionState) String() string {
	if s == StatePaused {
		return "paused"
	}
	return "active"
}

// Session kinds as the web client sends them.
const (
	KindWork         = "WORK"
	KindShortBreak   = "SHORT_BREAK"
	KindLongBreak    = "LONG_BREAK"
	KindTimeTracking = "TIME_TRACKING"
)

// End reasons.
const (
	ReasonManual    = "manual"
	ReasonCompleted = "completed"
	ReasonReset     = "reset"
)

// CachedSession mirrors one persisted focus/break session plus the
// transport-local bookkeeping that never leaves the process.
type CachedSession struct {
	ID          string
	UserID      string
	AnonymousID string
	Username    string
	Task        string
	Kind        string
	Duration    int // minutes
	State       SessionState

	// StartedAt is the wall-clock anchor remaining time is computed
	// from. Pausing records pausedAt; resuming shifts the anchor by
	// the pause length so the countdown freezes while paused.
	StartedAt  time.Time
	LastUpdate time.Time
	OwnerConn  string // empty once the owning connection is gone

	pausedAt      time.Time
	lastBroadcast time.Time
}

func (s *CachedSession) identityKey() string {
	return identityKey(s.UserID, s.AnonymousID)
}

// Remaining returns the seconds left on the countdown at t.
func (s *CachedSession) Remaining(t time.Time) int {
	if s.State == StatePaused {
		t = s.pausedAt
	}
	rem := s.Duration*60 - int(t.Sub(s.StartedAt)/time.Second)
	if rem < 0 {
		return 0
	}
	return rem
}

// SessionView is the client-facing serialization. Owning connection
// and anchor bookkeeping stay internal.
type SessionView struct {
	ID            string `json:"id"`
	UserID        string `json:"userId,omitempty"`
	AnonymousID   string `json:"anonymousId,omitempty"`
	Username      string `json:"username,omitempty"`
	Task          string `json:"task,omitempty"`
	Type          string `json:"type"`
	Duration      int    `json:"duration"`
	TimeRemaining int    `json:"timeRemaining"`
	StartedAt     string `json:"startedAt"`
	IsPaused      bool   `json:"isPaused,omitempty"`
}

// SessionCache is the in-memory mirror of active sessions, keyed by
// the store-owned session id. Hub-goroutine only, no lock.
type SessionCache struct {
	sessions     map[string]*CachedSession
	now          func() time.Time
	minBroadcast time.Duration
}

func NewSessionCache(minBroadcast time.Duration) *SessionCache {
	return &SessionCache{
		sessions:     make(map[string]*CachedSession),
		now:          time.Now,
		minBroadcast: minBroadcast,
	}
}

// StartResult reports what Start/Sync did: the inserted session and
// any same-identity entries it superseded.
type StartResult struct {
	Session    *CachedSession
	Superseded []*CachedSession
}

// Start inserts a freshly announced session, evicting any session
// already held by the same identity or the same connection. The
// superseded entries never count as completed.
func (c *SessionCache) Start(connID string, p SessionPayload) StartResult {
	now := c.now()
	key := identityKey(p.UserID, p.AnonymousID)

	var superseded []*CachedSession
	for id, s := range c.sessions {
		if id == p.ID {
			continue
		}
		if (key != "" && s.identityKey() == key) || (connID != "" && s.OwnerConn == connID) {
			superseded = append(superseded, s)
			delete(c.sessions, id)
		}
	}

	s := &CachedSession{
		ID:          p.ID,
		UserID:      p.UserID,
		AnonymousID: p.AnonymousID,
		Username:    p.Username,
		Task:        p.Task,
		Kind:        p.Type,
		Duration:    p.Duration,
		State:       StateActive,
		StartedAt:   anchorFor(now, p.Duration, p.TimeRemaining),
		LastUpdate:  now,
		OwnerConn:   connID,
	}
	c.sessions[p.ID] = s
	return StartResult{Session: s, Superseded: superseded}
}

// anchorFor back-dates the anchor so the local countdown matches a
// reported remaining time; a fresh session anchors at now.
func anchorFor(now time.Time, durationMin int, remaining *int) time.Time {
	if remaining == nil {
		return now
	}
	elapsed := durationMin*60 - *remaining
	if elapsed < 0 {
		elapsed = 0
	}
	return now.Add(-time.Duration(elapsed) * time.Second)
}

// SetPaused flips the Active↔Paused state. Unknown ids and same-state
// requests are silent no-ops; the session may already have expired
// server-side.
func (c *SessionCache) SetPaused(sessionID string, paused bool) bool {
	s, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	now := c.now()
	switch {
	case paused && s.State == StateActive:
		s.State = StatePaused
		s.pausedAt = now
	case !paused && s.State == StatePaused:
		s.StartedAt = s.StartedAt.Add(now.Sub(s.pausedAt))
		s.State = StateActive
	default:
		return false
	}
	s.LastUpdate = now
	return true
}

// Tick refreshes a session from a client countdown. Ownership follows
// the sender, so a surviving tab of the same identity takes over after
// the original tab is gone. The returned broadcast flag throttles
// session-update fanout to at most one per minBroadcast.
func (c *SessionCache) Tick(connID, sessionID string, remaining int) (known, broadcast bool) {
	s, ok := c.sessions[sessionID]
	if !ok {
		return false, false
	}
	now := c.now()
	s.StartedAt = anchorFor(now, s.Duration, &remaining)
	s.LastUpdate = now
	s.OwnerConn = connID

	if now.Sub(s.lastBroadcast) >= c.minBroadcast {
		s.lastBroadcast = now
		return true, true
	}
	return true, false
}

// EndOutcome classifies an end request.
type EndOutcome int

const (
	EndUnknown EndOutcome = iota
	EndNotOwner
	EndRemoved
)

// End removes a session when the caller is the recorded owner, or when
// the session is ownerless after a disconnect and the caller holds the
// same identity. A stale connection can never delete another tab's
// live session.
func (c *SessionCache) End(connID, userID, anonymousID, sessionID string) (EndOutcome, *CachedSession) {
	s, ok := c.sessions[sessionID]
	if !ok {
		return EndUnknown, nil
	}
	owner := s.OwnerConn == connID
	if !owner && s.OwnerConn == "" {
		key := identityKey(userID, anonymousID)
		owner = key != "" && key == s.identityKey()
	}
	if !owner {
		return EndNotOwner, s
	}
	delete(c.sessions, sessionID)
	return EndRemoved, s
}

// ReleaseConn clears ownership on every session held by a vanished
// connection. The sessions themselves survive the disconnect.
func (c *SessionCache) ReleaseConn(connID string) {
	for _, s := range c.sessions {
		if s.OwnerConn == connID {
			s.OwnerConn = ""
		}
	}
}

// ExpireOlderThan removes sessions whose wall-clock elapsed time
// exceeds the declared duration plus grace, regardless of owner.
func (c *SessionCache) ExpireOlderThan(grace time.Duration) []*CachedSession {
	now := c.now()
	var expired []*CachedSession
	for id, s := range c.sessions {
		deadline := s.StartedAt.Add(time.Duration(s.Duration)*time.Minute + grace)
		if now.After(deadline) {
			expired = append(expired, s)
			delete(c.sessions, id)
		}
	}
	return expired
}

func (c *SessionCache) Get(sessionID string) *CachedSession { return c.sessions[sessionID] }

func (c *SessionCache) Len() int { return len(c.sessions) }

func (c *SessionCache) Reset() { c.sessions = make(map[string]*CachedSession) }

// Views serializes the cache for session-update broadcasts, oldest
// session first.
func (c *SessionCache) Views() []SessionView {
	now := c.now()
	views := make([]SessionView, 0, len(c.sessions))
	for _, s := range c.sessions {
		views = append(views, SessionView{
			ID:            s.ID,
			UserID:        s.UserID,
			AnonymousID:   s.AnonymousID,
			Username:      s.Username,
			Task:          s.Task,
			Type:          s.Kind,
			Duration:      s.Duration,
			TimeRemaining: s.Remaining(now),
			StartedAt:     s.StartedAt.UTC().Format(time.RFC3339),
			IsPaused:      s.State == StatePaused,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].StartedAt == views[j].StartedAt {
			return views[i].ID < views[j].ID
		}
		return views[i].StartedAt < views[j].StartedAt
	})
	return views
}

// identityKey folds the two identity kinds into one map key. An
// authenticated id wins when both are present.
func identityKey(userID, anonymousID string) string {
	if userID != "" {
		return "u:" + userID
	}
	if anonymousID != "" {
		return "a:" + anonymousID
	}
	return ""
}

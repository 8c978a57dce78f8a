package main

import "sort"

// OnlineSnapshot is the aggregate presence payload broadcast to every
// connection on each 0↔1 crossing and on explicit request.
type OnlineSnapshot struct {
	UserIDs        []string `json:"userIds"`
	UserCount      int      `json:"userCount"`
	AnonymousCount int      `json:"anonymousCount"`
	Total          int      `json:"total"`
}

// PresenceTracker derives aggregate presence from the registry's
// reference counts.
type PresenceTracker struct {
	registry *Registry
}

func NewPresenceTracker(r *Registry) *PresenceTracker {
	return &PresenceTracker{registry: r}
}

func (p *PresenceTracker) Snapshot() OnlineSnapshot {
	users := p.registry.OnlineUsers()
	sort.Strings(users)
	anon := p.registry.OnlineAnonymous()
	return OnlineSnapshot{
		UserIDs:        users,
		UserCount:      len(users),
		AnonymousCount: anon,
		Total:          len(users) + anon,
	}
}

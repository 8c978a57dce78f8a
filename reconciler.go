package main

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler converges the session cache toward the authoritative
// active-session list in the persistent store. The fetch happens off
// the hub goroutine; only Merge touches the cache, back on the hub
// queue, so it merges against whatever state exists by the time the
// fetch resolves.
type Reconciler struct {
	cache *SessionCache
	store StoreClient
	grace time.Duration
	log   *slog.Logger
}

func NewReconciler(cache *SessionCache, store StoreClient, grace time.Duration, log *slog.Logger) *Reconciler {
	return &Reconciler{cache: cache, store: store, grace: grace, log: log}
}

// Fetch pulls the authoritative list. An error means the whole cycle
// is skipped; the cache is never partially reconciled from a failed
// response.
func (r *Reconciler) Fetch(ctx context.Context) ([]StoreSession, error) {
	return r.store.ActiveSessions(ctx)
}

// Merge folds an authoritative snapshot into the cache. Unknown
// sessions are inserted with an anchor derived from their reported
// remaining time; known ones are refreshed (the authoritative value
// wins over the locally ticked one); cached sessions missing upstream
// are evicted only once their last update is older than the grace
// window, which tolerates transient store lag without flapping.
// Reports whether the cache changed in a client-visible way.
func (r *Reconciler) Merge(upstream []StoreSession) bool {
	now := r.cache.now()
	seen := make(map[string]bool, len(upstream))
	changed := false

	for _, up := range upstream {
		seen[up.ID] = true
		rem := up.TimeRemaining
		anchor := anchorFor(now, up.Duration, &rem)

		s, ok := r.cache.sessions[up.ID]
		if !ok {
			r.cache.sessions[up.ID] = &CachedSession{
				ID:          up.ID,
				UserID:      up.UserID,
				AnonymousID: up.AnonymousID,
				Username:    up.Username,
				Task:        up.Task,
				Kind:        up.Type,
				Duration:    up.Duration,
				State:       StateActive,
				StartedAt:   anchor,
				LastUpdate:  now,
			}
			changed = true
			r.log.Debug("reconcile: adopted session from store", "session", up.ID, "user", up.UserID)
			continue
		}

		if !s.StartedAt.Equal(anchor) || s.Task != up.Task || s.Kind != up.Type || s.Duration != up.Duration {
			changed = true
		}
		s.StartedAt = anchor
		if s.State == StatePaused {
			// keep the frozen countdown aligned with the new anchor
			s.pausedAt = now
		}
		s.Task = up.Task
		s.Kind = up.Type
		s.Duration = up.Duration
		if up.Username != "" {
			s.Username = up.Username
		}
		s.LastUpdate = now
	}

	for id, s := range r.cache.sessions {
		if seen[id] {
			continue
		}
		if now.Sub(s.LastUpdate) > r.grace {
			delete(r.cache.sessions, id)
			changed = true
			r.log.Info("reconcile: evicted session absent upstream", "session", id, "user", s.UserID)
		}
	}
	return changed
}

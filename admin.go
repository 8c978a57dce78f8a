package main

import (
	"encoding/json"
	"net/http"
)

// debugDump is the admin snapshot of internal counters and cache
// sizes.
type debugDump struct {
	Connections    int           `json:"connections"`
	OnlineUsers    []string      `json:"onlineUsers"`
	AnonymousCount int           `json:"anonymousCount"`
	CachedSessions int           `json:"cachedSessions"`
	ChatBuffered   int           `json:"chatBuffered"`
	ColdCache      bool          `json:"coldCache"`
	Counters       hubStats      `json:"counters"`
	Sessions       []SessionView `json:"sessions"`
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReset clears all in-memory presence, session, and chat state
// in one hub-serialized step. Live connections stay open and are
// re-registered empty; clients converge on the next broadcast.
func (h *Hub) handleReset(w http.ResponseWriter, _ *http.Request) {
	h.call(func() {
		h.registry.Reset()
		for id := range h.conns {
			h.registry.RegisterConnection(id)
		}
		h.sessions.Reset()
		h.chat.Reset()
		h.coldCache = true
		h.broadcastSessions()
		h.broadcast(evOnlineUsers, h.presence.Snapshot())
		h.log.Warn("admin reset: all in-memory state cleared")
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (h *Hub) handleDebug(w http.ResponseWriter, _ *http.Request) {
	var dump debugDump
	h.call(func() {
		snap := h.presence.Snapshot()
		dump = debugDump{
			Connections:    len(h.conns),
			OnlineUsers:    snap.UserIDs,
			AnonymousCount: snap.AnonymousCount,
			CachedSessions: h.sessions.Len(),
			ChatBuffered:   h.chat.Len(),
			ColdCache:      h.coldCache,
			Counters:       h.stats,
			Sessions:       h.sessions.Views(),
		}
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dump)
}

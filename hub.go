package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns every piece of shared state in the process: the connection
// set, the registry, the session cache, and the chat buffer. All
// mutation is serialized through a single queue of closures consumed
// by Run, so none of the state carries a lock; handlers rely on
// run-to-completion ordering and idempotence instead. Store calls are
// the only suspension points and always run off the queue, posting
// their merge back.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	registry   *Registry
	presence   *PresenceTracker
	sessions   *SessionCache
	chat       *ChatRelay
	reconciler *Reconciler
	store      StoreClient
	metrics    *metrics

	events chan func()
	conns  map[string]*client

	coldCache   bool
	reconciling bool
	stats       hubStats
}

// hubStats are the monotonic counters exposed by the admin debug dump.
// Hub-goroutine only.
type hubStats struct {
	ReconcileCycles    int64 `json:"reconcileCycles"`
	ReconcileFailures  int64 `json:"reconcileFailures"`
	SessionsStarted    int64 `json:"sessionsStarted"`
	SessionsEnded      int64 `json:"sessionsEnded"`
	SessionsExpired    int64 `json:"sessionsExpired"`
	SessionsSuperseded int64 `json:"sessionsSuperseded"`
	EndsRejected       int64 `json:"endsRejected"`
	GhostsPruned       int64 `json:"ghostsPruned"`
	ChatMessages       int64 `json:"chatMessages"`
	SystemMessages     int64 `json:"systemMessages"`
	DroppedSends       int64 `json:"droppedSends"`
}

func NewHub(cfg Config, log *slog.Logger, store StoreClient, m *metrics) *Hub {
	registry := NewRegistry()
	sessions := NewSessionCache(cfg.TickBroadcastEvery)
	h := &Hub{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		presence:   NewPresenceTracker(registry),
		sessions:   sessions,
		chat:       NewChatRelay(cfg.ChatHistoryCap, cfg.ChatMaxLen),
		reconciler: NewReconciler(sessions, store, cfg.GraceWindow, log),
		store:      store,
		metrics:    m,
		events:     make(chan func(), 256),
		conns:      make(map[string]*client),
		coldCache:  true,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg, r.Header.Get("Origin"))
		},
	}
	return h
}

// Run drains the serial queue until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-h.events:
			fn()
		}
	}
}

// Do enqueues work onto the hub goroutine.
func (h *Hub) Do(fn func()) {
	h.events <- fn
}

// call enqueues work and waits for it, for admin handlers that need a
// consistent snapshot.
func (h *Hub) call(fn func()) {
	done := make(chan struct{})
	h.events <- func() {
		fn()
		close(done)
	}
	<-done
}

// runTimers drives the reconciler and the two janitor sweeps on
// independent intervals.
func (h *Hub) runTimers(ctx context.Context) {
	reconcile := time.NewTicker(h.cfg.ReconcileInterval)
	expiry := time.NewTicker(h.cfg.ExpirySweepEvery)
	ghosts := time.NewTicker(h.cfg.GhostSweepEvery)
	defer reconcile.Stop()
	defer expiry.Stop()
	defer ghosts.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			h.Do(func() { h.kickReconcile(ctx) })
		case <-expiry.C:
			h.Do(h.expirySweep)
		case <-ghosts.C:
			h.Do(h.ghostSweep)
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.conns[c.id] = c
	h.registry.RegisterConnection(c.id)
	h.metrics.openConnections.Add(context.Background(), 1)
	h.log.Debug("connection opened", "conn", c.id)

	// a newly connecting client never sees an empty list because of a
	// cold cache: serve what we have and converge from the store
	h.sendTo(c, evSessionUpdate, SessionUpdatePayload{Sessions: h.sessions.Views()})
	h.sendTo(c, evOnlineUsers, h.presence.Snapshot())
	if h.coldCache {
		h.kickReconcile(context.Background())
	}
}

func (h *Hub) removeClient(c *client) {
	if _, ok := h.conns[c.id]; !ok {
		return
	}
	delete(h.conns, c.id)
	close(c.send)
	h.metrics.openConnections.Add(context.Background(), -1)

	h.sessions.ReleaseConn(c.id)
	transitions := h.registry.DropConnection(c.id)
	h.applyTransitions(transitions)
	h.log.Debug("connection closed", "conn", c.id)
}

// handleEvent dispatches one decoded client frame. Unknown events and
// undecodable payloads are dropped at the boundary.
func (h *Hub) handleEvent(c *client, env Envelope) {
	switch env.Event {
	case evJoinPresence:
		var p JoinPresencePayload
		if json.Unmarshal(env.Data, &p) == nil {
			h.joinPresence(c.id, p)
		}
	case evSessionStart:
		var p SessionPayload
		if json.Unmarshal(env.Data, &p) == nil && p.ID != "" {
			h.sessionStart(c.id, p, true)
		}
	case evSessionSync:
		var p SessionPayload
		if json.Unmarshal(env.Data, &p) == nil && p.ID != "" {
			h.sessionStart(c.id, p, false)
		}
	case evSessionPause:
		var p SessionPausePayload
		if json.Unmarshal(env.Data, &p) == nil && p.SessionID != "" {
			h.sessionPause(p)
		}
	case evSessionEnd:
		var p SessionEndPayload
		if json.Unmarshal(env.Data, &p) == nil && p.SessionID != "" {
			h.sessionEnd(c.id, p)
		}
	case evTimerTick:
		var p TimerTickPayload
		if json.Unmarshal(env.Data, &p) == nil && p.SessionID != "" {
			h.timerTick(c.id, p)
		}
	case evChatSend:
		var p ChatSendPayload
		if json.Unmarshal(env.Data, &p) == nil {
			h.chatSend(c.id, p.Text)
		}
	case evChatTyping:
		var p ChatTypingPayload
		if json.Unmarshal(env.Data, &p) == nil {
			h.chatTyping(c.id, p)
		}
	case evGetActiveSessions:
		h.sendTo(c, evSessionUpdate, SessionUpdatePayload{Sessions: h.sessions.Views()})
		h.kickReconcile(context.Background())
	case evGetOnlineUsers:
		h.sendTo(c, evOnlineUsers, h.presence.Snapshot())
	default:
		h.log.Debug("unknown event dropped", "event", env.Event, "conn", c.id)
	}
}

func (h *Hub) joinPresence(connID string, p JoinPresencePayload) {
	userID := p.UserID
	if h.cfg.JWTSecret != "" && p.Token != "" {
		sub, err := verifyIdentityToken(h.cfg.JWTSecret, p.Token)
		if err != nil {
			h.log.Warn("identity token rejected, treating connection as anonymous", "conn", connID, "error", err)
			userID = ""
		} else {
			userID = sub
		}
	}
	transitions := h.registry.AnnounceIdentity(connID, userID, p.AnonymousID, p.Username)
	h.applyTransitions(transitions)
}

func (h *Hub) sessionStart(connID string, p SessionPayload, announce bool) {
	h.fillIdentity(connID, &p)
	res := h.sessions.Start(connID, p)
	for _, old := range res.Superseded {
		// a client retry or a stale session replaced by a fresh one
		h.log.Info("session superseded", "old", old.ID, "new", p.ID, "user", p.UserID)
		h.stats.SessionsSuperseded++
	}
	h.stats.SessionsStarted++
	h.metrics.sessionsStarted.Add(context.Background(), 1)

	if announce {
		msg := h.chat.AppendSystem(p.UserID, p.Username, ActionSessionStart, startMessage(p.Username, p.Type, p.Task))
		h.systemMessage(msg)
	}
	h.broadcastSessions()
}

func (h *Hub) sessionPause(p SessionPausePayload) {
	paused := true
	if p.IsPaused != nil {
		paused = *p.IsPaused
	}
	if h.sessions.SetPaused(p.SessionID, paused) {
		h.broadcastSessions()
	}
}

func (h *Hub) sessionEnd(connID string, p SessionEndPayload) {
	userID, anonID, _ := h.registry.Identity(connID)
	outcome, s := h.sessions.End(connID, userID, anonID, p.SessionID)
	switch outcome {
	case EndUnknown:
		// already evicted or expired; eviction races are expected
		return
	case EndNotOwner:
		h.stats.EndsRejected++
		h.log.Debug("end rejected, caller does not own session",
			"session", p.SessionID, "conn", connID, "owner", s.OwnerConn)
		return
	}

	if p.Reason == ReasonCompleted && s.Kind == KindWork {
		msg := h.chat.AppendSystem(s.UserID, s.Username, ActionSessionComplete, completeMessage(s.Username, s.Task, s.Duration))
		h.systemMessage(msg)
	}
	h.stats.SessionsEnded++
	h.metrics.sessionsEnded.Add(context.Background(), 1)
	h.log.Info("session ended", "session", p.SessionID, "reason", p.Reason, "user", s.UserID)
	h.broadcastSessions()
}

func (h *Hub) timerTick(connID string, p TimerTickPayload) {
	known, broadcast := h.sessions.Tick(connID, p.SessionID, p.TimeRemaining)
	if known && broadcast {
		h.broadcastSessions()
	}
}

func (h *Hub) chatSend(connID, text string) {
	userID, anonID, username := h.registry.Identity(connID)
	msg, ok := h.chat.Append(userID, anonID, username, text)
	if !ok {
		return
	}
	h.stats.ChatMessages++
	h.metrics.chatMessages.Add(context.Background(), 1)
	// the sender already reflects the message optimistically
	h.broadcastExcept(connID, evChatNew, msg)
}

func (h *Hub) chatTyping(connID string, p ChatTypingPayload) {
	if p.Username == "" {
		_, _, p.Username = h.registry.Identity(connID)
	}
	h.broadcastExcept(connID, evChatTyping, p)
}

// systemMessage delivers a lifecycle-derived chat entry to everyone,
// originator included, and persists it best-effort: a store failure is
// logged and never blocks delivery.
func (h *Hub) systemMessage(msg ChatMessage) {
	h.stats.SystemMessages++
	h.broadcast(evChatNew, msg)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.store.PersistChatMessage(ctx, msg); err != nil {
			h.log.Warn("failed to persist system message", "action", msg.Action, "error", err)
		}
	}()
}

// kickReconcile fetches the authoritative list off the hub goroutine
// and posts the merge back. At most one fetch is in flight; a slow one
// only delays that cycle, it never blocks connection events.
func (h *Hub) kickReconcile(ctx context.Context) {
	if h.reconciling {
		return
	}
	h.reconciling = true
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		upstream, err := h.reconciler.Fetch(fetchCtx)
		h.Do(func() {
			h.reconciling = false
			if err != nil {
				h.stats.ReconcileFailures++
				h.metrics.reconcileFailures.Add(context.Background(), 1)
				h.log.Warn("reconcile fetch failed, skipping cycle", "error", err)
				return
			}
			h.coldCache = false
			h.stats.ReconcileCycles++
			h.metrics.reconcileCycles.Add(context.Background(), 1)
			if h.reconciler.Merge(upstream) {
				h.broadcastSessions()
			}
		})
	}()
}

// expirySweep is the backstop against sessions whose owning connection
// vanished without ever sending an end.
func (h *Hub) expirySweep() {
	expired := h.sessions.ExpireOlderThan(h.cfg.GraceWindow)
	if len(expired) == 0 {
		return
	}
	for _, s := range expired {
		h.stats.SessionsExpired++
		h.metrics.sessionsExpired.Add(context.Background(), 1)
		h.log.Info("session expired", "session", s.ID, "user", s.UserID, "kind", s.Kind)
	}
	h.broadcastSessions()
}

// ghostSweep recomputes the live set from the transport layer itself
// and corrects any drift in the registry's bookkeeping.
func (h *Hub) ghostSweep() {
	live := make(map[string]bool, len(h.conns))
	for id := range h.conns {
		live[id] = true
	}
	transitions, pruned := h.registry.PruneGhosts(live)
	if pruned == 0 {
		return
	}
	h.stats.GhostsPruned += int64(pruned)
	h.metrics.ghostsPruned.Add(context.Background(), int64(pruned))
	h.log.Warn("pruned ghost connections", "count", pruned)
	for _, t := range transitions {
		if t.UserID != "" {
			h.broadcast(evUserOnline, UserOnlinePayload{UserID: t.UserID, Online: t.Online})
		}
	}
	h.broadcast(evOnlineUsers, h.presence.Snapshot())
}

// applyTransitions broadcasts per-user online flips and, if anything
// crossed 0↔1, one aggregate snapshot.
func (h *Hub) applyTransitions(transitions []PresenceTransition) {
	if len(transitions) == 0 {
		return
	}
	for _, t := range transitions {
		h.metrics.presenceTransitions.Add(context.Background(), 1)
		if t.UserID != "" {
			h.broadcast(evUserOnline, UserOnlinePayload{UserID: t.UserID, Online: t.Online})
		}
	}
	h.broadcast(evOnlineUsers, h.presence.Snapshot())
}

func (h *Hub) broadcastSessions() {
	h.broadcast(evSessionUpdate, SessionUpdatePayload{Sessions: h.sessions.Views()})
}

func (h *Hub) broadcast(event string, data any) {
	h.broadcastExcept("", event, data)
}

func (h *Hub) broadcastExcept(exceptConn, event string, data any) {
	raw, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}
	for id, c := range h.conns {
		if id == exceptConn {
			continue
		}
		select {
		case c.send <- raw:
		default:
			// slow client: drop rather than stall the hub
			h.stats.DroppedSends++
			h.log.Warn("send buffer full, dropping message", "conn", id, "event", event)
		}
	}
}

func (h *Hub) sendTo(c *client, event string, data any) {
	if c == nil {
		return
	}
	raw, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case c.send <- raw:
	default:
		h.stats.DroppedSends++
	}
}

// fillIdentity backfills session identity fields from the announced
// connection identity when the payload omits them.
func (h *Hub) fillIdentity(connID string, p *SessionPayload) {
	userID, anonID, username := h.registry.Identity(connID)
	if p.UserID == "" {
		p.UserID = userID
	}
	if p.AnonymousID == "" {
		p.AnonymousID = anonID
	}
	if p.Username == "" {
		p.Username = username
	}
}

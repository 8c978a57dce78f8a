package main

// connRecord is the registry's view of one live transport connection.
type connRecord struct {
	userID      string
	anonymousID string
	username    string
}

// PresenceTransition is emitted when an identity crosses 0↔1 live
// connections. Anonymous transitions carry AnonymousID instead of
// UserID and never produce a per-user broadcast.
type PresenceTransition struct {
	UserID      string
	AnonymousID string
	Online      bool
}

// Registry tracks which connection belongs to which identity and how
// many connections each identity currently holds. It is only ever
// touched from the hub goroutine, so it carries no lock.
type Registry struct {
	conns    map[string]*connRecord
	userRefs map[string]int
	anonRefs map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*connRecord),
		userRefs: make(map[string]int),
		anonRefs: make(map[string]int),
	}
}

// RegisterConnection creates an empty record for a new connection.
// No-op if the id is already known.
func (r *Registry) RegisterConnection(connID string) {
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = &connRecord{}
	}
}

// AnnounceIdentity idempotently associates a connection with an
// identity. Re-announcing the same identity is a pure no-op on the
// counts; switching identity releases the old association first.
func (r *Registry) AnnounceIdentity(connID, userID, anonymousID, username string) []PresenceTransition {
	rec, ok := r.conns[connID]
	if !ok {
		rec = &connRecord{}
		r.conns[connID] = rec
	}

	var transitions []PresenceTransition
	if rec.userID != userID {
		if t := r.releaseUser(rec.userID); t != nil {
			transitions = append(transitions, *t)
		}
		if t := r.acquireUser(userID); t != nil {
			transitions = append(transitions, *t)
		}
		rec.userID = userID
	}
	if rec.anonymousID != anonymousID {
		if t := r.releaseAnon(rec.anonymousID); t != nil {
			transitions = append(transitions, *t)
		}
		if t := r.acquireAnon(anonymousID); t != nil {
			transitions = append(transitions, *t)
		}
		rec.anonymousID = anonymousID
	}
	if username != "" {
		rec.username = username
	}
	return transitions
}

// DropConnection releases whatever identity the connection held and
// deletes its record.
func (r *Registry) DropConnection(connID string) []PresenceTransition {
	rec, ok := r.conns[connID]
	if !ok {
		return nil
	}
	var transitions []PresenceTransition
	if t := r.releaseUser(rec.userID); t != nil {
		transitions = append(transitions, *t)
	}
	if t := r.releaseAnon(rec.anonymousID); t != nil {
		transitions = append(transitions, *t)
	}
	delete(r.conns, connID)
	return transitions
}

// PruneGhosts drops every connection record whose id is not in the
// live set reported by the transport layer. Returns the resulting
// transitions plus how many records were removed.
func (r *Registry) PruneGhosts(live map[string]bool) ([]PresenceTransition, int) {
	var transitions []PresenceTransition
	pruned := 0
	for connID := range r.conns {
		if live[connID] {
			continue
		}
		transitions = append(transitions, r.DropConnection(connID)...)
		pruned++
	}
	return transitions, pruned
}

// Reset wipes every record and reference count.
func (r *Registry) Reset() {
	r.conns = make(map[string]*connRecord)
	r.userRefs = make(map[string]int)
	r.anonRefs = make(map[string]int)
}

// Identity returns the identity currently announced on a connection.
func (r *Registry) Identity(connID string) (userID, anonymousID, username string) {
	if rec, ok := r.conns[connID]; ok {
		return rec.userID, rec.anonymousID, rec.username
	}
	return "", "", ""
}

func (r *Registry) ConnCount() int { return len(r.conns) }

// OnlineUsers returns authenticated identities with at least one
// connection.
func (r *Registry) OnlineUsers() []string {
	users := make([]string, 0, len(r.userRefs))
	for id := range r.userRefs {
		users = append(users, id)
	}
	return users
}

// OnlineAnonymous counts distinct anonymous identities, not their
// connections: two tabs from the same guest count once.
func (r *Registry) OnlineAnonymous() int { return len(r.anonRefs) }

func (r *Registry) acquireUser(id string) *PresenceTransition {
	if id == "" {
		return nil
	}
	r.userRefs[id]++
	if r.userRefs[id] == 1 {
		return &PresenceTransition{UserID: id, Online: true}
	}
	return nil
}

func (r *Registry) releaseUser(id string) *PresenceTransition {
	if id == "" {
		return nil
	}
	n, ok := r.userRefs[id]
	if !ok {
		return nil
	}
	if n <= 1 {
		delete(r.userRefs, id)
		return &PresenceTransition{UserID: id, Online: false}
	}
	r.userRefs[id] = n - 1
	return nil
}

func (r *Registry) acquireAnon(id string) *PresenceTransition {
	if id == "" {
		return nil
	}
	r.anonRefs[id]++
	if r.anonRefs[id] == 1 {
		return &PresenceTransition{AnonymousID: id, Online: true}
	}
	return nil
}

func (r *Registry) releaseAnon(id string) *PresenceTransition {
	if id == "" {
		return nil
	}
	n, ok := r.anonRefs[id]
	if !ok {
		return nil
	}
	if n <= 1 {
		delete(r.anonRefs, id)
		return &PresenceTransition{AnonymousID: id, Online: false}
	}
	r.anonRefs[id] = n - 1
	return nil
}

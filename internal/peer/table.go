// Package peer implements the per-node peer table (C3): id -> address,
// port, liveness.
package peer

import (
	"strings"
	"sync"
)

// Entry is one peer's membership record, spec section 3.
type Entry struct {
	NodeID   string
	Address  string
	SyncPort int
	Active   bool
}

// IsBalancer reports whether this entry identifies the balancer node
// (spec section 4.5: id "balancer" or prefixed "balancer").
func (e Entry) IsBalancer() bool {
	return e.NodeID == "balancer" || strings.HasPrefix(e.NodeID, "balancer")
}

// Table is the local node's view of cluster membership. Safe for
// concurrent use: mutations take a short exclusive lock, readers snapshot.
type Table struct {
	mu     sync.RWMutex
	self   string
	peers  map[string]*Entry
}

// New creates an empty table for a node identified by selfID. The local
// node's own entry is inserted but is never a valid target for outbound
// sync calls (spec section 3 invariants).
func New(selfID string) *Table {
	return &Table{self: selfID, peers: map[string]*Entry{
		selfID: {NodeID: selfID, Active: true},
	}}
}

// Upsert inserts or updates a peer entry. Used on boot from the seed list
// and on receipt of SERVER_ANNOUNCEMENT.
func (t *Table) Upsert(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.peers[e.NodeID]
	if !ok {
		cp := e
		t.peers[e.NodeID] = &cp
		return
	}
	existing.Address = e.Address
	existing.SyncPort = e.SyncPort
	// Active is owned by liveness tracking, not announcements, unless the
	// caller explicitly wants to seed it active (e.g. initial discovery).
	if e.Active {
		existing.Active = true
	}
}

// SetActive flips the active flag for a peer, used by discovery pings and
// the transport's send/recv outcome (spec section 4.1, 4.2).
func (t *Table) SetActive(nodeID string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.peers[nodeID]; ok {
		e.Active = active
	}
}

// Get returns a copy of the peer entry, if known.
func (t *Table) Get(nodeID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.peers[nodeID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether nodeID is already a known peer.
func (t *Table) Has(nodeID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[nodeID]
	return ok
}

// All returns a snapshot of every known peer, including self.
func (t *Table) All() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.peers))
	for _, e := range t.peers {
		out = append(out, *e)
	}
	return out
}

// Active returns a snapshot of peers currently marked active, excluding
// self.
func (t *Table) Active() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.peers))
	for _, e := range t.peers {
		if e.NodeID == t.self || !e.Active {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// ActiveData returns active peers excluding self and excluding balancers —
// the fan-out set for replication (spec section 4.5).
func (t *Table) ActiveData() []Entry {
	all := t.Active()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.IsBalancer() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Self returns this node's own id.
func (t *Table) Self() string {
	return t.self
}

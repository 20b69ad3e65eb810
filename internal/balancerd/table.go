// Package balancerd implements the request router (C10): the balancer's
// client-facing ROUTER socket, round-robin backend selection, and a
// reduced sync responder that registers backends without participating
// in election or clock sync.
package balancerd

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Backend is one entry in the balancer's routing table: a live data node
// reachable at address:servicePort (spec section 4.7).
type Backend struct {
	NodeID      string
	Address     string
	ServicePort int
	Active      bool
}

// Table is the balancer's view of backend nodes. Distinct from the
// backend-side peer.Table (spec section 9 open question): a balancer is
// never itself a member of a backend's replication fan-out set, and this
// table never needs to track a balancer's own identity.
type Table struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	next     uint64 // atomic round-robin cursor
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{backends: make(map[string]*Backend)}
}

// Upsert registers or updates a backend, as seen on SERVER_ANNOUNCEMENT or
// SERVER_PING.
func (t *Table) Upsert(b Backend) {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.backends[b.NodeID]
	if !ok {
		cp := b
		cp.Active = true
		t.backends[b.NodeID] = &cp
		return
	}
	existing.Address = b.Address
	if b.ServicePort != 0 {
		existing.ServicePort = b.ServicePort
	}
	existing.Active = true
}

// SetActive flips a backend's liveness, used on forward failure.
func (t *Table) SetActive(nodeID string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.backends[nodeID]; ok {
		b.Active = active
	}
}

// Active returns a snapshot of currently live backends, sorted by node id
// so repeated calls yield a stable order. Map iteration order is random in
// Go, and Pick's atomic cursor only implements round-robin if it indexes
// the same ordering every time.
func (t *Table) Active() []Backend {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Backend, 0, len(t.backends))
	for _, b := range t.backends {
		if b.Active {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Pick selects the next backend by a wrapping atomic round-robin counter
// over the currently active set in stable node-id order (spec section 4.7
// step 4). The bool is false when no backend is available.
func (t *Table) Pick() (Backend, bool) {
	active := t.Active()
	if len(active) == 0 {
		return Backend{}, false
	}
	i := atomic.AddUint64(&t.next, 1) - 1
	return active[i%uint64(len(active))], true
}

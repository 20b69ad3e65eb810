// Package election implements Bully coordinator election (C6): fault
// tolerant leader election used to pick the clock-sync coordinator.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const (
	defaultCheckInterval = 30 * time.Second
	electionWindow       = 5 * time.Second
	pingTimeout          = 3 * time.Second
)

// Bully tracks coordinator state and drives the election protocol, spec
// section 4.3.
type Bully struct {
	log   *logrus.Entry
	self  string
	peers *peer.Table
	tr    *transport.Transport

	checkInterval time.Duration

	mu                  sync.Mutex
	isCoordinator       bool
	electionInProgress  bool
	responded           map[string]struct{}
	coordinatorID       string

	stop chan struct{}
	done chan struct{}
}

// New creates a Bully election driver.
func New(log *logrus.Entry, self string, peers *peer.Table, tr *transport.Transport, checkInterval time.Duration) *Bully {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Bully{
		log:           log,
		self:          self,
		peers:         peers,
		tr:            tr,
		checkInterval: checkInterval,
		responded:     make(map[string]struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// IsCoordinator reports whether this node currently believes itself
// coordinator.
func (b *Bully) IsCoordinator() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isCoordinator
}

// CoordinatorID returns the last known coordinator id, if any.
func (b *Bully) CoordinatorID() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coordinatorID, b.coordinatorID != ""
}

// Run drives the periodic coordinator-check tick (spec section 4.3).
func (b *Bully) Run(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

// Stop ends the scheduler at its next suspension point.
func (b *Bully) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Bully) tick() {
	if b.IsCoordinator() {
		b.tr.Broadcast(wire.ActionCoordinatorHeartbeat, map[string]interface{}{"coordinatorId": b.self})
		return
	}

	known, ok := b.findKnownCoordinator()
	if !ok {
		b.StartElection()
		return
	}

	if _, err := b.tr.SendWithResponse(known, wire.ActionCoordinatorPing, nil); err != nil {
		b.StartElection()
	}
}

// findKnownCoordinator queries active peers for IS_COORDINATOR_REQUEST and
// returns the first one that reports itself coordinator.
func (b *Bully) findKnownCoordinator() (string, bool) {
	for _, e := range b.peers.Active() {
		reply, err := b.tr.SendWithResponse(e.NodeID, wire.ActionIsCoordinatorRequest, nil)
		if err != nil {
			continue
		}
		var isCoord bool
		if reply.Has("isCoordinator") {
			_ = reply.Bind("isCoordinator", &isCoord)
		}
		if isCoord {
			return e.NodeID, true
		}
	}
	return "", false
}

// StartElection runs the election procedure guarded by a
// compare-and-set on electionInProgress (spec section 4.3).
func (b *Bully) StartElection() {
	b.mu.Lock()
	if b.electionInProgress {
		b.mu.Unlock()
		return
	}
	b.electionInProgress = true
	b.responded = make(map[string]struct{})
	b.mu.Unlock()

	higher := b.higherPeers()
	if len(higher) == 0 {
		b.declareSelfCoordinator()
		return
	}

	for _, e := range higher {
		b.tr.Send(e.NodeID, wire.ActionElection, map[string]interface{}{"fromServer": b.self})
	}

	time.AfterFunc(electionWindow, b.checkResponses)
}

func (b *Bully) higherPeers() []peer.Entry {
	out := make([]peer.Entry, 0)
	for _, e := range b.peers.Active() {
		if e.NodeID > b.self {
			out = append(out, e)
		}
	}
	return out
}

func (b *Bully) checkResponses() {
	b.mu.Lock()
	anyResponded := len(b.responded) > 0
	b.mu.Unlock()

	if anyResponded {
		b.mu.Lock()
		b.electionInProgress = false
		b.mu.Unlock()
		return
	}
	b.declareSelfCoordinator()
}

func (b *Bully) declareSelfCoordinator() {
	b.mu.Lock()
	b.isCoordinator = true
	b.coordinatorID = b.self
	b.mu.Unlock()

	b.tr.Broadcast(wire.ActionCoordinator, map[string]interface{}{"coordinatorId": b.self})

	b.mu.Lock()
	b.electionInProgress = false
	b.mu.Unlock()

	b.log.Info("declared self coordinator")
}

// HandleElection answers an ELECTION message from a lower- or higher-id
// peer: always reply with ELECTION_RESPONSE, and start our own election if
// we outrank the sender (spec section 4.3).
func (b *Bully) HandleElection(fromServer string) {
	b.tr.Send(fromServer, wire.ActionElectionResponse, map[string]interface{}{"fromServer": b.self})
	if fromServer < b.self {
		b.StartElection()
	}
}

// HandleElectionResponse records that fromServer answered our election
// probe.
func (b *Bully) HandleElectionResponse(fromServer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responded[fromServer] = struct{}{}
}

// HandleCoordinator processes an incoming COORDINATOR announcement: the
// higher-NodeId rule resolves any transient dual-coordinator window (spec
// section 4.3).
func (b *Bully) HandleCoordinator(coordinatorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isCoordinator && b.self < coordinatorID {
		b.isCoordinator = false
		b.log.WithField("newCoordinator", coordinatorID).Info("stepping down")
	}
	b.coordinatorID = coordinatorID
	b.electionInProgress = false
}

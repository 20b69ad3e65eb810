// Package clocksync implements Berkeley clock synchronization (C7):
// coordinator-driven physical-clock offset averaging.
package clocksync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/clock"
	"github.com/ppriyankuu/social-mesh/internal/election"
	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const (
	defaultSyncInterval = 60 * time.Second
	responseWindow      = 3 * time.Second
)

// Sync drives Berkeley rounds whenever this node is the elected
// coordinator (spec section 4.4).
type Sync struct {
	log      *logrus.Entry
	self     string
	peers    *peer.Table
	tr       *transport.Transport
	bully    *election.Bully
	physical *clock.Physical

	syncInterval time.Duration

	mu        sync.Mutex
	timeDiffs map[string]time.Duration
	round     int64

	stop chan struct{}
	done chan struct{}
}

// New creates a Berkeley clock-sync driver.
func New(log *logrus.Entry, self string, peers *peer.Table, tr *transport.Transport, bully *election.Bully, physical *clock.Physical, syncInterval time.Duration) *Sync {
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}
	return &Sync{
		log:          log,
		self:         self,
		peers:        peers,
		tr:           tr,
		bully:        bully,
		physical:     physical,
		syncInterval: syncInterval,
		timeDiffs:    make(map[string]time.Duration),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run drives the periodic sync tick; the round only executes while this
// node is coordinator.
func (s *Sync) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if s.bully.IsCoordinator() {
				s.runRound()
			}
		}
	}
}

// Stop ends the scheduler at its next suspension point.
func (s *Sync) Stop() {
	close(s.stop)
	<-s.done
}

// runRound executes one full Berkeley round (spec section 4.4 steps 1-6).
func (s *Sync) runRound() {
	s.mu.Lock()
	s.round++
	s.timeDiffs = map[string]time.Duration{s.self: 0}
	s.mu.Unlock()

	ts := s.physical.Now()
	s.tr.Broadcast(wire.ActionTimeRequest, map[string]interface{}{
		"coordinator": s.self,
		"timestamp":   ts.UnixMilli(),
	})

	time.AfterFunc(responseWindow, s.applyAverage)
}

func (s *Sync) applyAverage() {
	s.mu.Lock()
	snapshot := s.timeDiffs
	// Closing the window: HandleTimeResponse drops anything arriving now.
	s.timeDiffs = nil
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	var total time.Duration
	for _, d := range snapshot {
		total += d
	}
	avg := total / time.Duration(len(snapshot))

	s.physical.SetOffset(s.physical.Offset() - avg)

	for nodeID, d := range snapshot {
		if nodeID == s.self {
			continue
		}
		adjustment := avg - d
		s.tr.Send(nodeID, wire.ActionClockAdjustment, map[string]interface{}{
			"coordinator": s.self,
			"adjustment":  adjustment.Milliseconds(),
		})
	}
}

// HandleTimeRequest computes this node's diff against the coordinator's
// timestamp and returns the TIME_RESPONSE fields (spec section 4.4 step 3).
// No-op (returns nil) if this node believes itself coordinator.
func (s *Sync) HandleTimeRequest(coordinatorTimestampMillis int64) map[string]interface{} {
	if s.bully.IsCoordinator() {
		return nil
	}
	diff := s.physical.Now().Sub(time.UnixMilli(coordinatorTimestampMillis))
	return map[string]interface{}{
		"serverId":          s.self,
		"requestTimestamp":  coordinatorTimestampMillis,
		"responseTimestamp": s.physical.Now().UnixMilli(),
		"timeDifference":    diff.Milliseconds(),
	}
}

// HandleTimeResponse records a reporting peer's diff, as long as it
// arrives within the response window. Late responses are discarded (spec
// section 4.4 note).
func (s *Sync) HandleTimeResponse(serverID string, diffMillis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeDiffs == nil {
		return
	}
	s.timeDiffs[serverID] = time.Duration(diffMillis) * time.Millisecond
}

// HandleClockAdjustment applies an inbound CLOCK_ADJUSTMENT (spec section
// 4.4 step 7: offset <- offset + adjustment).
func (s *Sync) HandleClockAdjustment(adjustmentMillis int64) {
	s.physical.AdjustBy(time.Duration(adjustmentMillis) * time.Millisecond)
}

// Package discovery implements peer discovery and liveness pinging (C5):
// periodic SERVER_PING sweeps and SERVER_ANNOUNCEMENT propagation.
package discovery

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const (
	pingInterval        = 15 * time.Second
	announceAfterBoot   = 8 * time.Second
)

// Self describes how this node announces itself to peers.
type Self struct {
	NodeID      string
	Address     string
	ServicePort int
	SyncAddress string // e.g. "tcp://host:port" or "host:port"
}

// Service runs the two periodic discovery tasks on a single-threaded
// scheduler, as spec section 4.2 requires.
type Service struct {
	log   *logrus.Entry
	self  Self
	peers *peer.Table
	tr    *transport.Transport

	stop chan struct{}
	done chan struct{}
}

// New creates a discovery Service.
func New(log *logrus.Entry, self Self, peers *peer.Table, tr *transport.Transport) *Service {
	return &Service{
		log:   log,
		self:  self,
		peers: peers,
		tr:    tr,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run drives the ping and announce ticks until ctx is cancelled or Stop
// is called.
func (s *Service) Run(ctx context.Context) {
	defer close(s.done)

	announceTimer := time.NewTimer(announceAfterBoot)
	pingTicker := time.NewTicker(pingInterval)
	defer announceTimer.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-announceTimer.C:
			s.announce()
		case <-pingTicker.C:
			s.pingAll()
		}
	}
}

// Stop ends the scheduler at its next suspension point.
func (s *Service) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Service) pingAll() {
	for _, e := range s.peers.All() {
		if e.NodeID == s.self.NodeID {
			continue
		}
		entry := e
		reply, err := s.tr.SendWithResponse(entry.NodeID, wire.ActionServerPing, nil)
		if err != nil {
			s.peers.SetActive(entry.NodeID, false)
			continue
		}
		_ = reply
		s.peers.SetActive(entry.NodeID, true)
	}
}

func (s *Service) announce() {
	s.announceTo(s.peers.All())
}

func (s *Service) announceTo(targets []peer.Entry) {
	fields := map[string]interface{}{
		"nodeId":      s.self.NodeID,
		"address":     s.self.Address,
		"servicePort": s.self.ServicePort,
		"syncAddress": s.self.SyncAddress,
	}
	for _, e := range targets {
		if e.NodeID == s.self.NodeID {
			continue
		}
		s.tr.Send(e.NodeID, wire.ActionServerAnnouncement, fields)
	}
}

// HandleAnnouncement processes an inbound SERVER_ANNOUNCEMENT: extracts
// the numeric port from syncAddress (tolerating "tcp://host:port" or
// "host:port"), upserts the peer entry, and — if the peer was previously
// unknown — announces back so the new node quickly populates its table
// (spec section 4.2).
func (s *Service) HandleAnnouncement(nodeID, address string, syncAddress string) error {
	port, err := parseSyncPort(syncAddress)
	if err != nil {
		return err
	}

	wasKnown := s.peers.Has(nodeID)
	s.peers.Upsert(peer.Entry{NodeID: nodeID, Address: address, SyncPort: port, Active: true})

	if !wasKnown {
		if entry, ok := s.peers.Get(nodeID); ok {
			s.announceTo([]peer.Entry{entry})
		}
	}
	return nil
}

// HandlePing answers a SERVER_PING with {success:true, nodeId, isActive:true}.
func (s *Service) HandlePing() map[string]interface{} {
	return map[string]interface{}{
		"success":  true,
		"nodeId":   s.self.NodeID,
		"isActive": true,
	}
}

func parseSyncPort(syncAddress string) (int, error) {
	addr := syncAddress
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err == nil && u.Port() != "" {
			addr = u.Host
		} else {
			addr = strings.SplitN(addr, "://", 2)[1]
		}
	}
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0, errInvalidSyncAddress(syncAddress)
	}
	return strconv.Atoi(addr[idx+1:])
}

type errInvalidSyncAddress string

func (e errInvalidSyncAddress) Error() string {
	return "invalid sync address: " + string(e)
}

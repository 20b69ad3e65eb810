// Package transport implements the shared request/reply message transport
// (C4): one inbound REP endpoint per node, a pool of short-lived outbound
// REQ sockets for dialing peers, retry suppression, and liveness tracking.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/clock"
	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// ErrPeerUnreachable is returned by SendWithResponse when the round trip
// times out or fails, per spec section 7.
var ErrPeerUnreachable = errors.New("peer unreachable")

const (
	sendTimeout       = 2 * time.Second
	sendWithRespTimeout = 3 * time.Second
	retrySuppressWindow = 10 * time.Second
	bindAttempts      = 5
)

// Handler processes one decoded inbound envelope and returns the fields to
// merge into the reply (success is assumed true unless an error is
// returned).
type Handler func(env *wire.Envelope) (map[string]interface{}, error)

// Transport owns one inbound REP socket and dials peers with short-lived
// REQ sockets. It never crashes the process on network errors (spec
// section 4.1 failure model).
type Transport struct {
	log    *logrus.Entry
	clock  *clock.Logical
	peers  *peer.Table
	handle Handler

	mu          sync.Mutex
	lastFailure map[string]time.Time

	inbox    *zmq4.Socket
	boundPort int
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Transport bound to no socket yet; call Bind to start
// serving.
func New(log *logrus.Entry, lc *clock.Logical, peers *peer.Table, handler Handler) *Transport {
	return &Transport{
		log:         log,
		clock:       lc,
		peers:       peers,
		handle:      handler,
		lastFailure: make(map[string]time.Time),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Bind attempts to bind the inbound REP socket at basePort, then
// basePort+1 .. basePort+(bindAttempts-1), with exponential backoff
// between attempts. Failure after bindAttempts is fatal for the node
// (spec section 4.1 "Bind retry").
func (t *Transport) Bind(basePort int) error {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return errors.Wrap(err, "create zmq context")
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		port := basePort + attempt
		sock, err := ctx.NewSocket(zmq4.REP)
		if err != nil {
			lastErr = err
			continue
		}
		if err := sock.Bind(fmt.Sprintf("tcp://*:%d", port)); err != nil {
			lastErr = err
			_ = sock.Close()
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		t.inbox = sock
		t.boundPort = port
		if port != basePort {
			t.log.Warnf("bound sync socket on fallback port %d (base %d busy)", port, basePort)
		}
		go t.serve()
		return nil
	}
	return errors.Wrapf(lastErr, "bind failed after %d attempts starting at port %d", bindAttempts, basePort)
}

// BoundPort returns the port the inbound socket ended up bound to.
func (t *Transport) BoundPort() int {
	return t.boundPort
}

// serve is the inbound receive loop: decode, merge clock, dispatch,
// reply. It never lets a handler panic take down the node.
func (t *Transport) serve() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		if err := t.inbox.SetRcvtimeo(500 * time.Millisecond); err != nil {
			t.log.WithError(err).Error("set recv timeout")
		}
		raw, err := t.inbox.RecvBytes(0)
		if err != nil {
			// Timeout is expected; it lets us observe t.stop periodically.
			continue
		}

		reply := t.handleRaw(raw)
		if _, err := t.inbox.SendBytes(reply, 0); err != nil {
			t.log.WithError(err).Error("send reply")
		}
	}
}

func (t *Transport) handleRaw(raw []byte) []byte {
	env, err := wire.Decode(raw)
	if err != nil {
		out, _ := wire.Reply(false, err.Error(), t.clock.Value(), nil)
		return out
	}

	logical := t.clock.Observe(env.LogicalTime)

	fields, herr := func() (fields map[string]interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("handler panic: %v", r)
			}
		}()
		return t.handle(env)
	}()

	if herr != nil {
		t.log.WithError(herr).WithField("action", env.Action).Warn("handler error")
		out, _ := wire.Reply(false, herr.Error(), logical, nil)
		return out
	}
	out, _ := wire.Reply(true, "", logical, fields)
	return out
}

// Close stops the receive loop and releases the inbound socket.
func (t *Transport) Close() error {
	close(t.stop)
	if t.inbox != nil {
		<-t.done
		return t.inbox.Close()
	}
	return nil
}

func (t *Transport) suppressed(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastFailure[nodeID]
	return ok && time.Since(last) < retrySuppressWindow
}

func (t *Transport) recordFailure(nodeID string) {
	t.mu.Lock()
	t.lastFailure[nodeID] = time.Now()
	t.mu.Unlock()
	t.peers.SetActive(nodeID, false)
}

func (t *Transport) recordSuccess(nodeID string) {
	t.mu.Lock()
	delete(t.lastFailure, nodeID)
	t.mu.Unlock()
	entry, _ := t.peers.Get(nodeID)
	if !entry.Active {
		t.log.WithField("peer", nodeID).Info("peer recovered")
	}
	t.peers.SetActive(nodeID, true)
}

// dial opens a scoped REQ socket to a peer's sync address. The socket is
// always closed on every exit path, including error (spec section 9
// "scoped acquisition with guaranteed release").
func (t *Transport) dial(entry peer.Entry, timeout time.Duration) (*zmq4.Socket, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, err
	}
	sock, err := ctx.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	if err := sock.SetSndtimeo(timeout); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.SetRcvtimeo(timeout); err != nil {
		_ = sock.Close()
		return nil, err
	}
	addr := fmt.Sprintf("tcp://%s:%d", entry.Address, entry.SyncPort)
	if err := sock.Connect(addr); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return sock, nil
}

// roundTrip performs one request/reply exchange against entry and returns
// the decoded reply envelope.
func (t *Transport) roundTrip(entry peer.Entry, action wire.Action, fields map[string]interface{}, timeout time.Duration) (*wire.Envelope, error) {
	sock, err := t.dial(entry, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sock.Close() }()

	payload, err := wire.Request(action, t.clock.Tick(), fields)
	if err != nil {
		return nil, err
	}
	if _, err := sock.SendBytes(payload, 0); err != nil {
		return nil, err
	}
	raw, err := sock.RecvBytes(0)
	if err != nil {
		return nil, err
	}
	env, err := wire.Decode(raw)
	if err != nil {
		return nil, err
	}
	t.clock.Observe(env.LogicalTime)
	return env, nil
}

// Send is fire-and-forget best effort: it builds a fresh outbound socket
// in a background goroutine, writes the message, awaits a reply with a
// short timeout, and updates the peer's liveness. Retries toward a peer
// that failed within the last 10s are silently dropped (spec section 4.1).
func (t *Transport) Send(targetNodeID string, action wire.Action, fields map[string]interface{}) {
	entry, ok := t.peers.Get(targetNodeID)
	if !ok || entry.NodeID == t.peers.Self() {
		return
	}
	if t.suppressed(targetNodeID) {
		return
	}
	go func() {
		_, err := t.roundTrip(entry, action, fields, sendTimeout)
		if err != nil {
			t.recordFailure(targetNodeID)
			t.log.WithError(err).WithField("peer", targetNodeID).Debug("send failed")
			return
		}
		t.recordSuccess(targetNodeID)
	}()
}

// SendWithResponse performs a synchronous round trip and returns the
// decoded reply. Callers block on this, so retry suppression does not
// apply — only the discipline of marking the peer inactive on failure.
func (t *Transport) SendWithResponse(targetNodeID string, action wire.Action, fields map[string]interface{}) (*wire.Envelope, error) {
	entry, ok := t.peers.Get(targetNodeID)
	if !ok || entry.NodeID == t.peers.Self() {
		return nil, errors.Wrapf(ErrPeerUnreachable, "unknown peer %s", targetNodeID)
	}

	env, err := t.roundTrip(entry, action, fields, sendWithRespTimeout)
	if err != nil {
		t.recordFailure(targetNodeID)
		return nil, errors.Wrapf(ErrPeerUnreachable, "%s: %v", targetNodeID, err)
	}
	t.recordSuccess(targetNodeID)
	return env, nil
}

// Broadcast calls Send for every peer currently marked active, excluding
// self.
func (t *Transport) Broadcast(action wire.Action, fields map[string]interface{}) {
	for _, e := range t.peers.Active() {
		t.Send(e.NodeID, action, fields)
	}
}

// BroadcastTo calls Send for exactly the given entries (used by the
// replication queue to fan out to data peers only).
func (t *Transport) BroadcastTo(entries []peer.Entry, action wire.Action, fields map[string]interface{}) {
	for _, e := range entries {
		t.Send(e.NodeID, action, fields)
	}
}

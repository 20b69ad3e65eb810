package balancerd

import (
	"fmt"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const (
	forwardTimeout = 3 * time.Second
	bindAttempts   = 5
)

// Router terminates client connections on a ROUTER socket, picks one live
// backend per request, forwards the untouched payload, and relays the
// reply back on the original client identity (spec section 4.7).
type Router struct {
	log     *logrus.Entry
	table   *Table
	front   *zmq4.Socket
	boundPort int

	stop chan struct{}
	done chan struct{}
}

// NewRouter creates a Router; call Bind to start serving clients.
func NewRouter(log *logrus.Entry, table *Table) *Router {
	return &Router{
		log:   log,
		table: table,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Bind binds the client-facing ROUTER socket at basePort, with the same
// bind-retry-with-backoff discipline the backend transport uses.
func (r *Router) Bind(basePort int) error {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return errors.Wrap(err, "create zmq context")
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		port := basePort + attempt
		sock, err := ctx.NewSocket(zmq4.ROUTER)
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
		r.front = sock
		r.boundPort = port
		if port != basePort {
			r.log.Warnf("bound balancer router on fallback port %d (base %d busy)", port, basePort)
		}
		go r.serve()
		return nil
	}
	return errors.Wrapf(lastErr, "bind failed after %d attempts starting at port %d", bindAttempts, basePort)
}

// BoundPort returns the port the ROUTER socket ended up bound to.
func (r *Router) BoundPort() int {
	return r.boundPort
}

// Close stops the serve loop and releases the socket.
func (r *Router) Close() error {
	close(r.stop)
	if r.front != nil {
		<-r.done
		return r.front.Close()
	}
	return nil
}

func (r *Router) serve() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if err := r.front.SetRcvtimeo(500 * time.Millisecond); err != nil {
			r.log.WithError(err).Error("set recv timeout")
		}
		frames, err := r.front.RecvMessageBytes(0)
		if err != nil {
			continue // timeout; lets us observe r.stop
		}
		if len(frames) < 2 {
			continue
		}
		identity := frames[0]
		payload := frames[len(frames)-1]

		reply := r.route(payload)
		if _, err := r.front.SendMessage(identity, []byte{}, reply); err != nil {
			r.log.WithError(err).Error("send reply to client")
		}
	}
}

func (r *Router) route(payload []byte) []byte {
	env, err := wire.Decode(payload)
	if err != nil {
		out, _ := wire.Reply(false, "invalid request", 0, nil)
		return out
	}

	backend, ok := r.table.Pick()
	if !ok {
		out, _ := wire.Reply(false, "no server available", 0, nil)
		return out
	}

	offset := wire.ServicePortOffset(env.Action)
	reply, err := r.forward(backend, offset, payload)
	if err != nil {
		r.log.WithError(err).WithField("backend", backend.NodeID).Warn("forward failed")
		r.table.SetActive(backend.NodeID, false)
		out, _ := wire.Reply(false, "communication error", 0, nil)
		return out
	}
	return reply
}

func (r *Router) forward(backend Backend, offset int, payload []byte) ([]byte, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, err
	}
	sock, err := ctx.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sock.Close() }()

	if err := sock.SetSndtimeo(forwardTimeout); err != nil {
		return nil, err
	}
	if err := sock.SetRcvtimeo(forwardTimeout); err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("tcp://%s:%d", backend.Address, backend.ServicePort+offset)
	if err := sock.Connect(addr); err != nil {
		return nil, err
	}
	if _, err := sock.SendBytes(payload, 0); err != nil {
		return nil, err
	}
	return sock.RecvBytes(0)
}

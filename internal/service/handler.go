// Package service implements the four service dispatchers (C11): posts,
// messages, follow, and users. Each is served on one reply socket at its
// designated service port (a transport.Transport driving a Worker): receive
// payload, parse action, invoke the corresponding repository operation,
// and on a successful mutation enqueue exactly one replication event.
package service

import (
	"github.com/pkg/errors"

	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// ActionHandler is the capability-set model for a service's request
// handling (spec section 9 design note): a handler declares which actions
// it serves and dispatches a decoded request to a response.
type ActionHandler interface {
	Handles(action wire.Action) bool
	Dispatch(env *wire.Envelope) (map[string]interface{}, error)
}

// ErrUnknownAction is returned when no handler in the set claims the
// request's action (spec section 9: "unknown actions are an error kind,
// not silent no-ops").
var ErrUnknownAction = errors.New("unknown action")

// Worker is a generic service worker: it owns nothing about the socket
// itself (that's transport.Transport, reused verbatim for the
// client-facing reply ports), it only routes a decoded envelope to the
// one handler in its set that claims the action.
type Worker struct {
	handlers []ActionHandler
}

// NewWorker builds a Worker over a fixed set of handlers.
func NewWorker(handlers ...ActionHandler) *Worker {
	return &Worker{handlers: handlers}
}

// AsTransportHandler adapts the Worker into a transport.Handler, so a
// service port can be bound with the exact same Transport machinery the
// sync port uses (bind-retry, panic-safe dispatch, reply framing).
func (w *Worker) AsTransportHandler() transport.Handler {
	return func(env *wire.Envelope) (map[string]interface{}, error) {
		for _, h := range w.handlers {
			if h.Handles(env.Action) {
				return h.Dispatch(env)
			}
		}
		return nil, errors.Wrapf(ErrUnknownAction, "%s", env.Action)
	}
}

package replication

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const (
	pollSleep = 50 * time.Millisecond
	queueCapacity = 4096
)

// Sender is the subset of Transport the queue drainer needs.
type Sender interface {
	BroadcastTo(entries []peer.Entry, action wire.Action, fields map[string]interface{})
}

// Queue is the single-producer, single-drainer outbound FIFO: the service
// dispatcher enqueues after every successful local mutation; one
// dedicated worker fans each event out to every live data peer (spec
// section 4.5).
type Queue struct {
	log      *logrus.Entry
	self     string
	peers    *peer.Table
	sender   Sender
	events   chan Event

	stop chan struct{}
	done chan struct{}
}

// New creates a replication Queue.
func New(log *logrus.Entry, self string, peers *peer.Table, sender Sender) *Queue {
	return &Queue{
		log:    log,
		self:   self,
		peers:  peers,
		sender: sender,
		events: make(chan Event, queueCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Enqueue adds an event to the FIFO. Never blocks callers across I/O: if
// the queue is momentarily full, the event is dropped and logged rather
// than stalling the mutation path that produced it.
func (q *Queue) Enqueue(e Event) {
	select {
	case q.events <- e:
	default:
		q.log.WithField("eventType", e.Type).Warn("replication queue full, dropping event")
	}
}

// Run drains the queue: dequeue one event, non-blocking poll with a
// ~50ms sleep if empty, broadcast to every live data peer (spec section
// 4.5 worker loop).
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(pollSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case e := <-q.events:
			q.deliver(e)
		case <-ticker.C:
		}
	}
}

// Stop ends the drainer at its next suspension point.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

func (q *Queue) deliver(e Event) {
	targets := q.peers.ActiveData()
	if len(targets) == 0 {
		return
	}
	fields := map[string]interface{}{
		"sourceServerId": q.self,
		"eventType":      e.Type,
		"entityId":       e.EntityID,
		"timestamp":      e.OriginTimestamp,
		"data":           e.Payload,
	}
	q.sender.BroadcastTo(targets, wire.ActionDataReplication, fields)
}

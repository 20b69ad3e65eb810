// Package coordination wires the per-node dependency graph into a single
// explicit value instead of the source's process-wide singletons (spec
// section 9 design note): one BackendContext is constructed at boot
// and torn down at shutdown, carrying the peer table, both clocks, the
// transport, the replication queue, and the repositories that every
// service dispatcher and control-plane component needs.
package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/clock"
	"github.com/ppriyankuu/social-mesh/internal/clocksync"
	"github.com/ppriyankuu/social-mesh/internal/config"
	"github.com/ppriyankuu/social-mesh/internal/discovery"
	"github.com/ppriyankuu/social-mesh/internal/election"
	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/service"
	"github.com/ppriyankuu/social-mesh/internal/transport"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// BackendContext is the fully wired dependency graph for one data node.
type BackendContext struct {
	Log *logrus.Entry
	Cfg *config.Config

	Logical  *clock.Logical
	Physical *clock.Physical
	Peers    *peer.Table

	SyncTransport *transport.Transport
	Bully         *election.Bully
	ClockSync     *clocksync.Sync
	Discovery     *discovery.Service

	Users    *repo.UserRepo
	Posts    *repo.PostRepo
	Messages *repo.MessageRepo

	Queue   *replication.Queue
	Applier *replication.Applier

	servicePorts map[int]*transport.Transport
}

// healthLogInterval is how often a node logs a peer-table/coordinator
// snapshot at Info level — the in-process analogue of the teacher's
// GET /health endpoint, since no HTTP surface is left to serve one over.
const healthLogInterval = 60 * time.Second

// NewBackend constructs every component for a data node without starting
// any of them; Start launches them in the order that avoids the startup
// race spec section 9 calls out.
func NewBackend(log *logrus.Entry, cfg *config.Config) (*BackendContext, error) {
	c := &BackendContext{
		Log:          log,
		Cfg:          cfg,
		Logical:      clock.NewLogical(),
		Physical:     clock.NewPhysical(0),
		Peers:        peer.New(cfg.ServerID),
		servicePorts: make(map[int]*transport.Transport),
	}

	for _, seed := range cfg.SeedServers {
		c.Peers.Upsert(peer.Entry{NodeID: seed.NodeID, Address: seed.Host, SyncPort: seed.Port, Active: true})
	}

	var err error
	c.Users, err = repo.NewUserRepo(cfg.UserDataDirectory)
	if err != nil {
		return nil, err
	}
	c.Posts, err = repo.NewPostRepo(cfg.PostDataDirectory)
	if err != nil {
		return nil, err
	}
	c.Messages, err = repo.NewMessageRepo(cfg.MessageDataDirectory)
	if err != nil {
		return nil, err
	}

	c.Applier = replication.NewApplier(log, c.Users, c.Posts, c.Messages)

	c.SyncTransport = transport.New(log, c.Logical, c.Peers, c.dispatchControlPlane)
	c.Bully = election.New(log, cfg.ServerID, c.Peers, c.SyncTransport, time.Duration(cfg.CoordinatorCheckIntervalMS)*time.Millisecond)
	c.ClockSync = clocksync.New(log, cfg.ServerID, c.Peers, c.SyncTransport, c.Bully, c.Physical, time.Duration(cfg.SyncIntervalMS)*time.Millisecond)
	c.Discovery = discovery.New(log, discovery.Self{
		NodeID:      cfg.ServerID,
		Address:     cfg.ServerAddress,
		ServicePort: cfg.UserServicePort,
		SyncAddress: fmt.Sprintf("tcp://%s:%d", cfg.ServerAddress, cfg.SyncPort),
	}, c.Peers, c.SyncTransport)

	c.Queue = replication.New(log, cfg.ServerID, c.Peers, c.SyncTransport)

	return c, nil
}

// Start binds every socket and launches every scheduler. The replication
// drainer is started first so no mutation accepted by a service port can
// be lost to a not-yet-running worker.
func (c *BackendContext) Start(ctx context.Context) error {
	go c.Queue.Run(ctx)

	if err := c.SyncTransport.Bind(c.Cfg.SyncPort); err != nil {
		return err
	}

	users := service.NewUsersHandler(c.Users, c.Queue)
	posts := service.NewPostsHandler(c.Posts, c.Users, c.Queue)
	follow := service.NewFollowHandler(c.Users, c.Queue)
	messages := service.NewMessagesHandler(c.Messages, c.Queue)

	ports := map[int]*service.Worker{
		c.Cfg.UserServicePort:       service.NewWorker(posts),
		c.Cfg.UserServicePort + 100: service.NewWorker(messages),
		c.Cfg.UserServicePort + 200: service.NewWorker(follow),
		c.Cfg.UserServicePort + 300: service.NewWorker(users),
	}
	for port, worker := range ports {
		tr := transport.New(c.Log, c.Logical, c.Peers, worker.AsTransportHandler())
		if err := tr.Bind(port); err != nil {
			return err
		}
		c.servicePorts[port] = tr
	}

	go c.Bully.Run(ctx)
	go c.ClockSync.Run(ctx)
	go c.Discovery.Run(ctx)
	go c.logHealth(ctx)

	return nil
}

// logHealth periodically logs a peer-table/coordinator snapshot at Info
// level until ctx is cancelled.
func (c *BackendContext) logHealth(ctx context.Context) {
	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coordinatorID, _ := c.Bully.CoordinatorID()
			c.Log.WithFields(logrus.Fields{
				"peers":         c.Peers.All(),
				"isCoordinator": c.Bully.IsCoordinator(),
				"coordinatorId": coordinatorID,
			}).Info("node health snapshot")
		}
	}
}

// Shutdown stops the election, clock-sync, discovery and replication
// schedulers and closes every socket. The health logger is not stopped
// here; it ends when the context passed to Start is cancelled.
func (c *BackendContext) Shutdown() {
	c.Bully.Stop()
	c.ClockSync.Stop()
	c.Discovery.Stop()
	c.Queue.Stop()

	_ = c.SyncTransport.Close()
	for _, tr := range c.servicePorts {
		_ = tr.Close()
	}

	_ = c.Users.Snapshot()
	_ = c.Posts.Snapshot()
	_ = c.Messages.Snapshot()
	_ = c.Users.Close()
	_ = c.Posts.Close()
	_ = c.Messages.Close()
}

type announcement struct {
	NodeID      string `json:"nodeId"`
	Address     string `json:"address"`
	SyncAddress string `json:"syncAddress"`
}

type replicationFields struct {
	SourceServerID string                 `json:"sourceServerId"`
	EventType      string                 `json:"eventType"`
	EntityID       string                 `json:"entityId"`
	Timestamp      time.Time              `json:"timestamp"`
	Data           map[string]interface{} `json:"data"`
}

// dispatchControlPlane is the sync port's Handler: it routes every
// control-plane action (spec section 6.3) to the owning component.
func (c *BackendContext) dispatchControlPlane(env *wire.Envelope) (map[string]interface{}, error) {
	switch env.Action {
	case wire.ActionTimeRequest:
		var ts int64
		if err := env.Bind("timestamp", &ts); err != nil {
			return nil, err
		}
		var coordinatorID string
		if err := env.Bind("coordinator", &coordinatorID); err != nil {
			return nil, err
		}
		fields := c.ClockSync.HandleTimeRequest(ts)
		if fields != nil {
			// TIME_RESPONSE travels back as its own async message (spec
			// section 4.4 step 3), not as the synchronous REP ack, since
			// the coordinator's TIME_REQUEST broadcast is fire-and-forget.
			c.SyncTransport.Send(coordinatorID, wire.ActionTimeResponse, fields)
		}
		return nil, nil

	case wire.ActionTimeResponse:
		var serverID string
		var diff int64
		if err := env.Bind("serverId", &serverID); err != nil {
			return nil, err
		}
		if err := env.Bind("timeDifference", &diff); err != nil {
			return nil, err
		}
		c.ClockSync.HandleTimeResponse(serverID, diff)
		return nil, nil

	case wire.ActionClockAdjustment:
		var adjustment int64
		if err := env.Bind("adjustment", &adjustment); err != nil {
			return nil, err
		}
		c.ClockSync.HandleClockAdjustment(adjustment)
		return nil, nil

	case wire.ActionElection:
		var fromServer string
		if err := env.Bind("fromServer", &fromServer); err != nil {
			return nil, err
		}
		c.Bully.HandleElection(fromServer)
		return nil, nil

	case wire.ActionElectionResponse:
		var fromServer string
		if err := env.Bind("fromServer", &fromServer); err != nil {
			return nil, err
		}
		c.Bully.HandleElectionResponse(fromServer)
		return nil, nil

	case wire.ActionCoordinator, wire.ActionCoordinatorHeartbeat:
		var coordinatorID string
		if err := env.Bind("coordinatorId", &coordinatorID); err != nil {
			return nil, err
		}
		c.Bully.HandleCoordinator(coordinatorID)
		return nil, nil

	case wire.ActionCoordinatorPing:
		return nil, nil

	case wire.ActionIsCoordinatorRequest:
		return map[string]interface{}{"isCoordinator": c.Bully.IsCoordinator()}, nil

	case wire.ActionServerAnnouncement:
		var a announcement
		if err := env.Bind("nodeId", &a.NodeID); err != nil {
			return nil, err
		}
		_ = env.Bind("address", &a.Address)
		_ = env.Bind("syncAddress", &a.SyncAddress)
		if err := c.Discovery.HandleAnnouncement(a.NodeID, a.Address, a.SyncAddress); err != nil {
			return nil, err
		}
		return nil, nil

	case wire.ActionServerPing:
		return c.Discovery.HandlePing(), nil

	case wire.ActionDataReplication:
		var f replicationFields
		if err := env.Bind("eventType", &f.EventType); err != nil {
			return nil, err
		}
		_ = env.Bind("entityId", &f.EntityID)
		_ = env.Bind("timestamp", &f.Timestamp)
		_ = env.Bind("data", &f.Data)

		_, err := c.Applier.Apply(replication.Event{
			Type:            f.EventType,
			EntityID:        f.EntityID,
			OriginTimestamp: f.Timestamp,
			Payload:         f.Data,
		})
		return nil, err

	default:
		return nil, errUnknownControlAction(env.Action)
	}
}

type errUnknownControlAction wire.Action

func (e errUnknownControlAction) Error() string {
	return fmt.Sprintf("unknown control-plane action %q", wire.Action(e))
}

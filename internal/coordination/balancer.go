package coordination

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/balancerd"
	"github.com/ppriyankuu/social-mesh/internal/config"
	"github.com/ppriyankuu/social-mesh/internal/transport"
)

// BalancerContext is the wired dependency graph for the balancer node:
// a routing table, the client-facing router, and a reduced sync
// responder (spec section 4.7).
type BalancerContext struct {
	Log *logrus.Entry
	Cfg *config.Config

	Table  *balancerd.Table
	Router *balancerd.Router
	Sync   *transport.Transport

	stopHealth chan struct{}
	doneHealth chan struct{}
}

// NewBalancer constructs the balancer's dependency graph.
func NewBalancer(log *logrus.Entry, cfg *config.Config) *BalancerContext {
	table := balancerd.NewTable()
	return &BalancerContext{
		Log:        log,
		Cfg:        cfg,
		Table:      table,
		Router:     balancerd.NewRouter(log, table),
		Sync:       balancerd.NewSyncResponder(log, table),
		stopHealth: make(chan struct{}),
		doneHealth: make(chan struct{}),
	}
}

// Start binds the router and sync sockets and starts the health logger.
func (b *BalancerContext) Start() error {
	if err := b.Sync.Bind(b.Cfg.SyncPort); err != nil {
		return err
	}
	if err := b.Router.Bind(b.Cfg.BalancerPort); err != nil {
		return err
	}
	go b.logHealth()
	return nil
}

// logHealth periodically logs a backend-table snapshot at Info level — the
// balancer never participates in election, so it has no coordinator status
// to report, only which backends it currently considers live.
func (b *BalancerContext) logHealth() {
	defer close(b.doneHealth)
	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopHealth:
			return
		case <-ticker.C:
			b.Log.WithField("backends", b.Table.Active()).Info("balancer health snapshot")
		}
	}
}

// Shutdown stops the health logger and closes both sockets.
func (b *BalancerContext) Shutdown() {
	close(b.stopHealth)
	<-b.doneHealth
	_ = b.Router.Close()
	_ = b.Sync.Close()
}

// cmd/balancer is the entrypoint for the balancer node: it terminates
// client connections, round-robins requests across live data nodes, and
// runs a reduced sync responder for backend registration.
//
// Example:
//
//	./balancer --config /etc/social-mesh/balancer.properties
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppriyankuu/social-mesh/internal/config"
	"github.com/ppriyankuu/social-mesh/internal/coordination"
)

const shutdownGrace = 5 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "balancer",
		Short: "Run the social-mesh request balancer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c",
		"balancer.properties", "path to the balancer's properties file")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("balancer exited with error")
	}
}

func run(configPath string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log = log.WithField("nodeId", cfg.ServerID)

	balancer := coordination.NewBalancer(log, cfg)
	if err := balancer.Start(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"balancerPort": cfg.BalancerPort,
		"syncPort":     cfg.SyncPort,
	}).Info("balancer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	done := make(chan struct{})
	go func() {
		balancer.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn("shutdown grace period exceeded, exiting anyway")
	}
	return nil
}

// cmd/backend is the entrypoint for a data node: it loads a node's
// properties file, wires up the coordination context, and runs until
// signalled to shut down.
//
// Example:
//
//	./backend --config /etc/social-mesh/node-a.properties
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppriyankuu/social-mesh/internal/config"
	"github.com/ppriyankuu/social-mesh/internal/coordination"
)

const shutdownGrace = 15 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "backend",
		Short: "Run a social-mesh data node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c",
		"node.properties", "path to the node's properties file")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("backend exited with error")
	}
}

func run(configPath string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log = log.WithField("nodeId", cfg.ServerID)

	backend, err := coordination.NewBackend(log, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := backend.Start(ctx); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"syncPort":    cfg.SyncPort,
		"servicePort": cfg.UserServicePort,
	}).Info("backend started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		backend.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn("shutdown grace period exceeded, exiting anyway")
	}
	return nil
}

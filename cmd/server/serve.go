package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cf-civicrm/internal/api"
	"cf-civicrm/internal/config"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run the server on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	log, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if purger, ok := app.store.(transient.Purger); ok {
		go purgeLoop(ctx, purger, cfg.Transient.TTL(), log)
	}

	api.Version = version
	server := api.NewServer(app.runner, app.parser, log)
	log.WithFields(logrus.Fields{
		"crm":       cfg.CRM.Backend,
		"transient": cfg.Transient.Driver,
	}).Info("cfcrm server starting")
	if err := server.StartServer(ctx, ":"+strconv.Itoa(cfg.Server.Port)); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// purgeLoop drops contact-link records idle for longer than ttl
func purgeLoop(ctx context.Context, purger transient.Purger, ttl time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := purger.Purge(ctx, now.Add(-ttl))
			if err != nil {
				log.WithError(err).Warn("failed to purge contact links")
				continue
			}
			if n > 0 {
				log.WithField("purged", n).Debug("purged idle contact links")
			}
		}
	}
}

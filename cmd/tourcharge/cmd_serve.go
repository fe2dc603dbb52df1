package main

import (
	"fmt"

	"tourcharge/internal/config"
	"tourcharge/internal/server"
	"tourcharge/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd runs the HTTP API over one long-lived browser session.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the expense API over HTTP",
	Long: `Starts the HTTP API. Requests share one authenticated browser session;
the first portal request logs in, later ones reuse the session.

Edits to the configuration file are picked up live for the form defaults
and company settings. Portal, browser and server settings need a restart.

Examples:
  tourcharge serve
  tourcharge serve --addr :9000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}

	db, err := store.Open(c.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()

	drv, err := newDriver(c)
	if err != nil {
		return err
	}
	srv := server.New(c, drv, db, logger)

	ctx, cancel := signalContext()
	defer cancel()

	watcher, err := config.NewWatcher(cfgPath, func(next *config.Config) {
		srv.ApplyConfig(*next)
	})
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	logger.Info("serving", zap.String("addr", c.Server.Addr))
	return srv.Run(ctx)
}

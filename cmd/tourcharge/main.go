package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/logging"
	"tourcharge/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tourcharge",
	Short: "Back-office tour expense automation",
	Long: `tourcharge drives the agency back office's charge form. It reads tour
departures from CSV exports, resolves each tour code to its program code,
fills and submits the expense form, and records every outcome.

Credentials come from TOURCHARGE_USERNAME and TOURCHARGE_PASSWORD; the
rest of the configuration lives in tourcharge.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(filepath.Dir(cfgPath)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "tourcharge.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// newDriver builds the browser driver for the configured locator strategy.
func newDriver(c config.Config) (*driver.RodDriver, error) {
	loc, err := driver.StrategyFor(c.Form.LocatorStrategy)
	if err != nil {
		return nil, err
	}
	return driver.NewRod(c.Browser, loc), nil
}

// withPortal runs fn against an authenticated portal session and always
// releases the browser.
func withPortal(fn func(ctx context.Context, drv driver.Driver) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	drv, err := newDriver(*cfg)
	if err != nil {
		return err
	}
	sess := session.NewManager(*cfg, drv)
	defer func() {
		if err := sess.Release(); err != nil {
			logging.SessionError("release: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.Preflight(ctx); err != nil {
		return err
	}
	if err := sess.Login(ctx); err != nil {
		return err
	}
	return fn(ctx, drv)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupt received, shutting down")
		cancel()
	}()
	return ctx, cancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

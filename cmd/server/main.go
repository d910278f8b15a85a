package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blue-kelp-bio/reactormon/internal/api/ops"
	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/monitor"
	"github.com/blue-kelp-bio/reactormon/internal/notifier"
	"github.com/blue-kelp-bio/reactormon/internal/realtime"
	"github.com/blue-kelp-bio/reactormon/internal/retention"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
	"github.com/blue-kelp-bio/reactormon/pkg/config"
)

var (
	configFile string
	apiAddr    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reactormon-server",
	Short: "ReactorMon - Bioreactor telemetry monitoring and retention",
	Long: `ReactorMon watches bioreactor telemetry streams, raises alerts when
values cross operator-defined setpoints, notifies assigned users, and
prunes aged telemetry and alerts on a retention schedule.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reactormon-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&apiAddr, "address", "a", "", "ops API listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string, verbose bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if apiAddr != "" {
		cfg.Server.APIAddress = apiAddr
	}
	cfg.Verbose = verbose

	logger := newLogger(cfg.LogLevel, cfg.Verbose)
	logger.Info().Str("version", config.Version).Msg("starting reactormon-server")
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Metadata store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	// Telemetry store
	telemetry := storage.NewClickHouseTelemetry(&storage.ClickHouseConfig{
		Addresses:   cfg.ClickHouse.Addresses,
		Database:    cfg.ClickHouse.Database,
		Username:    cfg.ClickHouse.Username,
		Password:    cfg.ClickHouse.Password,
		Compression: cfg.ClickHouse.Compression,
	})
	if err := telemetry.Open(); err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}
	defer telemetry.Close()
	if err := telemetry.Migrate(); err != nil {
		return fmt.Errorf("migrate clickhouse: %w", err)
	}
	logger.Info().Strs("addresses", cfg.ClickHouse.Addresses).Msg("telemetry store connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Real-time channel
	hub := realtime.NewHub(logger)

	// Notifications
	var dispatcher monitor.Dispatcher
	var dispatcherCloser *notifier.Dispatcher
	if cfg.Notifications.Enabled {
		email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:     cfg.Notifications.SMTP.Host,
			Port:     cfg.Notifications.SMTP.Port,
			Username: cfg.Notifications.SMTP.Username,
			Password: cfg.Notifications.SMTP.Password,
			From:     cfg.Notifications.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("create email notifier: %w", err)
		}
		var limiter *notifier.RateLimiter
		if cfg.Notifications.RateLimit.Enabled {
			limiter = notifier.NewRateLimiter(notifier.RateLimitConfig{
				MaxPerWindow: cfg.Notifications.RateLimit.MaxPerWindow,
				Window:       cfg.Notifications.RateLimit.Window.Std(),
				Enabled:      true,
			})
		}
		d := notifier.NewDispatcher(store.Users(), store.Notifications(), email,
			limiter, cfg.Notifications.MaxConcurrent, logger)
		dispatcher = d
		dispatcherCloser = d
		logger.Info().Str("smtp", cfg.Notifications.SMTP.Host).Msg("email notifications enabled")
	} else {
		logger.Info().Msg("notifications disabled")
	}

	// Monitoring pipeline
	classifier := monitor.NewClassifier(cfg.Monitor.CriticalDeviationPct)
	guard := monitor.NewGuard(cfg.Monitor.DedupWindow.Std(), cfg.Monitor.DedupLookback)
	sink := monitor.NewSink(store.Alerts(), guard, hub, dispatcher, logger)
	monitorSvc := monitor.NewService(store, telemetry, classifier, sink,
		cfg.Monitor.Interval.Std(), logger)

	// Retention
	retentionSvc := retention.NewService(store, telemetry,
		cfg.Retention.Interval.Std(), cfg.Retention.DefaultDays, cfg.Retention.AlertDays, logger)

	// HTTP surfaces
	handler := ops.NewHandler(store, telemetry, monitorSvc, retentionSvc, hub, hub,
		cfg.Server.IngestPerSec, logger)
	apiServer := ops.NewServer(cfg.Server.APIAddress, handler, logger)
	metricsServer := metrics.NewServer(cfg.Server.MetricsAddress, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorSvc.Run(ctx)
	}()

	if err := retentionSvc.Start(ctx); err != nil {
		return fmt.Errorf("start retention: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	cancel()
	retentionSvc.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops API shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown")
	}
	if dispatcherCloser != nil {
		dispatcherCloser.Close() //nolint:errcheck
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingbot/internal/alert"
	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/logging"
	"github.com/hazz-dev/pingbot/internal/metrics"
	"github.com/hazz-dev/pingbot/internal/pipeline"
	"github.com/hazz-dev/pingbot/internal/server"
	"github.com/hazz-dev/pingbot/internal/storage"
	"github.com/hazz-dev/pingbot/internal/version"
)

var (
	cfgFile string
	envFile string
	dryRun  bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pingbot",
		Short:        "Check service reachability once and report each status",
		SilenceUsage: true,
		RunE:         runPass,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with sink secrets (ignored if missing)")

	root.AddCommand(versionCmd())
	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(serveCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pingbot %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check every enabled service and notify the configured sink",
		RunE:  runPass,
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print notifications to stdout instead of the configured sink")
	return cmd
}

// loadEnv loads envFile into the process environment. Variables that are
// already set win.
func loadEnv() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}

func runPass(cmd *cobra.Command, _ []string) error {
	// 1. Environment and config
	if err := loadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Logger
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer closeLog()
	logger.Info("config loaded", "path", cfgFile, "services", len(cfg.Services))

	// 3. Sink, resolved once before any checker starts
	notifyCfg := cfg.Notify
	if dryRun {
		notifyCfg.Sink = "stdout"
	}
	sink, err := alert.NewSink(notifyCfg, os.LookupEnv, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("building %s sink: %w", notifyCfg.Sink, err)
	}

	// 4. Optional delivery journal
	m := metrics.New()
	notifyOpts := alert.Options{
		IncludeHost:   cfg.Notify.IncludeHost,
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		Recorder:      m,
		Logger:        logger,
	}
	if cfg.Journal.Path != "" {
		db, err := storage.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer db.Close()
		notifyOpts.Journal = db
	}

	// 5. Signal context; cancelling stops probes but the notifier still drains
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 6. One pass
	if _, err := pipeline.Run(ctx, pipeline.Options{
		Services:        cfg.Services,
		Checker:         checker.New(checker.DefaultRegistry(), logger),
		Sink:            sink,
		ChannelCapacity: cfg.Pipeline.ChannelCapacity,
		MaxConcurrency:  cfg.Pipeline.MaxConcurrency,
		Deadline:        cfg.Pipeline.Deadline.Duration,
		Notify:          notifyOpts,
		Recorder:        m,
		Logger:          logger,
	}); err != nil {
		return err
	}

	// 7. Export metrics
	exportMetrics(m, cfg.Metrics, logger)
	return nil
}

// exportMetrics writes and pushes run metrics. Failures are logged only.
func exportMetrics(m *metrics.RunMetrics, mc config.MetricsConfig, logger *slog.Logger) {
	if mc.Textfile != "" {
		if err := m.WriteTextfile(mc.Textfile); err != nil {
			logger.Error("writing metrics textfile", "path", mc.Textfile, "error", err)
		}
	}
	if mc.Pushgateway != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Push(ctx, mc.Pushgateway, mc.Job); err != nil {
			logger.Error("pushing metrics", "url", mc.Pushgateway, "error", err)
		}
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every enabled service and print a table, without notifying",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return executeCheck(cmd, cfg)
}

func historyCmd() *cobra.Command {
	var (
		service string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print journaled deliveries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Journal.Path == "" {
				return errors.New("journal.path is not set in config")
			}

			db, err := storage.Open(cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer db.Close()

			if service != "" {
				return executeServiceHistory(cmd, db, service, limit)
			}
			return executeHistory(cmd, db)
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "show every journaled delivery for one service")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows with --service")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the delivery journal as a read-only JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path is not set in config")
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer closeLog()

	db, err := storage.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer db.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(db, cfg.Services, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/report"
	"github.com/platinummonkey/tally/pkg/storage"
)

// Options holds the reporter command-line settings
type Options struct {
	SnapshotSchedule string
	AlertSchedule    string
	Days             int
	Format           string
	Stdout           bool
	RunOnce          bool
	LogLevel         string
	Timeout          time.Duration
	Thresholds       analytics.AlertThresholds
}

// Reporter builds analytics snapshots on a schedule and archives them to S3
// and/or stdout. Alerts are evaluated with every snapshot and, optionally, on
// their own schedule.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tally-reporter: %v\n", err)
		os.Exit(1)
	}
	opts := parseFlags(cfg)

	logger := setupLogger(opts.LogLevel)
	logger.Info("Starting tally reporter")

	ctx := context.Background()

	openCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	store, err := storage.Open(openCtx, cfg.Store, nil)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()
	logger.WithField("store", cfg.Store.Type).Info("Event store opened")

	var svcOpts []analytics.Option
	if sb, ok := store.(storage.SampleBacked); ok && !sb.GeneratedAt().IsZero() {
		svcOpts = append(svcOpts, analytics.WithSampleData(sb.GeneratedAt()))
	}
	svc := analytics.NewService(store, svcOpts...)

	exporters, err := buildExporters(ctx, cfg, opts, logger)
	if err != nil {
		logger.Fatalf("Failed to configure exporters: %v", err)
	}

	runner := report.NewRunner(svc, logger, exporters,
		report.WithTrendDays(opts.Days),
		report.WithThresholds(opts.Thresholds),
	)

	// Run once mode (for testing or ad-hoc snapshots)
	if opts.RunOnce {
		runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		if err := runner.Run(runCtx); err != nil {
			logger.Fatalf("Snapshot failed: %v", err)
		}
		logger.Info("Snapshot completed successfully")
		return
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(logger))))

	if _, err := c.AddFunc(opts.SnapshotSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		if err := runner.Run(runCtx); err != nil {
			logger.WithError(err).Error("Scheduled snapshot failed")
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule snapshots: %v", err)
	}

	if opts.AlertSchedule != "" {
		if _, err := c.AddFunc(opts.AlertSchedule, func() {
			runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
			if _, err := runner.CheckAlerts(runCtx); err != nil {
				logger.WithError(err).Error("Alert check failed")
			}
		}); err != nil {
			logger.Fatalf("Failed to schedule alert checks: %v", err)
		}
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"snapshot_schedule": opts.SnapshotSchedule,
		"alert_schedule":    opts.AlertSchedule,
		"exporters":         len(exporters),
	}).Info("Reporter scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	// Wait for running jobs
	<-c.Stop().Done()
	logger.Info("Reporter stopped")
}

func parseFlags(cfg *config.Config) *Options {
	opts := &Options{Thresholds: analytics.DefaultAlertThresholds()}

	flag.StringVar(&opts.SnapshotSchedule, "schedule", cfg.Report.Schedule, "Cron schedule for snapshots")
	flag.StringVar(&opts.AlertSchedule, "alert-schedule", "", "Cron schedule for standalone alert checks (disabled when empty)")
	flag.IntVar(&opts.Days, "days", cfg.Report.Days, "Trend window of each snapshot in days")
	flag.StringVar(&opts.Format, "format", cfg.Report.Format, "Snapshot format (json, yaml)")
	flag.BoolVar(&opts.Stdout, "stdout", cfg.Report.S3.Bucket == "", "Write snapshots to stdout")
	flag.BoolVar(&opts.RunOnce, "run-once", false, "Build one snapshot and exit")
	flag.StringVar(&opts.LogLevel, "log-level", cfg.Observability.LogLevel.String(), "Log level (debug, info, warn, error)")
	flag.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "Timeout of one snapshot run")
	flag.IntVar(&opts.Thresholds.Days, "alert-days", opts.Thresholds.Days, "Alert lookback window in days")
	flag.Float64Var(&opts.Thresholds.MinSuccessRate, "min-success-rate", opts.Thresholds.MinSuccessRate, "Success rate percentage below which a feature alerts")
	flag.Float64Var(&opts.Thresholds.SpikeFactor, "spike-factor", opts.Thresholds.SpikeFactor, "Multiple of the baseline daily count that counts as a spike")
	flag.IntVar(&opts.Thresholds.MinEvents, "min-events", opts.Thresholds.MinEvents, "Ignore features with fewer events in the window")

	flag.Parse()

	return opts
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func buildExporters(ctx context.Context, cfg *config.Config, opts *Options, logger *logrus.Logger) ([]report.Exporter, error) {
	var exporters []report.Exporter

	if cfg.Report.S3.Bucket != "" {
		s3cfg := cfg.Report.S3
		s3cfg.Format = opts.Format
		exp, err := report.NewS3Exporter(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		exporters = append(exporters, exp)
		logger.WithFields(logrus.Fields{
			"bucket": s3cfg.Bucket,
			"prefix": s3cfg.Prefix,
		}).Info("S3 snapshot archive enabled")
	}

	if opts.Stdout {
		exp, err := report.NewWriterExporter(os.Stdout, opts.Format)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	}

	if len(exporters) == 0 {
		return nil, fmt.Errorf("no exporter configured: set TALLY_S3_BUCKET or pass --stdout")
	}
	return exporters, nil
}

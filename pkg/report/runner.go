package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tally/pkg/analytics"
)

// Runner builds a snapshot and hands it to every exporter
type Runner struct {
	service    *analytics.Service
	alerter    *analytics.Alerter
	exporters  []Exporter
	logger     *logrus.Logger
	days       int
	thresholds analytics.AlertThresholds
	now        func() time.Time
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTrendDays sets the trend window of each snapshot
func WithTrendDays(days int) RunnerOption {
	return func(r *Runner) {
		if days > 0 {
			r.days = days
		}
	}
}

// WithThresholds sets the alert thresholds
func WithThresholds(th analytics.AlertThresholds) RunnerOption {
	return func(r *Runner) { r.thresholds = th }
}

// WithRunnerClock overrides the snapshot timestamp source
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner. Exporters run in order; one failing does not
// stop the others.
func NewRunner(service *analytics.Service, logger *logrus.Logger, exporters []Exporter, opts ...RunnerOption) *Runner {
	r := &Runner{
		service:    service,
		alerter:    analytics.NewAlerter(service),
		exporters:  exporters,
		logger:     logger,
		days:       analytics.DefaultTrendDays,
		thresholds: analytics.DefaultAlertThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot collects global metrics, the usage trend and current alerts
func (r *Runner) Snapshot(ctx context.Context) (*Snapshot, error) {
	global, err := r.service.GetGlobalMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("global metrics: %w", err)
	}
	trend, err := r.service.GetUsageMetrics(ctx, r.days)
	if err != nil {
		return nil, fmt.Errorf("usage trend: %w", err)
	}
	alerts, err := r.alerter.CheckAllAlerts(ctx, r.thresholds)
	if err != nil {
		return nil, fmt.Errorf("alerts: %w", err)
	}

	return &Snapshot{
		GeneratedAt: r.now().UTC(),
		Days:        r.days,
		Global:      global,
		Trend:       trend,
		Alerts:      alerts,
	}, nil
}

// Run builds one snapshot, logs its alerts and exports it
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}

	r.logAlerts(snap.Alerts)

	var failed []string
	for _, exp := range r.exporters {
		if err := exp.Export(ctx, snap); err != nil {
			r.logger.WithError(err).WithField("exporter", exp.Name()).Error("Snapshot export failed")
			failed = append(failed, exp.Name())
			continue
		}
		r.logger.WithField("exporter", exp.Name()).Debug("Snapshot exported")
	}

	r.logger.WithFields(logrus.Fields{
		"total_usage":  snap.Global.TotalUsage,
		"active_users": snap.Global.ActiveUsers,
		"alerts":       len(snap.Alerts),
		"duration":     time.Since(start).String(),
	}).Info("Snapshot complete")

	if len(failed) > 0 {
		return fmt.Errorf("export failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

// CheckAlerts evaluates and logs alerts without exporting anything
func (r *Runner) CheckAlerts(ctx context.Context) ([]analytics.Alert, error) {
	alerts, err := r.alerter.CheckAllAlerts(ctx, r.thresholds)
	if err != nil {
		return nil, err
	}
	r.logAlerts(alerts)
	return alerts, nil
}

func (r *Runner) logAlerts(alerts []analytics.Alert) {
	if len(alerts) == 0 {
		r.logger.Debug("No analytics alerts")
		return
	}
	for _, a := range alerts {
		entry := r.logger.WithFields(logrus.Fields{
			"type":     a.Type,
			"severity": a.Severity,
		})
		for k, v := range a.Details {
			entry = entry.WithField(k, v)
		}
		if a.Severity == "critical" {
			entry.Error(a.Title)
		} else {
			entry.Warn(a.Title)
		}
	}
}

package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Alerter monitors usage metrics and raises alerts
type Alerter struct {
	service *Service
}

// NewAlerter creates a new Alerter instance
func NewAlerter(service *Service) *Alerter {
	return &Alerter{service: service}
}

// Alert represents an alert notification
type Alert struct {
	Type        string                 `json:"type"`     // "success_rate", "usage_spike"
	Severity    string                 `json:"severity"` // "critical", "warning"
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	TriggeredAt time.Time              `json:"triggered_at"`
}

// AlertThresholds configures CheckAllAlerts
type AlertThresholds struct {
	// Days is the lookback window
	Days int
	// MinSuccessRate is the percentage below which a feature alerts
	MinSuccessRate float64
	// SpikeFactor is how many times the baseline daily count the latest day must reach
	SpikeFactor float64
	// MinEvents ignores features with fewer events in the window
	MinEvents int
}

// DefaultAlertThresholds returns the reporter defaults
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Days:           7,
		MinSuccessRate: 90,
		SpikeFactor:    2,
		MinEvents:      20,
	}
}

// SuccessRateAlert represents a feature whose success rate dropped
type SuccessRateAlert struct {
	Feature     string
	SuccessRate float64
	Threshold   float64
	Events      int
}

// UsageSpikeAlert represents a feature whose latest daily usage spiked
type UsageSpikeAlert struct {
	Feature  string
	Date     string
	Count    int64
	Baseline float64
	Factor   float64
}

// CheckSuccessRateAlerts finds features whose success rate over the window is
// below threshold, worst first
func (a *Alerter) CheckSuccessRateAlerts(ctx context.Context, days int, threshold float64, minEvents int) ([]SuccessRateAlert, error) {
	events, err := a.window(ctx, days)
	if err != nil {
		return nil, err
	}

	type tally struct{ total, ok int }
	byFeature := make(map[string]*tally)
	for _, e := range events {
		t, found := byFeature[e.Feature]
		if !found {
			t = &tally{}
			byFeature[e.Feature] = t
		}
		t.total++
		if e.Success {
			t.ok++
		}
	}

	var alerts []SuccessRateAlert
	for feature, t := range byFeature {
		if t.total < minEvents {
			continue
		}
		rate := round(percent(float64(t.ok), float64(t.total)), 2)
		if rate < threshold {
			alerts = append(alerts, SuccessRateAlert{
				Feature:     feature,
				SuccessRate: rate,
				Threshold:   threshold,
				Events:      t.total,
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].SuccessRate != alerts[j].SuccessRate {
			return alerts[i].SuccessRate < alerts[j].SuccessRate
		}
		return alerts[i].Feature < alerts[j].Feature
	})
	return alerts, nil
}

// CheckUsageSpikeAlerts compares each feature's event count on the most recent
// date in the window with its mean daily count over the preceding days. The
// window starts at UTC midnight so it holds exactly days calendar dates.
func (a *Alerter) CheckUsageSpikeAlerts(ctx context.Context, days int, factor float64, minEvents int) ([]UsageSpikeAlert, error) {
	if days < 2 {
		return nil, nil
	}
	now := a.service.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := a.service.store.FetchEvents(ctx, TimeRange{
		Start: today.AddDate(0, 0, -(days - 1)),
		End:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	latest := ""
	counts := make(map[string]map[string]int64)
	for _, e := range events {
		date := e.Date()
		if date > latest {
			latest = date
		}
		if counts[e.Feature] == nil {
			counts[e.Feature] = make(map[string]int64)
		}
		counts[e.Feature][date]++
	}

	var alerts []UsageSpikeAlert
	for feature, byDate := range counts {
		current := byDate[latest]
		var previous int64
		for date, n := range byDate {
			if date != latest {
				previous += n
			}
		}
		if current+previous < int64(minEvents) {
			continue
		}
		baseline := float64(previous) / float64(days-1)
		if baseline > 0 && float64(current) >= baseline*factor {
			alerts = append(alerts, UsageSpikeAlert{
				Feature:  feature,
				Date:     latest,
				Count:    current,
				Baseline: round(baseline, 2),
				Factor:   round(float64(current)/baseline, 2),
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Factor != alerts[j].Factor {
			return alerts[i].Factor > alerts[j].Factor
		}
		return alerts[i].Feature < alerts[j].Feature
	})
	return alerts, nil
}

// CheckAllAlerts runs every check and converts the results to notifications
func (a *Alerter) CheckAllAlerts(ctx context.Context, th AlertThresholds) ([]Alert, error) {
	now := a.service.now().UTC()
	var alerts []Alert

	rateAlerts, err := a.CheckSuccessRateAlerts(ctx, th.Days, th.MinSuccessRate, th.MinEvents)
	if err != nil {
		return nil, fmt.Errorf("success rate check failed: %w", err)
	}
	for _, ra := range rateAlerts {
		severity := "warning"
		if ra.SuccessRate < ra.Threshold-10 {
			severity = "critical"
		}
		alerts = append(alerts, Alert{
			Type:     "success_rate",
			Severity: severity,
			Title:    fmt.Sprintf("Low success rate: %s", FeatureLabel(ra.Feature)),
			Message: fmt.Sprintf("%s succeeded %.2f%% of %d requests in the last %d days (threshold %.2f%%)",
				ra.Feature, ra.SuccessRate, ra.Events, th.Days, ra.Threshold),
			Details: map[string]interface{}{
				"feature":      ra.Feature,
				"success_rate": ra.SuccessRate,
				"events":       ra.Events,
			},
			TriggeredAt: now,
		})
	}

	spikeAlerts, err := a.CheckUsageSpikeAlerts(ctx, th.Days, th.SpikeFactor, th.MinEvents)
	if err != nil {
		return nil, fmt.Errorf("usage spike check failed: %w", err)
	}
	for _, sa := range spikeAlerts {
		alerts = append(alerts, Alert{
			Type:     "usage_spike",
			Severity: "warning",
			Title:    fmt.Sprintf("Usage spike: %s", FeatureLabel(sa.Feature)),
			Message: fmt.Sprintf("%s had %d events on %s, %.2fx its daily baseline of %.2f",
				sa.Feature, sa.Count, sa.Date, sa.Factor, sa.Baseline),
			Details: map[string]interface{}{
				"feature":  sa.Feature,
				"date":     sa.Date,
				"count":    sa.Count,
				"baseline": sa.Baseline,
			},
			TriggeredAt: now,
		})
	}

	return alerts, nil
}

func (a *Alerter) window(ctx context.Context, days int) ([]UsageEvent, error) {
	if days <= 0 {
		return nil, nil
	}
	events, err := a.service.store.FetchEvents(ctx, LastDays(a.service.now(), days))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return events, nil
}

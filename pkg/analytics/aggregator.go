package analytics

import (
	"sort"
	"time"
)

// peakHourLimit is the number of hours reported in a usage trend
const peakHourLimit = 5

// recentActivityLimit is the number of events reported in user metrics
const recentActivityLimit = 10

// GlobalMetrics summarises an entire event collection
type GlobalMetrics struct {
	TotalUsers           int64              `json:"total_users"`
	PaidUsers            int64              `json:"paid_users"`
	FreeUsers            int64              `json:"free_users"`
	ConversionRate       float64            `json:"conversion_rate"`
	TotalUsage           int64              `json:"total_usage"`
	ActiveUsers          int64              `json:"active_users"`
	MostUsedFeature      string             `json:"most_used_feature"`
	MostUsedFeatureLabel string             `json:"most_used_feature_label"`
	FeatureDistribution  map[string]float64 `json:"feature_distribution"`
	DailyUsage           map[string]int64   `json:"daily_usage"`
	SuccessRate          float64            `json:"success_rate"`
	AvgDuration          float64            `json:"avg_duration"`
	LastUpdated          *time.Time         `json:"last_updated,omitempty"`
}

// FeatureMetrics summarises the events of a single feature
type FeatureMetrics struct {
	Feature     string                `json:"feature"`
	TotalUsage  int64                 `json:"total_usage"`
	UniqueUsers int64                 `json:"unique_users"`
	AvgDuration float64               `json:"avg_duration"`
	SuccessRate float64               `json:"success_rate"`
	DailyStats  map[string]DailyStats `json:"daily_stats"`
}

// DailyStats is the per-date breakdown of a feature
type DailyStats struct {
	Count       int64   `json:"count"`
	AvgDuration float64 `json:"avg_duration"`
	SuccessRate float64 `json:"success_rate"`
}

// UsageTrend summarises usage inside a trailing window of days
type UsageTrend struct {
	Days           int                `json:"days"`
	TotalUsage     int64              `json:"total_usage"`
	AvgDailyUsage  int64              `json:"avg_daily_usage"`
	UsageByFeature map[string]float64 `json:"usage_by_feature"`
	UsageByPlan    map[string]float64 `json:"usage_by_plan"`
	DailyUsage     []DailyUsage       `json:"daily_usage"`
	PeakHours      []PeakHour         `json:"peak_hours"`
	ActiveUsers    int64              `json:"active_users"`
	UserCount      int64              `json:"user_count"`
}

// DailyUsage is the summed usage of one calendar date
type DailyUsage struct {
	Date       string  `json:"date"`
	TokensUsed float64 `json:"tokens_used"`
}

// PeakHour is the event count of one hour of the day
type PeakHour struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// UserMetrics summarises one user's recent activity
type UserMetrics struct {
	UserID              string           `json:"user_id"`
	TotalUsage          int64            `json:"total_usage"`
	AvgTokensPerRequest float64          `json:"avg_tokens_per_request"`
	FeaturesUsed        map[string]int64 `json:"features_used"`
	RecentActivity      []Activity       `json:"recent_activity"`
	TotalRequests       int64            `json:"total_requests"`
}

// Activity is one entry of a user's recent activity
type Activity struct {
	Feature    string    `json:"feature"`
	TokensUsed float64   `json:"tokens_used"`
	Cost       float64   `json:"cost,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ComputeGlobalMetrics aggregates counts, distributions and rates over all events.
// An empty collection yields zeroed numbers and NoFeature as the most used feature.
func ComputeGlobalMetrics(events []UsageEvent) GlobalMetrics {
	m := GlobalMetrics{
		MostUsedFeature:     NoFeature,
		FeatureDistribution: make(map[string]float64),
		DailyUsage:          make(map[string]int64),
	}
	m.MostUsedFeatureLabel = FeatureLabel(m.MostUsedFeature)
	if len(events) == 0 {
		return m
	}

	users := make(map[string]struct{})
	features := make(map[string]int64)
	var successes int
	var duration float64

	for _, e := range events {
		users[e.UserID] = struct{}{}
		features[e.Feature]++
		m.DailyUsage[e.Date()]++
		if e.Success {
			successes++
		}
		duration += e.Quantity
	}

	total := len(events)
	m.TotalUsage = int64(total)
	m.ActiveUsers = int64(len(users))
	m.MostUsedFeature = mostUsed(features)
	m.MostUsedFeatureLabel = FeatureLabel(m.MostUsedFeature)
	for feature, count := range features {
		m.FeatureDistribution[feature] = round(percent(float64(count), float64(total)), 1)
	}
	m.SuccessRate = round(percent(float64(successes), float64(total)), 2)
	m.AvgDuration = round(mean(duration, total), 2)

	return m
}

// mostUsed returns the feature with the highest count. Ties go to the
// lexicographically smallest feature.
func mostUsed(counts map[string]int64) string {
	best := NoFeature
	var bestCount int64
	for feature, count := range counts {
		if best == NoFeature || count > bestCount || (count == bestCount && feature < best) {
			best, bestCount = feature, count
		}
	}
	return best
}

// ComputeFeatureMetrics aggregates the events of one feature. The name is
// normalized before comparison; ok is false when no event matches.
func ComputeFeatureMetrics(events []UsageEvent, feature string) (FeatureMetrics, bool) {
	feature = NormalizeFeature(feature)

	type bucket struct {
		count     int
		successes int
		duration  float64
	}

	var all bucket
	users := make(map[string]struct{})
	days := make(map[string]*bucket)

	for _, e := range events {
		if NormalizeFeature(e.Feature) != feature {
			continue
		}
		users[e.UserID] = struct{}{}

		day, ok := days[e.Date()]
		if !ok {
			day = &bucket{}
			days[e.Date()] = day
		}
		for _, b := range []*bucket{&all, day} {
			b.count++
			b.duration += e.Quantity
			if e.Success {
				b.successes++
			}
		}
	}

	if all.count == 0 {
		return FeatureMetrics{}, false
	}

	m := FeatureMetrics{
		Feature:     feature,
		TotalUsage:  int64(all.count),
		UniqueUsers: int64(len(users)),
		AvgDuration: round(mean(all.duration, all.count), 2),
		SuccessRate: round(percent(float64(all.successes), float64(all.count)), 2),
		DailyStats:  make(map[string]DailyStats, len(days)),
	}
	for date, b := range days {
		m.DailyStats[date] = DailyStats{
			Count:       int64(b.count),
			AvgDuration: round(mean(b.duration, b.count), 2),
			SuccessRate: round(percent(float64(b.successes), float64(b.count)), 2),
		}
	}
	return m, true
}

// ComputeUsageTrend aggregates events already restricted to a window of days.
// plans maps user ID to plan; users missing from it count as DefaultPlan.
// userCount is the registered user total, reported as-is.
func ComputeUsageTrend(events []UsageEvent, days int, plans map[string]string, userCount int64) UsageTrend {
	t := UsageTrend{
		Days:           days,
		UsageByFeature: make(map[string]float64),
		UsageByPlan:    make(map[string]float64),
		DailyUsage:     []DailyUsage{},
		PeakHours:      []PeakHour{},
		UserCount:      userCount,
	}
	if len(events) == 0 || days <= 0 {
		return t
	}

	var total float64
	users := make(map[string]struct{})
	daily := make(map[string]float64)
	var hours [24]int64

	for _, e := range events {
		total += e.Quantity
		users[e.UserID] = struct{}{}
		t.UsageByFeature[e.Feature] += e.Quantity
		daily[e.Date()] += e.Quantity
		hours[e.Hour()]++

		plan, ok := plans[e.UserID]
		if !ok || plan == "" {
			plan = DefaultPlan
		}
		t.UsageByPlan[plan] += e.Quantity
	}

	t.TotalUsage = int64(total)
	t.AvgDailyUsage = int64(total / float64(days))
	t.ActiveUsers = int64(len(users))

	for k, v := range t.UsageByFeature {
		t.UsageByFeature[k] = round(v, 2)
	}
	for k, v := range t.UsageByPlan {
		t.UsageByPlan[k] = round(v, 2)
	}

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		t.DailyUsage = append(t.DailyUsage, DailyUsage{Date: date, TokensUsed: round(daily[date], 2)})
	}

	t.PeakHours = topHours(hours, peakHourLimit)
	return t
}

// topHours ranks hours by count descending, ties going to the smaller hour.
// Hours without events are never reported.
func topHours(hours [24]int64, limit int) []PeakHour {
	ranked := make([]PeakHour, 0, len(hours))
	for hour, count := range hours {
		if count > 0 {
			ranked = append(ranked, PeakHour{Hour: hour, Count: count})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Hour < ranked[j].Hour
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// ComputeUserMetrics aggregates one user's events. The events are expected to
// be the user's most recent ones, already capped by the store.
func ComputeUserMetrics(userID string, events []UsageEvent) UserMetrics {
	m := UserMetrics{
		UserID:         userID,
		FeaturesUsed:   make(map[string]int64),
		RecentActivity: []Activity{},
	}
	if len(events) == 0 {
		return m
	}

	var total float64
	for _, e := range events {
		total += e.Quantity
		m.FeaturesUsed[e.Feature]++
	}
	m.TotalUsage = int64(total)
	m.TotalRequests = int64(len(events))
	m.AvgTokensPerRequest = round(mean(total, len(events)), 2)

	recent := make([]UsageEvent, len(events))
	copy(recent, events)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > recentActivityLimit {
		recent = recent[:recentActivityLimit]
	}
	for _, e := range recent {
		m.RecentActivity = append(m.RecentActivity, Activity{
			Feature:    e.Feature,
			TokensUsed: e.Quantity,
			Cost:       e.Cost,
			Timestamp:  e.Timestamp.UTC(),
		})
	}
	return m
}

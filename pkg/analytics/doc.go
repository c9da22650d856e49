// Package analytics computes usage analytics over a log of feature-usage events.
//
// # Overview
//
// Events are fetched from an EventStore (MongoDB, PostgreSQL, or the in-memory
// sample store) and reduced by pure aggregation functions into fixed-shape
// metrics records. Nothing is pre-aggregated: every call recomputes from the
// current event collection.
//
// # Key Metrics
//
// Global metrics:
//   - Total events and distinct active users
//   - Most used feature and feature distribution (percent of total)
//   - Events per day
//   - Success rate and average duration
//   - Registered users by plan and conversion rate
//
// Per-feature metrics:
//   - Total events, unique users, average duration, success rate
//   - Per-day count, average duration and success rate
//
// Usage trend (trailing N days):
//   - Total and average daily usage
//   - Usage by feature, by plan and by day
//   - Top five peak hours
//
// Per-user metrics:
//   - Total usage, average per request, feature counts
//   - Ten most recent events
//
// # Usage Example
//
// Build the service once and share it:
//
//	svc := analytics.NewService(store, analytics.WithPlanResolver(planCache))
//
//	global, err := svc.GetGlobalMetrics(ctx)
//	fmt.Printf("%d events, most used: %s\n", global.TotalUsage, global.MostUsedFeature)
//
// Trend over the last week:
//
//	trend, err := svc.GetUsageMetrics(ctx, 7)
//	for _, h := range trend.PeakHours {
//		fmt.Printf("%02d:00 %d events\n", h.Hour, h.Count)
//	}
//
// # Rounding
//
// Every rounded value uses round-half-to-even (banker's rounding). Percentages
// are on a 0-100 scale.
//
// # Related Packages
//
//   - pkg/storage: event store backends
//   - pkg/cache: plan lookup cache
//   - pkg/api: HTTP handlers
package analytics

// Package cache provides the user plan cache used when trend aggregation
// groups usage by plan.
//
// Lookups go through two levels before reaching the event store:
//
//   - L1: a size-bounded LRU with per-entry expiry, local to the process
//   - L2: an optional Redis keyspace shared by every server instance
//
// A Redis outage degrades the cache to L1 only; lookups keep working
// against the store and the failure is logged.
package cache

// Package cron provides the distributed workflow scheduler.
//
// Schedules are stored in a shared store so any scheduler instance can
// rebuild its view on startup. On every tick the scheduler evaluates due
// jobs, acquires a short-TTL distributed lock per job, re-reads the job
// under the lock to guard against a stale in-memory next-run time, fires
// the trigger callback, and persists the recomputed next run. The lock
// release is owner-checked so a slow instance cannot delete a lock a
// later instance acquired after TTL expiry.
//
// # Expressions
//
// Schedules use standard five-field cron expressions (minute, hour,
// day-of-month, month, day-of-week). Descriptors like "@every 30s" are
// not accepted. Next-run computation is bounded by a two-year horizon so
// an unsatisfiable expression fails instead of searching forever.
package cron

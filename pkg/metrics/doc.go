/*
Package metrics provides Prometheus instrumentation and HTTP health
endpoints for the gosync daemon.

# Metrics

All metrics carry the gosync_ prefix and, where meaningful, a job label:

	gosync_jobs_total{status}            configured jobs by lifecycle state
	gosync_sync_cycles_total{job,outcome} sync cycles (success|failure|skipped)
	gosync_sync_duration_seconds{job}     full-cycle latency histogram
	gosync_changes_fetched_total{job,side} change records fetched per side
	gosync_changes_applied_total{job,side} operations applied per side
	gosync_conflicts_total{job}           both-sides-changed paths
	gosync_apply_failures_total{job,side} operations skipped after errors
	gosync_watcher_events_total{type}     filesystem events handled
	gosync_change_log_length{job}         pending rows in each change log

The merge coordinator updates the per-cycle counters directly; the Collector
bridges broker events into outcome counters and samples each job's
change-log backlog on a 15s ticker.

# Health endpoints

The same listener that serves /metrics also serves /health, /ready and
/live. Jobs register themselves as components; the daemon reports unhealthy
when any job is failed, and not ready until at least one job is registered
and all registered jobs are healthy.

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
*/
package metrics

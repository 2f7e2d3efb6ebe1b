/*
Package scheduler assembles configured jobs into running service trees and
drives their sync schedules.

	Scheduler
	  ├── events.Broker            shared across jobs
	  ├── metrics.Collector        samples every job's change log
	  └── Job (one per config entry)
	        ├── flock              one daemon per job directory
	        ├── index.Store        <job dir>/index.db
	        ├── cursor.Store       <job dir>/cursors.db
	        ├── watcher.Recursive  platform event source
	        ├── watcher.Handler    filter + enrich + dispatch
	        ├── endpoint.Local / endpoint.Remote
	        ├── merger.Merger      the sync coordinator
	        └── Looper             periodic or daily clock trigger

Lifecycle is strictly hierarchical: a parent starts its children before
itself and stops them in reverse, joining every goroutine. A job that fails
assembly (unreachable index directory, bad globs) transitions to Failed and
is reported through the broker and the health registry; the remaining jobs
keep running. Start only errors when no job could be started at all.

# Triggers

A numeric frequency yields a Periodic looper that fires immediately and
then on every tick; an HH:MM frequency yields a Clock looper that fires
once a day at that local time. Manual runs go through TriggerNow, matching
what the trigger loop does.
*/
package scheduler

/*
Package events provides an in-process publish/subscribe broker for job and
sync lifecycle notifications.

Producers (the scheduler and the merge coordinator) publish fire-and-forget
events; consumers subscribe to a buffered channel each. Delivery is best
effort: a subscriber that stops draining its channel loses events rather
than blocking the producers, because a slow log consumer must never stall a
sync cycle.

	scheduler ──┐                       ┌──▶ logging subscriber
	            ├──▶ Broker ── fan-out ─┤
	merger ─────┘                       └──▶ metrics collector

Event types cover the job lifecycle (job.started, job.stopped, job.failed)
and the sync cycle (sync.started, sync.completed, sync.failed, sync.skipped,
sync.conflict). Every event carries the job name it belongs to.
*/
package events

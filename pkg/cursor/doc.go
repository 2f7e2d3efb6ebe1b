/*
Package cursor persists each endpoint's change-stream high-water mark in a
small bbolt database, one per job.

A cursor is the sequence number up to which a sync has consumed an
endpoint's changes. Persisting it means a restarted daemon resumes exactly
where it stopped instead of refetching and reapplying history; invariant:
the cursor only moves forward, and only after the cycle that observed the
sequence completed.
*/
package cursor

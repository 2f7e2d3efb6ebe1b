/*
Package index implements the persistent inode index and its monotonic change
log, the source of truth for what the local workspace looked like the last
time gosync observed it.

Two relations back the package, created by an embedded initialization script:

	ajxp_index    one row per tracked file or directory, keyed by node_path
	ajxp_changes  append-only log of mutations, keyed by a monotonic seq

Every insert, update and delete on ajxp_index fires a schema trigger that
appends the matching create/move/modify/delete row to ajxp_changes. Keeping
the propagation inside the database makes the change row atomic with the
state change: there is no window in which a crash leaves the index mutated
but the log silent.

# Single writer

The sql.DB pool is pinned to one connection. All statements, from the watcher
pipeline and the merge coordinator alike, are serialized FIFO by database/sql
on that connection. The monotonic seq generator needs no further locking, and
an in-memory database stays alive for the Store's lifetime.

# State manager

StateManager is the only writer of ajxp_index. It exposes the four semantic
intents (create, delete, modify, move); each is one transaction:

	create  INSERT of all five inode columns
	delete  subtree DELETE (path itself plus every descendant)
	modify  UPDATE of the content columns; no-op for directories
	move    UPDATE of node_path, plus a prefix rewrite of descendants

Integrity violations (duplicate create, modify or move of an unindexed path)
surface types.ErrStateMismatch; the caller decides whether to skip the path
or escalate.

# Change consumption

Changes(since) returns rows with seq > since joined against the inode table,
ordered by (node_id, seq). Consumers persist the highest seq they have
handled and pass it back on the next call; TrimChanges discards rows both
sides of a sync pair have acknowledged.
*/
package index

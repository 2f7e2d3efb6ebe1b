/*
Package types defines the shared data model for gosync: inode records, change
log entries, merge policies, and the error kinds every component reports.

The two central types mirror the index store's relations:

	┌─────────────── ajxp_index ───────────────┐
	│ Inode                                     │
	│   NodePath  (primary key, normalized)     │
	│   Bytesize  (0 for directories)           │
	│   MD5       ("directory" sentinel)        │
	│   MTime     (seconds since epoch)         │
	│   Stat      (opaque serialized snapshot)  │
	└───────────────────────────────────────────┘

	┌─────────────── ajxp_changes ──────────────┐
	│ Change                                     │
	│   Seq     (monotonic, totally ordered)     │
	│   NodeID  (nullable inode reference)       │
	│   Type    (create|delete|modify|move)      │
	│   Source  (empty for create)               │
	│   Target  (empty for delete)               │
	└────────────────────────────────────────────┘

Error kinds are sentinel values combined with %w wrapping so that the merge
coordinator and the scheduler can classify failures with errors.Is without
depending on the package that produced them.
*/
package types

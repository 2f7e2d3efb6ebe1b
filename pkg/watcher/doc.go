/*
Package watcher observes a local workspace tree and turns raw platform
notifications into enriched inode intents for the index.

The pipeline has two halves:

	platform (fsnotify)
	      │ per-directory notifications
	      ▼
	Recursive ── classify, pair renames, track directories
	      │ Event{Op, Path, OldPath, IsDir}
	      ▼
	Handler ──── filter → enrich (md5, stat) → dispatch
	      │ sharded worker pool, per-path FIFO
	      ▼
	StateSink (index.StateManager)

# Classification

fsnotify reports per-directory, unpaired operations. Recursive maintains the
recursive registration (new directories are added to the watch set as they
appear), remembers which paths are directories so removals can be classified
after the fact, and pairs a Rename with the next Create of the same base name
inside a short window to recover move events. An unpaired rename decays to a
deletion, which is the correct conservative reading: the inode left the tree
as far as the index is concerned.

# Enrichment

The handler never does IO on the delivery goroutine. Accepted events are
sharded by relative path over a small worker pool; the shard guarantees that
two events for one path are enriched and dispatched in arrival order, while
distinct paths proceed in parallel. Enrichment computes the content MD5
(directories get the fixed "directory" sentinel), captures size and mtime,
and serializes a stat snapshot for bit-exact comparison later. For moves the
destination path is read.

Enrichment failures are logged per event and dropped; one unreadable file
must not stop observation of the rest of the tree.

# Initial scan

InitialScan walks the tree once at job start and feeds create intents for
every accepted path, so a fresh index converges without waiting for events.
Paths the index already knows reply with a state mismatch, which the scan
treats as confirmation rather than failure.
*/
package watcher

/*
Package merger coordinates bidirectional reconciliation between a local and
a remote endpoint.

One Merger owns one sync pair. Its Sync method is the heart of the system:

	Idle → Acquiring → Ready-checking → Fetching → Merging → Applying → Idle

	1. Try the merge lock. Held: log, emit sync.skipped, return. Never wait.
	2. Assert both endpoints ready, in parallel. Either failing aborts the
	   cycle before any change is fetched.
	3. Fetch both change streams in parallel from the persisted cursors.
	4. Ask the strategy for a plan: operations per side plus conflict count.
	5. Apply each side's operations in order. A failing operation is
	   logged, counted and skipped, never fatal to the cycle.
	6. Advance both cursors to the highest sequence observed, truncate the
	   acknowledged prefix of the local change log, release the lock.

Any terminal failure returns to idle with the cursors unchanged, so the next
trigger tick retries the same window. Cancellation propagates through every
awaited call; partially-applied operations stay committed and reconcile on
the next cycle.

# Strategy

The planning algorithm is pluggable behind the Strategy interface. The
default TwoWay strategy groups both streams by normalized path, collapses
each path to its latest change, propagates one-sided changes subject to the
direction policy (up, down, bi), and resolves both-sided conflicts per the
solve policy: local and remote keep the designated side, both preserves the
losing version under a conflict name.

Content never flows through the planner. Operations carry a lazy content
source bound to the origin endpoint, opened only when the target endpoint
applies the operation.
*/
package merger

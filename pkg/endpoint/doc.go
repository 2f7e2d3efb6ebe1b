/*
Package endpoint defines the synchronizable abstraction: a uniform interface
over the two sides of a sync pair, each exposing a readiness check, an
ordered cursor-addressable change stream, a content source, and a mutation
surface for applying the other side's changes.

	             ┌────────────── Synchronizable ─────────────┐
	             │ AssertReady · GetChanges · Open · Apply   │
	             └──────────┬──────────────────┬─────────────┘
	                        │                  │
	                 ┌──────▼─────┐     ┌──────▼─────┐
	                 │   Local    │     │   Remote   │
	                 │ index store│     │ pydio SDK  │
	                 │ + workspace│     │ HTTP API   │
	                 └────────────┘     └────────────┘

The local variant reads its change stream from the index's trigger-driven
log and applies operations to both the workspace directory and the index,
keeping the two consistent without a rescan. The remote variant maps the
same operations onto the SDK's whole-file IO calls and converts the server's
change feed into the core change shape.

The merge strategy only ever sees the interface. The merge coordinator holds
the local variant by its concrete type, because it also uses Local.MaxSeq and
Local.Ack to advance and truncate the local change log.
*/
package endpoint

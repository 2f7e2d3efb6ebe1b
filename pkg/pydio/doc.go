/*
Package pydio is a minimal SDK for the Pydio server HTTP API: the health
probe, the per-workspace change feed, and the whole-file IO surface
(upload, download, mkdir, delete, move) used when a merge applies changes to
the remote side.

The client maps wire records into the core types.Change shape, so the rest
of the system never sees the remote representation. Network failures and
non-2xx statuses surface as types.ErrTransportFailure; transient 5xx answers
on the change feed are retried with exponential backoff before giving up.
*/
package pydio

/*
Package filter implements the include/exclude glob sets that decide which
workspace paths are tracked, plus the path normalization helpers shared by
the watcher and the merge strategy.

A path is accepted when it matches at least one include pattern, matches no
exclude pattern, and is not the watched root itself. Patterns follow UNIX
glob syntax (doublestar): a pattern containing a separator is matched
against the whole relative path, with a leading slash anchoring it at the
workspace root; a bare pattern matches the base name, so "*.tmp" excludes
temp files at any depth.

Pattern validity is checked when the set is compiled; a bad glob is a
startup error, never a silently ignored rule.
*/
package filter

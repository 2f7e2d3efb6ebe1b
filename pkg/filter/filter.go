package filter

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pydio/gosync/pkg/types"
)

// DefaultInclude matches everything.
var DefaultInclude = []string{"*"}

// DefaultExclude is the stock blacklist applied when a job configures no
// excludes: hidden files, recycle bin, partial downloads, editor locks and
// temp files.
var DefaultExclude = []string{
	".*",
	"*/.*",
	"/recycle_bin*",
	"*.pydio_dl",
	"*.DS_Store",
	".~lock.*",
	"~*",
	"*.xlk",
	"*.tmp",
}

// Set is a compiled include/exclude pair. A path is accepted when it matches
// at least one include pattern, no exclude pattern, and is not the watched
// root itself. An empty pattern list matches nothing.
type Set struct {
	include []string
	exclude []string
}

// New validates and compiles the given glob lists. Nil lists fall back to
// the defaults. Invalid patterns are a startup error.
func New(include, exclude []string) (*Set, error) {
	if include == nil {
		include = DefaultInclude
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, patterns := range [][]string{include, exclude} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(strings.TrimPrefix(p, "/")) {
				return nil, fmt.Errorf("%w: bad pattern %q", types.ErrFilterConfig, p)
			}
		}
	}
	return &Set{include: include, exclude: exclude}, nil
}

// MustNew is New for statically known pattern lists, mainly tests.
func MustNew(include, exclude []string) *Set {
	s, err := New(include, exclude)
	if err != nil {
		panic(err)
	}
	return s
}

// Accept reports whether the relative path passes the filter. The empty
// relative path identifies the watched root and is always rejected.
func (s *Set) Accept(rel string) bool {
	if rel == "" {
		return false
	}
	return matchAny(s.include, rel) && !matchAny(s.exclude, rel)
}

// matchAny applies UNIX-glob semantics: a bare pattern is matched against
// the base name, so "*.tmp" applies at any depth. A pattern containing a
// separator is matched against the slash-normalized relative path and every
// ancestor of it (a leading slash anchors the pattern at the workspace
// root), so a pattern matching a directory covers its whole subtree.
func matchAny(patterns []string, rel string) bool {
	rel = strings.TrimPrefix(rel, "/")
	base := path.Base(rel)
	for _, p := range patterns {
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
			continue
		}
		p = strings.TrimPrefix(p, "/")
		for candidate := rel; candidate != "." && candidate != "/"; candidate = path.Dir(candidate) {
			if ok, _ := doublestar.Match(p, candidate); ok {
				return true
			}
		}
	}
	return false
}

// Normalize cleans a path into the canonical form used as an index key:
// forward slashes, no redundant separators, no . or .. components, no
// trailing separator. Normalize is idempotent.
func Normalize(p string) string {
	p = filepath.ToSlash(p)
	n := path.Clean(p)
	if n == "." {
		return ""
	}
	return n
}

// Relative returns p relative to base, both normalized. The empty string
// identifies base itself. The second return is false when p lies outside
// base.
func Relative(base, p string) (string, bool) {
	nb := Normalize(base)
	np := Normalize(p)
	if np == nb {
		return "", true
	}
	prefix := nb
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(np, prefix) {
		return "", false
	}
	return strings.TrimPrefix(np, prefix), true
}

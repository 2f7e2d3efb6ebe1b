package merger

import (
	"context"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/endpoint"
	"github.com/pydio/gosync/pkg/filter"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

// ConflictSuffix is appended to the conflict loser's name when the solve
// policy preserves both versions.
const ConflictSuffix = ".conflict"

// Strategy plans reconciliation operations from the two fetched change
// streams. Implementations must be side-effect free: planning never touches
// either endpoint, only the returned operations do.
type Strategy interface {
	Plan(localChanges, remoteChanges []types.Change, direction types.Direction) (*Plan, error)
}

// Plan is the outcome of one merge: the operations to apply on each side
// and how many paths were in conflict.
type Plan struct {
	ToLocal   []*endpoint.Operation
	ToRemote  []*endpoint.Operation
	Conflicts int
}

// TwoWay is the default merge strategy: group both streams by normalized
// path, propagate one-sided changes subject to the direction policy, and
// resolve both-sided conflicts per the solve policy.
type TwoWay struct {
	Local  endpoint.Synchronizable
	Remote endpoint.Synchronizable
	Solve  types.Solve
	logger zerolog.Logger
}

// NewTwoWay builds the default strategy over a sync pair.
func NewTwoWay(local, remote endpoint.Synchronizable, solve types.Solve) *TwoWay {
	return &TwoWay{
		Local:  local,
		Remote: remote,
		Solve:  solve,
		logger: log.WithComponent("strategy"),
	}
}

// Plan implements Strategy.
func (s *TwoWay) Plan(localChanges, remoteChanges []types.Change, direction types.Direction) (*Plan, error) {
	local := collapse(localChanges)
	remote := collapse(remoteChanges)

	plan := &Plan{}
	for _, path := range unionPaths(local, remote) {
		lc, inLocal := local[path]
		rc, inRemote := remote[path]

		switch {
		case inLocal && !inRemote:
			if direction != types.DirectionDown {
				s.appendOp(&plan.ToRemote, lc, s.Local)
			}
		case inRemote && !inLocal:
			if direction != types.DirectionUp {
				s.appendOp(&plan.ToLocal, rc, s.Remote)
			}
		default:
			plan.Conflicts++
			s.resolve(plan, lc, rc, direction)
		}
	}
	return plan, nil
}

// resolve handles a path both sides changed.
func (s *TwoWay) resolve(plan *Plan, lc, rc *types.Change, direction types.Direction) {
	switch s.Solve {
	case types.SolveLocal:
		if direction != types.DirectionDown {
			s.appendOp(&plan.ToRemote, lc, s.Local)
		}
	case types.SolveRemote:
		if direction != types.DirectionUp {
			s.appendOp(&plan.ToLocal, rc, s.Remote)
		}
	default: // SolveBoth
		// the local version keeps the original name; the remote version
		// is preserved next to it under a conflict name. The conflict
		// copy reaches the remote side on the next cycle as an ordinary
		// local creation.
		if direction != types.DirectionDown {
			s.appendOp(&plan.ToRemote, lc, s.Local)
		}
		if direction != types.DirectionUp {
			if op := s.conflictCopy(rc); op != nil {
				plan.ToLocal = append(plan.ToLocal, op)
			}
		}
	}
}

// conflictCopy materializes the remote version of a conflicted path under
// its conflict name. Deletions carry no content worth preserving.
func (s *TwoWay) conflictCopy(rc *types.Change) *endpoint.Operation {
	if rc.Type == types.ChangeDelete {
		return nil
	}
	if rc.Node == nil || rc.Node.IsDir() {
		return nil
	}
	origin := rc.Path()
	return &endpoint.Operation{
		Type:    types.ChangeCreate,
		Target:  origin + ConflictSuffix,
		Content: contentOf(s.Remote, origin),
	}
}

// appendOp converts the net change for one path into an operation against
// the opposite endpoint, with content sourced from the origin side.
func (s *TwoWay) appendOp(ops *[]*endpoint.Operation, c *types.Change, origin endpoint.Synchronizable) {
	switch c.Type {
	case types.ChangeCreate, types.ChangeModify:
		if c.Node == nil {
			// the inode row vanished between the change and the fetch;
			// a later delete in the same stream covers this path
			s.logger.Debug().Str("path", c.Path()).Msg("Skipping change without inode")
			return
		}
		op := &endpoint.Operation{
			Type:   c.Type,
			Target: c.Path(),
			IsDir:  c.Node.IsDir(),
		}
		if !op.IsDir {
			op.Content = contentOf(origin, c.Path())
		}
		*ops = append(*ops, op)

	case types.ChangeDelete:
		*ops = append(*ops, &endpoint.Operation{
			Type:   types.ChangeDelete,
			Source: c.Source,
		})

	case types.ChangeMove:
		*ops = append(*ops, &endpoint.Operation{
			Type:   types.ChangeMove,
			Source: c.Source,
			Target: c.Target,
			IsDir:  c.Node != nil && c.Node.IsDir(),
		})
	}
}

// collapse reduces a stream to the latest change per normalized path. A
// move whose source was only ever seen inside the same window also swallows
// the source's entry and is rewritten as a creation at the destination: the
// other side never knew the source path existed.
func collapse(changes []types.Change) map[string]*types.Change {
	latest := make(map[string]*types.Change)
	for i := range changes {
		c := &changes[i]
		path := filter.Normalize(c.Path())
		if prev, ok := latest[path]; !ok || c.Seq > prev.Seq {
			latest[path] = c
		}
	}

	for path, c := range latest {
		if c.Type != types.ChangeMove {
			continue
		}
		source := filter.Normalize(c.Source)
		if prev, ok := latest[source]; ok && prev.Seq < c.Seq {
			delete(latest, source)
			rewritten := *c
			rewritten.Type = types.ChangeCreate
			rewritten.Source = ""
			latest[path] = &rewritten
		}
	}
	return latest
}

// unionPaths returns every path either side touched, sorted so parents
// precede their children and plans are deterministic.
func unionPaths(local, remote map[string]*types.Change) []string {
	seen := make(map[string]bool, len(local)+len(remote))
	var paths []string
	for p := range local {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for p := range remote {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func contentOf(origin endpoint.Synchronizable, path string) endpoint.ContentFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return origin.Open(ctx, path)
	}
}

package types

import (
	"database/sql"
	"fmt"
	"time"
)

// MD5Directory is the sentinel checksum stored for directory inodes.
const MD5Directory = "directory"

// Inode represents one tracked file or directory in the index.
type Inode struct {
	// NodePath is the normalized path relative to the workspace root.
	NodePath string
	// Bytesize is the content size in bytes; 0 for directories.
	Bytesize int64
	// MD5 is the lowercase hex digest of the file contents, or
	// MD5Directory for directories.
	MD5 string
	// MTime is the modification time in seconds since the epoch.
	MTime float64
	// Stat is an opaque serialized stat snapshot, kept for bit-exact
	// comparison between observations.
	Stat []byte
}

// IsDir reports whether the inode describes a directory.
func (i *Inode) IsDir() bool {
	return i.MD5 == MD5Directory
}

// ChangeType classifies a mutation recorded in the change log.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeDelete ChangeType = "delete"
	ChangeModify ChangeType = "modify"
	ChangeMove   ChangeType = "move"
)

// Change is one row of the change log, joined with the inode it refers to.
// NodeID may be null in a remote feed; local deletions keep the id of the
// removed inode row, whose columns are then no longer joinable (Node is nil).
type Change struct {
	Seq    int64
	NodeID sql.NullInt64
	Type   ChangeType
	// Source is the pre-change path; empty for creations.
	Source string
	// Target is the post-change path; empty for deletions.
	Target string
	// Node carries the inode columns joined at read time. Nil when the
	// inode row no longer exists.
	Node *Inode
}

// Path returns the path a change is keyed under when grouping: the target
// for everything except deletions, which only have a source.
func (c *Change) Path() string {
	if c.Target != "" {
		return c.Target
	}
	return c.Source
}

// Direction restricts which way a merge propagates changes.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionBi   Direction = "bi"
)

// ParseDirection validates a configured direction string, defaulting to bi.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "":
		return DirectionBi, nil
	case string(DirectionUp), string(DirectionDown), string(DirectionBi):
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q (want up, down or bi)", s)
}

// Solve selects which side wins when both endpoints changed the same path.
type Solve string

const (
	SolveLocal  Solve = "local"
	SolveRemote Solve = "remote"
	SolveBoth   Solve = "both"
)

// ParseSolve validates a configured conflict policy, defaulting to both.
func ParseSolve(s string) (Solve, error) {
	switch s {
	case "":
		return SolveBoth, nil
	case string(SolveLocal), string(SolveRemote), string(SolveBoth):
		return Solve(s), nil
	}
	return "", fmt.Errorf("invalid solve policy %q (want local, remote or both)", s)
}

// JobStatus tracks the lifecycle state of a configured sync job.
type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusRunning JobStatus = "running"
	JobStatusStopped JobStatus = "stopped"
	JobStatusFailed  JobStatus = "failed"
)

// SyncPhase is the merge coordinator's observable state machine position.
type SyncPhase string

const (
	PhaseIdle          SyncPhase = "idle"
	PhaseAcquiring     SyncPhase = "acquiring"
	PhaseReadyChecking SyncPhase = "ready-checking"
	PhaseFetching      SyncPhase = "fetching"
	PhaseMerging       SyncPhase = "merging"
	PhaseApplying      SyncPhase = "applying"
)

// SyncReport summarizes one completed sync cycle.
type SyncReport struct {
	StartedAt     time.Time
	Duration      time.Duration
	LocalChanges  int
	RemoteChanges int
	Applied       int
	Conflicts     int
	LocalSeq      int64
	RemoteSeq     int64
}

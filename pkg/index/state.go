package index

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

// StateManager translates semantic inode intents into transactional
// statements against the Store. The change-log propagation is handled by the
// schema triggers; the state manager never touches ajxp_changes.
type StateManager struct {
	store  *Store
	logger zerolog.Logger
}

// NewStateManager binds a state manager to its store.
func NewStateManager(store *Store) *StateManager {
	return &StateManager{
		store:  store,
		logger: log.WithComponent("state"),
	}
}

// Create inserts a freshly observed inode. A duplicate path surfaces
// ErrStateMismatch.
func (m *StateManager) Create(ctx context.Context, inode *types.Inode, isDir bool) error {
	m.logIntent("create", inode.NodePath, isDir)

	_, err := m.store.Exec(ctx,
		`INSERT INTO ajxp_index (node_path, bytesize, md5, mtime, stat_result) VALUES (?, ?, ?, ?, ?)`,
		inode.NodePath, inode.Bytesize, inode.MD5, inode.MTime, inode.Stat)
	if err != nil {
		if isConstraintViolation(err) {
			m.logger.Warn().Str("path", inode.NodePath).Msg("Create for already-indexed path")
			return types.StateMismatch("create", inode.NodePath)
		}
		return err
	}
	return nil
}

// Delete removes an inode. Deleting a directory removes the whole subtree.
func (m *StateManager) Delete(ctx context.Context, inode *types.Inode, isDir bool) error {
	m.logIntent("delete", inode.NodePath, isDir)

	_, err := m.store.Exec(ctx,
		`DELETE FROM ajxp_index WHERE node_path = ? OR node_path LIKE ? || '/%'`,
		inode.NodePath, inode.NodePath)
	return err
}

// Modify updates the content attributes of an existing inode. Directory
// modifications are a no-op: children notify individually. Modifying a path
// that is not indexed surfaces ErrStateMismatch.
func (m *StateManager) Modify(ctx context.Context, inode *types.Inode, isDir bool) error {
	m.logIntent("modify", inode.NodePath, isDir)

	if isDir {
		return nil
	}

	res, err := m.store.Exec(ctx,
		`UPDATE ajxp_index SET bytesize = ?, md5 = ?, mtime = ?, stat_result = ? WHERE node_path = ?`,
		inode.Bytesize, inode.MD5, inode.MTime, inode.Stat, inode.NodePath)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		m.logger.Warn().Str("path", inode.NodePath).Msg("Modify for unindexed path")
		return types.StateMismatch("modify", inode.NodePath)
	}
	return nil
}

// Move renames an inode from source to the inode's path. For directories the
// prefix of every descendant is rewritten in the same transaction.
func (m *StateManager) Move(ctx context.Context, source string, inode *types.Inode, isDir bool) error {
	m.logIntent("move", source+" -> "+inode.NodePath, isDir)

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE ajxp_index SET node_path = ? WHERE node_path = ?`,
		inode.NodePath, source)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		m.logger.Warn().Str("path", source).Msg("Move for unindexed path")
		return types.StateMismatch("move", source)
	}

	if isDir {
		_, err = tx.ExecContext(ctx,
			`UPDATE ajxp_index SET node_path = ? || substr(node_path, length(?) + 1) WHERE node_path LIKE ? || '/%'`,
			inode.NodePath, source, source)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (m *StateManager) logIntent(verb, path string, isDir bool) {
	itype := "file"
	if isDir {
		itype = "directory"
	}
	m.logger.Debug().Str("type", itype).Str("path", path).Msg(verb)
}

func isConstraintViolation(err error) bool {
	// modernc.org/sqlite reports SQLITE_CONSTRAINT_UNIQUE in the error
	// string; the driver does not export a typed constant for it.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

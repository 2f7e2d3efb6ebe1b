package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

// Store is the durable index: the ajxp_index inode table plus the
// ajxp_changes log, backed by a single sqlite connection.
//
// The connection pool is pinned to exactly one connection, so statements
// submitted concurrently are executed in FIFO order by database/sql. That
// single-writer property is load-bearing: it keeps the seq generator and the
// trigger-driven change log correct without application-level locking, and it
// keeps an in-memory instance alive for the component's lifetime (distinct
// connections to :memory: reference distinct databases).
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if necessary) the index database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, types.StorageUnavailable(err)
	}
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	return open(dsn, path)
}

// OpenInMemory opens an ephemeral index, used by tests and dry runs.
func OpenInMemory() (*Store, error) {
	return open(":memory:", ":memory:")
}

func open(dsn, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, types.StorageUnavailable(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.StorageUnavailable(err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: log.WithComponent("index"),
	}, nil
}

// Init creates the schema if absent. It is idempotent: a database that
// already carries ajxp_index is left untouched.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, probeQuery); err == nil {
		s.logger.Debug().Str("path", s.path).Msg("Resuming existing index")
		return nil
	}

	s.logger.Info().Str("path", s.path).Msg("Initializing index schema")
	if _, err := s.db.ExecContext(ctx, initScript); err != nil {
		return types.StorageUnavailable(fmt.Errorf("schema init: %w", err))
	}
	return nil
}

// Close flushes and releases the backing connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exec runs a single statement through the serialized connection.
func (s *Store) Exec(ctx context.Context, statement string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, statement, args...)
}

// Query runs a query through the serialized connection.
func (s *Store) Query(ctx context.Context, statement string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, statement, args...)
}

// Lookup returns the inode stored for a path, or nil when the path is not
// indexed.
func (s *Store) Lookup(ctx context.Context, nodePath string) (*types.Inode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT node_path, bytesize, md5, mtime, stat_result FROM ajxp_index WHERE node_path = ?`,
		nodePath)

	var in types.Inode
	err := row.Scan(&in.NodePath, &in.Bytesize, &in.MD5, &in.MTime, &in.Stat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// MaxSeq returns the highest sequence number in the change log, 0 when the
// log is empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ajxp_changes`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// Changes returns every change row with seq > since, joined against the
// inode table, ordered by (node_id, seq) ascending. Calling with the current
// MaxSeq returns an empty slice.
func (s *Store) Changes(ctx context.Context, since int64) ([]types.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.seq, c.node_id, c.type, c.source, c.target,
		       i.node_path, i.bytesize, i.md5, i.mtime, i.stat_result
		FROM ajxp_changes c
		LEFT JOIN ajxp_index i ON i.node_id = c.node_id
		WHERE c.seq > ?
		ORDER BY c.node_id ASC, c.seq ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []types.Change
	for rows.Next() {
		var (
			c        types.Change
			nodePath sql.NullString
			bytesize sql.NullInt64
			md5sum   sql.NullString
			mtime    sql.NullFloat64
			stat     []byte
		)
		if err := rows.Scan(&c.Seq, &c.NodeID, &c.Type, &c.Source, &c.Target,
			&nodePath, &bytesize, &md5sum, &mtime, &stat); err != nil {
			return nil, err
		}
		if nodePath.Valid {
			c.Node = &types.Inode{
				NodePath: nodePath.String,
				Bytesize: bytesize.Int64,
				MD5:      md5sum.String,
				MTime:    mtime.Float64,
				Stat:     stat,
			}
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// TrimChanges drops change rows with seq <= upTo. Called once both
// endpoints have acknowledged consumption up to that sequence.
func (s *Store) TrimChanges(ctx context.Context, upTo int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ajxp_changes WHERE seq <= ?`, upTo)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug().Int64("trimmed", n).Int64("up_to", upTo).Msg("Truncated change log")
	}
	return nil
}

// ChangeLogLength reports the number of rows currently in the change log,
// exported as a gauge by the metrics collector.
func (s *Store) ChangeLogLength(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ajxp_changes`).Scan(&n)
	return n, err
}

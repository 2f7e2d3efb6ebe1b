package index

// initScript creates the inode table, the change log and the propagation
// triggers. The triggers keep every ajxp_index mutation atomic with its
// ajxp_changes row; the application never writes the change log directly.
const initScript = `
CREATE TABLE IF NOT EXISTS ajxp_index (
	node_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	node_path   TEXT NOT NULL UNIQUE,
	bytesize    INTEGER NOT NULL DEFAULT 0,
	md5         TEXT NOT NULL,
	mtime       REAL NOT NULL DEFAULT 0,
	stat_result BLOB
);

CREATE TABLE IF NOT EXISTS ajxp_changes (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id INTEGER,
	type    TEXT NOT NULL CHECK (type IN ('create','delete','modify','move')),
	source  TEXT NOT NULL DEFAULT '',
	target  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ajxp_changes_node ON ajxp_changes(node_id, seq);

CREATE TRIGGER IF NOT EXISTS ajxp_index_insert
AFTER INSERT ON ajxp_index
BEGIN
	INSERT INTO ajxp_changes (node_id, type, source, target)
	VALUES (NEW.node_id, 'create', '', NEW.node_path);
END;

CREATE TRIGGER IF NOT EXISTS ajxp_index_delete
AFTER DELETE ON ajxp_index
BEGIN
	INSERT INTO ajxp_changes (node_id, type, source, target)
	VALUES (OLD.node_id, 'delete', OLD.node_path, '');
END;

CREATE TRIGGER IF NOT EXISTS ajxp_index_move
AFTER UPDATE OF node_path ON ajxp_index
WHEN OLD.node_path <> NEW.node_path
BEGIN
	INSERT INTO ajxp_changes (node_id, type, source, target)
	VALUES (NEW.node_id, 'move', OLD.node_path, NEW.node_path);
END;

CREATE TRIGGER IF NOT EXISTS ajxp_index_modify
AFTER UPDATE OF bytesize, md5, mtime, stat_result ON ajxp_index
WHEN OLD.node_path = NEW.node_path
BEGIN
	INSERT INTO ajxp_changes (node_id, type, source, target)
	VALUES (NEW.node_id, 'modify', NEW.node_path, NEW.node_path);
END;
`

// probeQuery distinguishes a fresh database from a resumed one.
const probeQuery = `SELECT * FROM ajxp_index LIMIT 1`

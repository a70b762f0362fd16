// Package store is the embedded SQLite storage engine: schema, connection
// policy, WAL checkpointing, and prepared-statement repositories for
// sessions, messages (with FTS5), tool uses, extraction state, and links.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Execer is the subset of *sql.DB / *sql.Conn / *Tx that repositories need.
// Repository methods are free functions over this handle rather than
// methods on a class hierarchy, per the storage engine's no-inheritance
// design: the same repository code runs against the bare connection or
// against an in-flight transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures Open.
type Options struct {
	// Path is the database file path, or "" / ":memory:" for an in-memory
	// database (used by tests).
	Path string

	// CacheSizeKB sets the SQLite cache_size pragma, in kibibytes of page
	// cache. Zero selects a default of 64000 (64MB).
	CacheSizeKB int

	// BusyTimeoutMS sets the busy_timeout pragma. Zero selects the spec
	// default of 5000ms.
	BusyTimeoutMS int

	// SkipIntegrityCheck disables the PRAGMA quick_check(1) run against an
	// existing file database. Tests that construct throwaway databases may
	// set this; production opens should not.
	SkipIntegrityCheck bool

	// NoCreate rejects opening a file database that does not already
	// exist, instead of creating one. Read-only commands (search, list,
	// stats) set this so a typo'd path or a sync that never ran surfaces
	// as a named error rather than silently producing an empty database.
	NoCreate bool
}

// NotFoundError is returned when Options.NoCreate is set and the database
// file does not already exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("DB_NOT_FOUND: no database at %s (run 'sync' first)", e.Path)
}

// Store is the embedded SQLite storage engine.
type Store struct {
	db       *sql.DB
	path     string
	isMemory bool
}

// CorruptedError is returned when PRAGMA quick_check(1) reports a problem
// on open. It carries the offending path so the top-level command handler
// can name it to the user.
type CorruptedError struct {
	Path   string
	Detail string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("DB_CORRUPTED: database at %s failed integrity check: %s", e.Path, e.Detail)
}

// Open opens (or creates) the SQLite database described by opts, applying
// the connection policy: WAL mode for file databases, a busy timeout,
// synchronous=NORMAL, temp_store=MEMORY, foreign_keys=ON, and a configurable
// cache size. On an existing file database it runs a quick integrity check
// before touching the schema.
func Open(opts Options) (*Store, error) {
	isMemory := opts.Path == "" || opts.Path == ":memory:"

	existedBefore := false
	if !isMemory {
		if _, err := os.Stat(opts.Path); err == nil {
			existedBefore = true
		}
		if !existedBefore && opts.NoCreate {
			return nil, &NotFoundError{Path: opts.Path}
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("store: creating database directory: %w", err)
		}
	}

	busyTimeoutMS := opts.BusyTimeoutMS
	if busyTimeoutMS == 0 {
		busyTimeoutMS = 5000
	}
	cacheSizeKB := opts.CacheSizeKB
	if cacheSizeKB == 0 {
		cacheSizeKB = 64000
	}

	dsn := buildDSN(opts.Path, busyTimeoutMS, cacheSizeKB, isMemory)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	// Writes are serialized through a single connection; this process is
	// the only writer the spec allows, so there is no benefit to a pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: opts.Path, isMemory: isMemory}

	if existedBefore && !opts.SkipIntegrityCheck {
		if err := s.quickCheck(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensuring schema: %w", err)
	}

	return s, nil
}

func buildDSN(path string, busyTimeoutMS, cacheSizeKB int, isMemory bool) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS),
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(ON)",
		"_pragma=temp_store(MEMORY)",
		fmt.Sprintf("_pragma=cache_size(-%d)", cacheSizeKB),
	}
	if isMemory {
		params = append(params, "cache=shared")
		return fmt.Sprintf("file::memory:?%s", strings.Join(params, "&"))
	}
	params = append(params, "_pragma=journal_mode(WAL)")
	return fmt.Sprintf("file:%s?%s", filepath.ToSlash(path), strings.Join(params, "&"))
}

func (s *Store) quickCheck() error {
	var result string
	if err := s.db.QueryRow("PRAGMA quick_check(1)").Scan(&result); err != nil {
		return fmt.Errorf("store: quick_check: %w", err)
	}
	if result != "ok" {
		return &CorruptedError{Path: s.path, Detail: result}
	}
	return nil
}

// Close performs a wal_checkpoint(TRUNCATE) on file databases to bound WAL
// growth, then closes the connection.
func (s *Store) Close() error {
	if !s.isMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("store: wal checkpoint on close failed", "error", err)
		}
	}
	return s.db.Close()
}

// BulkOperationCheckpoint runs a TRUNCATE checkpoint; batch writers call
// this after large ingests to keep the WAL file from growing unbounded.
func (s *Store) BulkOperationCheckpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// DB returns the underlying connection as an Execer, for repository calls
// that run outside an explicit transaction.
func (s *Store) DB() Execer { return s.db }

// Path returns the configured database path ("" / ":memory:" for in-memory).
func (s *Store) Path() string { return s.path }

func (s *Store) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_path_encoded TEXT NOT NULL,
	project_path_decoded TEXT NOT NULL,
	project_name TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	message_count INTEGER NOT NULL DEFAULT 0,
	summary TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_project_name ON sessions(project_name);
CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);

CREATE TABLE IF NOT EXISTS messages_meta (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages_meta(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages_meta(timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content='messages_meta',
	content_rowid='rowid',
	tokenize='porter'
);

CREATE TRIGGER IF NOT EXISTS messages_meta_ai AFTER INSERT ON messages_meta BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_meta_ad AFTER DELETE ON messages_meta BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
END;
CREATE TRIGGER IF NOT EXISTS messages_meta_au AFTER UPDATE ON messages_meta BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS tool_uses (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	input_json TEXT NOT NULL,
	output TEXT,
	status TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_uses_session ON tool_uses(session_id);

CREATE TABLE IF NOT EXISTS extraction_state (
	id TEXT PRIMARY KEY,
	session_path TEXT NOT NULL UNIQUE,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	status TEXT NOT NULL,
	messages_extracted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	file_mtime INTEGER,
	file_size INTEGER
);

CREATE TABLE IF NOT EXISTS links (
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relationship TEXT NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY(source_type, source_id, target_type, target_id, relationship)
);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	confidence REAL NOT NULL,
	UNIQUE(type, name)
);
CREATE TABLE IF NOT EXISTS entity_sessions (
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	frequency INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY(entity_id, session_id)
);
CREATE TABLE IF NOT EXISTS entity_links (
	source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	relationship TEXT NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY(source_entity_id, target_entity_id, relationship)
);
`
	_, err := s.db.Exec(schema)
	return err
}

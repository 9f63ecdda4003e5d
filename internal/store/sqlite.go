package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
)

// SQLiteEngine stores a collection in a SQLite database, one row per field
// value. WAL mode lets readers run against a snapshot while a writer holds
// its transaction open.
type SQLiteEngine struct {
	mu      sync.RWMutex
	writeDB *sql.DB
	readDB  *sql.DB
	path    string
	cfg     Config
	closed  bool
}

var _ Engine = (*SQLiteEngine)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id TEXT PRIMARY KEY
);

-- One row per field value; pos keeps multi-valued fields in write order.
CREATE TABLE IF NOT EXISTS fields (
	doc_id TEXT NOT NULL,
	name   TEXT NOT NULL,
	pos    INTEGER NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (doc_id, name, pos)
);

CREATE INDEX IF NOT EXISTS idx_fields_name_value ON fields(name, value);

-- Bumped by every commit so other connections can tell the data changed.
CREATE TABLE IF NOT EXISTS generation (
	id    INTEGER PRIMARY KEY CHECK (id = 0),
	value INTEGER NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
INSERT OR IGNORE INTO generation (id, value) VALUES (0, 0);
`

// validateSQLiteIntegrity checks an existing database file before opening.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteEngine opens or creates the database at path.
func NewSQLiteEngine(path string, cfg Config) (*SQLiteEngine, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "sqlite engine requires a path; use the memory backend for in-memory collections", nil).
			WithOperation(cfg.Collection, "open")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.StorageError(cfg.Collection, "open", fmt.Errorf("failed to create directory: %w", err))
	}

	if validErr := validateSQLiteIntegrity(path); validErr != nil {
		log.Warn("sqlite_index_corrupted",
			slog.String("collection", cfg.Collection),
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if !cfg.RecoverCorrupt {
			return nil, corruptError(cfg.Collection, "open", validErr)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, errors.StorageError(cfg.Collection, "open",
				fmt.Errorf("cannot remove corrupt index: %w (original error: %v)", removeErr, validErr))
		}
		_ = os.Remove(path + "-wal")
		_ = os.Remove(path + "-shm")
		log.Info("sqlite_index_cleared",
			slog.String("collection", cfg.Collection),
			slog.String("path", path),
			slog.String("reason", "corruption detected, reindex required"))
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(cfg.Collection, "open", err)
	}
	// Single writer connection: the write transaction lives on it.
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := writeDB.Exec(pragma); err != nil {
			_ = writeDB.Close()
			return nil, classifySQLiteOpenError(cfg, fmt.Errorf("failed to set pragma: %w", err))
		}
	}
	if _, err := writeDB.Exec(sqliteSchema); err != nil {
		_ = writeDB.Close()
		return nil, classifySQLiteOpenError(cfg, fmt.Errorf("failed to initialize schema: %w", err))
	}

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writeDB.Close()
		return nil, errors.StorageError(cfg.Collection, "open", err)
	}
	readDB.SetMaxOpenConns(8)

	log.Debug("sqlite_index_opened",
		slog.String("collection", cfg.Collection),
		slog.String("path", path))

	return &SQLiteEngine{writeDB: writeDB, readDB: readDB, path: path, cfg: cfg}, nil
}

func classifySQLiteOpenError(cfg Config, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "not a database") || strings.Contains(msg, "malformed") {
		return corruptError(cfg.Collection, "open", err)
	}
	return errors.StorageError(cfg.Collection, "open", err)
}

// Name returns the collection name.
func (s *SQLiteEngine) Name() string { return s.cfg.Collection }

// Path returns the database file path.
func (s *SQLiteEngine) Path() string { return s.path }

// DocCount returns the number of committed documents.
func (s *SQLiteEngine) DocCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, closedError(s.cfg.Collection, "doc_count")
	}
	var n int
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, errors.StorageError(s.cfg.Collection, "doc_count", err)
	}
	return n, nil
}

// Generation reads the commit counter from the database, so commits made by
// other handles and processes are visible.
func (s *SQLiteEngine) Generation(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, closedError(s.cfg.Collection, "generation")
	}
	var gen int64
	err := s.readDB.QueryRowContext(ctx, "SELECT value FROM generation WHERE id = 0").Scan(&gen)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.StorageError(s.cfg.Collection, "generation", err)
	}
	return uint64(gen), nil
}

// OpenWriter acquires the collection lock. The transaction starts on first use.
func (s *SQLiteEngine) OpenWriter(ctx context.Context) (Writer, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, closedError(s.cfg.Collection, "open_writer")
	}

	lock := NewWriteLock(s.path, s.cfg.Collection)
	if err := lock.Acquire(ctx, s.cfg.LockTimeout); err != nil {
		return nil, err
	}
	return &sqliteWriter{engine: s, lock: lock}, nil
}

// OpenReader opens a read session.
func (s *SQLiteEngine) OpenReader(ctx context.Context) (Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError(s.cfg.Collection, "open_reader")
	}
	return &sqliteReader{engine: s}, nil
}

type sqliteQuery struct {
	source query.Query
	where  string
	args   []any
}

func (q sqliteQuery) Source() query.Query { return q.source }

// Compile translates q into a WHERE clause over the documents table (alias d).
func (s *SQLiteEngine) Compile(q query.Query) (NativeQuery, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	where, args, err := compileSQL(q)
	if err != nil {
		return nil, err
	}
	return sqliteQuery{source: q, where: where, args: args}, nil
}

func compileSQL(q query.Query) (string, []any, error) {
	switch q := q.(type) {
	case query.SingleTermQuery:
		return "d.doc_id IN (SELECT doc_id FROM fields WHERE name = ? AND value = ?)",
			[]any{q.Term.Field, q.Term.Value}, nil
	case query.RangeQuery:
		lo, hi := ">", "<"
		if q.Inclusive {
			lo, hi = ">=", "<="
		}
		return fmt.Sprintf("d.doc_id IN (SELECT doc_id FROM fields WHERE name = ? AND value %s ? AND value %s ?)", lo, hi),
			[]any{q.Field(), q.Low.Value, q.High.Value}, nil
	case query.CompoundQuery:
		parts := make([]string, 0, len(q.Clauses))
		var args []any
		for _, c := range q.Clauses {
			where, cargs, err := compileSQL(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, where)
			args = append(args, cargs...)
		}
		return "(" + strings.Join(parts, " "+q.Op.String()+" ") + ")", args, nil
	case query.MatchAll:
		return "1 = 1", nil, nil
	default:
		return "", nil, errors.Newf(errors.ErrCodeInvalidQuery, "unsupported query type %T", q)
	}
}

// Close closes both connection pools.
func (s *SQLiteEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	rerr := s.readDB.Close()
	if err := s.writeDB.Close(); err != nil {
		return err
	}
	return rerr
}

type sqliteWriter struct {
	engine *SQLiteEngine
	lock   *WriteLock
	tx     *sql.Tx
	closed bool
}

func (w *sqliteWriter) collection() string { return w.engine.cfg.Collection }

// begin starts the write transaction. It is not bound to a caller context:
// database/sql rolls back a transaction whose context is cancelled, which
// would discard records written before the cancellation.
func (w *sqliteWriter) begin() (*sql.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.engine.writeDB.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	w.tx = tx
	return tx, nil
}

func (w *sqliteWriter) Write(ctx context.Context, id string, fields document.Fields) error {
	if w.closed {
		return closedError(w.collection(), "write")
	}
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "document id is empty", nil).
			WithOperation(w.collection(), "write")
	}
	tx, err := w.begin()
	if err != nil {
		return errors.StorageError(w.collection(), "write", err)
	}

	if _, err := tx.Exec("DELETE FROM fields WHERE doc_id = ?", id); err != nil {
		return errors.StorageError(w.collection(), "write", err).WithDetail(errors.DetailDocument, id)
	}
	if _, err := tx.Exec("INSERT OR IGNORE INTO documents (doc_id) VALUES (?)", id); err != nil {
		return errors.StorageError(w.collection(), "write", err).WithDetail(errors.DetailDocument, id)
	}

	stmt, err := tx.Prepare("INSERT INTO fields (doc_id, name, pos, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.StorageError(w.collection(), "write", err)
	}
	defer stmt.Close()

	for _, name := range fields.Names() {
		for pos, value := range fields.Values(name) {
			if _, err := stmt.Exec(id, name, pos, value); err != nil {
				return errors.StorageError(w.collection(), "write", err).WithDetail(errors.DetailDocument, id)
			}
		}
	}
	return nil
}

func (w *sqliteWriter) Delete(ctx context.Context, field, value string) (int, error) {
	if w.closed {
		return 0, closedError(w.collection(), "delete")
	}
	tx, err := w.begin()
	if err != nil {
		return 0, errors.StorageError(w.collection(), "delete", err)
	}

	rows, err := tx.Query("SELECT DISTINCT doc_id FROM fields WHERE name = ? AND value = ?", field, value)
	if err != nil {
		return 0, errors.StorageError(w.collection(), "delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, errors.StorageError(w.collection(), "delete", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, errors.StorageError(w.collection(), "delete", err)
	}
	_ = rows.Close()

	if field == document.FieldID {
		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM documents WHERE doc_id = ?", value).Scan(&exists)
		if err != nil {
			return 0, errors.StorageError(w.collection(), "delete", err)
		}
		if exists > 0 && !containsString(ids, value) {
			ids = append(ids, value)
		}
	}

	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM fields WHERE doc_id = ?", id); err != nil {
			return 0, errors.StorageError(w.collection(), "delete", err)
		}
		if _, err := tx.Exec("DELETE FROM documents WHERE doc_id = ?", id); err != nil {
			return 0, errors.StorageError(w.collection(), "delete", err)
		}
	}
	return len(ids), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *sqliteWriter) Commit(ctx context.Context) error {
	if w.closed {
		return closedError(w.collection(), "commit")
	}
	if w.tx == nil {
		return nil
	}
	if _, err := w.tx.Exec("UPDATE generation SET value = value + 1 WHERE id = 0"); err != nil {
		return errors.StorageError(w.collection(), "commit", err)
	}
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return errors.StorageError(w.collection(), "commit", err)
	}
	return nil
}

// Optimize commits, then checkpoints the WAL and vacuums the database.
func (w *sqliteWriter) Optimize(ctx context.Context) error {
	if err := w.Commit(ctx); err != nil {
		return err
	}
	for _, stmt := range []string{"PRAGMA optimize", "VACUUM", "PRAGMA wal_checkpoint(TRUNCATE)"} {
		if _, err := w.engine.writeDB.ExecContext(ctx, stmt); err != nil {
			return errors.StorageError(w.collection(), "optimize", err)
		}
	}
	return nil
}

func (w *sqliteWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var rerr error
	if w.tx != nil {
		rerr = w.tx.Rollback()
		w.tx = nil
	}
	if err := w.lock.Release(); err != nil {
		return err
	}
	if rerr != nil && rerr != sql.ErrTxDone {
		return errors.StorageError(w.collection(), "rollback", rerr)
	}
	return nil
}

type sqliteReader struct {
	engine *SQLiteEngine
}

// Query runs one SELECT. A single statement reads one WAL snapshot, so the
// rows stay consistent while writers commit.
func (r *sqliteReader) Query(ctx context.Context, q NativeQuery) (Iterator, error) {
	sq, ok := q.(sqliteQuery)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidQuery, "query compiled for another engine (%T)", q)
	}

	r.engine.mu.RLock()
	closed := r.engine.closed
	r.engine.mu.RUnlock()
	if closed {
		return nil, closedError(r.engine.cfg.Collection, "query")
	}

	stmt := `SELECT f.doc_id, f.name, f.value FROM fields f
WHERE f.doc_id IN (SELECT d.doc_id FROM documents d WHERE ` + sq.where + `)
ORDER BY f.doc_id, f.name, f.pos`

	rows, err := r.engine.readDB.QueryContext(ctx, stmt, sq.args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.StorageError(r.engine.cfg.Collection, "query", err)
	}
	return &sqliteIterator{ctx: ctx, rows: rows, collection: r.engine.cfg.Collection}, nil
}

func (r *sqliteReader) Close() error { return nil }

// sqliteIterator groups consecutive field rows into documents.
type sqliteIterator struct {
	ctx        context.Context
	rows       *sql.Rows
	collection string

	cur  RawDocument
	next *fieldRow
	done bool
	err  error
}

type fieldRow struct {
	docID, name, value string
}

func (it *sqliteIterator) readRow() (*fieldRow, error) {
	if !it.rows.Next() {
		return nil, it.rows.Err()
	}
	var row fieldRow
	if err := it.rows.Scan(&row.docID, &row.name, &row.value); err != nil {
		return nil, err
	}
	return &row, nil
}

func (it *sqliteIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}

	first := it.next
	it.next = nil
	if first == nil {
		row, err := it.readRow()
		if err != nil {
			it.fail(err)
			return false
		}
		if row == nil {
			it.done = true
			return false
		}
		first = row
	}

	doc := RawDocument{ID: first.docID, Fields: document.Fields{}}
	doc.Fields.Add(first.name, first.value)
	for {
		row, err := it.readRow()
		if err != nil {
			it.fail(err)
			return false
		}
		if row == nil {
			it.done = true
			break
		}
		if row.docID != doc.ID {
			it.next = row
			break
		}
		doc.Fields.Add(row.name, row.value)
	}
	it.cur = doc
	return true
}

func (it *sqliteIterator) fail(err error) {
	if it.ctx.Err() != nil {
		it.err = it.ctx.Err()
		return
	}
	it.err = errors.StorageError(it.collection, "query", err)
}

func (it *sqliteIterator) Doc() RawDocument { return it.cur }
func (it *sqliteIterator) Err() error       { return it.err }
func (it *sqliteIterator) Close() error     { return it.rows.Close() }

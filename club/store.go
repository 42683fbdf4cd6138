package club

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Keys of the three persisted records.
const (
	KeyUser      = "bookClubUser"
	KeyBooks     = "bookClubBooks"
	KeyResponses = "bookClubResponses"
)

// KeyValueStore is the persistence the Club needs: a flat map of text records.
type KeyValueStore interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
	PutBatch(entries map[string]string) error
	Delete(key string) error
}

// Store is a KeyValueStore backed by a SQLite file.
type Store struct {
	db *sql.DB

	getStmt *sql.Stmt
	putStmt *sql.Stmt
}

// OpenStore opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func OpenStore(dbPath string) (*Store, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection keeps reads consistent with the last write.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *Store) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.putStmt != nil {
		s.putStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return errors.Wrap(err, "create meta")
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}

	return errors.WithStack(tx.Commit())
}

// SchemaVersion reports the version recorded in the meta table.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil {
		return 0, errors.Wrap(err, "read schema version")
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

const upsertSQL = `INSERT INTO kv(key,value,updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
    ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`

func (s *Store) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(`SELECT value FROM kv WHERE key=?`); err != nil {
		return errors.Wrap(err, "prepare get")
	}
	if s.putStmt, err = s.db.Prepare(upsertSQL); err != nil {
		return errors.Wrap(err, "prepare put")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Get returns the record stored under key. ok is false when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var v string
	err := s.getStmt.QueryRow(key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous record.
func (s *Store) Put(key, value string) error {
	if _, err := s.putStmt.Exec(key, value); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// PutBatch writes every entry in one transaction: all of them land or none do.
func (s *Store) PutBatch(entries map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	defer tx.Rollback()

	stmt := tx.Stmt(s.putStmt)
	defer stmt.Close()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := stmt.Exec(k, entries[k]); err != nil {
			return errors.Wrapf(err, "put %s", k)
		}
	}
	return errors.WithStack(tx.Commit())
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key=?`, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// Keys lists the stored keys in order.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.WithStack(err)
		}
		keys = append(keys, k)
	}
	return keys, errors.WithStack(rows.Err())
}

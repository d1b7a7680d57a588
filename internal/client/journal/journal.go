// Package journal persists the last known synced state of every logical path.
//
// Mutations accumulate in one SQLite transaction that is opened on the first
// mutation and made durable by Commit. Between two commits the journal may be
// torn; after Commit returns every preceding mutation survives a crash.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/localsync/internal/db"
	"github.com/openmined/localsync/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_records (
    path TEXT PRIMARY KEY,
    inode INTEGER NOT NULL DEFAULT 0,
    mtime TEXT NOT NULL, -- RFC3339Nano, UTC
    is_directory INTEGER NOT NULL DEFAULT 0,
    etag TEXT NOT NULL DEFAULT '',
    file_id TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0
);
`

const selectColumns = "SELECT path, inode, mtime, is_directory, etag, file_id, size FROM file_records"

var (
	ErrJournalClosed = errors.New("journal not open")
	ErrJournalOpen   = errors.New("journal already open")
)

// Journal is a transactional path -> FileRecord store. It is safe for concurrent use.
type Journal struct {
	dbPath  string
	db      *sqlx.DB
	tx      *sqlx.Tx
	pending int
	mu      sync.Mutex
}

// New returns a journal backed by the SQLite file at dbPath (":memory:" for tests).
// Call Open before use.
func New(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db != nil {
		return ErrJournalOpen
	}

	if j.dbPath != ":memory:" {
		if err := utils.EnsureParent(j.dbPath); err != nil {
			return fmt.Errorf("failed to create journal directory %s: %w", filepath.Dir(j.dbPath), err)
		}
	}

	conn, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open sync journal: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = conn
	slog.Debug("journal open", "path", j.dbPath)
	return nil
}

// Close rolls back any uncommitted mutations and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrJournalClosed
	}

	if j.tx != nil {
		if err := j.tx.Rollback(); err != nil {
			slog.Warn("journal rollback on close", "error", err)
		} else if j.pending > 0 {
			slog.Warn("journal closed with uncommitted mutations", "dropped", j.pending)
		}
		j.tx = nil
		j.pending = 0
	}

	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("failed to close sync journal: %w", err)
	}
	slog.Debug("journal closed")
	return nil
}

// queryer reads through the open transaction when there is one, so callers see
// their own uncommitted mutations. With a single connection, reading around the
// transaction would block on it.
func (j *Journal) queryer() (sqlx.Queryer, error) {
	if j.db == nil {
		return nil, ErrJournalClosed
	}
	if j.tx != nil {
		return j.tx, nil
	}
	return j.db, nil
}

func (j *Journal) begin() (*sqlx.Tx, error) {
	if j.db == nil {
		return nil, ErrJournalClosed
	}
	if j.tx == nil {
		tx, err := j.db.Beginx()
		if err != nil {
			return nil, fmt.Errorf("begin journal transaction: %w", err)
		}
		j.tx = tx
	}
	return j.tx, nil
}

// SetFileRecord inserts or replaces the record keyed by record.Path
func (j *Journal) SetFileRecord(record *FileRecord) error {
	if record == nil {
		return errors.New("cannot set nil record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.begin()
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO file_records (path, inode, mtime, is_directory, etag, file_id, size)
	          VALUES (:path, :inode, :mtime, :is_directory, :etag, :file_id, :size)`
	if _, err := tx.NamedExec(query, toDB(record)); err != nil {
		return fmt.Errorf("failed to set record for path %s: %w", record.Path, err)
	}
	j.pending++
	slog.Debug("journal set", "path", record.Path, "etag", record.ETag, "dir", record.IsDirectory)
	return nil
}

// DeleteFileRecord removes the record at path. With recurse it also removes every
// record strictly below path ("path/..."). Matching is byte-wise.
func (j *Journal) DeleteFileRecord(path string, recurse bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.begin()
	if err != nil {
		return err
	}

	var res sql.Result
	if recurse {
		// '0' is the byte after '/', so [path/, path0) is exactly the subtree
		res, err = tx.Exec("DELETE FROM file_records WHERE path = ? OR (path >= ? AND path < ?)",
			path, path+"/", path+"0")
	} else {
		res, err = tx.Exec("DELETE FROM file_records WHERE path = ?", path)
	}
	if err != nil {
		return fmt.Errorf("failed to delete path %s: %w", path, err)
	}

	n, _ := res.RowsAffected()
	j.pending++
	slog.Debug("journal delete", "path", path, "recurse", recurse, "rows", n)
	return nil
}

// Commit makes every mutation since the previous commit durable. label names the
// boundary in the logs.
func (j *Journal) Commit(label string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrJournalClosed
	}
	if j.tx == nil {
		slog.Debug("journal commit", "label", label, "mutations", 0)
		return nil
	}

	start := time.Now()
	err := j.tx.Commit()
	mutations := j.pending
	j.tx = nil
	j.pending = 0
	if err != nil {
		return fmt.Errorf("journal commit %q: %w", label, err)
	}
	slog.Debug("journal commit", "label", label, "mutations", mutations, "took", time.Since(start))
	return nil
}

// GetFileRecord returns the record at path, or nil if there is none
func (j *Journal) GetFileRecord(path string) (*FileRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	q, err := j.queryer()
	if err != nil {
		return nil, err
	}

	var row dbFileRecord
	if err := sqlx.Get(q, &row, selectColumns+" WHERE path = ?", path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query path %s: %w", path, err)
	}

	record, err := row.toRecord()
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored record for %s: %w", path, err)
	}
	return record, nil
}

// Records lists the records at or below prefix ("" lists everything), ordered by path
func (j *Journal) Records(prefix string) ([]*FileRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	q, err := j.queryer()
	if err != nil {
		return nil, err
	}

	var rows []dbFileRecord
	if prefix == "" {
		err = sqlx.Select(q, &rows, selectColumns+" ORDER BY path")
	} else {
		err = sqlx.Select(q, &rows, selectColumns+" WHERE path = ? OR (path >= ? AND path < ?) ORDER BY path",
			prefix, prefix+"/", prefix+"0")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]*FileRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			slog.Error("journal record corrupt", "path", row.Path, "mtime", row.ModTime, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Paths returns every path known to the journal, ordered
func (j *Journal) Paths() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	q, err := j.queryer()
	if err != nil {
		return nil, err
	}

	var paths []string
	if err := sqlx.Select(q, &paths, "SELECT path FROM file_records ORDER BY path"); err != nil {
		return nil, fmt.Errorf("failed to query paths: %w", err)
	}
	return paths, nil
}

func (j *Journal) Count() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	q, err := j.queryer()
	if err != nil {
		return 0, err
	}

	var count int
	if err := sqlx.Get(q, &count, "SELECT COUNT(*) FROM file_records"); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Destroy closes the journal and moves the database aside as a timestamped backup
func (j *Journal) Destroy() error {
	if err := j.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	if j.dbPath == ":memory:" {
		return nil
	}

	backup := fmt.Sprintf("%s.%s.bak", j.dbPath, time.Now().Format("20060102150405"))
	if err := os.Rename(j.dbPath, backup); err != nil {
		return fmt.Errorf("failed to rename journal file: %w", err)
	}
	// WAL side files belong to the old database
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(j.dbPath + suffix)
	}
	slog.Info("journal destroyed", "backup", backup)
	return nil
}

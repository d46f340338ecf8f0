package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger stores records in a per-run SQLite database. The mutex keeps
// the append path serialized the same way the CSV backend does, so both
// backends present identical concurrency guarantees.
type SQLiteLedger struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger database at path and ensures the
// record table exists.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database %s: %w", path, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS job_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unit_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		message TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Append persists one record as a single inserted row.
func (l *SQLiteLedger) Append(record *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		`INSERT INTO job_records (unit_id, status, error_kind, message, start_time, end_time) VALUES (?, ?, ?, ?, ?, ?)`,
		record.UnitID,
		string(record.Status),
		string(record.ErrorKind),
		record.Message,
		record.StartTime.Format(time.RFC3339Nano),
		record.EndTime.Format(time.RFC3339Nano),
	)
	return err
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

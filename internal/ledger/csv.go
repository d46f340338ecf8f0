package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// header is the fixed column schema of the CSV ledger file.
var header = []string{"unit_id", "status", "error_kind", "message", "start_time", "end_time"}

// CSVLedger appends records to a single CSV file. A mutex serializes all
// writers; the file is opened in append mode and flushed after every row, so
// a worker crash cannot corrupt previously persisted records.
type CSVLedger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// OpenCSV opens (or creates) the ledger file at path and writes the header
// row when the file is new.
func OpenCSV(path string) (*CSVLedger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file %s: %w", path, err)
	}

	ledger := &CSVLedger{file: file, writer: csv.NewWriter(file)}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat ledger file %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := ledger.writeRow(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write ledger header: %w", err)
		}
	}
	return ledger, nil
}

// Append persists one record as a single CSV row.
func (l *CSVLedger) Append(record *Record) error {
	return l.writeRow([]string{
		record.UnitID,
		string(record.Status),
		string(record.ErrorKind),
		record.Message,
		record.StartTime.Format(time.RFC3339Nano),
		record.EndTime.Format(time.RFC3339Nano),
	})
}

// Close flushes any buffered output and closes the file.
func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// writeRow writes and flushes one row under the ledger lock. The flush plus
// fsync pair makes each append durable before the lock is released.
func (l *CSVLedger) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

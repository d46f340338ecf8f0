// Package ledger provides the durable, append-only record of per-unit
// outcomes for a run. Appends are serialized across all concurrent workers;
// a record, once written, is never updated or deleted.
package ledger

import (
	"time"

	"github.com/vk/floodgridgo/internal/errclass"
)

// Status is the terminal state of a unit job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Record is the terminal outcome of one unit for one run. It is created at
// job start and finalized exactly once by the owning worker.
type Record struct {
	UnitID    string
	Status    Status
	ErrorKind errclass.Kind
	Message   string
	StartTime time.Time
	EndTime   time.Time
}

// NewRecord starts a record for the given unit, stamping its start time.
func NewRecord(unitID string) *Record {
	return &Record{UnitID: unitID, StartTime: time.Now()}
}

// Succeed finalizes the record as successful. The message distinguishes a
// fresh success from an idempotent skip for human readers; downstream
// consumers treat both identically.
func (r *Record) Succeed(message string) {
	r.Status = StatusSuccess
	r.ErrorKind = errclass.KindNone
	r.Message = message
	r.EndTime = time.Now()
}

// Fail finalizes the record with a classified failure.
func (r *Record) Fail(kind errclass.Kind, message string) {
	r.Status = StatusFailed
	r.ErrorKind = kind
	r.Message = message
	r.EndTime = time.Now()
}

// Ledger is the durable store of records for a single run.
type Ledger interface {
	// Append persists one record. It is safe to call from any number of
	// workers concurrently; each append is atomic.
	Append(record *Record) error
	// Close flushes and releases the underlying store.
	Close() error
}

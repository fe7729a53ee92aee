// pkg/audit/recorder.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const insertAuditSQL = `INSERT INTO execution_audit (
	execution_id,
	started_at,
	finished_at,
	env_name,
	tables_processed,
	rows_copied,
	rows_failed,
	errors
) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb)`

// DB is the slice of the destination database the recorder needs.
// *sqlx.DB satisfies it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TableEntry is one processed batch's accounting line.
type TableEntry struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// ErrorEntry records one failed unit (a batch, a table worker, or the run
// itself) with its error message.
type ErrorEntry struct {
	Unit    string `json:"table"`
	Message string `json:"error"`
}

// Recorder accumulates per-execution statistics and errors. Every method is
// safe to call from any worker concurrently; one summary row is persisted at
// run end by Finish.
type Recorder struct {
	db     DB
	logger *zap.Logger

	executionID string
	envName     string
	startedAt   time.Time

	mu         sync.Mutex
	tables     []TableEntry
	errors     []ErrorEntry
	rowsCopied int64
	rowsFailed int64
}

// NewRecorder creates a recorder with a fresh execution id.
func NewRecorder(db DB, envName string, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:          db,
		logger:      logger.Named("audit"),
		executionID: uuid.New().String(),
		envName:     envName,
		startedAt:   time.Now(),
	}
}

// ExecutionID returns the run's globally unique identifier.
func (r *Recorder) ExecutionID() string {
	return r.executionID
}

// LogTable records a successfully processed batch for table and adds its
// row count to the run total.
func (r *Recorder) LogTable(table string, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tables = append(r.tables, TableEntry{Table: table, Rows: rows})
	r.rowsCopied += int64(rows)
}

// LogError records a failed unit. It never fails and never halts the
// caller.
func (r *Recorder) LogError(unit, message string) {
	r.mu.Lock()
	r.errors = append(r.errors, ErrorEntry{Unit: unit, Message: message})
	r.rowsFailed++
	r.mu.Unlock()

	r.logger.Warn("Recorded failure",
		zap.String("unit", unit),
		zap.String("error", message))
}

// Totals returns the current copied and failed counters.
func (r *Recorder) Totals() (copied, failed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowsCopied, r.rowsFailed
}

// Finish records the end timestamp and persists the single summary row.
// A persistence failure is returned to the caller and not retried.
func (r *Recorder) Finish(ctx context.Context) error {
	finishedAt := time.Now()

	r.mu.Lock()
	tablesJSON, err := json.Marshal(r.tables)
	if err == nil {
		var errsJSON []byte
		errsJSON, err = json.Marshal(r.errors)
		if err == nil {
			copied, failed := r.rowsCopied, r.rowsFailed
			r.mu.Unlock()

			// Clear any failed or half-open transaction left on the session
			// so the audit insert itself is not blocked by a prior error.
			_, _ = r.db.ExecContext(ctx, "ROLLBACK")

			if _, execErr := r.db.ExecContext(ctx, insertAuditSQL,
				r.executionID,
				r.startedAt,
				finishedAt,
				r.envName,
				string(tablesJSON),
				copied,
				failed,
				string(errsJSON),
			); execErr != nil {
				return fmt.Errorf("persist audit record %s: %w", r.executionID, execErr)
			}

			r.logger.Info("Audit record persisted",
				zap.String("execution_id", r.executionID),
				zap.Int64("rows_copied", copied),
				zap.Int64("rows_failed", failed),
				zap.Duration("duration", finishedAt.Sub(r.startedAt)))
			return nil
		}
	}
	r.mu.Unlock()

	return fmt.Errorf("marshal audit payload: %w", err)
}

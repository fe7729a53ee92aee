// pkg/load/loader.go
package load

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/data-egress/pkg/connector"
	"github.com/David-Botos/data-egress/pkg/model"
)

// Loader writes masked batches to the destination. Each Insert is a single
// attempt inside one transaction; the caller applies its backoff policy
// around the call, keeping the retry behavior visible at the call site.
type Loader struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New creates a loader over the destination connection.
func New(conn connector.DatabaseConnector, logger *zap.Logger) *Loader {
	return &Loader{
		db:     conn.DB(),
		logger: logger.Named("loader"),
	}
}

// Insert writes one batch in a single transaction, rolling back in full on
// any failure. Tables with declared key columns get an upsert, so replaying
// the same batch is idempotent. Tables without keys get a plain append:
// a retried or replayed batch can duplicate rows there — a known gap,
// limited to key-less tables.
func (l *Loader) Insert(ctx context.Context, spec model.TableSpec, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	query := buildInsertQuery(spec, batch.Columns)

	rows := make([]map[string]interface{}, len(batch.Rows))
	for i, row := range batch.Rows {
		rows[i] = row
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", spec.Name, err)
	}

	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.logger.Warn("Rollback failed after insert error",
				zap.String("table", spec.Name),
				zap.Error(rbErr))
		}
		return fmt.Errorf("insert batch into %s: %w", spec.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch into %s: %w", spec.Name, err)
	}

	return nil
}

// Truncate clears the destination table. Used by full-refresh runs.
func (l *Loader) Truncate(ctx context.Context, table string) error {
	if _, err := l.db.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(table)); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}

	l.logger.Info("Truncated destination table", zap.String("table", table))
	return nil
}

// buildInsertQuery assembles the batch insert statement. With key columns
// the statement carries an ON CONFLICT clause that overwrites every non-key
// column from the incoming row.
func buildInsertQuery(spec model.TableSpec, columns []string) string {
	quoted := make([]string, len(columns))
	named := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
		named[i] = ":" + col
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pq.QuoteIdentifier(spec.Name))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(named, ", "))
	sb.WriteString(")")

	if len(spec.KeyColumns) == 0 {
		return sb.String()
	}

	keys := make(map[string]bool, len(spec.KeyColumns))
	conflict := make([]string, len(spec.KeyColumns))
	for i, k := range spec.KeyColumns {
		keys[k] = true
		conflict[i] = pq.QuoteIdentifier(k)
	}

	var updates []string
	for _, col := range columns {
		if keys[col] {
			continue
		}
		qc := pq.QuoteIdentifier(col)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", qc, qc))
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(conflict, ", "))
	sb.WriteString(")")

	if len(updates) == 0 {
		// Every column is part of the key: nothing to overwrite.
		sb.WriteString(" DO NOTHING")
		return sb.String()
	}

	sb.WriteString(" DO UPDATE SET ")
	sb.WriteString(strings.Join(updates, ", "))
	return sb.String()
}

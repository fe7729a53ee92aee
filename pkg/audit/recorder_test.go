// pkg/audit/recorder_test.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDB struct {
	mu      sync.Mutex
	queries []string
	args    [][]interface{}
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, nil
}

func TestRecorderAccumulatesConcurrently(t *testing.T) {
	rec := NewRecorder(&fakeDB{}, "dev_local", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.LogTable("users", 5)
		}()
	}
	wg.Wait()

	rec.LogError("orders", "connection reset")
	rec.LogError("orders", "connection reset")

	copied, failed := rec.Totals()
	assert.Equal(t, int64(50), copied)
	assert.Equal(t, int64(2), failed)
}

func TestRecorderExecutionIDIsUUID(t *testing.T) {
	rec := NewRecorder(&fakeDB{}, "dev_local", zap.NewNop())

	_, err := uuid.Parse(rec.ExecutionID())
	require.NoError(t, err)
}

func TestFinishPersistsSummaryRow(t *testing.T) {
	db := &fakeDB{}
	rec := NewRecorder(db, "dev_local", zap.NewNop())

	rec.LogTable("users", 500)
	rec.LogTable("users", 230)
	rec.LogError("orders", "batch insert failed")

	require.NoError(t, rec.Finish(context.Background()))

	// A defensive rollback precedes the insert so a failed transaction left
	// on the session cannot block the audit write.
	require.Len(t, db.queries, 2)
	assert.Equal(t, "ROLLBACK", db.queries[0])
	assert.Contains(t, db.queries[1], "INSERT INTO execution_audit")

	args := db.args[1]
	require.Len(t, args, 8)
	assert.Equal(t, rec.ExecutionID(), args[0])
	assert.Equal(t, "dev_local", args[3])
	assert.Equal(t, int64(730), args[5])
	assert.Equal(t, int64(1), args[6])

	var tables []TableEntry
	require.NoError(t, json.Unmarshal([]byte(args[4].(string)), &tables))
	assert.Equal(t, []TableEntry{{Table: "users", Rows: 500}, {Table: "users", Rows: 230}}, tables)

	var errs []ErrorEntry
	require.NoError(t, json.Unmarshal([]byte(args[7].(string)), &errs))
	assert.Equal(t, []ErrorEntry{{Unit: "orders", Message: "batch insert failed"}}, errs)
}

func TestErrorEntryJSONKeys(t *testing.T) {
	data, err := json.Marshal(ErrorEntry{Unit: "users", Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"table": "users", "error": "boom"}`, string(data))
}

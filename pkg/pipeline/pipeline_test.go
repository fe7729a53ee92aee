// pkg/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/data-egress/pkg/audit"
	"github.com/David-Botos/data-egress/pkg/config"
	"github.com/David-Botos/data-egress/pkg/model"
	"github.com/David-Botos/data-egress/pkg/state"
)

type nopDB struct{}

func (nopDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func newTestPipeline(t *testing.T, cfg *config.Config, mode Mode) *Pipeline {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "last_run.json"), zap.NewNop())
	require.NoError(t, err)
	return New(cfg, mode, st, zap.NewNop())
}

func TestRoleAllowed(t *testing.T) {
	assert.True(t, roleAllowed("etl_runner", []string{"etl_runner", "etl_admin"}))
	assert.False(t, roleAllowed("postgres", []string{"etl_runner", "etl_admin"}))
	assert.False(t, roleAllowed("etl_runner", nil))
}

func TestResolveFilterDeltaWithoutWatermark(t *testing.T) {
	p := newTestPipeline(t, &config.Config{}, ModeDelta)
	spec := model.TableSpec{Name: "users", WatermarkColumn: "updated_at", Filter: "active = true"}

	assert.Equal(t, "active = true", p.resolveFilter(spec))
}

func TestResolveFilterDeltaWithWatermark(t *testing.T) {
	p := newTestPipeline(t, &config.Config{}, ModeDelta)
	spec := model.TableSpec{Name: "users", WatermarkColumn: "updated_at", Filter: "active = true"}

	require.NoError(t, p.state.Advance("users", []interface{}{"2024-01-02"}))

	assert.Equal(t, `"updated_at" > '2024-01-02'`, p.resolveFilter(spec))
}

func TestResolveFilterEscapesWatermarkQuotes(t *testing.T) {
	p := newTestPipeline(t, &config.Config{}, ModeDelta)
	spec := model.TableSpec{Name: "users", WatermarkColumn: "updated_at"}

	require.NoError(t, p.state.Advance("users", []interface{}{"o'clock"}))

	assert.Equal(t, `"updated_at" > 'o''clock'`, p.resolveFilter(spec))
}

func TestResolveFilterFullModeIgnoresWatermark(t *testing.T) {
	p := newTestPipeline(t, &config.Config{}, ModeFull)
	spec := model.TableSpec{Name: "users", WatermarkColumn: "updated_at", Filter: "active = true"}

	require.NoError(t, p.state.Advance("users", []interface{}{"2024-01-02"}))

	assert.Equal(t, "active = true", p.resolveFilter(spec))
}

func TestRunTablesIsolatesFailures(t *testing.T) {
	cfg := &config.Config{
		Tables: []model.TableSpec{{Name: "users"}, {Name: "orders"}, {Name: "payments"}},
	}
	p := newTestPipeline(t, cfg, ModeDelta)

	var mu sync.Mutex
	ran := make([]string, 0, 3)
	p.tableRunner = func(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) error {
		mu.Lock()
		ran = append(ran, spec.Name)
		mu.Unlock()

		if spec.Name == "orders" {
			return errors.New("source unreachable")
		}
		return nil
	}

	rec := audit.NewRecorder(nopDB{}, "test", zap.NewNop())
	p.runTables(context.Background(), rec)

	assert.Equal(t, []string{"users", "orders", "payments"}, ran)

	_, failed := rec.Totals()
	assert.Equal(t, int64(1), failed)
}

func TestRunTablesRecoversFromPanic(t *testing.T) {
	cfg := &config.Config{
		Tables: []model.TableSpec{{Name: "users"}, {Name: "orders"}},
	}
	p := newTestPipeline(t, cfg, ModeDelta)

	p.tableRunner = func(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) error {
		if spec.Name == "users" {
			panic("nil map write")
		}
		return nil
	}

	rec := audit.NewRecorder(nopDB{}, "test", zap.NewNop())
	p.runTables(context.Background(), rec)

	_, failed := rec.Totals()
	assert.Equal(t, int64(1), failed)
}

func TestRunTablesParallelProcessesEveryTable(t *testing.T) {
	cfg := &config.Config{
		ParallelTables: true,
		MaxWorkers:     2,
		Tables: []model.TableSpec{
			{Name: "users"}, {Name: "orders"}, {Name: "payments"}, {Name: "invoices"},
		},
	}
	p := newTestPipeline(t, cfg, ModeDelta)

	var mu sync.Mutex
	ran := make(map[string]bool)
	p.tableRunner = func(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) error {
		mu.Lock()
		ran[spec.Name] = true
		mu.Unlock()
		return nil
	}

	rec := audit.NewRecorder(nopDB{}, "test", zap.NewNop())
	p.runTables(context.Background(), rec)

	assert.Len(t, ran, 4)
}

// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/David-Botos/data-egress/pkg/audit"
	"github.com/David-Botos/data-egress/pkg/config"
	"github.com/David-Botos/data-egress/pkg/connector"
	"github.com/David-Botos/data-egress/pkg/model"
	"github.com/David-Botos/data-egress/pkg/state"
)

// Mode selects between incremental and full-refresh extraction.
type Mode string

const (
	ModeDelta Mode = "delta"
	ModeFull  Mode = "full"
)

// ErrUnauthorizedRole means the connected destination role is not on the
// configured allow-list. The run stops before touching any data.
var ErrUnauthorizedRole = errors.New("runner role is not authorized")

// Pipeline orchestrates one end-to-end run: authorization, per-table
// extraction, masking, loading, watermark advancement, and the audit record.
type Pipeline struct {
	cfg    *config.Config
	mode   Mode
	logger *zap.Logger
	state  *state.Store

	// dial and tableRunner are indirections for tests; production runs use
	// the defaults installed by New.
	dial        func(ctx context.Context, cfg *config.DBConfig) (connector.DatabaseConnector, error)
	tableRunner func(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) error
}

// New creates a pipeline for one run in the given mode.
func New(cfg *config.Config, mode Mode, st *state.Store, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		mode:   mode,
		logger: logger.Named("pipeline"),
		state:  st,
	}
	p.dial = func(ctx context.Context, dbCfg *config.DBConfig) (connector.DatabaseConnector, error) {
		return connector.Connect(ctx, dbCfg, cfg.ConnectPolicy())
	}
	p.tableRunner = p.processTable
	return p
}

// Run executes the pipeline. Per-table and per-batch failures are recorded
// and do not stop other tables; the audit record is persisted exactly once,
// whatever else failed.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("Starting run",
		zap.String("mode", string(p.mode)),
		zap.String("env", p.cfg.EnvName),
		zap.Bool("dry_run", p.cfg.DryRun),
		zap.Int("tables", len(p.cfg.Tables)))

	src, err := p.dial(ctx, &p.cfg.SourceDB)
	if err != nil {
		return fmt.Errorf("dial source: %w", err)
	}
	defer src.Close()

	dst, err := p.dial(ctx, &p.cfg.DestDB)
	if err != nil {
		return fmt.Errorf("dial destination: %w", err)
	}
	defer dst.Close()

	// Authorization happens before the audit recorder exists: an
	// unauthorized caller must not be able to write anything, the audit
	// trail included.
	if err := p.authorize(ctx, dst); err != nil {
		return err
	}

	rec := audit.NewRecorder(dst.DB(), p.cfg.EnvName, p.logger)
	p.logger.Info("Run authorized", zap.String("execution_id", rec.ExecutionID()))

	p.runTables(ctx, rec)

	if err := rec.Finish(ctx); err != nil {
		p.logger.Error("Failed to persist audit record", zap.Error(err))
		return err
	}

	copied, failed := rec.Totals()
	p.logger.Info("Run finished",
		zap.String("execution_id", rec.ExecutionID()),
		zap.Int64("rows_copied", copied),
		zap.Int64("rows_failed", failed))

	return nil
}

// authorize checks the connected destination role against the allow-list.
// An empty allow-list disables the check.
func (p *Pipeline) authorize(ctx context.Context, dst connector.DatabaseConnector) error {
	if len(p.cfg.AllowedRunnerRoles) == 0 {
		p.logger.Warn("No allowed_runner_roles configured, skipping authorization check")
		return nil
	}

	var current string
	if err := dst.DB().GetContext(ctx, &current, "SELECT current_user"); err != nil {
		return fmt.Errorf("resolve current role: %w", err)
	}

	if !roleAllowed(current, p.cfg.AllowedRunnerRoles) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedRole, current)
	}

	p.logger.Info("Runner role authorized", zap.String("role", current))
	return nil
}

func roleAllowed(current string, allowed []string) bool {
	for _, role := range allowed {
		if role == current {
			return true
		}
	}
	return false
}

// runTables fans the configured tables out over a bounded worker pool, or
// runs them in order when parallelism is disabled.
func (p *Pipeline) runTables(ctx context.Context, rec *audit.Recorder) {
	if !p.cfg.ParallelTables || len(p.cfg.Tables) <= 1 {
		for _, spec := range p.cfg.Tables {
			p.runTableGuarded(ctx, 0, spec, rec)
		}
		return
	}

	workers := p.cfg.MaxWorkers
	if workers > len(p.cfg.Tables) {
		workers = len(p.cfg.Tables)
	}

	jobs := make(chan model.TableSpec, len(p.cfg.Tables))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for spec := range jobs {
				p.runTableGuarded(ctx, workerID, spec, rec)
			}
		}(i)
	}

	for _, spec := range p.cfg.Tables {
		jobs <- spec
	}
	close(jobs)

	wg.Wait()
}

// runTableGuarded isolates one table's failure, panic included, from the
// rest of the run.
func (p *Pipeline) runTableGuarded(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) {
	defer func() {
		if r := recover(); r != nil {
			rec.LogError(spec.Name, fmt.Sprintf("worker panic: %v", r))
			p.logger.Error("Table worker panicked",
				zap.String("table", spec.Name),
				zap.Any("panic", r))
		}
	}()

	if err := p.tableRunner(ctx, workerID, spec, rec); err != nil {
		rec.LogError(spec.Name, err.Error())
		p.logger.Error("Table processing failed",
			zap.String("table", spec.Name),
			zap.Error(err))
	}
}

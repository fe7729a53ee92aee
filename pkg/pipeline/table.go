// pkg/pipeline/table.go
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/data-egress/pkg/audit"
	"github.com/David-Botos/data-egress/pkg/extract"
	"github.com/David-Botos/data-egress/pkg/load"
	"github.com/David-Botos/data-egress/pkg/mask"
	"github.com/David-Botos/data-egress/pkg/model"
	"github.com/David-Botos/data-egress/pkg/retry"
)

// rowSource yields batches until exhausted. Satisfied by *extract.BatchStream.
type rowSource interface {
	Next(ctx context.Context) (*model.Batch, error)
}

// rowSink writes masked batches. Satisfied by *load.Loader.
type rowSink interface {
	Insert(ctx context.Context, spec model.TableSpec, batch *model.Batch) error
}

// processTable runs the full extract→mask→load cycle for one table. Each
// worker dials its own pair of connections; database handles are never
// shared across table workers.
func (p *Pipeline) processTable(ctx context.Context, workerID int, spec model.TableSpec, rec *audit.Recorder) error {
	logger := p.logger.With(
		zap.Int("worker", workerID),
		zap.String("table", spec.Name))

	start := time.Now()
	logger.Info("Processing table")

	src, err := p.dial(ctx, &p.cfg.SourceDB)
	if err != nil {
		return fmt.Errorf("dial source for %s: %w", spec.Name, err)
	}
	defer src.Close()

	dst, err := p.dial(ctx, &p.cfg.DestDB)
	if err != nil {
		return fmt.Errorf("dial destination for %s: %w", spec.Name, err)
	}
	defer dst.Close()

	extractor := extract.New(src, p.cfg.ExtractPolicy(), logger)
	loader := load.New(dst, logger)
	engine := mask.NewEngine(p.cfg.MaskSalt, mask.NewVault(dst.DB()))
	rules := p.cfg.MaskingRules[spec.Name]

	if p.mode == ModeFull && spec.TruncateOnFull && !p.cfg.DryRun {
		if err := loader.Truncate(ctx, spec.Name); err != nil {
			return err
		}
	}

	stream := extractor.Stream(spec, p.resolveFilter(spec))

	total, err := p.copyTable(ctx, spec, stream, loader, engine, rules, rec)
	if err != nil {
		return err
	}

	logger.Info("Table done",
		zap.Int("rows", total),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// copyTable drains the source batch by batch. A failed batch is recorded and
// skipped; later batches for the same table still run. A source failure is
// fatal for the table's remaining batches.
func (p *Pipeline) copyTable(
	ctx context.Context,
	spec model.TableSpec,
	source rowSource,
	sink rowSink,
	engine *mask.Engine,
	rules mask.RuleSet,
	rec *audit.Recorder,
) (int, error) {
	loadPolicy := p.cfg.LoadPolicy()

	total := 0
	for {
		batch, err := source.Next(ctx)
		if err != nil {
			return total, err
		}
		if batch == nil {
			break
		}

		if err := p.processBatch(ctx, spec, batch, engine, rules, sink, loadPolicy, rec); err != nil {
			rec.LogError(spec.Name, err.Error())
			p.logger.Warn("Batch failed, continuing with next batch",
				zap.String("table", spec.Name),
				zap.Int("rows", batch.Len()),
				zap.Error(err))
			continue
		}

		total += batch.Len()
	}

	return total, nil
}

// processBatch masks one batch, writes it, and advances the watermark. A
// masking failure fails the batch without retry; only the load is retried.
func (p *Pipeline) processBatch(
	ctx context.Context,
	spec model.TableSpec,
	batch *model.Batch,
	engine *mask.Engine,
	rules mask.RuleSet,
	sink rowSink,
	loadPolicy retry.Policy,
	rec *audit.Recorder,
) error {
	// Watermark candidates come from the source values. A masking rule may
	// target the watermark column itself, and a masked value must never
	// become the stored watermark.
	var candidates []interface{}
	if p.mode == ModeDelta && spec.WatermarkColumn != "" {
		candidates = make([]interface{}, 0, batch.Len())
		for _, row := range batch.Rows {
			candidates = append(candidates, row[spec.WatermarkColumn])
		}
	}

	for i, row := range batch.Rows {
		masked, err := engine.MaskRow(ctx, row, rules)
		if err != nil {
			return fmt.Errorf("mask row in %s: %w", spec.Name, err)
		}
		batch.Rows[i] = masked
	}

	if p.cfg.DryRun {
		p.logger.Info("Dry run, skipping load",
			zap.String("table", spec.Name),
			zap.Int("rows", batch.Len()))
	} else {
		err := loadPolicy.Do(ctx, func() error {
			return sink.Insert(ctx, spec, batch)
		})
		if err != nil {
			return err
		}
	}

	rec.LogTable(spec.Name, batch.Len())

	if candidates != nil {
		if err := p.state.Advance(spec.Name, candidates); err != nil {
			return err
		}
	}

	return nil
}

// resolveFilter picks the extraction predicate: in delta mode a stored
// watermark bounds the scan; otherwise the table's configured static filter
// applies. Full mode always rescans everything the static filter admits.
func (p *Pipeline) resolveFilter(spec model.TableSpec) string {
	if p.mode != ModeDelta {
		return spec.Filter
	}

	mark, ok := p.state.Get(spec.Name)
	if !ok {
		return spec.Filter
	}

	return fmt.Sprintf("%s > '%s'",
		pq.QuoteIdentifier(spec.WatermarkColumn),
		strings.ReplaceAll(mark, "'", "''"))
}

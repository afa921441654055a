// Package importer ingests curated batches into the graph: validate, match,
// resolve, then write in atomic sub-batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/events"
	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/identity"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// Coordinator runs batch imports. It holds no per-run state; every run owns
// its own collector and plan.
type Coordinator struct {
	logger    ectologger.Logger
	store     graph.Store
	matcher   *matching.Matcher
	resolver  *resolution.Resolver
	identity  identity.Validator
	history   HistoryRecorder
	emitter   *events.Emitter
	validator *schema.Validator
	now       func() time.Time
}

// NewCoordinator creates a coordinator. identity, history and emitter may be nil.
func NewCoordinator(
	logger ectologger.Logger,
	store graph.Store,
	matcher *matching.Matcher,
	resolver *resolution.Resolver,
	identity identity.Validator,
	history HistoryRecorder,
	emitter *events.Emitter,
) *Coordinator {
	return &Coordinator{
		logger:    logger,
		store:     store,
		matcher:   matcher,
		resolver:  resolver,
		identity:  identity,
		history:   history,
		emitter:   emitter,
		validator: schema.NewValidator(),
		now:       time.Now,
	}
}

// run is the mutable state of one import
type run struct {
	opts      Options
	batch     *models.Batch
	result    *RunResult
	collector *models.Collector
	plan      *plan
	prov      graph.Provenance
	created   []models.Entity
	linked    map[models.EntityKind][]events.EntityLinkedData
}

// Import validates batch and, unless it fails validation, plans and (when
// opts.Execute is set) writes it. A validation failure is returned as
// models.ValidationErrors alongside the result; every other problem is
// collected on the result and the run continues.
func (c *Coordinator) Import(ctx context.Context, batch *models.Batch, opts Options) (*RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Coordinator.Import")
	defer span.End()

	if batch == nil {
		return nil, errors.New("batch is required")
	}
	opts = opts.withDefaults()
	start := c.now().UTC()

	r := &run{
		opts:      opts,
		batch:     batch,
		collector: models.NewCollector(),
		plan:      newPlan(),
		linked:    map[models.EntityKind][]events.EntityLinkedData{},
		result: &RunResult{
			Run: models.ImportRun{
				ID:        uuid.New().String(),
				BatchID:   "batch_import_" + start.Format("20060102_150405"),
				Source:    batch.Metadata.Source,
				Curator:   batch.Metadata.Curator,
				DryRun:    !opts.Execute,
				StartedAt: start,
			},
		},
	}
	r.prov = graph.Provenance{
		BatchID: r.result.Run.BatchID,
		Source:  batch.Metadata.Source,
		Curator: batch.Metadata.Curator,
		At:      start,
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   r.result.Run.ID,
		"batch_id": r.result.Run.BatchID,
		"dry_run":  !opts.Execute,
	})
	log.Info("Starting batch import")

	report := c.validator.ValidateBatch(batch)
	for _, w := range report.Warnings {
		r.collector.Warnf("%s", w)
	}
	if err := report.Err(); err != nil {
		for i := range report.Errors {
			r.collector.AddError(report.Errors[i].Field, &report.Errors[i])
		}
		log.WithField("violations", len(report.Errors)).Warn("Batch failed validation, nothing written")
		tracing.Fail(span, err)
		c.finish(ctx, r, models.ImportOutcomeValidationFailed)
		return r.result, err
	}

	if !opts.WorksOnly {
		for i, f := range batch.AllFigures() {
			c.planRecord(ctx, r, i, f.ToEntity(), "")
		}
	}
	if !opts.FiguresOnly {
		for i, w := range batch.Works {
			c.planRecord(ctx, r, i, w.ToEntity(), w.Creator)
		}
	}

	if opts.Execute {
		c.writeEntities(ctx, r)
	}
	rels := c.planRelationships(ctx, r)
	if opts.Execute {
		c.writeRelationships(ctx, r, rels)
		c.emitRecordEvents(ctx, r)
	}

	c.finish(ctx, r, c.outcome(r))
	log.WithFields(map[string]any{
		"outcome":  r.result.Run.Outcome,
		"errors":   len(r.result.Errors),
		"warnings": len(r.result.Warnings),
	}).Info("Finished batch import")
	return r.result, nil
}

func (c *Coordinator) outcome(r *run) models.ImportOutcome {
	if !r.collector.HasErrors() {
		return models.ImportOutcomeSuccess
	}
	s := r.result.Stats
	progressed := s.Figures.Created+s.Figures.Linked+s.Works.Created+s.Works.Linked+s.RelationshipsCreated > 0
	if progressed {
		return models.ImportOutcomePartial
	}
	return models.ImportOutcomeFailed
}

// finish stamps the run, records history and publishes batch.imported
func (c *Coordinator) finish(ctx context.Context, r *run, outcome models.ImportOutcome) {
	res := r.result
	res.Records = r.plan.outcomes()
	res.Stats.Errors = len(r.collector.Errors)
	res.Stats.Warnings = len(r.collector.Warnings)
	res.Errors = r.collector.Errors
	res.Warnings = r.collector.Warnings

	finished := c.now().UTC()
	res.Run.FinishedAt = finished
	res.Run.DurationMS = finished.Sub(res.Run.StartedAt).Milliseconds()
	res.Run.Outcome = outcome
	res.Run.Stats = res.Stats

	metrics.ImportRunDuration.WithLabelValues(string(outcome)).Observe(finished.Sub(res.Run.StartedAt).Seconds())

	log := c.logger.WithContext(ctx).WithField("run_id", res.Run.ID)
	if c.history != nil {
		if err := c.history.Record(ctx, res.Run); err != nil {
			log.WithError(err).Error("Failed to record import history")
		}
	}
	if res.Run.DryRun || outcome == models.ImportOutcomeValidationFailed {
		return
	}
	if err := c.emitter.EmitBatchImported(ctx, res.Run); err != nil {
		log.WithError(err).Warn("Failed to publish batch.imported")
	}
}

func (c *Coordinator) emitRecordEvents(ctx context.Context, r *run) {
	if err := c.emitter.EmitEntityCreated(ctx, r.result.Run.ID, r.result.Run.BatchID, r.created); err != nil {
		r.collector.Warnf("failed to publish entity.created events: %v", err)
	}
	for _, kind := range models.Kinds() {
		if err := c.emitter.EmitEntityLinked(ctx, r.result.Run.ID, kind, r.linked[kind]); err != nil {
			r.collector.Warnf("failed to publish entity.linked events: %v", err)
		}
	}
}

func recordScope(kind models.EntityKind, index int) string {
	if kind == models.EntityKindMediaWork {
		return fmt.Sprintf("works[%d]", index)
	}
	return fmt.Sprintf("figures[%d]", index)
}

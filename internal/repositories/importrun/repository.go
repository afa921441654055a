package importrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

const table = "import_runs"

var columns = []string{
	"id", "batch_id", "source", "curator", "dry_run", "started_at", "finished_at",
	"duration_ms", "outcome", "stats", "error_count", "warning_count",
}

type row struct {
	models.ImportRun
	Stats        database.JSONB[models.ImportStats] `db:"stats"`
	ErrorCount   int                                `db:"error_count"`
	WarningCount int                                `db:"warning_count"`
}

func (r row) toModel() models.ImportRun {
	run := r.ImportRun
	run.Stats = r.Stats.Data
	return run
}

// Repository persists batch import history
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record stores the final state of a run. Recording the same run twice updates it.
func (r *Repository) Record(ctx context.Context, run models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Record")
	defer span.End()

	query, args := buildRecord(run)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("Failed to record import run")
		return fmt.Errorf("failed to record import run: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   run.ID,
		"batch_id": run.BatchID,
		"outcome":  run.Outcome,
	}).Info("Recorded import run")
	return nil
}

// Get retrieves a run by id
func (r *Repository) Get(ctx context.Context, id string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var result row
	if err := r.db.GetContext(ctx, &result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import run")
	}
	run := result.toModel()
	return &run, nil
}

// List returns the most recent runs first
func (r *Repository) List(ctx context.Context, limit int) ([]models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.List")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("started_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import runs")
	}
	out := make([]models.ImportRun, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func buildRecord(run models.ImportRun) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(
		run.ID, run.BatchID, run.Source, run.Curator, run.DryRun, run.StartedAt, run.FinishedAt,
		run.DurationMS, run.Outcome, database.JSONB[models.ImportStats]{Data: run.Stats},
		run.Stats.Errors, run.Stats.Warnings,
	)

	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("finished_at", database.Excluded("finished_at")),
		ub.Assign("duration_ms", database.Excluded("duration_ms")),
		ub.Assign("outcome", database.Excluded("outcome")),
		ub.Assign("stats", database.Excluded("stats")),
		ub.Assign("error_count", database.Excluded("error_count")),
		ub.Assign("warning_count", database.Excluded("warning_count")),
	)
	return ib.Build()
}

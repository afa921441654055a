package mergelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

const table = "merge_log"

var columns = []string{
	"id", "run_id", "kind", "group_key", "primary_id", "duplicate_id", "duplicate_authoritative_id",
	"internal_removed", "references_repaired", "state", "status", "error", "details", "performed_at",
}

type details struct {
	Redirected        map[models.RelationshipType]int `json:"redirected"`
	Coalesced         map[models.RelationshipType]int `json:"coalesced"`
	PropertiesFilled  []string                        `json:"properties_filled"`
	AlternateIDsAdded []string                        `json:"alternate_ids_added"`
}

type row struct {
	models.MergeRecord
	Details database.JSONB[details] `db:"details"`
}

func (r row) toModel() models.MergeRecord {
	rec := r.MergeRecord
	rec.Redirected = r.Details.Data.Redirected
	rec.Coalesced = r.Details.Data.Coalesced
	rec.PropertiesFilled = r.Details.Data.PropertiesFilled
	rec.AlternateIDsAdded = r.Details.Data.AlternateIDsAdded
	return rec
}

// Repository is the append-only merge audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append writes records in one transaction. Records already logged are left untouched.
func (r *Repository) Append(ctx context.Context, records []models.MergeRecord) error {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.Append")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	query, args, err := buildAppend(records)
	if err != nil {
		return err
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("records", len(records)).Error("Failed to append merge log")
		return fmt.Errorf("failed to append merge log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"records": len(records),
		"run_id":  records[0].RunID,
	}).Info("Appended merge log")
	return nil
}

// ListByRun returns the records of one sweep in the order they were performed
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.ListByRun")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("performed_at", "id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to list merge log")
		return nil, fmt.Errorf("failed to list merge log: %w", err)
	}
	out := make([]models.MergeRecord, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// ListByDuplicate returns every attempt to merge away a local id
func (r *Repository) ListByDuplicate(ctx context.Context, kind models.EntityKind, duplicateID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergelog.Repository.ListByDuplicate")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("kind", kind), sb.Equal("duplicate_id", duplicateID))
	sb.OrderBy("performed_at")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("duplicate_id", duplicateID).Error("Failed to list merge log")
		return nil, fmt.Errorf("failed to list merge log: %w", err)
	}
	out := make([]models.MergeRecord, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

func buildAppend(records []models.MergeRecord) (string, []any, error) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, rec := range records {
		raw, err := rec.Details()
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode merge details: %w", err)
		}
		ib.Values(
			rec.ID, rec.RunID, rec.Kind, rec.GroupKey, rec.PrimaryID, rec.DuplicateID, rec.DuplicateAuthoritativeID,
			rec.InternalRemoved, rec.ReferencesRepaired, rec.State, rec.Status, rec.Error, json.RawMessage(raw), rec.Timestamp,
		)
	}
	ib.OnConflictDoNothing()
	query, args := ib.Build()
	return query, args, nil
}

package resolution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

const table = "resolution_decisions"

var columns = []string{"pair_key", "action", "tier", "score", "incoming_id", "existing_local_id", "source", "note", "decided_at", "created_local_id"}

// Repository is the postgres resolution decision store
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Get(ctx context.Context, key string) (*models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("pair_key", key))

	query, args := sb.Build()
	var decision models.ResolutionDecision
	if err := r.db.GetContext(ctx, &decision, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("pair_key", key).Error("Failed to get resolution decision")
		return nil, fmt.Errorf("failed to get resolution decision: %w", err)
	}
	return &decision, nil
}

func (r *Repository) Put(ctx context.Context, decision models.ResolutionDecision) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Put")
	defer span.End()

	query, args := buildInsert(decision, false)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("pair_key", decision.Key).Error("Failed to put resolution decision")
		return fmt.Errorf("failed to put resolution decision: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%s: %w", decision.Key, resolution.ErrDecisionExists)
	}
	return nil
}

func (r *Repository) Replace(ctx context.Context, decision models.ResolutionDecision) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Replace")
	defer span.End()

	query, args := buildInsert(decision, true)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("pair_key", decision.Key).Error("Failed to replace resolution decision")
		return fmt.Errorf("failed to replace resolution decision: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("pair_key", key))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("pair_key", key).Error("Failed to delete resolution decision")
		return fmt.Errorf("failed to delete resolution decision: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%s: %w", key, resolution.ErrDecisionNotFound)
	}
	r.logger.WithContext(ctx).WithField("pair_key", key).Info("Deleted resolution decision")
	return nil
}

func (r *Repository) List(ctx context.Context) ([]models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("pair_key")

	query, args := sb.Build()
	decisions := []models.ResolutionDecision{}
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolution decisions")
		return nil, fmt.Errorf("failed to list resolution decisions: %w", err)
	}
	return decisions, nil
}

func (r *Repository) Clear(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Clear")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear resolution decisions")
		return 0, fmt.Errorf("failed to clear resolution decisions: %w", err)
	}
	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithField("removed", rows).Warn("Cleared resolution decisions")
	return int(rows), nil
}

// buildInsert never overwrites unless replace is set
func buildInsert(d models.ResolutionDecision, replace bool) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(d.Key, d.Action, d.Tier, d.Score, d.IncomingID, d.ExistingLocalID, d.Source, d.Note, d.DecidedAt, d.CreatedLocalID)

	if !replace {
		ib.OnConflictDoNothing()
		return ib.Build()
	}

	ub := ib.OnConflict("pair_key")
	assignments := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		assignments = append(assignments, ub.Assign(col, database.Excluded(col)))
	}
	ub.Set(assignments...)
	return ib.Build()
}

var _ resolution.Store = (*Repository)(nil)

package importer

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// CheckEntry is the match classification of one incoming record
type CheckEntry struct {
	Index      int                  `json:"index"`
	Kind       models.EntityKind    `json:"kind"`
	Name       string               `json:"name"`
	IncomingID string               `json:"incoming_id,omitempty"`
	Tier       models.MatchTier     `json:"tier"`
	Score      float64              `json:"score,omitempty"`
	MatchedID  string               `json:"matched_id,omitempty"`
	ExactOn    string               `json:"exact_on,omitempty"`
	Candidates []matching.Candidate `json:"candidates,omitempty"`
	Degraded   bool                 `json:"degraded,omitempty"`
}

// CheckResult is a match-only pass over a batch
type CheckResult struct {
	Source   string              `json:"source"`
	Entries  []CheckEntry        `json:"entries"`
	Errors   []models.ErrorEntry `json:"errors"`
	Warnings []string            `json:"warnings"`
}

// Duplicates returns the entries that matched something already stored
func (r *CheckResult) Duplicates() []CheckEntry {
	var out []CheckEntry
	for _, e := range r.Entries {
		if e.Tier != models.MatchTierClear {
			out = append(out, e)
		}
	}
	return out
}

// Check validates batch and classifies every record against storage without
// resolving or writing anything
func (c *Coordinator) Check(ctx context.Context, batch *models.Batch) (*CheckResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Coordinator.Check")
	defer span.End()

	if batch == nil {
		return nil, errors.New("batch is required")
	}

	collector := models.NewCollector()
	result := &CheckResult{Source: batch.Metadata.Source, Entries: []CheckEntry{}}

	report := c.validator.ValidateBatch(batch)
	for _, w := range report.Warnings {
		collector.Warnf("%s", w)
	}
	if err := report.Err(); err != nil {
		for i := range report.Errors {
			collector.AddError(report.Errors[i].Field, &report.Errors[i])
		}
		result.Errors = collector.Errors
		result.Warnings = collector.Warnings
		return result, err
	}

	var entities []models.Entity
	for _, f := range batch.AllFigures() {
		entities = append(entities, f.ToEntity())
	}
	for _, w := range batch.Works {
		entities = append(entities, w.ToEntity())
	}

	indexes := map[models.EntityKind]int{}
	for _, entity := range entities {
		idx := indexes[entity.Kind]
		indexes[entity.Kind]++

		entry := CheckEntry{
			Index:      idx,
			Kind:       entity.Kind,
			Name:       entity.Name,
			IncomingID: models.IncomingIdentity(entity),
			Tier:       models.MatchTierClear,
		}
		match, err := c.matcher.Match(ctx, entity)
		if err != nil {
			collector.AddError(recordScope(entity.Kind, idx), err)
			result.Entries = append(result.Entries, entry)
			continue
		}
		entry.Tier = match.Tier
		entry.Score = match.BestScore()
		entry.ExactOn = match.ExactOn
		entry.Candidates = match.Candidates
		entry.Degraded = match.Degraded
		if match.Best != nil {
			entry.MatchedID = match.Best.Entity.LocalID
		}
		if match.Degraded {
			collector.Warnf("%s %q compared against a truncated candidate block", entity.Kind, entity.Name)
		}
		result.Entries = append(result.Entries, entry)
	}

	result.Errors = collector.Errors
	result.Warnings = collector.Warnings
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"records":    len(result.Entries),
		"duplicates": len(result.Duplicates()),
	}).Info("Checked batch against storage")
	return result, nil
}

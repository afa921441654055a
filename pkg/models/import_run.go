package models

import (
	"time"
)

// ImportOutcome summarizes how a batch run ended
type ImportOutcome string

const (
	ImportOutcomeSuccess          ImportOutcome = "success"
	ImportOutcomePartial          ImportOutcome = "partial"
	ImportOutcomeValidationFailed ImportOutcome = "validation_failed"
	ImportOutcomeFailed           ImportOutcome = "failed"
)

// KindStats counts per-kind record outcomes
type KindStats struct {
	Created int `json:"created"`
	Linked  int `json:"linked"`
	Skipped int `json:"skipped"`
}

// ImportStats are the final counters of a batch run
type ImportStats struct {
	Figures              KindStats `json:"figures"`
	Works                KindStats `json:"works"`
	RelationshipsCreated int       `json:"relationships_created"`
	RelationshipsSkipped int       `json:"relationships_skipped"`
	Errors               int       `json:"errors"`
	Warnings             int       `json:"warnings"`
}

// For returns the counters for a kind
func (s *ImportStats) For(kind EntityKind) *KindStats {
	if kind == EntityKindMediaWork {
		return &s.Works
	}
	return &s.Figures
}

// ImportRun is the durable history record of one batch run
type ImportRun struct {
	ID         string        `json:"id" db:"id"`
	BatchID    string        `json:"batch_id" db:"batch_id"`
	Source     string        `json:"source" db:"source"`
	Curator    string        `json:"curator" db:"curator"`
	DryRun     bool          `json:"dry_run" db:"dry_run"`
	StartedAt  time.Time     `json:"started_at" db:"started_at"`
	FinishedAt time.Time     `json:"finished_at" db:"finished_at"`
	DurationMS int64         `json:"duration_ms" db:"duration_ms"`
	Outcome    ImportOutcome `json:"outcome" db:"outcome"`
	Stats      ImportStats   `json:"stats" db:"-"`
}

// RecordOutcome describes what happened to one incoming record
type RecordOutcome struct {
	Index      int              `json:"index"`
	Kind       EntityKind       `json:"kind"`
	Name       string           `json:"name"`
	IncomingID string           `json:"incoming_id,omitempty"`
	Tier       MatchTier        `json:"tier"`
	Score      float64          `json:"score,omitempty"`
	MatchedID  string           `json:"matched_id,omitempty"`
	Action     ResolutionAction `json:"action"`
	LocalID    string           `json:"local_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
}

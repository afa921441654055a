package importer

import (
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// RelationshipOutcome describes what happened to one declared relationship
type RelationshipOutcome struct {
	Index   int                     `json:"index"`
	Type    models.RelationshipType `json:"type"`
	From    models.NodeRef          `json:"from"`
	To      models.NodeRef          `json:"to"`
	Written bool                    `json:"written"`
	Reason  string                  `json:"reason,omitempty"`
}

// RunResult is everything one batch run produced
type RunResult struct {
	Run           models.ImportRun       `json:"run"`
	Stats         models.ImportStats     `json:"stats"`
	Records       []models.RecordOutcome `json:"records"`
	Relationships []RelationshipOutcome  `json:"relationships"`
	Errors        []models.ErrorEntry    `json:"errors"`
	Warnings      []string               `json:"warnings"`
}

// Failed reports whether the run should be treated as a failure by callers
func (r *RunResult) Failed() bool {
	switch r.Run.Outcome {
	case models.ImportOutcomeValidationFailed, models.ImportOutcomeFailed, models.ImportOutcomePartial:
		return true
	}
	return false
}

// DryRun reports whether nothing was written
func (r *RunResult) DryRun() bool {
	return r.Run.DryRun
}

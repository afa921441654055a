package models

import (
	"strings"
	"time"
)

// MatchTier is the confidence classification of an incoming record
type MatchTier string

const (
	MatchTierExact     MatchTier = "exact"
	MatchTierHigh      MatchTier = "high_confidence"
	MatchTierPotential MatchTier = "potential"
	MatchTierClear     MatchTier = "clear"
)

// AutoResolvable reports whether the tier may be resolved without an external decision
func (t MatchTier) AutoResolvable() bool {
	return t == MatchTierExact || t == MatchTierHigh
}

// ResolutionAction is what to do with an incoming record that matched an existing entity
type ResolutionAction string

const (
	ActionUseExisting ResolutionAction = "use_existing"
	ActionCreateNew   ResolutionAction = "create_new"
	ActionSkip        ResolutionAction = "skip"
)

// ParseResolutionAction accepts the action in any casing
func ParseResolutionAction(s string) (ResolutionAction, bool) {
	switch ResolutionAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionUseExisting:
		return ActionUseExisting, true
	case ActionCreateNew:
		return ActionCreateNew, true
	case ActionSkip:
		return ActionSkip, true
	}
	return "", false
}

// DecisionSource records who produced a decision
type DecisionSource string

const (
	DecisionSourceAuto       DecisionSource = "auto"
	DecisionSourcePolicy     DecisionSource = "policy"
	DecisionSourceAnswerFile DecisionSource = "answer_file"
	DecisionSourcePrompt     DecisionSource = "prompt"
	DecisionSourceImport     DecisionSource = "import"
)

// ResolutionDecision is a durable answer for one (incoming, existing) pair
type ResolutionDecision struct {
	Key             string           `json:"key" yaml:"key" db:"pair_key"`
	Action          ResolutionAction `json:"action" yaml:"action" db:"action"`
	Tier            MatchTier        `json:"tier" yaml:"tier" db:"tier"`
	Score           float64          `json:"score" yaml:"score" db:"score"`
	IncomingID      string           `json:"incoming_id" yaml:"incoming_id" db:"incoming_id"`
	ExistingLocalID string           `json:"existing_local_id" yaml:"existing_local_id" db:"existing_local_id"`
	Source          DecisionSource   `json:"source" yaml:"source" db:"source"`
	Note            string           `json:"note,omitempty" yaml:"note,omitempty" db:"note"`
	DecidedAt       time.Time        `json:"decided_at" yaml:"decided_at" db:"decided_at"`
	// CreatedLocalID is the entity a create_new decision produced, once written
	CreatedLocalID string `json:"created_local_id,omitempty" yaml:"created_local_id,omitempty" db:"created_local_id"`
}

// PairKey builds the stable cache key for an incoming record and an existing entity.
// The incoming identity is its authoritative id when present, otherwise its name.
func PairKey(incoming Entity, existingLocalID string) string {
	return IncomingIdentity(incoming) + "|" + existingLocalID
}

// IncomingIdentity is the left half of a pair key
func IncomingIdentity(incoming Entity) string {
	if incoming.AuthoritativeID != "" {
		return incoming.AuthoritativeID
	}
	return incoming.Name
}

// DecisionRequest is what a decision provider is asked to answer
type DecisionRequest struct {
	Key       string    `json:"key"`
	Incoming  Entity    `json:"incoming"`
	Existing  Entity    `json:"existing"`
	Tier      MatchTier `json:"tier"`
	Score     float64   `json:"score"`
	Degraded  bool      `json:"degraded"`
	Alternate []Entity  `json:"alternates,omitempty"`
}

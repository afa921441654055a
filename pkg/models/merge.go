package models

import (
	"encoding/json"
	"time"
)

// MergeStrategyType defines how to combine a field when consolidating duplicates
type MergeStrategyType string

const (
	// MergeStrategyCoalesce keeps the primary's value and fills it only when empty
	MergeStrategyCoalesce MergeStrategyType = "coalesce"
	// MergeStrategyCollectAll unions list values, deduplicated, primary first
	MergeStrategyCollectAll MergeStrategyType = "collect_all"
	// MergeStrategyKeepPrimary never takes anything from the duplicate
	MergeStrategyKeepPrimary MergeStrategyType = "keep_primary"
)

// MergeState is a step of the per-duplicate consolidation state machine
type MergeState string

const (
	MergeStateDetected         MergeState = "DETECTED"
	MergeStateScored           MergeState = "SCORED"
	MergeStatePrimarySelected  MergeState = "PRIMARY_SELECTED"
	MergeStateRedirecting      MergeState = "REDIRECTING"
	MergeStatePropertyMerged   MergeState = "PROPERTY_MERGED"
	MergeStateDuplicateRetired MergeState = "DUPLICATE_RETIRED"
	MergeStateLogged           MergeState = "LOGGED"
	MergeStateFailed           MergeState = "FAILED"
)

// MergeStatus is the outcome recorded on the audit entry
type MergeStatus string

const (
	MergeStatusDryRun MergeStatus = "DRY_RUN"
	MergeStatusMerged MergeStatus = "MERGED"
	MergeStatusFailed MergeStatus = "FAILED"
)

// RetireMode controls how a consolidated duplicate leaves the graph
type RetireMode string

const (
	RetireModeDelete    RetireMode = "delete"
	RetireModeTombstone RetireMode = "tombstone"
)

// TiebreakPolicy orders group members whose relationship and property counts are equal
type TiebreakPolicy string

const (
	TiebreakLowestAuthoritativeID TiebreakPolicy = "lowest_authoritative_id"
	TiebreakLowestLocalID         TiebreakPolicy = "lowest_local_id"
	TiebreakEarliestCreated       TiebreakPolicy = "earliest_created"
)

// DuplicateGroup is a set of stored entities that share a normalized equality key
type DuplicateGroup struct {
	Kind    EntityKind       `json:"kind"`
	Key     string           `json:"key"`
	Members []EntitySnapshot `json:"members"`
}

// ManualReviewGroup is a name collision that lacks a discriminating attribute
type ManualReviewGroup struct {
	Kind    EntityKind `json:"kind"`
	Name    string     `json:"name"`
	Members []Entity   `json:"members"`
	Reason  string     `json:"reason"`
}

// MergeRecord is the immutable audit entry for one duplicate's consolidation
type MergeRecord struct {
	ID                       string                   `json:"id" db:"id"`
	RunID                    string                   `json:"run_id" db:"run_id"`
	Kind                     EntityKind               `json:"kind" db:"kind"`
	GroupKey                 string                   `json:"group_key" db:"group_key"`
	PrimaryID                string                   `json:"primary_id" db:"primary_id"`
	DuplicateID              string                   `json:"duplicate_id" db:"duplicate_id"`
	DuplicateAuthoritativeID string                   `json:"duplicate_authoritative_id,omitempty" db:"duplicate_authoritative_id"`
	Redirected               map[RelationshipType]int `json:"redirected" db:"-"`
	Coalesced                map[RelationshipType]int `json:"coalesced" db:"-"`
	InternalRemoved          int                      `json:"internal_removed" db:"internal_removed"`
	PropertiesFilled         []string                 `json:"properties_filled,omitempty" db:"-"`
	AlternateIDsAdded        []string                 `json:"alternate_ids_added,omitempty" db:"-"`
	ReferencesRepaired       int                      `json:"references_repaired" db:"references_repaired"`
	State                    MergeState               `json:"state" db:"state"`
	Status                   MergeStatus              `json:"status" db:"status"`
	Error                    string                   `json:"error,omitempty" db:"error"`
	Timestamp                time.Time                `json:"timestamp" db:"performed_at"`
}

// NewMergeRecord starts an audit entry for one duplicate
func NewMergeRecord(id, runID string, group DuplicateGroup, primary, duplicate Entity) MergeRecord {
	return MergeRecord{
		ID:                       id,
		RunID:                    runID,
		Kind:                     group.Kind,
		GroupKey:                 group.Key,
		PrimaryID:                primary.LocalID,
		DuplicateID:              duplicate.LocalID,
		DuplicateAuthoritativeID: duplicate.AuthoritativeID,
		Redirected:               map[RelationshipType]int{},
		Coalesced:                map[RelationshipType]int{},
		State:                    MergeStatePrimarySelected,
	}
}

// TotalRedirected sums redirected edges across types
func (r MergeRecord) TotalRedirected() int {
	total := 0
	for _, n := range r.Redirected {
		total += n
	}
	return total
}

// TotalCoalesced sums parallel edges folded into existing primary edges
func (r MergeRecord) TotalCoalesced() int {
	total := 0
	for _, n := range r.Coalesced {
		total += n
	}
	return total
}

// Details serializes the variable-width parts of the record for storage
func (r MergeRecord) Details() (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"redirected":          r.Redirected,
		"coalesced":           r.Coalesced,
		"properties_filled":   r.PropertiesFilled,
		"alternate_ids_added": r.AlternateIDsAdded,
	})
}

// MergeSummary aggregates a sweep for reports and events
type MergeSummary struct {
	Groups             int                      `json:"groups"`
	ManualReview       int                      `json:"manual_review"`
	Merged             int                      `json:"merged"`
	Simulated          int                      `json:"simulated"`
	Failed             int                      `json:"failed"`
	Redirected         map[RelationshipType]int `json:"redirected"`
	Coalesced          map[RelationshipType]int `json:"coalesced"`
	ReferencesRepaired int                      `json:"references_repaired"`
}

// Summarize totals the records of a sweep
func Summarize(groups, manual int, records []MergeRecord) MergeSummary {
	s := MergeSummary{
		Groups:       groups,
		ManualReview: manual,
		Redirected:   map[RelationshipType]int{},
		Coalesced:    map[RelationshipType]int{},
	}
	for _, r := range records {
		switch r.Status {
		case MergeStatusMerged:
			s.Merged++
		case MergeStatusDryRun:
			s.Simulated++
		case MergeStatusFailed:
			s.Failed++
			continue
		}
		for t, n := range r.Redirected {
			s.Redirected[t] += n
		}
		for t, n := range r.Coalesced {
			s.Coalesced[t] += n
		}
		s.ReferencesRepaired += r.ReferencesRepaired
	}
	return s
}

package events

import (
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeEntityCreated EventType = "entity.created"
	EventTypeEntityLinked  EventType = "entity.linked"
	EventTypeEntityMerged  EventType = "entity.merged"
	EventTypeBatchImported EventType = "batch.imported"
)

// EntityCreatedData is the payload of entity.created
type EntityCreatedData struct {
	LocalID         string `json:"local_id"`
	AuthoritativeID string `json:"authoritative_id,omitempty"`
	Provisional     bool   `json:"provisional"`
	Name            string `json:"name"`
	BatchID         string `json:"batch_id"`
}

// EntityLinkedData is the payload of entity.linked: an incoming record
// resolved onto an entity already in the graph
type EntityLinkedData struct {
	IncomingID      string                  `json:"incoming_id"`
	ExistingLocalID string                  `json:"existing_local_id"`
	Tier            models.MatchTier        `json:"tier"`
	Score           float64                 `json:"score"`
	DecisionSource  models.DecisionSource   `json:"decision_source,omitempty"`
	Action          models.ResolutionAction `json:"action"`
	BatchID         string                  `json:"batch_id"`
}

// EntityMergedData is the payload of entity.merged
type EntityMergedData struct {
	PrimaryID          string                          `json:"primary_id"`
	DuplicateID        string                          `json:"duplicate_id"`
	AlternateIDsAdded  []string                        `json:"alternate_ids_added,omitempty"`
	Redirected         map[models.RelationshipType]int `json:"redirected"`
	Coalesced          map[models.RelationshipType]int `json:"coalesced"`
	InternalRemoved    int                             `json:"internal_removed"`
	ReferencesRepaired int                             `json:"references_repaired"`
}

// BatchImportedData is the payload of batch.imported
type BatchImportedData struct {
	BatchID  string               `json:"batch_id"`
	Source   string               `json:"source"`
	Curator  string               `json:"curator"`
	Outcome  models.ImportOutcome `json:"outcome"`
	Stats    models.ImportStats   `json:"stats"`
	Duration int64                `json:"duration_ms"`
}

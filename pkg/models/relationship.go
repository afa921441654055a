package models

import "strings"

// RelationshipType is the label of a graph edge
type RelationshipType string

const (
	RelationshipAppearsIn      RelationshipType = "APPEARS_IN"
	RelationshipPortrayedIn    RelationshipType = "PORTRAYED_IN"
	RelationshipInteractedWith RelationshipType = "INTERACTED_WITH"
	RelationshipBasedOn        RelationshipType = "BASED_ON"
	RelationshipFictionalProxy RelationshipType = "FICTIONAL_PROXY"
	RelationshipContemporary   RelationshipType = "CONTEMPORARY"

	// Created by import provenance, never supplied in a batch.
	RelationshipCreatedBy RelationshipType = "CREATED_BY"
)

// ImportRelationshipTypes are the edge types a batch may declare
func ImportRelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelationshipAppearsIn,
		RelationshipPortrayedIn,
		RelationshipInteractedWith,
		RelationshipBasedOn,
		RelationshipFictionalProxy,
		RelationshipContemporary,
	}
}

// ParseRelationshipType accepts an import relationship type in any casing
func ParseRelationshipType(s string) (RelationshipType, bool) {
	for _, t := range ImportRelationshipTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// NodeRef identifies a relationship endpoint
type NodeRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
	// Key is the storage identity, set when the ref was read from storage.
	Key string `json:"-"`
}

// Relationship is a typed, directed edge with its own property bag
type Relationship struct {
	ID         string           `json:"id,omitempty"`
	Type       RelationshipType `json:"type"`
	From       NodeRef          `json:"from"`
	To         NodeRef          `json:"to"`
	Properties map[string]any   `json:"properties,omitempty"`
}

// Counterpart returns the endpoint that is not key and whether the edge starts at key
func (r Relationship) Counterpart(key string) (NodeRef, bool) {
	if r.From.Key == key {
		return r.To, true
	}
	return r.From, false
}

// Sentiment is the canonical portrayal sentiment
type Sentiment string

const (
	SentimentHeroic     Sentiment = "Heroic"
	SentimentVillainous Sentiment = "Villainous"
	SentimentNeutral    Sentiment = "Neutral"
	SentimentComplex    Sentiment = "Complex"
)

// Sentiments lists every canonical sentiment
func Sentiments() []Sentiment {
	return []Sentiment{SentimentHeroic, SentimentVillainous, SentimentNeutral, SentimentComplex}
}

// CrossReference describes a denormalized id attribute on another node kind
type CrossReference struct {
	Label      string     `json:"label" yaml:"label"`
	Property   string     `json:"property" yaml:"property"`
	TargetKind EntityKind `json:"target_kind" yaml:"target_kind"`
}

// DefaultCrossReferences are repaired whenever an entity of the target kind is merged
func DefaultCrossReferences() []CrossReference {
	return []CrossReference{
		{Label: string(EntityKindFictionalCharacter), Property: "media_id", TargetKind: EntityKindMediaWork},
	}
}

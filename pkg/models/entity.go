package models

import (
	"strings"
	"time"
)

// EntityKind identifies the node label an entity is stored under
type EntityKind string

const (
	EntityKindHistoricalFigure   EntityKind = "HistoricalFigure"
	EntityKindMediaWork          EntityKind = "MediaWork"
	EntityKindFictionalCharacter EntityKind = "FictionalCharacter"
)

// AuthoritativeIDProperty is the node property holding the external authority identifier
const AuthoritativeIDProperty = "wikidata_id"

// AlternateIDsProperty holds authoritative identifiers absorbed from retired duplicates
const AlternateIDsProperty = "alternate_ids"

// KindSchema maps the generic entity attributes onto the property names used for a kind
type KindSchema struct {
	Kind             EntityKind
	IDProperty       string
	NameProperty     string
	YearProperty     string
	EndYearProperty  string
	CategoryProperty string
}

var kindSchemas = map[EntityKind]KindSchema{
	EntityKindHistoricalFigure: {
		Kind:             EntityKindHistoricalFigure,
		IDProperty:       "canonical_id",
		NameProperty:     "name",
		YearProperty:     "birth_year",
		EndYearProperty:  "death_year",
		CategoryProperty: "era",
	},
	EntityKindMediaWork: {
		Kind:             EntityKindMediaWork,
		IDProperty:       "media_id",
		NameProperty:     "title",
		YearProperty:     "release_year",
		CategoryProperty: "media_type",
	},
	EntityKindFictionalCharacter: {
		Kind:             EntityKindFictionalCharacter,
		IDProperty:       "char_id",
		NameProperty:     "name",
		CategoryProperty: "role_type",
	},
}

// SchemaFor returns the property layout for a kind
func SchemaFor(kind EntityKind) (KindSchema, bool) {
	s, ok := kindSchemas[kind]
	return s, ok
}

// Kinds returns every known entity kind
func Kinds() []EntityKind {
	return []EntityKind{EntityKindHistoricalFigure, EntityKindMediaWork, EntityKindFictionalCharacter}
}

// ParseEntityKind accepts the label in any casing
func ParseEntityKind(s string) (EntityKind, bool) {
	for _, k := range Kinds() {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}

// IsValid reports whether the kind is known
func (k EntityKind) IsValid() bool {
	_, ok := kindSchemas[k]
	return ok
}

// Entity is a canonical person- or work-like node
type Entity struct {
	Kind            EntityKind     `json:"kind" yaml:"kind"`
	LocalID         string         `json:"local_id" yaml:"local_id"`
	AuthoritativeID string         `json:"authoritative_id,omitempty" yaml:"authoritative_id,omitempty"`
	Provisional     bool           `json:"provisional" yaml:"provisional"`
	Name            string         `json:"name" yaml:"name"`
	Year            *int           `json:"year,omitempty" yaml:"year,omitempty"`
	EndYear         *int           `json:"end_year,omitempty" yaml:"end_year,omitempty"`
	Category        string         `json:"category,omitempty" yaml:"category,omitempty"`
	AlternateIDs    []string       `json:"alternate_ids,omitempty" yaml:"alternate_ids,omitempty"`
	Properties      map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	CreatedAt       *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`

	// Key is the storage engine's identity for the node (element id in Neo4j).
	Key string `json:"-" yaml:"-"`
}

// Ref returns a reference to the entity usable as a relationship endpoint
func (e Entity) Ref() NodeRef {
	return NodeRef{Kind: e.Kind, ID: e.LocalID, Key: e.Key}
}

// HasAuthoritativeID reports whether id is the entity's authoritative id or one it absorbed
func (e Entity) HasAuthoritativeID(id string) bool {
	if id == "" {
		return false
	}
	if e.AuthoritativeID == id {
		return true
	}
	for _, alt := range e.AlternateIDs {
		if alt == id {
			return true
		}
	}
	return false
}

// MetadataCount counts the temporal and category attributes that are present
func (e Entity) MetadataCount() int {
	n := 0
	if e.Year != nil {
		n++
	}
	if e.EndYear != nil {
		n++
	}
	if strings.TrimSpace(e.Category) != "" {
		n++
	}
	return n
}

// NonNullPropertyCount counts every populated attribute, used for primary selection
func (e Entity) NonNullPropertyCount() int {
	n := e.MetadataCount()
	if e.AuthoritativeID != "" {
		n++
	}
	if strings.TrimSpace(e.Name) != "" {
		n++
	}
	for _, v := range e.Properties {
		if !IsEmptyValue(v) {
			n++
		}
	}
	return n
}

// IsEmptyValue reports whether a property value counts as null
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// EntitySnapshot is an entity with the graph facts the merge engine scores on
type EntitySnapshot struct {
	Entity            Entity `json:"entity"`
	RelationshipCount int    `json:"relationship_count"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

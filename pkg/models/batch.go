package models

import "strings"

// Batch is one curated import document
type Batch struct {
	Metadata      BatchMetadata       `json:"metadata" yaml:"metadata"`
	Figures       []FigureInput       `json:"figures,omitempty" yaml:"figures,omitempty" validate:"dive"`
	Records       []FigureInput       `json:"records,omitempty" yaml:"records,omitempty" validate:"dive"`
	Works         []WorkInput         `json:"works,omitempty" yaml:"works,omitempty" validate:"dive"`
	Relationships []RelationshipInput `json:"relationships,omitempty" yaml:"relationships,omitempty" validate:"dive"`
}

// BatchMetadata records who curated the batch and where it came from
type BatchMetadata struct {
	Source      string `json:"source" yaml:"source" validate:"required"`
	Curator     string `json:"curator" yaml:"curator" validate:"required"`
	Date        string `json:"date" yaml:"date" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// AllFigures returns figures followed by the generic records array
func (b *Batch) AllFigures() []FigureInput {
	out := make([]FigureInput, 0, len(b.Figures)+len(b.Records))
	out = append(out, b.Figures...)
	out = append(out, b.Records...)
	return out
}

// FigureInput is an incoming person record
type FigureInput struct {
	CanonicalID string         `json:"canonical_id,omitempty" yaml:"canonical_id,omitempty"`
	WikidataID  string         `json:"wikidata_id,omitempty" yaml:"wikidata_id,omitempty" validate:"omitempty,qid"`
	Name        string         `json:"name" yaml:"name" validate:"required"`
	BirthYear   *int           `json:"birth_year,omitempty" yaml:"birth_year,omitempty"`
	DeathYear   *int           `json:"death_year,omitempty" yaml:"death_year,omitempty"`
	Era         string         `json:"era,omitempty" yaml:"era,omitempty"`
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Historicity string         `json:"historicity,omitempty" yaml:"historicity,omitempty"`
	Properties  map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ToEntity converts the record into its canonical form without assigning ids
func (f FigureInput) ToEntity() Entity {
	props := copyProps(f.Properties)
	setIfPresent(props, "title", f.Title)
	setIfPresent(props, "description", f.Description)
	setIfPresent(props, "historicity", f.Historicity)
	return Entity{
		Kind:            EntityKindHistoricalFigure,
		LocalID:         strings.TrimSpace(f.CanonicalID),
		AuthoritativeID: strings.TrimSpace(f.WikidataID),
		Name:            strings.TrimSpace(f.Name),
		Year:            f.BirthYear,
		EndYear:         f.DeathYear,
		Category:        strings.TrimSpace(f.Era),
		Properties:      props,
	}
}

// WorkInput is an incoming creative work record
type WorkInput struct {
	MediaID     string         `json:"media_id,omitempty" yaml:"media_id,omitempty"`
	WikidataID  string         `json:"wikidata_id,omitempty" yaml:"wikidata_id,omitempty" validate:"omitempty,qid"`
	Title       string         `json:"title" yaml:"title" validate:"required"`
	ReleaseYear *int           `json:"release_year,omitempty" yaml:"release_year,omitempty"`
	MediaType   string         `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Creator     string         `json:"creator,omitempty" yaml:"creator,omitempty"`
	Publisher   string         `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Genre       string         `json:"genre,omitempty" yaml:"genre,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ToEntity converts the record into its canonical form without assigning ids
func (w WorkInput) ToEntity() Entity {
	props := copyProps(w.Properties)
	setIfPresent(props, "creator", w.Creator)
	setIfPresent(props, "publisher", w.Publisher)
	setIfPresent(props, "genre", w.Genre)
	setIfPresent(props, "description", w.Description)
	return Entity{
		Kind:            EntityKindMediaWork,
		LocalID:         strings.TrimSpace(w.MediaID),
		AuthoritativeID: strings.TrimSpace(w.WikidataID),
		Name:            strings.TrimSpace(w.Title),
		Year:            w.ReleaseYear,
		Category:        strings.TrimSpace(w.MediaType),
		Properties:      props,
	}
}

// RelationshipInput is an incoming edge declaration
type RelationshipInput struct {
	FromID     string         `json:"from_id" yaml:"from_id" validate:"required"`
	FromType   string         `json:"from_type" yaml:"from_type" validate:"required,entity_kind"`
	ToID       string         `json:"to_id" yaml:"to_id" validate:"required"`
	ToType     string         `json:"to_type" yaml:"to_type" validate:"required,entity_kind"`
	RelType    string         `json:"rel_type" yaml:"rel_type" validate:"required,rel_type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func setIfPresent(props map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		props[key] = v
	}
}

// Package identity confirms and looks up authoritative identifiers against Wikidata
package identity

import (
	"context"
	"strings"
)

// Confidence is how sure a search is about its best result
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Validation is the outcome of confirming a supplied identifier
type Validation struct {
	QID         string  `json:"qid"`
	Valid       bool    `json:"valid"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
	Similarity  float64 `json:"similarity"`
	Reason      string  `json:"reason,omitempty"`
}

// SearchQuery describes a record without an identifier
type SearchQuery struct {
	Title    string
	Creator  string
	Year     *int
	Category string
}

// SearchResult is the best candidate a search produced
type SearchResult struct {
	QID         string     `json:"qid"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
	Similarity  float64    `json:"similarity"`
	Score       float64    `json:"score"`
	Confidence  Confidence `json:"confidence"`
}

// Validator is the identity lookup the importer depends on. Failures are
// returned as *models.ExternalServiceError so callers can downgrade them to warnings.
type Validator interface {
	// ValidateID checks that qid exists and its label resembles expectedLabel
	ValidateID(ctx context.Context, qid, expectedLabel string) (*Validation, error)
	// Search returns the best reasonable match, or nil when nothing scores well enough
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)
}

var categoryKeywords = map[string][]string{
	"FILM":      {"film", "movie", "motion picture", "cinema"},
	"BOOK":      {"book", "novel", "literature", "literary work"},
	"TV_SERIES": {"television series", "tv series", "tv show", "television program"},
	"GAME":      {"video game", "game", "computer game"},
	"PLAY":      {"play", "theatrical", "drama", "stage"},
	"COMIC":     {"comic", "graphic novel", "manga"},
}

// matchesCategory reports whether a result description fits the record's media type.
// Unknown categories match everything.
func matchesCategory(category, description string) bool {
	keywords, ok := categoryKeywords[strings.ToUpper(strings.TrimSpace(category))]
	if !ok {
		return true
	}
	desc := strings.ToLower(description)
	for _, kw := range keywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func confidenceFor(score float64) Confidence {
	switch {
	case score >= 0.9:
		return ConfidenceHigh
	case score >= 0.7:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

package matching

import (
	"math"
	"strings"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/normalizers"
)

// SimilarityMode selects the name comparison algorithm
type SimilarityMode string

const (
	// SimilarityFuzzy blends an edit-distance ratio with a token-order-insensitive ratio
	SimilarityFuzzy SimilarityMode = "fuzzy"
	// SimilarityDegraded only distinguishes exact, containment and no match. Lower precision.
	SimilarityDegraded SimilarityMode = "degraded"
)

// ScorerConfig holds the weights of the similarity formula
type ScorerConfig struct {
	Mode              SimilarityMode
	LexicalWeight     float64
	TokenOrderWeight  float64
	TemporalTolerance int
	TemporalBoost     float64
	CategoryBoost     float64
}

// DefaultScorerConfig returns the standard formula: 0.7 lexical + 0.3 token order,
// +0.1 per temporal pair within five years, +0.05 for category agreement
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Mode:              SimilarityFuzzy,
		LexicalWeight:     0.7,
		TokenOrderWeight:  0.3,
		TemporalTolerance: 5,
		TemporalBoost:     0.1,
		CategoryBoost:     0.05,
	}
}

// Scorer computes deterministic, explainable similarity between two records
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a new Scorer
func NewScorer(config ScorerConfig) *Scorer {
	if config.Mode == "" {
		config.Mode = SimilarityFuzzy
	}
	return &Scorer{config: config}
}

// Features are the attributes a record is compared on
type Features struct {
	Name     string
	Temporal []*int
	Category string
}

// FeaturesOf extracts the comparable attributes of an entity
func FeaturesOf(e models.Entity) Features {
	return Features{
		Name:     e.Name,
		Temporal: []*int{e.Year, e.EndYear},
		Category: e.Category,
	}
}

// ScoreResult explains how a score was reached
type ScoreResult struct {
	Score         float64 `json:"score"`
	Lexical       float64 `json:"lexical"`
	TokenOrder    float64 `json:"token_order"`
	Base          float64 `json:"base"`
	TemporalBoost float64 `json:"temporal_boost"`
	CategoryBoost float64 `json:"category_boost"`
	Degraded      bool    `json:"degraded"`
}

// Degraded reports whether scores are produced by the lower-precision fallback
func (s *Scorer) Degraded() bool {
	return s.config.Mode == SimilarityDegraded
}

// Score compares two records. Score(a, b) == Score(b, a) for all inputs.
func (s *Scorer) Score(a, b Features) ScoreResult {
	var res ScoreResult
	if s.Degraded() {
		res.Degraded = true
		res.Base = s.Containment(a.Name, b.Name)
	} else {
		res.Lexical = s.Ratio(a.Name, b.Name)
		res.TokenOrder = s.TokenSortRatio(a.Name, b.Name)
		res.Base = s.config.LexicalWeight*res.Lexical + s.config.TokenOrderWeight*res.TokenOrder
	}

	pairs := min(len(a.Temporal), len(b.Temporal))
	for i := 0; i < pairs; i++ {
		if YearsWithin(a.Temporal[i], b.Temporal[i], s.config.TemporalTolerance) {
			res.TemporalBoost += s.config.TemporalBoost
		}
	}

	ca, cb := strings.TrimSpace(a.Category), strings.TrimSpace(b.Category)
	if ca != "" && cb != "" && strings.EqualFold(ca, cb) {
		res.CategoryBoost = s.config.CategoryBoost
	}

	res.Score = math.Min(1.0, res.Base+res.TemporalBoost+res.CategoryBoost)
	return res
}

// NameSimilarity scores two names alone with the configured mode
func (s *Scorer) NameSimilarity(a, b string) float64 {
	return s.Score(Features{Name: a}, Features{Name: b}).Score
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// Containment is the fallback comparison: 1.0 for a case-insensitive exact
// match, 0.8 when one name contains the other, 0.0 otherwise
func (s *Scorer) Containment(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0.0
	}
	if s.ExactMatch(a, b, true) == 1.0 {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	return 0.0
}

// Ratio is the insertion/deletion edit-distance similarity of the case-folded strings
func (s *Scorer) Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	return float64(total-IndelDistance(ra, rb)) / float64(total)
}

// TokenSortRatio compares the strings with their tokens sorted, ignoring word order and punctuation
func (s *Scorer) TokenSortRatio(a, b string) float64 {
	return s.Ratio(normalizers.TokenSort(a), normalizers.TokenSort(b))
}

// IndelDistance is the number of insertions and deletions turning a into b
func IndelDistance(a, b []rune) int {
	return len(a) + len(b) - 2*lcsLength(a, b)
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Create two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		row[0] = 0
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				row[j] = prevRow[j-1] + 1
			} else {
				row[j] = max(row[j-1], prevRow[j])
			}
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// YearsWithin reports whether both years are present and at most tolerance apart
func YearsWithin(a, b *int, tolerance int) bool {
	if a == nil || b == nil {
		return false
	}
	diff := *a - *b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// Package matching classifies incoming records against stored entities
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/normalizers"
)

// EntityReader is the read-only storage view the matcher needs.
// Implementations never return retired entities.
type EntityReader interface {
	FindByAuthoritativeID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)
	FindByLocalID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)
	FindByNameToken(ctx context.Context, kind models.EntityKind, token string, limit int) ([]models.Entity, error)
}

// MatcherConfig contains the classification thresholds
type MatcherConfig struct {
	HighThreshold      float64 // at or above: high confidence (default: 0.95)
	PotentialThreshold float64 // at or above: potential duplicate (default: 0.85)
	BlockingLimit      int     // max stored entities compared per record (default: 50)
	MaxCandidates      int     // ranked candidates kept on the result (default: 5)
}

// DefaultMatcherConfig returns default matcher configuration
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		HighThreshold:      0.95,
		PotentialThreshold: 0.85,
		BlockingLimit:      50,
		MaxCandidates:      5,
	}
}

// Candidate is a stored entity with its similarity to the incoming record
type Candidate struct {
	Entity models.Entity `json:"entity"`
	Score  ScoreResult   `json:"score"`
}

// MatchResult is the classification of one incoming record
type MatchResult struct {
	Tier          models.MatchTier `json:"tier"`
	Best          *Candidate       `json:"best,omitempty"`
	Candidates    []Candidate      `json:"candidates,omitempty"`
	ExactOn       string           `json:"exact_on,omitempty"`
	BlockingToken string           `json:"blocking_token,omitempty"`
	Degraded      bool             `json:"degraded"`
}

// BestScore returns the best candidate's score or zero
func (r *MatchResult) BestScore() float64 {
	if r == nil || r.Best == nil {
		return 0
	}
	return r.Best.Score.Score
}

// Matcher classifies incoming records. It never mutates storage.
type Matcher struct {
	logger ectologger.Logger
	reader EntityReader
	scorer *Scorer
	config MatcherConfig
}

// NewMatcher creates a new matcher
func NewMatcher(logger ectologger.Logger, reader EntityReader, scorer *Scorer, config MatcherConfig) *Matcher {
	if config.BlockingLimit <= 0 {
		config.BlockingLimit = DefaultMatcherConfig().BlockingLimit
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultMatcherConfig().MaxCandidates
	}
	return &Matcher{
		logger: logger,
		reader: reader,
		scorer: scorer,
		config: config,
	}
}

// Scorer returns the scorer the matcher uses
func (m *Matcher) Scorer() *Scorer {
	return m.scorer
}

// Match classifies incoming against the stored population of its kind
func (m *Matcher) Match(ctx context.Context, incoming models.Entity) (*MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.Match")
	defer span.End()

	if strings.TrimSpace(incoming.Name) == "" {
		return nil, &models.ValidationError{Field: "name", Message: "is required for matching"}
	}
	if !incoming.Kind.IsValid() {
		return nil, &models.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown entity kind %q", incoming.Kind)}
	}

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":             incoming.Kind,
		"name":             incoming.Name,
		"local_id":         incoming.LocalID,
		"authoritative_id": incoming.AuthoritativeID,
	})

	result, err := m.exactMatch(ctx, incoming)
	if err != nil {
		log.WithError(err).Error("Exact identifier lookup failed")
		return nil, err
	}
	if result == nil {
		result, err = m.fuzzyMatch(ctx, incoming)
		if err != nil {
			log.WithError(err).Error("Fuzzy candidate lookup failed")
			return nil, err
		}
	}

	metrics.MatchClassificationsTotal.WithLabelValues(string(incoming.Kind), string(result.Tier)).Inc()
	log.WithFields(map[string]any{
		"tier":  result.Tier,
		"score": result.BestScore(),
	}).Debug("Classified incoming record")

	return result, nil
}

// exactMatch returns nil when neither identifier resolves
func (m *Matcher) exactMatch(ctx context.Context, incoming models.Entity) (*MatchResult, error) {
	if incoming.AuthoritativeID != "" {
		existing, err := m.reader.FindByAuthoritativeID(ctx, incoming.Kind, incoming.AuthoritativeID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up authoritative id %s: %w", incoming.AuthoritativeID, err)
		}
		if existing != nil {
			return exactResult(*existing, "authoritative_id", m.scorer.Degraded()), nil
		}
	}

	if incoming.LocalID != "" {
		existing, err := m.reader.FindByLocalID(ctx, incoming.Kind, incoming.LocalID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up local id %s: %w", incoming.LocalID, err)
		}
		if existing != nil {
			return exactResult(*existing, "local_id", m.scorer.Degraded()), nil
		}
	}

	return nil, nil
}

func exactResult(existing models.Entity, on string, degraded bool) *MatchResult {
	best := Candidate{Entity: existing, Score: ScoreResult{Score: 1.0, Base: 1.0}}
	return &MatchResult{
		Tier:       models.MatchTierExact,
		Best:       &best,
		Candidates: []Candidate{best},
		ExactOn:    on,
		Degraded:   degraded,
	}
}

func (m *Matcher) fuzzyMatch(ctx context.Context, incoming models.Entity) (*MatchResult, error) {
	token := normalizers.BlockingToken(incoming.Name)
	result := &MatchResult{
		Tier:          models.MatchTierClear,
		BlockingToken: token,
		Degraded:      m.scorer.Degraded(),
	}
	if token == "" {
		return result, nil
	}

	block, err := m.reader.FindByNameToken(ctx, incoming.Kind, token, m.config.BlockingLimit)
	if err != nil {
		return nil, err
	}

	features := FeaturesOf(incoming)
	candidates := make([]Candidate, 0, len(block))
	for _, existing := range block {
		score := m.scorer.Score(features, FeaturesOf(existing))
		if score.Score < m.config.PotentialThreshold {
			continue
		}
		candidates = append(candidates, Candidate{Entity: existing, Score: score})
	}
	if len(candidates) == 0 {
		return result, nil
	}

	rankCandidates(candidates)
	if len(candidates) > m.config.MaxCandidates {
		candidates = candidates[:m.config.MaxCandidates]
	}

	best := candidates[0]
	result.Best = &best
	result.Candidates = candidates
	result.Tier = m.classify(best.Score.Score)
	return result, nil
}

func (m *Matcher) classify(score float64) models.MatchTier {
	switch {
	case score >= m.config.HighThreshold:
		return models.MatchTierHigh
	case score >= m.config.PotentialThreshold:
		return models.MatchTierPotential
	default:
		return models.MatchTierClear
	}
}

const scoreEpsilon = 1e-9

// rankCandidates sorts by score, then metadata completeness, then local id
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if math.Abs(a.Score.Score-b.Score.Score) > scoreEpsilon {
			return a.Score.Score > b.Score.Score
		}
		if ma, mb := a.Entity.MetadataCount(), b.Entity.MetadataCount(); ma != mb {
			return ma > mb
		}
		return a.Entity.LocalID < b.Entity.LocalID
	})
}

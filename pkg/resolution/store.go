// Package resolution makes match resolution choices durable so replays are idempotent
package resolution

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

var (
	// ErrDecisionExists is returned by Put when the pair already has a decision
	ErrDecisionExists = errors.New("resolution decision already exists")
	// ErrDecisionNotFound is returned by Delete when the pair has no decision
	ErrDecisionNotFound = errors.New("resolution decision not found")
	// ErrNoDecision means no provider could decide; nothing is stored and the pair is asked again next run
	ErrNoDecision = errors.New("no resolution decision available")
)

// Store persists decisions by pair key. Entries are only removed by Delete or Clear.
type Store interface {
	// Get returns nil, nil when the key has no decision
	Get(ctx context.Context, key string) (*models.ResolutionDecision, error)
	// Put fails with ErrDecisionExists rather than overwrite
	Put(ctx context.Context, decision models.ResolutionDecision) error
	// Replace stores decision whether or not the key exists
	Replace(ctx context.Context, decision models.ResolutionDecision) error
	Delete(ctx context.Context, key string) error
	// List returns every decision ordered by key
	List(ctx context.Context) ([]models.ResolutionDecision, error)
	// Clear removes everything and returns how many decisions were removed
	Clear(ctx context.Context) (int, error)
}

// GroupByAction buckets decisions by their action, preserving order
func GroupByAction(decisions []models.ResolutionDecision) map[models.ResolutionAction][]models.ResolutionDecision {
	out := make(map[models.ResolutionAction][]models.ResolutionDecision)
	for _, d := range decisions {
		out[d.Action] = append(out[d.Action], d)
	}
	return out
}

// SplitKey returns the incoming identity and existing local id of a pair key
func SplitKey(key string) (incoming, existing string) {
	i := strings.LastIndex(key, "|")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

func sortByKey(decisions []models.ResolutionDecision) {
	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Key < decisions[j].Key })
}

func validate(d models.ResolutionDecision) error {
	if strings.TrimSpace(d.Key) == "" {
		return &models.ValidationError{Field: "key", Message: "is required"}
	}
	if _, ok := models.ParseResolutionAction(string(d.Action)); !ok {
		return &models.ValidationError{Field: "action", Message: "must be one of use_existing, create_new, skip"}
	}
	return nil
}

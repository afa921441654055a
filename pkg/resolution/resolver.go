package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// ResolverConfig controls automatic resolution
type ResolverConfig struct {
	// AutoResolve lets exact and high confidence matches link without asking
	AutoResolve bool
}

// Resolver turns a match into a durable decision. Stored decisions always win,
// so replaying a batch reproduces the same choices.
type Resolver struct {
	logger   ectologger.Logger
	store    Store
	provider DecisionProvider
	config   ResolverConfig
	now      func() time.Time
}

// NewResolver creates a resolver. provider may be nil, in which case only
// stored and automatic decisions are available.
func NewResolver(logger ectologger.Logger, store Store, provider DecisionProvider, config ResolverConfig) *Resolver {
	return &Resolver{
		logger:   logger,
		store:    store,
		provider: provider,
		config:   config,
		now:      time.Now,
	}
}

// Store returns the decision store
func (r *Resolver) Store() Store {
	return r.store
}

// Resolve returns the decision for req, asking the provider only when nothing is stored.
// ErrNoDecision is returned, and nothing stored, when no decision can be made.
func (r *Resolver) Resolve(ctx context.Context, req models.DecisionRequest) (*models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.Resolve")
	defer span.End()

	if req.Key == "" {
		req.Key = models.PairKey(req.Incoming, req.Existing.LocalID)
	}
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"pair_key": req.Key,
		"tier":     req.Tier,
		"score":    req.Score,
	})

	stored, err := r.store.Get(ctx, req.Key)
	if err != nil {
		log.WithError(err).Error("Failed to read stored resolution")
		return nil, fmt.Errorf("failed to read resolution: %w", err)
	}
	if stored != nil {
		metrics.ResolutionDecisionsTotal.WithLabelValues(string(stored.Action), "stored").Inc()
		log.WithField("action", stored.Action).Debug("Reusing stored resolution")
		return stored, nil
	}

	answer, err := r.decide(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNoDecision) {
			log.Info("No resolution decision available, record will be asked again next run")
		}
		return nil, err
	}

	incoming, _ := SplitKey(req.Key)
	decision := models.ResolutionDecision{
		Key:             req.Key,
		Action:          answer.Action,
		Tier:            req.Tier,
		Score:           req.Score,
		IncomingID:      incoming,
		ExistingLocalID: req.Existing.LocalID,
		Source:          answer.Source,
		Note:            answer.Note,
		DecidedAt:       r.now().UTC(),
	}
	if err := r.store.Put(ctx, decision); err != nil {
		if !errors.Is(err, ErrDecisionExists) {
			log.WithError(err).Error("Failed to store resolution")
			return nil, fmt.Errorf("failed to store resolution: %w", err)
		}
		// another writer got there first; theirs is authoritative
		winner, getErr := r.store.Get(ctx, req.Key)
		if getErr != nil {
			return nil, fmt.Errorf("failed to read concurrent resolution: %w", getErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("failed to read concurrent resolution: %w", err)
		}
		decision = *winner
	}

	metrics.ResolutionDecisionsTotal.WithLabelValues(string(decision.Action), string(decision.Source)).Inc()
	log.WithFields(map[string]any{
		"action": decision.Action,
		"source": decision.Source,
	}).Info("Recorded resolution decision")
	return &decision, nil
}

func (r *Resolver) decide(ctx context.Context, req models.DecisionRequest) (Answer, error) {
	if r.config.AutoResolve && req.Tier.AutoResolvable() {
		return Answer{
			Action: models.ActionUseExisting,
			Source: models.DecisionSourceAuto,
			Note:   fmt.Sprintf("auto-resolved %s match", req.Tier),
		}, nil
	}
	if r.provider == nil {
		return Answer{}, ErrNoDecision
	}
	answer, err := r.provider.Decide(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	if _, ok := models.ParseResolutionAction(string(answer.Action)); !ok {
		return Answer{}, fmt.Errorf("provider returned unknown action %q", answer.Action)
	}
	return answer, nil
}

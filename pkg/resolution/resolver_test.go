package resolution

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

type countingProvider struct {
	answer Answer
	err    error
	calls  int
}

func (p *countingProvider) Decide(context.Context, models.DecisionRequest) (Answer, error) {
	p.calls++
	return p.answer, p.err
}

func request(tier models.MatchTier) models.DecisionRequest {
	return models.DecisionRequest{
		Incoming: models.Entity{Kind: models.EntityKindHistoricalFigure, Name: "Alexander the Great", AuthoritativeID: "Q8409"},
		Existing: models.Entity{Kind: models.EntityKindHistoricalFigure, Name: "Alexander III of Macedon", LocalID: "alexander_iii"},
		Tier:     tier,
		Score:    0.9,
	}
}

func TestResolverStoresAndReplaysDecision(t *testing.T) {
	ctx := context.Background()
	provider := &countingProvider{answer: Answer{Action: models.ActionCreateNew, Source: models.DecisionSourcePrompt}}
	r := NewResolver(testLogger(), newFileStore(t), provider, ResolverConfig{})

	first, err := r.Resolve(ctx, request(models.MatchTierPotential))
	require.NoError(t, err)
	assert.Equal(t, "Q8409|alexander_iii", first.Key)
	assert.Equal(t, models.ActionCreateNew, first.Action)

	second, err := r.Resolve(ctx, request(models.MatchTierPotential))
	require.NoError(t, err)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, 1, provider.calls)
}

func TestResolverAutoResolvesOnlyExactAndHigh(t *testing.T) {
	tests := []struct {
		tier     models.MatchTier
		auto     bool
		wantAuto bool
	}{
		{models.MatchTierExact, true, true},
		{models.MatchTierHigh, true, true},
		{models.MatchTierPotential, true, false},
		{models.MatchTierHigh, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			provider := &countingProvider{err: ErrNoDecision}
			r := NewResolver(testLogger(), newFileStore(t), provider, ResolverConfig{AutoResolve: tt.auto})

			got, err := r.Resolve(context.Background(), request(tt.tier))
			if tt.wantAuto {
				require.NoError(t, err)
				assert.Equal(t, models.ActionUseExisting, got.Action)
				assert.Equal(t, models.DecisionSourceAuto, got.Source)
				assert.Zero(t, provider.calls)
				return
			}
			assert.ErrorIs(t, err, ErrNoDecision)
			assert.Equal(t, 1, provider.calls)
		})
	}
}

func TestResolverNeverInventsDecision(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	r := NewResolver(testLogger(), store, nil, ResolverConfig{})

	_, err := r.Resolve(ctx, request(models.MatchTierPotential))
	assert.ErrorIs(t, err, ErrNoDecision)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResolverPropagatesProviderError(t *testing.T) {
	boom := errors.New("terminal gone")
	r := NewResolver(testLogger(), newFileStore(t), &countingProvider{err: boom}, ResolverConfig{})
	_, err := r.Resolve(context.Background(), request(models.MatchTierPotential))
	assert.ErrorIs(t, err, boom)
}

func TestChainProvider(t *testing.T) {
	answers, err := NewAnswerFileProvider(map[string]string{"Q8409|alexander_iii": "SKIP"})
	require.NoError(t, err)
	chain := ChainProvider{
		answers,
		PolicyProvider{Actions: map[models.MatchTier]models.ResolutionAction{models.MatchTierPotential: models.ActionCreateNew}},
	}

	req := request(models.MatchTierPotential)
	req.Key = "Q8409|alexander_iii"
	got, err := chain.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSkip, got.Action)
	assert.Equal(t, models.DecisionSourceAnswerFile, got.Source)

	req.Key = "other|x"
	got, err = chain.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateNew, got.Action)

	req.Tier = models.MatchTierClear
	_, err = chain.Decide(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoDecision)
}

func TestAnswerFileRejectsUnknownAction(t *testing.T) {
	_, err := NewAnswerFileProvider(map[string]string{"a|b": "maybe"})
	assert.True(t, models.IsValidationError(err))
}

type scriptedLines struct {
	lines []string
}

func (s *scriptedLines) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func TestPromptProvider(t *testing.T) {
	var out strings.Builder
	p := NewPromptProvider(&scriptedLines{lines: []string{"what", "2"}}, &out)

	got, err := p.Decide(context.Background(), request(models.MatchTierPotential))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateNew, got.Action)
	assert.Equal(t, models.DecisionSourcePrompt, got.Source)
	assert.Contains(t, out.String(), "Alexander III of Macedon")
	assert.Contains(t, out.String(), "Please answer")
}

func TestPromptProviderQuitMeansNoDecision(t *testing.T) {
	var out strings.Builder
	p := NewPromptProvider(&scriptedLines{lines: []string{"q"}}, &out)
	_, err := p.Decide(context.Background(), request(models.MatchTierPotential))
	assert.ErrorIs(t, err, ErrNoDecision)
}

func TestPromptProviderAcceptsSkipSpellings(t *testing.T) {
	for _, answer := range []string{"3", "s", "skip", " SKIP "} {
		t.Run(answer, func(t *testing.T) {
			var out strings.Builder
			p := NewPromptProvider(&scriptedLines{lines: []string{answer}}, &out)
			got, err := p.Decide(context.Background(), request(models.MatchTierPotential))
			require.NoError(t, err)
			assert.Equal(t, models.ActionSkip, got.Action)
		})
	}
}

// racingStore loses every Put to a concurrent writer and then fails the re-read
type racingStore struct {
	Store
	gets   int
	getErr error
}

func (s *racingStore) Get(context.Context, string) (*models.ResolutionDecision, error) {
	s.gets++
	if s.gets == 1 {
		return nil, nil
	}
	return nil, s.getErr
}

func (s *racingStore) Put(context.Context, models.ResolutionDecision) error {
	return ErrDecisionExists
}

func TestResolverReportsFailedRereadAfterLostRace(t *testing.T) {
	readErr := errors.New("connection reset")
	store := &racingStore{getErr: readErr}
	provider := &countingProvider{answer: Answer{Action: models.ActionSkip, Source: models.DecisionSourcePolicy}}
	r := NewResolver(testLogger(), store, provider, ResolverConfig{})

	_, err := r.Resolve(context.Background(), request(models.MatchTierPotential))
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, ErrDecisionExists)
}

package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/graph/inmem"
	"github.com/Ramsey-B/fictotum/pkg/identity"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

var fixedNow = time.UnixMilli(1767225600000).UTC()

type harness struct {
	store    *inmem.Store
	coord    *Coordinator
	history  *FileHistory
	decision resolution.Store
}

func newHarness(t *testing.T, auto bool, provider resolution.DecisionProvider, ident identity.Validator) *harness {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	dir := t.TempDir()

	store := inmem.New()
	decisions := resolution.NewFileStore(filepath.Join(dir, "resolutions.json"))
	matcher := matching.NewMatcher(logger, store, matching.NewScorer(matching.DefaultScorerConfig()), matching.DefaultMatcherConfig())
	resolver := resolution.NewResolver(logger, decisions, provider, resolution.ResolverConfig{AutoResolve: auto})
	history := NewFileHistory(filepath.Join(dir, "history.jsonl"))

	coord := NewCoordinator(logger, store, matcher, resolver, ident, history, nil)
	coord.now = func() time.Time { return fixedNow }
	return &harness{store: store, coord: coord, history: history, decision: decisions}
}

func meta() models.BatchMetadata {
	return models.BatchMetadata{Source: "curation", Curator: "tester", Date: "2026-01-01"}
}

func romeBatch() *models.Batch {
	return &models.Batch{
		Metadata: meta(),
		Figures: []models.FigureInput{
			{CanonicalID: "julius_caesar", WikidataID: "Q1048", Name: "Julius Caesar", BirthYear: models.IntPtr(-100), DeathYear: models.IntPtr(-44), Era: "Roman Republic"},
		},
		Works: []models.WorkInput{
			{MediaID: "rome-2005", WikidataID: "Q165399", Title: "Rome", ReleaseYear: models.IntPtr(2005), MediaType: "TV_SERIES", Creator: "Bruno Heller"},
		},
		Relationships: []models.RelationshipInput{
			{FromID: "julius_caesar", FromType: "HistoricalFigure", ToID: "Q165399", ToType: "MediaWork", RelType: "APPEARS_IN",
				Properties: map[string]any{"sentiment": "complex"}},
		},
	}
}

func executeOpts() Options {
	opts := DefaultOptions()
	opts.Execute = true
	return opts
}

func TestDryRunWritesNothing(t *testing.T) {
	h := newHarness(t, false, nil, nil)

	res, err := h.coord.Import(context.Background(), romeBatch(), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.DryRun())
	assert.Equal(t, models.ImportOutcomeSuccess, res.Run.Outcome)
	assert.Equal(t, 1, res.Stats.Figures.Created)
	assert.Equal(t, 1, res.Stats.Works.Created)
	assert.Equal(t, 1, res.Stats.RelationshipsCreated)
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
	assert.Equal(t, 0, h.store.RelationshipCount())
}

func TestExecuteWritesEntitiesRelationshipsAndProvenance(t *testing.T) {
	h := newHarness(t, false, nil, nil)

	res, err := h.coord.Import(context.Background(), romeBatch(), executeOpts())
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	assert.Equal(t, models.ImportOutcomeSuccess, res.Run.Outcome)
	assert.Equal(t, "batch_import_20260101_000000", res.Run.BatchID)
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindMediaWork)))
	assert.Equal(t, 1, h.store.NodeCount(models.AgentLabel))
	// APPEARS_IN plus one CREATED_BY per entity
	assert.Equal(t, 3, h.store.RelationshipCount())
	require.Len(t, res.Relationships, 1)
	assert.True(t, res.Relationships[0].Written)
	assert.Equal(t, "rome-2005", res.Relationships[0].To.ID)

	caesar, err := h.store.FindByLocalID(context.Background(), models.EntityKindHistoricalFigure, "julius_caesar")
	require.NoError(t, err)
	require.NotNil(t, caesar)
	assert.False(t, caesar.Provisional)

	var appears *models.Relationship
	for _, rel := range h.store.Relationships(caesar.Key) {
		if rel.Type == models.RelationshipAppearsIn {
			appears = &rel
		}
	}
	require.NotNil(t, appears)
	assert.Equal(t, "Complex", appears.Properties["sentiment"])
	assert.Equal(t, res.Run.BatchID, appears.Properties[models.PropertyBatchID])
}

func TestReimportIsIdempotent(t *testing.T) {
	h := newHarness(t, true, nil, nil)
	ctx := context.Background()

	_, err := h.coord.Import(ctx, romeBatch(), executeOpts())
	require.NoError(t, err)
	nodes, rels := h.store.NodeCount(string(models.EntityKindHistoricalFigure)), h.store.RelationshipCount()

	res, err := h.coord.Import(ctx, romeBatch(), executeOpts())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Figures.Created)
	assert.Equal(t, 1, res.Stats.Figures.Linked)
	assert.Equal(t, 1, res.Stats.Works.Linked)
	assert.Equal(t, 0, res.Stats.RelationshipsCreated)
	assert.Equal(t, nodes, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
	assert.Equal(t, rels, h.store.RelationshipCount())
}

func TestExactLocalIDMatchLinksToExisting(t *testing.T) {
	h := newHarness(t, true, nil, nil)
	h.store.AddEntity(models.Entity{Kind: models.EntityKindHistoricalFigure, LocalID: "julius_caesar", Name: "Julius Caesar"})

	batch := &models.Batch{
		Metadata: meta(),
		Figures:  []models.FigureInput{{CanonicalID: "julius_caesar", Name: "Julius Caesar"}},
	}
	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, models.MatchTierExact, res.Records[0].Tier)
	assert.Equal(t, models.ActionUseExisting, res.Records[0].Action)
	assert.Equal(t, "julius_caesar", res.Records[0].LocalID)
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
}

func TestMatchWithoutDecisionIsSkipped(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	h.store.AddEntity(models.Entity{Kind: models.EntityKindHistoricalFigure, LocalID: "julius_caesar", Name: "Julius Caesar"})

	batch := &models.Batch{
		Metadata: meta(),
		Figures:  []models.FigureInput{{CanonicalID: "julius_caesar", Name: "Julius Caesar"}},
	}
	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.NoError(t, err)

	assert.Equal(t, models.ActionSkip, res.Records[0].Action)
	assert.Equal(t, 1, res.Stats.Figures.Skipped)
	assert.NotEmpty(t, res.Warnings)

	stored, err := h.decision.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateNewAgainstAuthoritativeMatchDropsTheSharedID(t *testing.T) {
	answers, err := resolution.NewAnswerFileProvider(map[string]string{"Q1048|julius_caesar": "create_new"})
	require.NoError(t, err)
	h := newHarness(t, false, answers, nil)
	h.store.AddEntity(models.Entity{Kind: models.EntityKindHistoricalFigure, LocalID: "julius_caesar", AuthoritativeID: "Q1048", Name: "Julius Caesar"})

	batch := &models.Batch{
		Metadata: meta(),
		Figures:  []models.FigureInput{{CanonicalID: "caesar_the_younger", WikidataID: "Q1048", Name: "Julius Caesar"}},
	}
	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.NoError(t, err)

	assert.Equal(t, models.ActionCreateNew, res.Records[0].Action)
	created, err := h.store.FindByLocalID(context.Background(), models.EntityKindHistoricalFigure, "caesar_the_younger")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Empty(t, created.AuthoritativeID)
	assert.True(t, created.Provisional)

	owner, err := h.store.FindByAuthoritativeID(context.Background(), models.EntityKindHistoricalFigure, "Q1048")
	require.NoError(t, err)
	assert.Equal(t, "julius_caesar", owner.LocalID)
}

func TestDuplicateRecordsInOneBatchCreateOnce(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	batch := &models.Batch{
		Metadata: meta(),
		Works: []models.WorkInput{
			{WikidataID: "Q165399", Title: "Rome"},
			{WikidataID: "Q165399", Title: "Rome (TV series)"},
		},
	}
	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Works.Created)
	assert.Equal(t, 1, res.Stats.Works.Linked)
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindMediaWork)))
	assert.Equal(t, res.Records[0].LocalID, res.Records[1].LocalID)
}

func TestProvisionalIDs(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	batch := &models.Batch{
		Metadata: meta(),
		Works: []models.WorkInput{
			{Title: "I, Claudius"},
			{Title: "I Claudius"},
		},
	}
	res, err := h.coord.Import(context.Background(), batch, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "media-i-claudius-1767225600000", res.Records[0].LocalID)
	assert.Equal(t, "media-i-claudius-1767225600000-2", res.Records[1].LocalID)
	assert.Equal(t, "PROV:marcus_aurelius-1767225600000", h.coord.provisionalID(newPlan(), models.EntityKindHistoricalFigure, "Marcus Aurelius"))
}

func TestFailedSubBatchIsRolledBackAndLaterOnesContinue(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	h.store.FailOn = func(op string, args ...any) error {
		if op != "UpsertEntity" {
			return nil
		}
		if e, ok := args[0].(models.Entity); ok && e.LocalID == "livia" {
			return errors.New("constraint violation")
		}
		return nil
	}

	batch := &models.Batch{
		Metadata: meta(),
		Figures: []models.FigureInput{
			{CanonicalID: "livia", Name: "Livia Drusilla"},
			{CanonicalID: "augustus", Name: "Augustus"},
		},
		Relationships: []models.RelationshipInput{
			{FromID: "livia", FromType: "HistoricalFigure", ToID: "augustus", ToType: "HistoricalFigure", RelType: "INTERACTED_WITH"},
		},
	}
	opts := executeOpts()
	opts.BatchSize = 1

	res, err := h.coord.Import(context.Background(), batch, opts)
	require.NoError(t, err)

	assert.Equal(t, models.ImportOutcomePartial, res.Run.Outcome)
	assert.True(t, res.Failed())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, models.ErrorKindTransaction, res.Errors[0].Kind)
	var txErr *models.TransactionError
	assert.True(t, errors.As(res.Errors[0].Err(), &txErr))

	assert.Equal(t, 1, res.Stats.Figures.Created)
	assert.Equal(t, 1, res.Stats.Figures.Skipped)
	assert.Equal(t, 1, res.Stats.RelationshipsSkipped)
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))

	augustus, err := h.store.FindByLocalID(context.Background(), models.EntityKindHistoricalFigure, "augustus")
	require.NoError(t, err)
	assert.NotNil(t, augustus)
}

func TestReplayedCreateNewDecisionReusesCreatedEntity(t *testing.T) {
	policy := resolution.PolicyProvider{Actions: map[models.MatchTier]models.ResolutionAction{
		models.MatchTierHigh: models.ActionCreateNew,
	}}
	h := newHarness(t, false, policy, nil)
	h.store.AddEntity(models.Entity{Kind: models.EntityKindMediaWork, LocalID: "wp-1869", Name: "War and Peace", Year: models.IntPtr(1869), Category: "BOOK"})
	ctx := context.Background()
	batch := func() *models.Batch {
		return &models.Batch{Metadata: meta(), Works: []models.WorkInput{{Title: "War and Peace"}}}
	}

	first, err := h.coord.Import(ctx, batch(), executeOpts())
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, models.ActionCreateNew, first.Records[0].Action)
	assert.Equal(t, 1, first.Stats.Works.Created)
	createdID := first.Records[0].LocalID
	assert.Equal(t, 2, h.store.NodeCount(string(models.EntityKindMediaWork)))

	decision, err := h.decision.Get(ctx, "War and Peace|wp-1869")
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, createdID, decision.CreatedLocalID)

	h.coord.now = func() time.Time { return fixedNow.Add(time.Hour) }

	dry, err := h.coord.Import(ctx, batch(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, dry.Stats.Works.Created)
	assert.Equal(t, 1, dry.Stats.Works.Linked)

	second, err := h.coord.Import(ctx, batch(), executeOpts())
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateNew, second.Records[0].Action)
	assert.Equal(t, createdID, second.Records[0].LocalID)
	assert.Equal(t, 0, second.Stats.Works.Created)
	assert.Equal(t, 1, second.Stats.Works.Linked)
	assert.Equal(t, 2, h.store.NodeCount(string(models.EntityKindMediaWork)))
}

func TestRolledBackCreationAlsoDropsRecordsLinkedToIt(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	h.store.FailOn = func(op string, args ...any) error {
		if e, ok := args[0].(models.Entity); ok && op == "UpsertEntity" && e.LocalID == "rome-a" {
			return errors.New("constraint violation")
		}
		return nil
	}

	batch := &models.Batch{
		Metadata: meta(),
		Figures:  []models.FigureInput{{CanonicalID: "augustus", Name: "Augustus"}},
		Works: []models.WorkInput{
			{MediaID: "rome-a", WikidataID: "Q165399", Title: "Rome"},
			{MediaID: "rome-b", WikidataID: "Q165399", Title: "Rome (TV series)"},
		},
		Relationships: []models.RelationshipInput{
			{FromID: "augustus", FromType: "HistoricalFigure", ToID: "rome-b", ToType: "MediaWork", RelType: "APPEARS_IN"},
		},
	}
	opts := executeOpts()
	opts.BatchSize = 1

	res, err := h.coord.Import(context.Background(), batch, opts)
	require.NoError(t, err)

	assert.Equal(t, models.ImportOutcomePartial, res.Run.Outcome)
	assert.Equal(t, 0, res.Stats.Works.Linked)
	assert.Equal(t, 2, res.Stats.Works.Skipped)
	assert.Contains(t, res.Records[2].Reason, "rome-a was rolled back")

	require.Len(t, res.Relationships, 1)
	assert.False(t, res.Relationships[0].Written)
	assert.Contains(t, res.Relationships[0].Reason, "was not imported")
	assert.Equal(t, 1, res.Stats.RelationshipsSkipped)
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindMediaWork)))
}

func TestValidationFailureWritesNothing(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	batch := romeBatch()
	batch.Figures = append(batch.Figures, models.FigureInput{CanonicalID: "nameless"})

	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Equal(t, models.ImportOutcomeValidationFailed, res.Run.Outcome)
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindMediaWork)))
}

func TestFiltersSelectRecordKinds(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	opts := executeOpts()
	opts.FiguresOnly = true

	res, err := h.coord.Import(context.Background(), romeBatch(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Figures.Created)
	assert.Equal(t, 0, res.Stats.Works.Created)
	assert.Equal(t, 1, res.Stats.RelationshipsSkipped)
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindMediaWork)))
}

type fakeIdentity struct {
	validateErr error
	search      *identity.SearchResult
}

func (f *fakeIdentity) ValidateID(_ context.Context, qid, label string) (*identity.Validation, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return &identity.Validation{QID: qid, Valid: true, Label: label, Similarity: 1}, nil
}

func (f *fakeIdentity) Search(context.Context, identity.SearchQuery) (*identity.SearchResult, error) {
	return f.search, nil
}

func TestIdentitySearchAdoptsHighConfidenceResult(t *testing.T) {
	ident := &fakeIdentity{search: &identity.SearchResult{QID: "Q1140578", Label: "I, Claudius", Confidence: identity.ConfidenceHigh, Score: 1.2}}
	h := newHarness(t, false, nil, ident)
	batch := &models.Batch{
		Metadata: meta(),
		Works:    []models.WorkInput{{Title: "I, Claudius", Creator: "Jack Pulman"}},
	}
	res, err := h.coord.Import(context.Background(), batch, executeOpts())
	require.NoError(t, err)

	work, err := h.store.FindByAuthoritativeID(context.Background(), models.EntityKindMediaWork, "Q1140578")
	require.NoError(t, err)
	require.NotNil(t, work)
	assert.False(t, work.Provisional)
	assert.Equal(t, work.LocalID, res.Records[0].LocalID)
}

func TestIdentityOutageIsAWarning(t *testing.T) {
	ident := &fakeIdentity{validateErr: &models.ExternalServiceError{Service: "wikidata", StatusCode: 503, Err: errors.New("unavailable")}}
	h := newHarness(t, false, nil, ident)

	res, err := h.coord.Import(context.Background(), romeBatch(), executeOpts())
	require.NoError(t, err)
	assert.Equal(t, models.ImportOutcomeSuccess, res.Run.Outcome)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, 1, res.Stats.Figures.Created)
}

func TestHistoryIsRecorded(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	ctx := context.Background()

	_, err := h.coord.Import(ctx, romeBatch(), DefaultOptions())
	require.NoError(t, err)
	_, err = h.coord.Import(ctx, romeBatch(), executeOpts())
	require.NoError(t, err)

	f, err := os.Open(h.history.path)
	require.NoError(t, err)
	defer f.Close()

	var runs []models.ImportRun
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var run models.ImportRun
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &run))
		runs = append(runs, run)
	}
	require.Len(t, runs, 2)
	assert.True(t, runs[0].DryRun)
	assert.False(t, runs[1].DryRun)
	assert.Equal(t, 1, runs[1].Stats.Figures.Created)
}

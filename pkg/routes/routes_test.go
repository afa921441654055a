package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/graph/inmem"
	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
	"github.com/Ramsey-B/fictotum/pkg/routes/entity"
	"github.com/Ramsey-B/fictotum/pkg/routes/health"
	"github.com/Ramsey-B/fictotum/pkg/routes/merges"
	"github.com/Ramsey-B/fictotum/pkg/routes/validation"
)

type api struct {
	t         *testing.T
	e         *echo.Echo
	store     *inmem.Store
	decisions resolution.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	dir := t.TempDir()

	store := inmem.New()
	decisions := resolution.NewFileStore(filepath.Join(dir, "resolutions.json"))
	matcher := matching.NewMatcher(logger, store, matching.NewScorer(matching.DefaultScorerConfig()), matching.DefaultMatcherConfig())
	resolver := resolution.NewResolver(logger, decisions, nil, resolution.ResolverConfig{})
	coord := importer.NewCoordinator(logger, store, matcher, resolver, nil, nil, nil)
	engine := merging.NewEngine(logger, store, nil, nil, merging.Config{})

	checker := health.NewChecker("test", map[string]health.PingFunc{"graph": store.Ping})
	checker.SetReady(true)

	e := New(Dependencies{
		Logger:         logger,
		Health:         checker,
		Graph:          store,
		Matcher:        matcher,
		Coordinator:    coord,
		Engine:         engine,
		Decisions:      decisions,
		ImportDefaults: importer.DefaultOptions(),
		MergeDefaults:  merging.Options{Retire: models.RetireModeDelete, Tiebreak: models.TiebreakLowestAuthoritativeID},
	})
	return &api{t: t, e: e, store: store, decisions: decisions}
}

func (a *api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func romeBatch() *models.Batch {
	return &models.Batch{
		Metadata: models.BatchMetadata{Source: "curation", Curator: "tester", Date: "2026-01-01"},
		Figures: []models.FigureInput{
			{CanonicalID: "julius_caesar", WikidataID: "Q1048", Name: "Julius Caesar", BirthYear: models.IntPtr(-100)},
		},
		Works: []models.WorkInput{
			{MediaID: "rome-2005", WikidataID: "Q165399", Title: "Rome", ReleaseYear: models.IntPtr(2005), MediaType: "TV_SERIES"},
		},
		Relationships: []models.RelationshipInput{
			{FromID: "julius_caesar", FromType: "HistoricalFigure", ToID: "rome-2005", ToType: "MediaWork", RelType: "APPEARS_IN"},
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health/ready", nil).Code)

	rec := a.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMatch(t *testing.T) {
	a := newAPI(t)
	a.store.AddEntity(models.Entity{Kind: models.EntityKindHistoricalFigure, LocalID: "julius_caesar", AuthoritativeID: "Q1048", Name: "Julius Caesar"})

	rec := a.do(http.MethodPost, "/api/v1/match", map[string]any{"kind": "historicalfigure", "name": "Gaius Julius Caesar", "wikidata_id": "Q1048"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[matching.MatchResult](t, rec)
	assert.Equal(t, models.MatchTierExact, result.Tier)
	require.NotNil(t, result.Best)
	assert.Equal(t, "julius_caesar", result.Best.Entity.LocalID)

	t.Run("rejects unknown kind", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/api/v1/match", map[string]any{"kind": "Place", "name": "Rome"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("requires a name", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/api/v1/match", map[string]any{"kind": "MediaWork"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImportIsDryRunUnlessConfirmed(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/api/v1/imports", romeBatch())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dry := decode[importer.RunResult](t, rec)
	assert.True(t, dry.Run.DryRun)
	assert.Equal(t, 1, dry.Stats.Works.Created)
	assert.Equal(t, 0, a.store.NodeCount(string(models.EntityKindMediaWork)))

	rec = a.do(http.MethodPost, "/api/v1/imports?execute=true", romeBatch())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, a.store.NodeCount(string(models.EntityKindMediaWork)))

	rec = a.do(http.MethodPost, "/api/v1/imports?execute=true&confirm=CONFIRM", romeBatch())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	live := decode[importer.RunResult](t, rec)
	assert.False(t, live.Run.DryRun)
	assert.Equal(t, models.ImportOutcomeSuccess, live.Run.Outcome)
	assert.Equal(t, 1, a.store.NodeCount(string(models.EntityKindMediaWork)))
	assert.Equal(t, 1, a.store.NodeCount(string(models.EntityKindHistoricalFigure)))
}

func TestImportRejectsInvalidBatch(t *testing.T) {
	a := newAPI(t)
	batch := romeBatch()
	batch.Metadata.Curator = ""
	batch.Works[0].Title = ""

	rec := a.do(http.MethodPost, "/api/v1/imports", batch)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	out := httptest.NewRecorder()
	a.e.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestImportCheck(t *testing.T) {
	a := newAPI(t)
	a.store.AddEntity(models.Entity{Kind: models.EntityKindMediaWork, LocalID: "rome-2005", AuthoritativeID: "Q165399", Name: "Rome"})

	rec := a.do(http.MethodPost, "/api/v1/imports/check", romeBatch())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[importer.CheckResult](t, rec)
	require.Len(t, result.Entries, 2)
	assert.Len(t, result.Duplicates(), 1)
}

func seedDuplicates(s *inmem.Store) {
	for _, w := range []models.Entity{
		{Kind: models.EntityKindMediaWork, LocalID: "rome-2005", AuthoritativeID: "Q165399", Name: "Rome", Year: models.IntPtr(2005), Category: "TV_SERIES", Properties: map[string]any{}},
		{Kind: models.EntityKindMediaWork, LocalID: "rome-copy", Name: "rome", Year: models.IntPtr(2005), Category: "TV_SERIES", Properties: map[string]any{"creator": "Bruno Heller"}},
	} {
		s.AddEntity(w)
	}
}

func TestDuplicatesAndMerges(t *testing.T) {
	a := newAPI(t)
	seedDuplicates(a.store)

	rec := a.do(http.MethodGet, "/api/v1/duplicates?kind=MediaWork", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dups := decode[merges.DuplicatesResponse](t, rec)
	require.Len(t, dups.Groups, 1)
	assert.Len(t, dups.Groups[0].Members, 2)

	rec = a.do(http.MethodPost, "/api/v1/merges", map[string]any{"kind": "MediaWork"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dry := decode[merging.Result](t, rec)
	require.Len(t, dry.Records, 1)
	assert.Equal(t, models.MergeStatusDryRun, dry.Records[0].Status)
	assert.Equal(t, 2, a.store.NodeCount(string(models.EntityKindMediaWork)))

	rec = a.do(http.MethodPost, "/api/v1/merges", map[string]any{"kind": "MediaWork", "execute": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/merges", map[string]any{"kind": "MediaWork", "tiebreak": "coin_flip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/merges", map[string]any{"kind": "MediaWork", "execute": true, "confirm": "CONFIRM"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	live := decode[merging.Result](t, rec)
	require.Len(t, live.Records, 1)
	assert.Equal(t, models.MergeStatusMerged, live.Records[0].Status)
	assert.Equal(t, "rome-2005", live.Records[0].PrimaryID)
	assert.Equal(t, 1, a.store.NodeCount(string(models.EntityKindMediaWork)))
}

func TestResolutions(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	decided := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, d := range []models.ResolutionDecision{
		{Key: "Q1048|julius_caesar", Action: models.ActionUseExisting, Source: models.DecisionSourcePrompt, DecidedAt: decided},
		{Key: "Marcus Antonius|mark_antony", Action: models.ActionCreateNew, Source: models.DecisionSourcePrompt, DecidedAt: decided},
	} {
		require.NoError(t, a.decisions.Put(ctx, d))
	}

	rec := a.do(http.MethodGet, "/api/v1/resolutions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total    int            `json:"total"`
		ByAction map[string]int `json:"by_action"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.ByAction[string(models.ActionCreateNew)])

	rec = a.do(http.MethodGet, "/api/v1/resolutions?action=use_existing", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	escaped := "/api/v1/resolutions/" + url.PathEscape("Marcus Antonius|mark_antony")
	rec = a.do(http.MethodGet, escaped, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ActionCreateNew, decode[models.ResolutionDecision](t, rec).Action)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, escaped, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, escaped, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, escaped, nil).Code)

	rec = a.do(http.MethodDelete, "/api/v1/resolutions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"removed": 1}, decode[map[string]int](t, rec))
}

func TestEntityLookup(t *testing.T) {
	a := newAPI(t)
	caesar := a.store.AddEntity(models.Entity{Kind: models.EntityKindHistoricalFigure, LocalID: "julius_caesar", AuthoritativeID: "Q1048", Name: "Julius Caesar"})
	rome := a.store.AddEntity(models.Entity{Kind: models.EntityKindMediaWork, LocalID: "rome-2005", Name: "Rome"})
	a.store.AddRelationship(caesar, rome, models.RelationshipAppearsIn, nil)

	rec := a.do(http.MethodGet, "/api/v1/entities/HistoricalFigure/Q1048", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "julius_caesar", decode[entity.Response](t, rec).Entity.LocalID)

	rec = a.do(http.MethodGet, "/api/v1/entities/MediaWork/rome-2005/relationships?direction=incoming", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[entity.Response](t, rec).Relationships, 1)

	rec = a.do(http.MethodGet, "/api/v1/entities/MediaWork/rome-2005/relationships?direction=outgoing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[entity.Response](t, rec).Relationships)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/entities/MediaWork/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/entities/Place/rome", nil).Code)
}

func TestValidateBatch(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/api/v1/validate", romeBatch())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[validation.ValidateResponse](t, rec).Valid)

	batch := romeBatch()
	batch.Figures[0].WikidataID = "not-a-qid"
	rec = a.do(http.MethodPost, "/api/v1/validate", batch)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[validation.ValidateResponse](t, rec)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Errors)
}

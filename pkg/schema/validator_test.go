package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func validBatch() *models.Batch {
	return &models.Batch{
		Metadata: models.BatchMetadata{Source: "Roman pilot", Curator: "archivist", Date: "2026-01-02"},
		Figures: []models.FigureInput{{
			CanonicalID: "julius_caesar",
			WikidataID:  "Q1048",
			Name:        "Julius Caesar",
			BirthYear:   models.IntPtr(-100),
			DeathYear:   models.IntPtr(-44),
		}},
		Works: []models.WorkInput{{MediaID: "rome-2005", WikidataID: "Q165399", Title: "Rome"}},
		Relationships: []models.RelationshipInput{{
			FromID: "julius_caesar", FromType: "HistoricalFigure",
			ToID: "rome-2005", ToType: "MediaWork",
			RelType:    "APPEARS_IN",
			Properties: map[string]any{"sentiment": "complex"},
		}},
	}
}

func fields(errs models.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateBatch_Valid(t *testing.T) {
	b := validBatch()
	report := NewValidator().ValidateBatch(b)
	require.NoError(t, report.Err())
	assert.Equal(t, "Complex", b.Relationships[0].Properties["sentiment"])
}

func TestValidateBatch_ReportsEveryViolation(t *testing.T) {
	b := validBatch()
	b.Metadata.Curator = ""
	b.Figures = append(b.Figures,
		models.FigureInput{Name: "Nameless id"},
		models.FigureInput{CanonicalID: "x", WikidataID: "1048", Name: "Bad QID"},
		models.FigureInput{CanonicalID: "y", Name: "Backwards", BirthYear: models.IntPtr(10), DeathYear: models.IntPtr(10)},
		models.FigureInput{CanonicalID: "z"},
	)
	b.Relationships[0].RelType = "LOVES"
	b.Relationships[0].ToType = "Planet"

	report := NewValidator().ValidateBatch(b)
	require.Error(t, report.Err())
	assert.True(t, models.IsValidationError(report.Err()))

	got := fields(report.Errors)
	assert.ElementsMatch(t, []string{
		"metadata.curator",
		"figures[1].canonical_id",
		"figures[2].wikidata_id",
		"figures[3].death_year",
		"figures[4].name",
		"relationships[0].to_type",
		"relationships[0].rel_type",
	}, got)
}

func TestValidateBatch_QIDMessage(t *testing.T) {
	b := validBatch()
	b.Works[0].WikidataID = "q12"
	report := NewValidator().ValidateBatch(b)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "works[0].wikidata_id", report.Errors[0].Field)
	assert.Contains(t, report.Errors[0].Message, "must be Q followed by digits")
}

func TestValidateBatch_EmptyBatch(t *testing.T) {
	b := &models.Batch{Metadata: models.BatchMetadata{Source: "s", Curator: "c", Date: "2026-01-01"}}
	report := NewValidator().ValidateBatch(b)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "at least")
}

func TestValidateBatch_WarnsOnMissingWorkQID(t *testing.T) {
	b := validBatch()
	b.Works[0].WikidataID = ""
	report := NewValidator().ValidateBatch(b)
	require.NoError(t, report.Err())
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "works[0]")
}

func TestValidateBatch_Sentiment(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    any
		wantErr bool
	}{
		{name: "lower case", value: "heroic", want: "Heroic"},
		{name: "upper case", value: "VILLAINOUS", want: "Villainous"},
		{name: "padded", value: "  neutral ", want: "Neutral"},
		{name: "list", value: []any{"heroic", "Complex"}, want: []any{"Heroic", "Complex"}},
		{name: "unknown", value: "ambivalent", wantErr: true},
		{name: "not a string", value: int64(3), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBatch()
			b.Relationships[0].Properties = map[string]any{"sentiment": tt.value}
			report := NewValidator().ValidateBatch(b)
			if tt.wantErr {
				require.Len(t, report.Errors, 1)
				assert.Equal(t, "relationships[0].properties.sentiment", report.Errors[0].Field)
				return
			}
			require.NoError(t, report.Err())
			assert.Equal(t, tt.want, b.Relationships[0].Properties["sentiment"])
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("json with numeric properties", func(t *testing.T) {
		doc := `{"metadata":{"source":"s","curator":"c","date":"2026-01-01"},
			"figures":[{"canonical_id":"a","name":"A","properties":{"rank":3,"weight":1.5}}]}`
		b, err := Decode(strings.NewReader(doc), FormatJSON)
		require.NoError(t, err)
		report := NewValidator().ValidateBatch(b)
		require.NoError(t, report.Err())
		assert.Equal(t, int64(3), b.Figures[0].Properties["rank"])
		assert.Equal(t, 1.5, b.Figures[0].Properties["weight"])
	})

	t.Run("yaml", func(t *testing.T) {
		doc := "metadata: {source: s, curator: c, date: '2026-01-01'}\nworks:\n  - title: Rome\n    release_year: 2005\n"
		b, err := Decode(strings.NewReader(doc), FormatYAML)
		require.NoError(t, err)
		require.Len(t, b.Works, 1)
		assert.Equal(t, 2005, *b.Works[0].ReleaseYear)
	})

	t.Run("wrong type is a validation error", func(t *testing.T) {
		doc := `{"metadata":{"source":"s","curator":"c","date":"d"},"figures":[{"name":"A","birth_year":"ancient"}]}`
		_, err := Decode(strings.NewReader(doc), FormatJSON)
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("malformed is fatal", func(t *testing.T) {
		_, err := Decode(strings.NewReader(`{"metadata":`), FormatJSON)
		require.Error(t, err)
		assert.False(t, models.IsValidationError(err))
	})

	t.Run("format by extension", func(t *testing.T) {
		assert.Equal(t, FormatYAML, FormatFor("batch.YML"))
		assert.Equal(t, FormatJSON, FormatFor("batch.json"))
	})
}

func TestCheckProperties(t *testing.T) {
	tests := []struct {
		name      string
		props     map[string]any
		wantField string
	}{
		{name: "nested object rejected", props: map[string]any{"meta": map[string]any{"a": 1}}, wantField: "p.meta"},
		{name: "list of lists rejected", props: map[string]any{"grid": []any{[]any{1}}}, wantField: "p.grid"},
		{name: "wrong type", props: map[string]any{"is_protagonist": "yes"}, wantField: "p.is_protagonist"},
		{name: "non integer year", props: map[string]any{"start_year": 12.5}, wantField: "p.start_year"},
		{name: "whole float accepted as integer", props: map[string]any{"start_year": float64(12)}},
		{name: "unknown scalar accepted", props: map[string]any{"anything": "goes"}},
		{name: "null ignored", props: map[string]any{"role": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := CheckProperties("p", tt.props, RelationshipProperties)
			if tt.wantField == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantField, errs[0].Field)
		})
	}
}

func TestCheckProperties_FormatsAndEnums(t *testing.T) {
	errs := CheckProperties("works[0].properties", map[string]any{
		"published_on": "Jan 2005",
		"url":          "not a url",
	}, WorkProperties)
	assert.Len(t, errs, 2)

	errs = CheckProperties("figures[0].properties", map[string]any{"historicity": "mythic"}, FigureProperties)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "must be one of")

	assert.Empty(t, CheckProperties("figures[0].properties", map[string]any{"historicity": "legendary"}, FigureProperties))
}

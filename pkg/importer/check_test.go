package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func TestCheckClassifiesWithoutWriting(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	h.store.AddEntity(models.Entity{
		Kind:            models.EntityKindHistoricalFigure,
		LocalID:         "julius_caesar",
		AuthoritativeID: "Q1048",
		Name:            "Julius Caesar",
	})

	res, err := h.coord.Check(context.Background(), romeBatch())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	figure := res.Entries[0]
	assert.Equal(t, models.EntityKindHistoricalFigure, figure.Kind)
	assert.Equal(t, models.MatchTierExact, figure.Tier)
	assert.Equal(t, "julius_caesar", figure.MatchedID)

	assert.Equal(t, models.MatchTierClear, res.Entries[1].Tier)
	assert.Len(t, res.Duplicates(), 1)
	assert.Equal(t, 1, h.store.NodeCount(string(models.EntityKindHistoricalFigure)))
	assert.Equal(t, 0, h.store.NodeCount(string(models.EntityKindMediaWork)))
}

func TestCheckReturnsValidationErrors(t *testing.T) {
	h := newHarness(t, false, nil, nil)
	batch := romeBatch()
	batch.Figures[0].Name = ""

	res, err := h.coord.Check(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.NotEmpty(t, res.Errors)
	assert.Empty(t, res.Entries)
}

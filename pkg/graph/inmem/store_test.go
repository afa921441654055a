package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

func caesar() models.Entity {
	return models.Entity{
		Kind:            models.EntityKindHistoricalFigure,
		LocalID:         "julius_caesar",
		AuthoritativeID: "Q1048",
		Name:            "Julius Caesar",
		Year:            models.IntPtr(-100),
		EndYear:         models.IntPtr(-44),
		Category:        "Roman Republic",
	}
}

func TestReadersRoundTripEntity(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := s.AddEntity(caesar())

	byLocal, err := s.FindByLocalID(ctx, models.EntityKindHistoricalFigure, "julius_caesar")
	require.NoError(t, err)
	require.NotNil(t, byLocal)
	assert.Equal(t, key, byLocal.Key)
	assert.Equal(t, -100, *byLocal.Year)
	assert.Equal(t, "Roman Republic", byLocal.Category)

	byAuth, err := s.FindByAuthoritativeID(ctx, models.EntityKindHistoricalFigure, "Q1048")
	require.NoError(t, err)
	require.NotNil(t, byAuth)

	none, err := s.FindByAuthoritativeID(ctx, models.EntityKindMediaWork, "Q1048")
	require.NoError(t, err)
	assert.Nil(t, none)

	block, err := s.FindByNameToken(ctx, models.EntityKindHistoricalFigure, "caesar", 50)
	require.NoError(t, err)
	assert.Len(t, block, 1)
}

func TestFindByAuthoritativeIDMatchesAlternates(t *testing.T) {
	e := caesar()
	e.AlternateIDs = []string{"Q99999"}
	s := New()
	s.AddEntity(e)

	found, err := s.FindByAuthoritativeID(context.Background(), models.EntityKindHistoricalFigure, "Q99999")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "julius_caesar", found.LocalID)
}

func TestExecuteWriteRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := s.AddEntity(caesar())
	b := s.AddEntity(models.Entity{Kind: models.EntityKindMediaWork, LocalID: "rome-2005", Name: "Rome"})
	s.AddRelationship(a, b, models.RelationshipAppearsIn, nil)

	boom := errors.New("boom")
	err := s.ExecuteWrite(ctx, func(tx graph.Tx) error {
		require.NoError(t, tx.SetProperties(ctx, a, map[string]any{"title": "Dictator"}))
		require.NoError(t, tx.Retire(ctx, b, models.RetireModeDelete, "", time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, props, ok := s.Node(a)
	require.True(t, ok)
	assert.NotContains(t, props, "title")
	_, _, ok = s.Node(b)
	assert.True(t, ok)
	assert.Equal(t, 1, s.RelationshipCount())
}

func TestFailOnAbortsTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailOn = func(op string, _ ...any) error {
		if op == "MergeRelationship" {
			return errors.New("constraint violation")
		}
		return nil
	}

	err := s.ExecuteWrite(ctx, func(tx graph.Tx) error {
		if _, err := tx.UpsertEntity(ctx, caesar(), graph.Provenance{At: time.Now()}); err != nil {
			return err
		}
		_, err := tx.MergeRelationship(ctx, models.Relationship{}, graph.Provenance{})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.NodeCount(string(models.EntityKindHistoricalFigure)))
}

func TestTombstoneHidesNode(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := s.AddEntity(caesar())

	require.NoError(t, s.ExecuteWrite(ctx, func(tx graph.Tx) error {
		return tx.Retire(ctx, key, models.RetireModeTombstone, "caesar", time.Now())
	}))

	found, err := s.FindByLocalID(ctx, models.EntityKindHistoricalFigure, "julius_caesar")
	require.NoError(t, err)
	assert.Nil(t, found)

	labels, props, ok := s.Node(key)
	require.True(t, ok)
	assert.Contains(t, labels, models.RetiredLabel)
	assert.Equal(t, "caesar", props[models.PropertyMergedInto])

	list, err := s.ListEntities(ctx, models.EntityKindHistoricalFigure)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpsertAndMergeRelationshipAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	prov := graph.Provenance{BatchID: "batch_import_20260101_000000", Source: "test", At: time.Now()}
	work := models.Entity{Kind: models.EntityKindMediaWork, LocalID: "rome-2005", Name: "Rome"}
	rel := models.Relationship{
		Type: models.RelationshipAppearsIn,
		From: models.NodeRef{Kind: models.EntityKindHistoricalFigure, ID: "julius_caesar"},
		To:   models.NodeRef{Kind: models.EntityKindMediaWork, ID: "rome-2005"},
	}

	for i, want := range []bool{true, false} {
		err := s.ExecuteWrite(ctx, func(tx graph.Tx) error {
			created, err := tx.UpsertEntity(ctx, caesar(), prov)
			require.NoError(t, err)
			assert.Equal(t, want, created, "pass %d", i)
			_, err = tx.UpsertEntity(ctx, work, prov)
			require.NoError(t, err)
			created, err = tx.MergeRelationship(ctx, rel, prov)
			require.NoError(t, err)
			assert.Equal(t, want, created, "pass %d", i)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.RelationshipCount())
}

func TestMergeRelationshipMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.ExecuteWrite(ctx, func(tx graph.Tx) error {
		_, err := tx.MergeRelationship(ctx, models.Relationship{
			Type: models.RelationshipAppearsIn,
			From: models.NodeRef{Kind: models.EntityKindHistoricalFigure, ID: "ghost"},
			To:   models.NodeRef{Kind: models.EntityKindMediaWork, ID: "nowhere"},
		}, graph.Provenance{})
		return err
	})
	assert.ErrorIs(t, err, graph.ErrEndpointNotFound)
}

func TestReadTransactionRejectsMutation(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := s.AddEntity(caesar())
	err := s.ExecuteRead(ctx, func(tx graph.Tx) error {
		return tx.SetProperties(ctx, key, map[string]any{"x": 1})
	})
	assert.ErrorIs(t, err, graph.ErrReadOnly)
}

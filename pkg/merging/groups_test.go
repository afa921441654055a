package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func snapshot(id, aid string, rels int) models.EntitySnapshot {
	return models.EntitySnapshot{Entity: work(id, aid, "The Odyssey"), RelationshipCount: rels}
}

func TestDetectGroupsSplitsByDiscriminators(t *testing.T) {
	a := snapshot("odyssey-a", "Q1", 0)
	b := snapshot("odyssey-b", "Q2", 0)
	b.Entity.Name = "  the  ODYSSEY "
	film := snapshot("odyssey-film", "Q3", 0)
	film.Entity.Category = "FILM"
	lone := snapshot("iliad", "Q4", 0)
	lone.Entity.Name = "The Iliad"

	groups, manual := DetectGroups(models.EntityKindMediaWork, []models.EntitySnapshot{a, b, film, lone})
	assert.Empty(t, manual)
	require.Len(t, groups, 1)
	assert.Equal(t, "the odyssey|1869|book", groups[0].Key)
	assert.Len(t, groups[0].Members, 2)
}

func TestDetectGroupsRoutesMissingDiscriminatorToManualReview(t *testing.T) {
	a := snapshot("odyssey-a", "Q1", 0)
	b := snapshot("odyssey-b", "Q2", 0)
	c := snapshot("odyssey-c", "Q3", 0)
	c.Entity.Category = ""

	groups, manual := DetectGroups(models.EntityKindMediaWork, []models.EntitySnapshot{a, b, c})
	assert.Empty(t, groups)
	require.Len(t, manual, 1)
	assert.Len(t, manual[0].Members, 3)
	assert.Contains(t, manual[0].Reason, "odyssey-c")
}

func TestDetectGroupsCharactersNeedOnlyCategory(t *testing.T) {
	mk := func(id string) models.EntitySnapshot {
		return models.EntitySnapshot{Entity: models.Entity{
			Kind: models.EntityKindFictionalCharacter, LocalID: id, Name: "Sherlock Holmes", Category: "protagonist",
		}}
	}
	groups, manual := DetectGroups(models.EntityKindFictionalCharacter, []models.EntitySnapshot{mk("char-a"), mk("char-b")})
	assert.Empty(t, manual)
	assert.Len(t, groups, 1)
}

func TestRankMembers(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(1, 0, 0)

	withDates := func() []models.EntitySnapshot {
		a := snapshot("b-work", "Q200", 2)
		a.Entity.CreatedAt = &early
		b := snapshot("a-work", "Q35", 2)
		b.Entity.CreatedAt = &late
		c := snapshot("c-work", "", 2)
		return []models.EntitySnapshot{a, c, b}
	}

	tests := []struct {
		name   string
		policy models.TiebreakPolicy
		want   []string
	}{
		{"lowest authoritative id", models.TiebreakLowestAuthoritativeID, []string{"a-work", "b-work", "c-work"}},
		{"lowest local id", models.TiebreakLowestLocalID, []string{"a-work", "b-work", "c-work"}},
		{"earliest created", models.TiebreakEarliestCreated, []string{"b-work", "a-work", "c-work"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := RankMembers(withDates(), tt.policy)
			var got []string
			for _, r := range ranked {
				got = append(got, r.Entity.LocalID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("authoritative number beats local id order", func(t *testing.T) {
		ranked := RankMembers([]models.EntitySnapshot{snapshot("a", "Q900", 1), snapshot("z", "Q12", 1)}, models.TiebreakLowestAuthoritativeID)
		assert.Equal(t, "z", ranked[0].Entity.LocalID)
	})

	t.Run("relationships beat everything", func(t *testing.T) {
		ranked := RankMembers([]models.EntitySnapshot{snapshot("a", "Q1", 1), snapshot("z", "Q99", 5)}, models.TiebreakLowestAuthoritativeID)
		assert.Equal(t, "z", ranked[0].Entity.LocalID)
	})

	t.Run("populated properties break relationship ties", func(t *testing.T) {
		rich := snapshot("z", "Q99", 1)
		rich.Entity.Properties["creator"] = "Homer"
		ranked := RankMembers([]models.EntitySnapshot{snapshot("a", "Q1", 1), rich}, models.TiebreakLowestAuthoritativeID)
		assert.Equal(t, "z", ranked[0].Entity.LocalID)
	})
}

func TestParsePolicies(t *testing.T) {
	p, err := ParseTiebreakPolicy("")
	require.NoError(t, err)
	assert.Equal(t, models.TiebreakLowestAuthoritativeID, p)

	p, err = ParseTiebreakPolicy("Earliest_Created")
	require.NoError(t, err)
	assert.Equal(t, models.TiebreakEarliestCreated, p)

	_, err = ParseTiebreakPolicy("coin_flip")
	assert.True(t, models.IsValidationError(err))

	m, err := ParseRetireMode("tombstone")
	require.NoError(t, err)
	assert.Equal(t, models.RetireModeTombstone, m)

	_, err = ParseRetireMode("shred")
	assert.Error(t, err)
}

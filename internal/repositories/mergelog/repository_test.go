package mergelog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

func TestBuildAppend(t *testing.T) {
	rec := models.MergeRecord{
		ID:          "m1",
		RunID:       "run-1",
		Kind:        models.EntityKindMediaWork,
		PrimaryID:   "rome-2005",
		DuplicateID: "rome-2005-b",
		Redirected:  map[models.RelationshipType]int{models.RelationshipAppearsIn: 3},
		Status:      models.MergeStatusMerged,
		State:       models.MergeStateLogged,
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	second := rec
	second.ID = "m2"

	query, args, err := buildAppend([]models.MergeRecord{rec, second})
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO merge_log")
	assert.Contains(t, query, "ON CONFLICT DO NOTHING")
	require.Len(t, args, 2*len(columns))

	var d details
	require.NoError(t, json.Unmarshal(args[12].(json.RawMessage), &d))
	assert.Equal(t, 3, d.Redirected[models.RelationshipAppearsIn])
}

func TestRowToModel(t *testing.T) {
	r := row{
		MergeRecord: models.MergeRecord{ID: "m1"},
		Details: database.JSONB[details]{Data: details{
			Coalesced:         map[models.RelationshipType]int{models.RelationshipPortrayedIn: 1},
			AlternateIDsAdded: []string{"Q2"},
		}},
	}
	got := r.toModel()
	assert.Equal(t, 1, got.Coalesced[models.RelationshipPortrayedIn])
	assert.Equal(t, []string{"Q2"}, got.AlternateIDsAdded)
}

package resolution

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func TestBuildInsert(t *testing.T) {
	d := models.ResolutionDecision{
		Key:             "Q1048|julius_caesar",
		Action:          models.ActionUseExisting,
		Tier:            models.MatchTierHigh,
		Score:           0.97,
		IncomingID:      "Q1048",
		ExistingLocalID: "julius_caesar",
		Source:          models.DecisionSourceAuto,
		DecidedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("put does nothing on conflict", func(t *testing.T) {
		query, args := buildInsert(d, false)
		assert.True(t, strings.HasPrefix(query, "INSERT INTO resolution_decisions"))
		assert.Contains(t, query, "ON CONFLICT DO NOTHING")
		assert.Len(t, args, len(columns))
		assert.Equal(t, "Q1048|julius_caesar", args[0])
	})

	t.Run("replace updates every column but the key", func(t *testing.T) {
		query, _ := buildInsert(d, true)
		assert.Contains(t, query, "ON CONFLICT (pair_key) DO UPDATE")
		assert.Contains(t, query, "action = EXCLUDED.action")
		assert.Contains(t, query, "decided_at = EXCLUDED.decided_at")
		assert.NotContains(t, query, "pair_key = EXCLUDED.pair_key")
	})
}

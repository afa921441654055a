package graph

import (
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func TestUpsertEntityCypherReportsOnlyItsOwnCreation(t *testing.T) {
	cypher := upsertEntityCypher(models.EntityKindMediaWork)

	assert.Contains(t, cypher, "MERGE (n:MediaWork {"+idProperty(models.EntityKindMediaWork)+": $id})")
	assert.Contains(t, cypher, "n."+createdMarker+" = true")
	assert.Contains(t, cypher, "REMOVE n."+createdMarker)
	assert.NotContains(t, cypher, "created_at = $now AS created")

	onCreate := cypher[strings.Index(cypher, "ON CREATE"):strings.Index(cypher, "ON MATCH")]
	assert.Contains(t, onCreate, createdMarker, "marker must only be set when the node is new")
}

func TestMergeRelationshipCypherReportsOnlyItsOwnCreation(t *testing.T) {
	cypher := mergeRelationshipCypher(models.Relationship{
		Type: models.RelationshipAppearsIn,
		From: models.NodeRef{Kind: models.EntityKindHistoricalFigure, ID: "julius_caesar"},
		To:   models.NodeRef{Kind: models.EntityKindMediaWork, ID: "rome-2005"},
	})

	assert.Contains(t, cypher, "MERGE (a)-[r:APPEARS_IN]->(b)")
	assert.Contains(t, cypher, "r."+createdMarker+" = true")
	assert.Contains(t, cypher, "REMOVE r."+createdMarker)
	assert.NotContains(t, cypher, "created_at = $now AS created")
}

func TestRecordBool(t *testing.T) {
	rec := &neo4j.Record{Keys: []string{"created"}, Values: []any{true}}
	assert.True(t, recordBool(rec, "created"))
	assert.False(t, recordBool(rec, "missing"))
	assert.False(t, recordBool(&neo4j.Record{Keys: []string{"created"}, Values: []any{nil}}, "created"))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "MediaWork", sanitizeLabel("Media Work"))
	assert.Equal(t, "MediaWorkDETACHDELETEn", sanitizeLabel("MediaWork`) DETACH DELETE n //"))
	assert.Equal(t, "Entity", sanitizeLabel("`;"))
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/kafka"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

type recordingPublisher struct {
	events []*kafka.Event
	err    error
}

func (p *recordingPublisher) PublishEvents(_ context.Context, events []*kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func newTestEmitter() (*Emitter, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewEmitter(pub, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})), pub
}

func TestEmitEntityCreated(t *testing.T) {
	e, pub := newTestEmitter()
	err := e.EmitEntityCreated(context.Background(), "run-1", "batch_import_20260101_000000", []models.Entity{
		{Kind: models.EntityKindHistoricalFigure, LocalID: "PROV:livia-1", Name: "Livia"},
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	ev := pub.events[0]
	assert.Equal(t, string(EventTypeEntityCreated), ev.EventType)
	assert.Equal(t, "HistoricalFigure:PROV:livia-1", ev.Key)
	assert.Equal(t, "run-1", ev.RunID)

	var data EntityCreatedData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.True(t, data.Provisional)
	assert.Equal(t, "Livia", data.Name)
}

func TestEmitEntityMergedSkipsUnmergedRecords(t *testing.T) {
	e, pub := newTestEmitter()
	err := e.EmitEntityMerged(context.Background(), []models.MergeRecord{
		{Kind: models.EntityKindMediaWork, PrimaryID: "a", DuplicateID: "b", Status: models.MergeStatusMerged},
		{Kind: models.EntityKindMediaWork, PrimaryID: "a", DuplicateID: "c", Status: models.MergeStatusDryRun},
		{Kind: models.EntityKindMediaWork, PrimaryID: "a", DuplicateID: "d", Status: models.MergeStatusFailed},
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "MediaWork:a", pub.events[0].Key)
}

func TestNilEmitterDropsEvents(t *testing.T) {
	var e *Emitter
	assert.NoError(t, e.EmitBatchImported(context.Background(), models.ImportRun{}))
	assert.NoError(t, e.EmitEntityMerged(context.Background(), nil))
}

func TestPublisherFailureIsWrapped(t *testing.T) {
	e, pub := newTestEmitter()
	pub.err = errors.New("broker down")
	err := e.EmitBatchImported(context.Background(), models.ImportRun{BatchID: "batch_import_20260101_000000"})
	assert.ErrorIs(t, err, pub.err)
}

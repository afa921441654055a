// Package events handles event emission for entity lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/kafka"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher delivers event envelopes; *kafka.Producer satisfies it
type Publisher interface {
	PublishEvents(ctx context.Context, events []*kafka.Event) error
}

// Emitter builds lifecycle events and hands them to a publisher.
// A nil *Emitter is valid and drops every event.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EntityKey is the partition key for events about one entity
func EntityKey(kind models.EntityKind, localID string) string {
	return string(kind) + ":" + localID
}

// EmitEntityCreated emits entity.created for every entity an import wrote
func (e *Emitter) EmitEntityCreated(ctx context.Context, runID, batchID string, entities []models.Entity) error {
	if e == nil || len(entities) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityCreated")
	defer span.End()

	out := make([]*kafka.Event, 0, len(entities))
	for _, entity := range entities {
		ev, err := newEvent(EventTypeEntityCreated, EntityKey(entity.Kind, entity.LocalID), entity.Kind, runID, EntityCreatedData{
			LocalID:         entity.LocalID,
			AuthoritativeID: entity.AuthoritativeID,
			Provisional:     entity.AuthoritativeID == "",
			Name:            entity.Name,
			BatchID:         batchID,
		})
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	return e.publish(ctx, EventTypeEntityCreated, out)
}

// EmitEntityLinked emits entity.linked for records resolved onto existing entities
func (e *Emitter) EmitEntityLinked(ctx context.Context, runID string, kind models.EntityKind, links []EntityLinkedData) error {
	if e == nil || len(links) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityLinked")
	defer span.End()

	out := make([]*kafka.Event, 0, len(links))
	for _, link := range links {
		ev, err := newEvent(EventTypeEntityLinked, EntityKey(kind, link.ExistingLocalID), kind, runID, link)
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	return e.publish(ctx, EventTypeEntityLinked, out)
}

// EmitEntityMerged emits entity.merged for every consolidated duplicate
func (e *Emitter) EmitEntityMerged(ctx context.Context, records []models.MergeRecord) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	out := make([]*kafka.Event, 0, len(records))
	for _, r := range records {
		if r.Status != models.MergeStatusMerged {
			continue
		}
		ev, err := newEvent(EventTypeEntityMerged, EntityKey(r.Kind, r.PrimaryID), r.Kind, r.RunID, EntityMergedData{
			PrimaryID:          r.PrimaryID,
			DuplicateID:        r.DuplicateID,
			AlternateIDsAdded:  r.AlternateIDsAdded,
			Redirected:         r.Redirected,
			Coalesced:          r.Coalesced,
			InternalRemoved:    r.InternalRemoved,
			ReferencesRepaired: r.ReferencesRepaired,
		})
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil
	}
	return e.publish(ctx, EventTypeEntityMerged, out)
}

// EmitBatchImported emits batch.imported once a run has finished
func (e *Emitter) EmitBatchImported(ctx context.Context, run models.ImportRun) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchImported")
	defer span.End()

	ev, err := newEvent(EventTypeBatchImported, run.BatchID, "", run.ID, BatchImportedData{
		BatchID:  run.BatchID,
		Source:   run.Source,
		Curator:  run.Curator,
		Outcome:  run.Outcome,
		Stats:    run.Stats,
		Duration: run.DurationMS,
	})
	if err != nil {
		return err
	}
	return e.publish(ctx, EventTypeBatchImported, []*kafka.Event{ev})
}

func (e *Emitter) publish(ctx context.Context, eventType EventType, out []*kafka.Event) error {
	if err := e.publisher.PublishEvents(ctx, out); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Errorf("Failed to emit %s events", eventType)
		return fmt.Errorf("failed to emit %s events: %w", eventType, err)
	}
	return nil
}

func newEvent(eventType EventType, key string, kind models.EntityKind, runID string, data any) (*kafka.Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &kafka.Event{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		Key:           key,
		EntityKind:    string(kind),
		RunID:         runID,
		CorrelationID: uuid.New().String(),
		Data:          raw,
	}, nil
}

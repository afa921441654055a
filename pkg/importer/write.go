package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// chunk splits n items into [start, end) ranges of at most size
func chunk(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// writeEntities upserts planned creations one sub-batch per transaction.
// A failed sub-batch is rolled back and its records are dropped from the plan.
func (c *Coordinator) writeEntities(ctx context.Context, r *run) {
	creations := r.plan.creations()
	agent := models.NodeRef{Kind: models.AgentKind, ID: r.opts.Agent}

	for _, span := range chunk(len(creations), r.opts.BatchSize) {
		sub := creations[span[0]:span[1]]
		var created []bool

		err := c.store.ExecuteWrite(ctx, func(tx graph.Tx) error {
			created = created[:0]
			if err := tx.EnsureAgent(ctx, r.opts.Agent, r.prov); err != nil {
				return fmt.Errorf("failed to ensure agent: %w", err)
			}
			for _, rec := range sub {
				isNew, err := tx.UpsertEntity(ctx, rec.entity, r.prov)
				if err != nil {
					return fmt.Errorf("failed to upsert %s %s: %w", rec.entity.Kind, rec.entity.LocalID, err)
				}
				created = append(created, isNew)
				if !isNew {
					continue
				}
				_, err = tx.MergeRelationship(ctx, models.Relationship{
					Type: models.RelationshipCreatedBy,
					From: models.NodeRef{Kind: rec.entity.Kind, ID: rec.entity.LocalID},
					To:   agent,
				}, r.prov)
				if err != nil {
					return fmt.Errorf("failed to link %s to agent: %w", rec.entity.LocalID, err)
				}
			}
			return nil
		})

		unit := fmt.Sprintf("entities[%d:%d]", span[0], span[1])
		if err != nil {
			metrics.ImportSubBatchFailuresTotal.WithLabelValues("entities").Inc()
			c.logger.WithContext(ctx).WithError(err).WithField("unit", unit).Error("Entity sub-batch rolled back")
			r.collector.AddError(unit, &models.TransactionError{Operation: "import entities", Unit: unit, Err: err})
			for _, rec := range sub {
				rec.outcome.Reason = fmt.Sprintf("write rolled back with %s", unit)
				r.plan.rollBack(rec, "its write transaction was rolled back")
				r.result.Stats.For(rec.entity.Kind).Skipped++
			}
			for _, rec := range r.plan.dependents() {
				rec.outcome.Reason = fmt.Sprintf("%s was rolled back with %s", rec.linkedTo.entity.LocalID, unit)
				r.plan.rollBack(rec, "the record it resolved onto was rolled back")
				stats := r.result.Stats.For(rec.entity.Kind)
				stats.Linked--
				stats.Skipped++
			}
			continue
		}

		for i, rec := range sub {
			stats := r.result.Stats.For(rec.entity.Kind)
			c.rememberCreated(ctx, r, rec)
			if created[i] {
				stats.Created++
				r.created = append(r.created, rec.entity)
				continue
			}
			stats.Linked++
			if rec.outcome.Reason == "" {
				rec.outcome.Reason = "already stored under this local id"
			}
		}
	}
}

// rememberCreated stores the written local id on a create_new decision so replays
// link to the same entity instead of creating another
func (c *Coordinator) rememberCreated(ctx context.Context, r *run, rec *plannedRecord) {
	if rec.decision == nil || rec.decision.CreatedLocalID == rec.entity.LocalID {
		return
	}
	updated := *rec.decision
	updated.CreatedLocalID = rec.entity.LocalID
	if err := c.resolver.Store().Replace(ctx, updated); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("pair_key", updated.Key).Warn("Failed to record created entity on decision")
		r.collector.Warnf("%s: could not record %s on decision %s: %v",
			recordScope(rec.entity.Kind, rec.outcome.Index), updated.CreatedLocalID, updated.Key, err)
		return
	}
	rec.decision = &updated
}

// resolvedRelationship is a declared relationship with stored endpoints
type resolvedRelationship struct {
	index int // into RunResult.Relationships
	rel   models.Relationship
}

// planRelationships remaps endpoints through the plan and storage.
// Relationships with an endpoint that will not exist become warnings.
func (c *Coordinator) planRelationships(ctx context.Context, r *run) []resolvedRelationship {
	var out []resolvedRelationship
	for i, in := range r.batch.Relationships {
		relType, _ := models.ParseRelationshipType(in.RelType)
		oc := RelationshipOutcome{Index: i, Type: relType}
		scope := fmt.Sprintf("relationships[%d]", i)

		from, fromReason := c.resolveEndpoint(ctx, r, in.FromType, in.FromID)
		to, toReason := c.resolveEndpoint(ctx, r, in.ToType, in.ToID)
		oc.From, oc.To = from, to

		reason := fromReason
		if reason == "" {
			reason = toReason
		}
		if reason != "" {
			oc.Reason = reason
			r.result.Relationships = append(r.result.Relationships, oc)
			r.result.Stats.RelationshipsSkipped++
			r.collector.Warnf("%s: %s -[%s]-> %s not written: %s", scope, in.FromID, relType, in.ToID, reason)
			continue
		}

		r.result.Relationships = append(r.result.Relationships, oc)
		if !r.opts.Execute {
			r.result.Stats.RelationshipsCreated++
		}
		out = append(out, resolvedRelationship{
			index: len(r.result.Relationships) - 1,
			rel: models.Relationship{
				Type:       relType,
				From:       from,
				To:         to,
				Properties: in.Properties,
			},
		})
	}
	return out
}

// resolveEndpoint returns the stored reference for an incoming id, or why there is none
func (c *Coordinator) resolveEndpoint(ctx context.Context, r *run, kindName, id string) (models.NodeRef, string) {
	kind, _ := models.ParseEntityKind(kindName)
	ref := models.NodeRef{Kind: kind, ID: id}
	key := refKey{kind, id}

	if localID, ok := r.plan.ids[key]; ok {
		ref.ID = localID
		return ref, ""
	}
	if reason, ok := r.plan.dropped[key]; ok {
		return ref, fmt.Sprintf("%s %s was not imported (%s)", kind, id, reason)
	}

	var stored *models.Entity
	var err error
	if schema.IsQID(id) {
		stored, err = c.store.FindByAuthoritativeID(ctx, kind, id)
	}
	if err == nil && stored == nil {
		stored, err = c.store.FindByLocalID(ctx, kind, id)
	}
	if err != nil {
		return ref, fmt.Sprintf("lookup of %s %s failed: %v", kind, id, err)
	}
	if stored == nil {
		return ref, fmt.Sprintf("%s %s does not exist", kind, id)
	}
	ref.ID = stored.LocalID
	return ref, ""
}

// writeRelationships merges relationships one sub-batch per transaction
func (c *Coordinator) writeRelationships(ctx context.Context, r *run, rels []resolvedRelationship) {
	for _, span := range chunk(len(rels), r.opts.BatchSize) {
		sub := rels[span[0]:span[1]]
		var created, missing []int

		err := c.store.ExecuteWrite(ctx, func(tx graph.Tx) error {
			created, missing = created[:0], missing[:0]
			for i, rr := range sub {
				isNew, err := tx.MergeRelationship(ctx, rr.rel, r.prov)
				if errors.Is(err, graph.ErrEndpointNotFound) {
					missing = append(missing, i)
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to merge %s relationship: %w", rr.rel.Type, err)
				}
				if isNew {
					created = append(created, i)
				}
			}
			return nil
		})

		unit := fmt.Sprintf("relationships[%d:%d]", span[0], span[1])
		if err != nil {
			metrics.ImportSubBatchFailuresTotal.WithLabelValues("relationships").Inc()
			c.logger.WithContext(ctx).WithError(err).WithField("unit", unit).Error("Relationship sub-batch rolled back")
			r.collector.AddError(unit, &models.TransactionError{Operation: "import relationships", Unit: unit, Err: err})
			for _, rr := range sub {
				r.result.Relationships[rr.index].Reason = fmt.Sprintf("write rolled back with %s", unit)
				r.result.Stats.RelationshipsSkipped++
			}
			continue
		}

		for _, rr := range sub {
			r.result.Relationships[rr.index].Reason = "already present"
		}
		for _, i := range missing {
			r.result.Relationships[sub[i].index].Reason = "endpoint not found"
			r.result.Stats.RelationshipsSkipped++
			r.collector.Warnf("relationships[%d]: endpoint not found when writing", sub[i].index)
		}
		for _, i := range created {
			oc := &r.result.Relationships[sub[i].index]
			oc.Written = true
			oc.Reason = ""
			r.result.Stats.RelationshipsCreated++
		}
	}
}

// Package merging consolidates duplicate entities already in the graph. Each
// duplicate is folded into its group's primary in its own transaction.
package merging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/events"
	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// MergeLog persists audit records
type MergeLog interface {
	Append(ctx context.Context, records []models.MergeRecord) error
}

// Config holds the engine-wide merge settings
type Config struct {
	CrossReferences    []models.CrossReference
	PropertyStrategies map[string]models.MergeStrategyType
}

// Options control one sweep
type Options struct {
	Execute  bool
	Retire   models.RetireMode
	Tiebreak models.TiebreakPolicy
}

// Result is the outcome of one sweep over one kind
type Result struct {
	RunID        string                     `json:"run_id"`
	Kind         models.EntityKind          `json:"kind"`
	DryRun       bool                       `json:"dry_run"`
	Groups       []models.DuplicateGroup    `json:"groups"`
	ManualReview []models.ManualReviewGroup `json:"manual_review"`
	Records      []models.MergeRecord       `json:"records"`
	Summary      models.MergeSummary        `json:"summary"`
	Errors       []models.ErrorEntry        `json:"errors"`
	Warnings     []string                   `json:"warnings"`
}

// Failed reports whether any consolidation rolled back
func (r *Result) Failed() bool {
	return r.Summary.Failed > 0
}

// Engine runs duplicate sweeps
type Engine struct {
	logger      ectologger.Logger
	store       graph.Store
	log         MergeLog
	emitter     *events.Emitter
	fieldMerger *FieldMerger
	config      Config
	now         func() time.Time
}

// NewEngine creates a merge engine. log and emitter may be nil.
func NewEngine(logger ectologger.Logger, store graph.Store, log MergeLog, emitter *events.Emitter, config Config) *Engine {
	if config.CrossReferences == nil {
		config.CrossReferences = models.DefaultCrossReferences()
	}
	return &Engine{
		logger:      logger,
		store:       store,
		log:         log,
		emitter:     emitter,
		fieldMerger: NewFieldMerger(config.PropertyStrategies),
		config:      config,
		now:         time.Now,
	}
}

// Detect lists the duplicate groups and manual review collisions of kind without changing anything
func (e *Engine) Detect(ctx context.Context, kind models.EntityKind) ([]models.DuplicateGroup, []models.ManualReviewGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Detect")
	defer span.End()

	if !kind.IsValid() {
		return nil, nil, &models.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown entity kind %q", kind)}
	}
	snapshots, err := e.store.ListEntities(ctx, kind)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("kind", kind).Error("Failed to list entities")
		return nil, nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
	}
	groups, manual := DetectGroups(kind, snapshots)
	return groups, manual, nil
}

// Run detects duplicates of kind and consolidates every group. A failed
// duplicate is recorded and the sweep continues with the next one.
func (e *Engine) Run(ctx context.Context, kind models.EntityKind, opts Options) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Run")
	defer span.End()

	if opts.Retire == "" {
		opts.Retire = models.RetireModeDelete
	}
	if opts.Tiebreak == "" {
		opts.Tiebreak = models.TiebreakLowestAuthoritativeID
	}

	runID := uuid.NewString()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   runID,
		"kind":     kind,
		"execute":  opts.Execute,
		"retire":   opts.Retire,
		"tiebreak": opts.Tiebreak,
	})

	groups, manual, err := e.Detect(ctx, kind)
	if err != nil {
		return nil, err
	}

	collector := models.NewCollector()
	result := &Result{
		RunID:        runID,
		Kind:         kind,
		DryRun:       !opts.Execute,
		Groups:       groups,
		ManualReview: manual,
		Records:      []models.MergeRecord{},
	}

	for _, m := range manual {
		metrics.MergeManualReviewTotal.WithLabelValues(string(kind)).Inc()
		collector.AddError("group "+m.Name, &models.AmbiguousDuplicateError{Kind: kind, Name: m.Name, Reason: m.Reason})
	}

	sim := newOverlay()
	for _, group := range groups {
		ranked := RankMembers(group.Members, opts.Tiebreak)
		primary := ranked[0].Entity
		for _, dup := range ranked[1:] {
			rec := models.NewMergeRecord(uuid.NewString(), runID, group, primary, dup.Entity)
			e.consolidate(ctx, &rec, kind, primary.Key, dup.Entity.Key, opts, sim)
			if rec.Status == models.MergeStatusFailed {
				collector.AddError("duplicate "+dup.Entity.LocalID, &models.TransactionError{
					Operation: "merge",
					Unit:      fmt.Sprintf("%s into %s", dup.Entity.LocalID, primary.LocalID),
					Err:       fmt.Errorf("%s", rec.Error),
				})
			}
			metrics.MergeOperationsTotal.WithLabelValues(string(kind), string(rec.Status)).Inc()
			result.Records = append(result.Records, rec)
		}
	}

	if opts.Execute && len(result.Records) > 0 {
		if e.log != nil {
			if err := e.log.Append(ctx, result.Records); err != nil {
				log.WithError(err).Error("Failed to persist merge log")
				collector.Warnf("merge log not persisted: %v", err)
			}
		}
		if err := e.emitter.EmitEntityMerged(ctx, result.Records); err != nil {
			log.WithError(err).Warn("Failed to publish merge events")
			collector.Warnf("merge events not published: %v", err)
		}
	}

	result.Summary = models.Summarize(len(groups), len(manual), result.Records)
	result.Errors = collector.Errors
	result.Warnings = collector.Warnings

	log.WithFields(map[string]any{
		"groups":        result.Summary.Groups,
		"manual_review": result.Summary.ManualReview,
		"merged":        result.Summary.Merged,
		"simulated":     result.Summary.Simulated,
		"failed":        result.Summary.Failed,
	}).Info("Duplicate sweep finished")
	return result, nil
}

// consolidate folds one duplicate into primary and records the outcome on rec
func (e *Engine) consolidate(ctx context.Context, rec *models.MergeRecord, kind models.EntityKind, primaryKey, dupKey string, opts Options, sim *overlay) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.consolidate")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       rec.RunID,
		"primary_id":   rec.PrimaryID,
		"duplicate_id": rec.DuplicateID,
	})

	base := *rec
	at := e.now().UTC()
	merge := func(tx graph.Tx) error {
		// the driver may retry the function, so every attempt starts clean
		*rec = base
		rec.Redirected = map[models.RelationshipType]int{}
		rec.Coalesced = map[models.RelationshipType]int{}
		return e.mergeDuplicate(ctx, tx, rec, kind, primaryKey, dupKey, opts.Retire, at)
	}

	var err error
	if opts.Execute {
		err = e.store.ExecuteWrite(ctx, merge)
	} else {
		err = e.store.ExecuteRead(ctx, func(tx graph.Tx) error {
			return merge(newSimulatedTx(tx, sim))
		})
	}

	rec.Timestamp = at
	if err != nil {
		log.WithError(err).WithField("state", rec.State).Error("Failed to merge duplicate")
		tracing.Fail(span, err)
		rec.Error = err.Error()
		rec.State = models.MergeStateFailed
		rec.Status = models.MergeStatusFailed
		return
	}

	rec.State = models.MergeStateLogged
	rec.Status = models.MergeStatusMerged
	if !opts.Execute {
		rec.Status = models.MergeStatusDryRun
	}
	for t, n := range rec.Redirected {
		if opts.Execute {
			metrics.MergeRelationshipsRedirectedTotal.WithLabelValues(string(t)).Add(float64(n))
		}
	}
	log.WithFields(map[string]any{
		"redirected":          rec.TotalRedirected(),
		"coalesced":           rec.TotalCoalesced(),
		"internal_removed":    rec.InternalRemoved,
		"references_repaired": rec.ReferencesRepaired,
		"status":              rec.Status,
	}).Info("Merged duplicate")
}

// edgeKey identifies parallel edges: same type, same direction, same counterpart
type edgeKey struct {
	typ         models.RelationshipType
	outgoing    bool
	counterpart string
}

func (e *Engine) mergeDuplicate(
	ctx context.Context,
	tx graph.Tx,
	rec *models.MergeRecord,
	kind models.EntityKind,
	primaryKey, dupKey string,
	mode models.RetireMode,
	at time.Time,
) error {
	primary, err := tx.Entity(ctx, primaryKey)
	if err != nil {
		return fmt.Errorf("failed to read primary: %w", err)
	}
	dup, err := tx.Entity(ctx, dupKey)
	if err != nil {
		return fmt.Errorf("failed to read duplicate: %w", err)
	}

	rec.State = models.MergeStateRedirecting
	if err := e.redirect(ctx, tx, rec, primary.Ref(), primaryKey, dupKey); err != nil {
		return err
	}

	updates, filled := e.fieldMerger.MergeProperties(kind, models.EntityProperties(*primary), models.EntityProperties(*dup))
	absorbed := append([]string{dup.AuthoritativeID}, dup.AlternateIDs...)
	if primary.AuthoritativeID == "" && dup.AuthoritativeID != "" {
		updates[models.AuthoritativeIDProperty] = dup.AuthoritativeID
		updates["provisional"] = false
		filled = append(filled, models.AuthoritativeIDProperty)
		primary.AuthoritativeID = dup.AuthoritativeID
		absorbed = absorbed[1:]
	}
	alternates, added := appendAlternateIDs(primary.AlternateIDs, primary.AuthoritativeID, absorbed...)
	if len(added) > 0 {
		updates[models.AlternateIDsProperty] = alternates
	}
	if len(updates) > 0 {
		updates[models.PropertyUpdatedAt] = at.Format(time.RFC3339Nano)
		if err := tx.SetProperties(ctx, primaryKey, updates); err != nil {
			return fmt.Errorf("failed to merge properties: %w", err)
		}
	}
	sort.Strings(filled)
	rec.PropertiesFilled = filled
	rec.AlternateIDsAdded = added
	rec.State = models.MergeStatePropertyMerged

	for _, ref := range e.config.CrossReferences {
		if ref.TargetKind != kind {
			continue
		}
		n, err := tx.RepointReferences(ctx, ref, dup.LocalID, primary.LocalID)
		if err != nil {
			return fmt.Errorf("failed to repoint %s.%s: %w", ref.Label, ref.Property, err)
		}
		rec.ReferencesRepaired += n
	}

	if err := tx.Retire(ctx, dupKey, mode, primary.LocalID, at); err != nil {
		return fmt.Errorf("failed to retire duplicate: %w", err)
	}
	rec.State = models.MergeStateDuplicateRetired
	return nil
}

// redirect moves every edge of the duplicate onto the primary. Edges between
// the two, and self-loops, are dropped; edges parallel to one the primary
// already has are folded into it.
func (e *Engine) redirect(ctx context.Context, tx graph.Tx, rec *models.MergeRecord, primaryRef models.NodeRef, primaryKey, dupKey string) error {
	primaryRels, err := tx.Relationships(ctx, primaryKey)
	if err != nil {
		return fmt.Errorf("failed to read primary relationships: %w", err)
	}
	dupRels, err := tx.Relationships(ctx, dupKey)
	if err != nil {
		return fmt.Errorf("failed to read duplicate relationships: %w", err)
	}

	existing := map[edgeKey]models.Relationship{}
	for _, rel := range primaryRels {
		other, outgoing := rel.Counterpart(primaryKey)
		k := edgeKey{typ: rel.Type, outgoing: outgoing, counterpart: other.Key}
		if _, ok := existing[k]; !ok {
			existing[k] = rel
		}
	}

	var order []edgeKey
	parallel := map[edgeKey][]models.Relationship{}
	for _, rel := range dupRels {
		other, outgoing := rel.Counterpart(dupKey)
		if other.Key == dupKey || other.Key == primaryKey {
			if err := tx.DeleteRelationship(ctx, rel.ID); err != nil {
				return fmt.Errorf("failed to drop internal relationship: %w", err)
			}
			rec.InternalRemoved++
			continue
		}
		k := edgeKey{typ: rel.Type, outgoing: outgoing, counterpart: other.Key}
		if _, ok := parallel[k]; !ok {
			order = append(order, k)
		}
		parallel[k] = append(parallel[k], rel)
	}

	for _, k := range order {
		rels := parallel[k]
		survivor, ok := existing[k]
		if !ok {
			first := rels[0]
			other, _ := first.Counterpart(dupKey)
			props := make(map[string]any, len(first.Properties))
			for key, v := range first.Properties {
				props[key] = v
			}
			for _, rel := range rels[1:] {
				for key, v := range e.fieldMerger.CoalesceEdge(props, rel.Properties) {
					props[key] = v
				}
			}
			moved := models.Relationship{Type: first.Type, From: primaryRef, To: other, Properties: props}
			if !k.outgoing {
				moved.From, moved.To = other, primaryRef
			}
			if err := tx.CreateRelationship(ctx, moved); err != nil {
				return fmt.Errorf("failed to redirect %s relationship: %w", first.Type, err)
			}
			if err := tx.DeleteRelationship(ctx, first.ID); err != nil {
				return fmt.Errorf("failed to drop redirected relationship: %w", err)
			}
			rec.Redirected[first.Type]++
			rels = rels[1:]
		} else {
			updates := map[string]any{}
			for _, rel := range rels {
				for key, v := range e.fieldMerger.CoalesceEdge(survivor.Properties, rel.Properties) {
					if _, seen := updates[key]; !seen {
						updates[key] = v
					}
				}
			}
			if len(updates) > 0 {
				if err := tx.UpdateRelationshipProperties(ctx, survivor.ID, updates); err != nil {
					return fmt.Errorf("failed to coalesce relationship: %w", err)
				}
			}
		}

		for _, rel := range rels {
			if err := tx.DeleteRelationship(ctx, rel.ID); err != nil {
				return fmt.Errorf("failed to drop parallel relationship: %w", err)
			}
			rec.Coalesced[rel.Type]++
		}
	}
	return nil
}

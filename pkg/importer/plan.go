package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fictotum/pkg/events"
	"github.com/Ramsey-B/fictotum/pkg/identity"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/metrics"
	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/normalizers"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
	"github.com/Ramsey-B/fictotum/pkg/schema"
)

// refKey identifies a record the way relationships refer to it
type refKey struct {
	kind models.EntityKind
	id   string
}

// plannedRecord is one incoming record and what the run will do with it
type plannedRecord struct {
	outcome models.RecordOutcome
	entity  models.Entity
	refs    []string // ids relationships may use for this record
	create  bool
	failed  bool
	// stored is set when a create_new replay finds the entity an earlier run created
	stored   bool
	decision *models.ResolutionDecision
	// linkedTo is the earlier record of this batch this one resolved onto
	linkedTo *plannedRecord
}

// plan maps incoming records onto stored local ids
type plan struct {
	records []*plannedRecord
	ids     map[refKey]string // incoming id -> stored local id
	dropped map[refKey]string // incoming id -> why it will not exist
	pending map[refKey]*plannedRecord
}

func newPlan() *plan {
	return &plan{
		ids:     map[refKey]string{},
		dropped: map[refKey]string{},
		pending: map[refKey]*plannedRecord{},
	}
}

func (p *plan) outcomes() []models.RecordOutcome {
	out := make([]models.RecordOutcome, 0, len(p.records))
	for _, rec := range p.records {
		out = append(out, rec.outcome)
	}
	return out
}

func (p *plan) creations() []*plannedRecord {
	return ectolinq.Filter(p.records, func(rec *plannedRecord) bool { return rec.create })
}

func (p *plan) mapRefs(rec *plannedRecord, localID string) {
	for _, id := range rec.refs {
		p.ids[refKey{rec.entity.Kind, id}] = localID
	}
}

// rollBack forgets rec's refs after its write failed
func (p *plan) rollBack(rec *plannedRecord, reason string) {
	rec.failed = true
	for _, id := range rec.refs {
		key := refKey{rec.entity.Kind, id}
		delete(p.ids, key)
		p.dropped[key] = reason
	}
}

// dependents returns the records that resolved onto failed creations and are not failed yet
func (p *plan) dependents() []*plannedRecord {
	return ectolinq.Filter(p.records, func(rec *plannedRecord) bool {
		return !rec.failed && rec.linkedTo != nil && rec.linkedTo.failed
	})
}

func (p *plan) drop(rec *plannedRecord, reason string) {
	for _, id := range rec.refs {
		key := refKey{rec.entity.Kind, id}
		if _, mapped := p.ids[key]; !mapped {
			p.dropped[key] = reason
		}
	}
}

// planRecord classifies one record and decides what to do with it
func (c *Coordinator) planRecord(ctx context.Context, r *run, index int, entity models.Entity, creator string) {
	rec := &plannedRecord{
		outcome: models.RecordOutcome{
			Index:      index,
			Kind:       entity.Kind,
			Name:       entity.Name,
			IncomingID: models.IncomingIdentity(entity),
		},
		refs: ectolinq.Filter([]string{entity.LocalID, entity.AuthoritativeID}, func(id string) bool { return id != "" }),
	}
	r.plan.records = append(r.plan.records, rec)
	scope := recordScope(entity.Kind, index)

	if !r.opts.SkipIdentityValidation && c.identity != nil {
		c.confirmIdentity(ctx, r, scope, &entity, creator)
		if entity.AuthoritativeID != "" && !ectolinq.Contains(rec.refs, entity.AuthoritativeID) {
			rec.refs = append(rec.refs, entity.AuthoritativeID)
		}
	}
	rec.entity = entity

	if earlier := c.pendingCreation(r.plan, entity); earlier != nil {
		rec.linkedTo = earlier
		rec.outcome.Tier = models.MatchTierExact
		rec.outcome.Action = models.ActionUseExisting
		rec.outcome.LocalID = earlier.entity.LocalID
		rec.outcome.MatchedID = earlier.entity.LocalID
		rec.outcome.Reason = fmt.Sprintf("same record as %s earlier in this batch", recordScope(earlier.entity.Kind, earlier.outcome.Index))
		r.plan.mapRefs(rec, earlier.entity.LocalID)
		r.result.Stats.For(entity.Kind).Linked++
		c.count(r, rec)
		return
	}

	match := &matching.MatchResult{Tier: models.MatchTierClear}
	if !r.opts.SkipDuplicateCheck {
		m, err := c.matcher.Match(ctx, entity)
		if err != nil {
			c.skip(r, rec, fmt.Sprintf("matching failed: %v", err))
			r.collector.AddError(scope, err)
			return
		}
		match = m
	}
	rec.outcome.Tier = match.Tier
	rec.outcome.Score = match.BestScore()
	rec.outcome.Degraded = match.Degraded

	if match.Tier == models.MatchTierClear || match.Best == nil {
		c.planCreate(r, rec, nil, models.ActionCreateNew)
		return
	}
	existing := match.Best.Entity
	rec.outcome.MatchedID = existing.LocalID

	decision, err := c.resolver.Resolve(ctx, models.DecisionRequest{
		Incoming:  entity,
		Existing:  existing,
		Tier:      match.Tier,
		Score:     match.BestScore(),
		Degraded:  match.Degraded,
		Alternate: ectolinq.Map(match.Candidates, func(cand matching.Candidate) models.Entity { return cand.Entity }),
	})
	switch {
	case errors.Is(err, resolution.ErrNoDecision):
		c.skip(r, rec, fmt.Sprintf("%s match with %s needs a resolution decision", match.Tier, existing.LocalID))
		r.collector.Warnf("%s: %q is a %s match for %s and no decision is available; skipped", scope, entity.Name, match.Tier, existing.LocalID)
		return
	case err != nil:
		c.skip(r, rec, fmt.Sprintf("resolution failed: %v", err))
		r.collector.AddError(scope, err)
		return
	}

	switch decision.Action {
	case models.ActionUseExisting:
		rec.outcome.Action = models.ActionUseExisting
		rec.outcome.LocalID = existing.LocalID
		rec.outcome.Reason = fmt.Sprintf("%s decision", decision.Source)
		r.plan.mapRefs(rec, existing.LocalID)
		r.result.Stats.For(entity.Kind).Linked++
		r.linked[entity.Kind] = append(r.linked[entity.Kind], events.EntityLinkedData{
			IncomingID:      rec.outcome.IncomingID,
			ExistingLocalID: existing.LocalID,
			Tier:            match.Tier,
			Score:           match.BestScore(),
			DecisionSource:  decision.Source,
			Action:          decision.Action,
			BatchID:         r.result.Run.BatchID,
		})
		c.count(r, rec)
	case models.ActionCreateNew:
		rec.decision = decision
		if decision.CreatedLocalID != "" {
			stored, err := c.store.FindByLocalID(ctx, entity.Kind, decision.CreatedLocalID)
			if err != nil {
				c.skip(r, rec, fmt.Sprintf("lookup of %s failed: %v", decision.CreatedLocalID, err))
				r.collector.AddError(scope, err)
				return
			}
			rec.entity.LocalID = decision.CreatedLocalID
			rec.stored = stored != nil
			if rec.stored {
				rec.outcome.Reason = fmt.Sprintf("created by an earlier run as %s", decision.CreatedLocalID)
			}
		}
		c.planCreate(r, rec, &existing, decision.Action)
	default:
		reason := decision.Note
		if reason == "" {
			reason = fmt.Sprintf("skipped by %s decision", decision.Source)
		}
		c.skip(r, rec, reason)
	}
}

// pendingCreation finds an earlier record of this batch that will create the same entity
func (c *Coordinator) pendingCreation(p *plan, entity models.Entity) *plannedRecord {
	for _, id := range []string{entity.LocalID, entity.AuthoritativeID} {
		if id == "" {
			continue
		}
		if rec, ok := p.pending[refKey{entity.Kind, id}]; ok {
			return rec
		}
	}
	return nil
}

// planCreate assigns ids to a record that will become a new entity.
// existing is the stored entity the curator chose not to link to, if any.
func (c *Coordinator) planCreate(r *run, rec *plannedRecord, existing *models.Entity, action models.ResolutionAction) {
	e := &rec.entity
	scope := recordScope(e.Kind, rec.outcome.Index)

	if existing != nil && existing.HasAuthoritativeID(e.AuthoritativeID) {
		r.collector.Warnf("%s: %s already belongs to %s; the new entity is created without it", scope, e.AuthoritativeID, existing.LocalID)
		e.AuthoritativeID = ""
	}
	if e.LocalID == "" && e.Kind == models.EntityKindHistoricalFigure {
		e.LocalID = e.AuthoritativeID
	}
	if e.LocalID == "" || (existing != nil && existing.LocalID == e.LocalID) || r.plan.pending[refKey{e.Kind, e.LocalID}] != nil {
		e.LocalID = c.provisionalID(r.plan, e.Kind, e.Name)
	}
	e.Provisional = e.AuthoritativeID == ""

	rec.create = true
	rec.outcome.Action = action
	rec.outcome.LocalID = e.LocalID
	r.plan.pending[refKey{e.Kind, e.LocalID}] = rec
	if e.AuthoritativeID != "" {
		r.plan.pending[refKey{e.Kind, e.AuthoritativeID}] = rec
	}
	r.plan.mapRefs(rec, e.LocalID)
	switch {
	case r.opts.Execute:
	case rec.stored:
		r.result.Stats.For(e.Kind).Linked++
	default:
		r.result.Stats.For(e.Kind).Created++
	}
	c.count(r, rec)
}

func (c *Coordinator) skip(r *run, rec *plannedRecord, reason string) {
	rec.outcome.Action = models.ActionSkip
	rec.outcome.Reason = reason
	r.plan.drop(rec, reason)
	r.result.Stats.For(rec.entity.Kind).Skipped++
	c.count(r, rec)
}

func (c *Coordinator) count(r *run, rec *plannedRecord) {
	metrics.ImportRecordsTotal.WithLabelValues(
		string(rec.outcome.Kind),
		string(rec.outcome.Action),
		strconv.FormatBool(!r.opts.Execute),
	).Inc()
}

// provisionalID builds PROV:<slug>-<millis> for figures and media-<slug>-<millis> for works,
// suffixed when the same id was already handed out in this batch
func (c *Coordinator) provisionalID(p *plan, kind models.EntityKind, name string) string {
	millis := strconv.FormatInt(c.now().UnixMilli(), 10)
	var base string
	switch kind {
	case models.EntityKindMediaWork:
		base = "media-" + normalizers.Slug(name) + "-" + millis
	case models.EntityKindFictionalCharacter:
		base = "char-" + normalizers.Slug(name) + "-" + millis
	default:
		base = "PROV:" + strings.Join(normalizers.Tokens(name), "_") + "-" + millis
	}
	id := base
	for n := 2; p.pending[refKey{kind, id}] != nil; n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	return id
}

// confirmIdentity checks a supplied authoritative id, or searches for one for works.
// Lookup failures only produce warnings.
func (c *Coordinator) confirmIdentity(ctx context.Context, r *run, scope string, e *models.Entity, creator string) {
	log := c.logger.WithContext(ctx).WithField("record", scope)

	if e.AuthoritativeID != "" {
		v, err := c.identity.ValidateID(ctx, e.AuthoritativeID, e.Name)
		if err != nil {
			log.WithError(err).Warn("Identity validation unavailable")
			r.collector.Warnf("%s: could not confirm %s: %v", scope, e.AuthoritativeID, err)
			return
		}
		if !v.Valid {
			r.collector.Warnf("%s: %s", scope, v.Reason)
		}
		return
	}

	if e.Kind != models.EntityKindMediaWork {
		return
	}
	res, err := c.identity.Search(ctx, identity.SearchQuery{
		Title:    e.Name,
		Creator:  creator,
		Year:     e.Year,
		Category: e.Category,
	})
	if err != nil {
		log.WithError(err).Warn("Identity search unavailable")
		r.collector.Warnf("%s: identity search for %q failed: %v", scope, e.Name, err)
		return
	}
	if res == nil {
		return
	}
	if res.Confidence != identity.ConfidenceHigh || !schema.IsQID(res.QID) {
		r.collector.Warnf("%s: possible identifier %s (%s, %s confidence) not adopted", scope, res.QID, res.Label, res.Confidence)
		return
	}
	log.WithFields(map[string]any{"qid": res.QID, "score": res.Score}).Info("Adopted identifier from search")
	e.AuthoritativeID = res.QID
}

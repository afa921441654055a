package merging

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// overlay holds the writes a dry run would have made, so later duplicates in
// the same sweep see the graph as a live run would have left it
type overlay struct {
	seq     int
	created []models.Relationship
	deleted map[string]bool
	edgeSet map[string]map[string]any
	nodeSet map[string]map[string]any
	retired map[string]bool
}

func newOverlay() *overlay {
	return &overlay{
		deleted: map[string]bool{},
		edgeSet: map[string]map[string]any{},
		nodeSet: map[string]map[string]any{},
		retired: map[string]bool{},
	}
}

// simulatedTx runs the consolidation code path over a read transaction.
// Reads see the overlay; writes land in the overlay and never reach storage.
type simulatedTx struct {
	read graph.Tx
	o    *overlay
}

func newSimulatedTx(read graph.Tx, o *overlay) *simulatedTx {
	return &simulatedTx{read: read, o: o}
}

func (s *simulatedTx) Entity(ctx context.Context, key string) (*models.Entity, error) {
	e, err := s.read.Entity(ctx, key)
	if err != nil {
		return nil, err
	}
	set, ok := s.o.nodeSet[key]
	if !ok {
		return e, nil
	}
	props := models.EntityProperties(*e)
	for k, v := range set {
		props[k] = v
	}
	out := models.EntityFromProperties(e.Kind, props)
	out.Key = e.Key
	return &out, nil
}

func (s *simulatedTx) Relationships(ctx context.Context, key string) ([]models.Relationship, error) {
	real, err := s.read.Relationships(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []models.Relationship
	for _, rel := range append(real, s.o.created...) {
		if s.o.deleted[rel.ID] || s.o.retired[rel.From.Key] || s.o.retired[rel.To.Key] {
			continue
		}
		if rel.From.Key != key && rel.To.Key != key {
			continue
		}
		if set, ok := s.o.edgeSet[rel.ID]; ok {
			props := make(map[string]any, len(rel.Properties)+len(set))
			for k, v := range rel.Properties {
				props[k] = v
			}
			for k, v := range set {
				props[k] = v
			}
			rel.Properties = props
		}
		out = append(out, rel)
	}
	return out, nil
}

func (s *simulatedTx) UpsertEntity(context.Context, models.Entity, graph.Provenance) (bool, error) {
	return false, graph.ErrReadOnly
}

func (s *simulatedTx) EnsureAgent(context.Context, string, graph.Provenance) error {
	return graph.ErrReadOnly
}

func (s *simulatedTx) MergeRelationship(context.Context, models.Relationship, graph.Provenance) (bool, error) {
	return false, graph.ErrReadOnly
}

func (s *simulatedTx) CreateRelationship(_ context.Context, rel models.Relationship) error {
	s.o.seq++
	rel.ID = fmt.Sprintf("simulated-%d", s.o.seq)
	s.o.created = append(s.o.created, rel)
	return nil
}

func (s *simulatedTx) UpdateRelationshipProperties(_ context.Context, id string, props map[string]any) error {
	set := s.o.edgeSet[id]
	if set == nil {
		set = map[string]any{}
		s.o.edgeSet[id] = set
	}
	for k, v := range props {
		set[k] = v
	}
	return nil
}

func (s *simulatedTx) DeleteRelationship(_ context.Context, id string) error {
	s.o.deleted[id] = true
	return nil
}

func (s *simulatedTx) SetProperties(_ context.Context, key string, props map[string]any) error {
	set := s.o.nodeSet[key]
	if set == nil {
		set = map[string]any{}
		s.o.nodeSet[key] = set
	}
	for k, v := range props {
		set[k] = v
	}
	return nil
}

func (s *simulatedTx) RepointReferences(ctx context.Context, ref models.CrossReference, fromID, _ string) (int, error) {
	return s.read.CountReferences(ctx, ref, fromID)
}

func (s *simulatedTx) CountReferences(ctx context.Context, ref models.CrossReference, id string) (int, error) {
	return s.read.CountReferences(ctx, ref, id)
}

func (s *simulatedTx) Retire(_ context.Context, key string, _ models.RetireMode, _ string, _ time.Time) error {
	s.o.retired[key] = true
	return nil
}

var _ graph.Tx = (*simulatedTx)(nil)

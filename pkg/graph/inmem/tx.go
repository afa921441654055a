package inmem

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// tx operates directly on the store maps; the caller holds the store lock
type tx struct {
	store    *Store
	readOnly bool
}

func (t *tx) mutate(op string, args ...any) error {
	if t.readOnly {
		return graph.ErrReadOnly
	}
	if t.store.FailOn != nil {
		return t.store.FailOn(op, args...)
	}
	return nil
}

func (t *tx) Entity(_ context.Context, key string) (*models.Entity, error) {
	n, ok := t.store.nodes[key]
	if !ok || n.kind() == "" || n.kind() == models.AgentKind {
		return nil, fmt.Errorf("node %s: %w", key, graph.ErrNotFound)
	}
	e := t.store.entity(n)
	return &e, nil
}

func (t *tx) Relationships(_ context.Context, key string) ([]models.Relationship, error) {
	if _, ok := t.store.nodes[key]; !ok {
		return nil, fmt.Errorf("node %s: %w", key, graph.ErrNotFound)
	}
	return t.store.relationshipsOf(key), nil
}

func (t *tx) UpsertEntity(_ context.Context, entity models.Entity, prov graph.Provenance) (bool, error) {
	if err := t.mutate("UpsertEntity", entity); err != nil {
		return false, err
	}
	stamp := prov.At.UTC().Format(time.RFC3339Nano)
	if existing := t.store.findNode(entity.Kind, entity.LocalID); existing != nil {
		existing.props[models.PropertyUpdatedAt] = stamp
		return false, nil
	}

	props := models.EntityProperties(entity)
	delete(props, models.PropertyUpdatedAt)
	props[models.PropertyCreatedAt] = stamp
	props[models.PropertyBatchID] = prov.BatchID
	props[models.PropertySource] = prov.Source
	props["curator"] = prov.Curator
	t.store.addNode([]string{string(entity.Kind)}, props)
	return true, nil
}

func (t *tx) EnsureAgent(_ context.Context, name string, prov graph.Provenance) error {
	if err := t.mutate("EnsureAgent", name); err != nil {
		return err
	}
	if t.store.findNode(models.AgentKind, name) != nil {
		return nil
	}
	t.store.addNode([]string{models.AgentLabel}, map[string]any{
		"name":                   name,
		models.PropertyCreatedAt: prov.At.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

func (t *tx) MergeRelationship(_ context.Context, rel models.Relationship, prov graph.Provenance) (bool, error) {
	if err := t.mutate("MergeRelationship", rel); err != nil {
		return false, err
	}
	from := t.store.findNode(rel.From.Kind, rel.From.ID)
	to := t.store.findNode(rel.To.Kind, rel.To.ID)
	if from == nil || to == nil {
		return false, fmt.Errorf("%s %s -> %s %s: %w", rel.From.Kind, rel.From.ID, rel.To.Kind, rel.To.ID, graph.ErrEndpointNotFound)
	}
	for _, e := range t.store.edges {
		if e.from == from.key && e.to == to.key && e.typ == rel.Type {
			return false, nil
		}
	}

	props := copyProps(rel.Properties)
	props[models.PropertyBatchID] = prov.BatchID
	props[models.PropertyCreatedAt] = prov.At.UTC().Format(time.RFC3339Nano)
	props[models.PropertySource] = prov.Source
	t.store.addEdge(from.key, to.key, rel.Type, props)
	return true, nil
}

func (t *tx) CreateRelationship(_ context.Context, rel models.Relationship) error {
	if err := t.mutate("CreateRelationship", rel); err != nil {
		return err
	}
	if _, ok := t.store.nodes[rel.From.Key]; !ok {
		return fmt.Errorf("%s: %w", rel.From.Key, graph.ErrEndpointNotFound)
	}
	if _, ok := t.store.nodes[rel.To.Key]; !ok {
		return fmt.Errorf("%s: %w", rel.To.Key, graph.ErrEndpointNotFound)
	}
	t.store.addEdge(rel.From.Key, rel.To.Key, rel.Type, rel.Properties)
	return nil
}

func (t *tx) UpdateRelationshipProperties(_ context.Context, id string, props map[string]any) error {
	if err := t.mutate("UpdateRelationshipProperties", id, props); err != nil {
		return err
	}
	e, ok := t.store.edges[id]
	if !ok {
		return fmt.Errorf("relationship %s: %w", id, graph.ErrNotFound)
	}
	for k, v := range props {
		e.props[k] = v
	}
	return nil
}

func (t *tx) DeleteRelationship(_ context.Context, id string) error {
	if err := t.mutate("DeleteRelationship", id); err != nil {
		return err
	}
	if _, ok := t.store.edges[id]; !ok {
		return fmt.Errorf("relationship %s: %w", id, graph.ErrNotFound)
	}
	delete(t.store.edges, id)
	return nil
}

func (t *tx) SetProperties(_ context.Context, key string, props map[string]any) error {
	if err := t.mutate("SetProperties", key, props); err != nil {
		return err
	}
	n, ok := t.store.nodes[key]
	if !ok {
		return fmt.Errorf("node %s: %w", key, graph.ErrNotFound)
	}
	for k, v := range copyProps(props) {
		n.props[k] = v
	}
	return nil
}

func (t *tx) RepointReferences(_ context.Context, ref models.CrossReference, fromID, toID string) (int, error) {
	if err := t.mutate("RepointReferences", ref, fromID, toID); err != nil {
		return 0, err
	}
	updated := 0
	for _, n := range t.store.nodes {
		if n.hasLabel(ref.Label) && !n.retired() && models.AsString(n.props[ref.Property]) == fromID {
			n.props[ref.Property] = toID
			updated++
		}
	}
	return updated, nil
}

func (t *tx) CountReferences(_ context.Context, ref models.CrossReference, id string) (int, error) {
	count := 0
	for _, n := range t.store.nodes {
		if n.hasLabel(ref.Label) && !n.retired() && models.AsString(n.props[ref.Property]) == id {
			count++
		}
	}
	return count, nil
}

func (t *tx) Retire(_ context.Context, key string, mode models.RetireMode, mergedInto string, at time.Time) error {
	if err := t.mutate("Retire", key, mode); err != nil {
		return err
	}
	n, ok := t.store.nodes[key]
	if !ok {
		return fmt.Errorf("node %s: %w", key, graph.ErrNotFound)
	}
	for id, e := range t.store.edges {
		if e.from == key || e.to == key {
			delete(t.store.edges, id)
		}
	}
	if mode != models.RetireModeTombstone {
		delete(t.store.nodes, key)
		return nil
	}
	n.labels = append(n.labels, models.RetiredLabel)
	n.props[models.PropertyMergedInto] = mergedInto
	n.props[models.PropertyRetiredAt] = at.UTC().Format(time.RFC3339Nano)
	return nil
}

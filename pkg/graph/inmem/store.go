// Package inmem is an in-process property graph implementing graph.Store.
// Write transactions are serialized and roll back by restoring a snapshot.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

type node struct {
	seq    int64
	key    string
	labels []string
	props  map[string]any
}

func (n *node) hasLabel(label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *node) retired() bool {
	return n.hasLabel(models.RetiredLabel)
}

func (n *node) kind() models.EntityKind {
	for _, l := range n.labels {
		if k := models.EntityKind(l); k.IsValid() || k == models.AgentKind {
			return k
		}
	}
	return ""
}

type edge struct {
	seq   int64
	id    string
	typ   models.RelationshipType
	from  string
	to    string
	props map[string]any
}

// Store is safe for concurrent use
type Store struct {
	mu    sync.RWMutex
	seq   int64
	nodes map[string]*node
	edges map[string]*edge

	// FailOn, when set, is consulted before every mutation inside a write
	// transaction; a non-nil error aborts and rolls back that transaction.
	FailOn func(op string, args ...any) error
}

// New returns an empty store
func New() *Store {
	return &Store{
		nodes: make(map[string]*node),
		edges: make(map[string]*edge),
	}
}

func (s *Store) nextKey(prefix string) (string, int64) {
	s.seq++
	return prefix + strconv.FormatInt(s.seq, 10), s.seq
}

// AddEntity seeds an entity outside any transaction and returns its key
func (s *Store) AddEntity(e models.Entity) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNode([]string{string(e.Kind)}, models.EntityProperties(e))
}

// AddRelationship seeds an edge between two keys and returns its id
func (s *Store) AddRelationship(fromKey, toKey string, typ models.RelationshipType, props map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEdge(fromKey, toKey, typ, props)
}

func (s *Store) addNode(labels []string, props map[string]any) string {
	key, seq := s.nextKey("n")
	s.nodes[key] = &node{seq: seq, key: key, labels: labels, props: copyProps(props)}
	return key
}

func (s *Store) addEdge(from, to string, typ models.RelationshipType, props map[string]any) string {
	id, seq := s.nextKey("r")
	s.edges[id] = &edge{seq: seq, id: id, typ: typ, from: from, to: to, props: copyProps(props)}
	return id
}

// Node returns a copy of a node's labels and properties, retired or not
func (s *Store) Node(key string) ([]string, map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[key]
	if !ok {
		return nil, nil, false
	}
	return append([]string(nil), n.labels...), copyProps(n.props), true
}

// Relationships returns every edge touching key, for assertions
func (s *Store) Relationships(key string) []models.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationshipsOf(key)
}

// RelationshipCount returns the number of edges in the graph
func (s *Store) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// NodeCount returns the number of nodes carrying label, retired ones included
func (s *Store) NodeCount(label string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, nd := range s.nodes {
		if nd.hasLabel(label) {
			n++
		}
	}
	return n
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

// ExecuteWrite runs fn under the write lock and restores the prior state when fn fails
func (s *Store) ExecuteWrite(ctx context.Context, fn func(tx graph.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&tx{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// ExecuteRead runs fn with mutations disabled
func (s *Store) ExecuteRead(ctx context.Context, fn func(tx graph.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{store: s, readOnly: true})
}

func (s *Store) FindByAuthoritativeID(_ context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.live(kind) {
		e := s.entity(n)
		if e.HasAuthoritativeID(id) {
			return &e, nil
		}
	}
	return nil, nil
}

func (s *Store) FindByLocalID(_ context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prop := models.IDPropertyFor(kind)
	for _, n := range s.live(kind) {
		if models.AsString(n.props[prop]) == id {
			e := s.entity(n)
			return &e, nil
		}
	}
	return nil, nil
}

func (s *Store) FindByNameToken(_ context.Context, kind models.EntityKind, token string, limit int) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := models.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %s", kind)
	}

	var out []models.Entity
	for _, n := range s.live(kind) {
		if strings.Contains(strings.ToLower(models.AsString(n.props[schema.NameProperty])), token) {
			out = append(out, s.entity(n))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListEntities(_ context.Context, kind models.EntityKind) ([]models.EntitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := s.live(kind)
	out := make([]models.EntitySnapshot, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, models.EntitySnapshot{
			Entity:            s.entity(n),
			RelationshipCount: len(s.relationshipsOf(n.key)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Entity.LocalID < out[j].Entity.LocalID })
	return out, nil
}

// live returns non-retired nodes of kind in insertion order
func (s *Store) live(kind models.EntityKind) []*node {
	var out []*node
	for _, n := range s.nodes {
		if n.hasLabel(string(kind)) && !n.retired() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *Store) entity(n *node) models.Entity {
	e := models.EntityFromProperties(n.kind(), copyProps(n.props))
	e.Key = n.key
	return e
}

func (s *Store) ref(key string) models.NodeRef {
	n, ok := s.nodes[key]
	if !ok {
		return models.NodeRef{Key: key}
	}
	kind := n.kind()
	return models.NodeRef{Kind: kind, ID: models.AsString(n.props[models.IDPropertyFor(kind)]), Key: key}
}

func (s *Store) relationshipsOf(key string) []models.Relationship {
	var edges []*edge
	for _, e := range s.edges {
		if e.from == key || e.to == key {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].seq < edges[j].seq })

	out := make([]models.Relationship, 0, len(edges))
	for _, e := range edges {
		out = append(out, models.Relationship{
			ID:         e.id,
			Type:       e.typ,
			From:       s.ref(e.from),
			To:         s.ref(e.to),
			Properties: copyProps(e.props),
		})
	}
	return out
}

func (s *Store) findNode(kind models.EntityKind, id string) *node {
	prop := models.IDPropertyFor(kind)
	for _, n := range s.live(kind) {
		if models.AsString(n.props[prop]) == id {
			return n
		}
	}
	return nil
}

type state struct {
	seq   int64
	nodes map[string]*node
	edges map[string]*edge
}

func (s *Store) snapshot() state {
	st := state{seq: s.seq, nodes: make(map[string]*node, len(s.nodes)), edges: make(map[string]*edge, len(s.edges))}
	for k, n := range s.nodes {
		st.nodes[k] = &node{seq: n.seq, key: n.key, labels: append([]string(nil), n.labels...), props: copyProps(n.props)}
	}
	for k, e := range s.edges {
		cp := *e
		cp.props = copyProps(e.props)
		st.edges[k] = &cp
	}
	return st
}

func (s *Store) restore(st state) {
	s.seq = st.seq
	s.nodes = st.nodes
	s.edges = st.edges
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}

var _ graph.Store = (*Store)(nil)

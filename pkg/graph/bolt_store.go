package graph

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

type indexSpec struct {
	label    string
	property string
}

func indexSpecs() []indexSpec {
	specs := []indexSpec{{label: models.AgentLabel, property: "name"}}
	for _, kind := range models.Kinds() {
		schema, _ := models.SchemaFor(kind)
		specs = append(specs,
			indexSpec{label: string(kind), property: schema.IDProperty},
			indexSpec{label: string(kind), property: models.AuthoritativeIDProperty},
		)
	}
	return specs
}

// BoltStore implements Store against Memgraph or Neo4j.
// Node and relationship keys are the database's internal ids rendered as strings.
type BoltStore struct {
	client *Client
	logger ectologger.Logger
}

// NewBoltStore creates a store over an existing client
func NewBoltStore(client *Client, logger ectologger.Logger) *BoltStore {
	return &BoltStore{
		client: client,
		logger: logger,
	}
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.client.VerifyConnectivity(ctx)
}

func (s *BoltStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// ExecuteWrite runs fn in one write transaction. fn may be re-run on transient errors.
func (s *BoltStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&boltTx{tx: tx})
	})
	return err
}

// ExecuteRead runs fn in a read transaction; mutations return ErrReadOnly
func (s *BoltStore) ExecuteRead(ctx context.Context, fn func(tx Tx) error) error {
	_, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&boltTx{tx: tx, readOnly: true})
	})
	return err
}

func (s *BoltStore) FindByAuthoritativeID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.BoltStore.FindByAuthoritativeID")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE NOT n:%s AND (n.%s = $id OR $id IN coalesce(n.%s, []))
		RETURN n
		ORDER BY n.%s
		LIMIT 1
	`, sanitizeLabel(string(kind)), models.RetiredLabel, models.AuthoritativeIDProperty, models.AlternateIDsProperty, idProperty(kind))

	return s.findOne(ctx, cypher, map[string]any{"id": id})
}

func (s *BoltStore) FindByLocalID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.BoltStore.FindByLocalID")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (n:%s {%s: $id})
		WHERE NOT n:%s
		RETURN n
		LIMIT 1
	`, sanitizeLabel(string(kind)), idProperty(kind), models.RetiredLabel)

	return s.findOne(ctx, cypher, map[string]any{"id": id})
}

func (s *BoltStore) FindByNameToken(ctx context.Context, kind models.EntityKind, token string, limit int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.BoltStore.FindByNameToken")
	defer span.End()

	schema, ok := models.SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %s", kind)
	}

	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE NOT n:%s AND toLower(n.%s) CONTAINS $token
		RETURN n
		ORDER BY n.%s
		LIMIT $limit
	`, sanitizeLabel(string(kind)), models.RetiredLabel, schema.NameProperty, schema.IDProperty)

	var entities []models.Entity
	err := s.ExecuteRead(ctx, func(tx Tx) error {
		records, err := run(ctx, tx.(*boltTx).tx, cypher, map[string]any{"token": token, "limit": int64(limit)})
		if err != nil {
			return err
		}
		entities = make([]models.Entity, 0, len(records))
		for _, record := range records {
			if e, ok := recordEntity(record, "n"); ok {
				entities = append(entities, e)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load blocking candidates")
		return nil, fmt.Errorf("failed to find %s by name token: %w", kind, err)
	}
	return entities, nil
}

func (s *BoltStore) ListEntities(ctx context.Context, kind models.EntityKind) ([]models.EntitySnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.BoltStore.ListEntities")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE NOT n:%s
		OPTIONAL MATCH (n)-[r]-()
		RETURN n, count(r) AS rels
		ORDER BY n.%s
	`, sanitizeLabel(string(kind)), models.RetiredLabel, idProperty(kind))

	var snapshots []models.EntitySnapshot
	err := s.ExecuteRead(ctx, func(tx Tx) error {
		records, err := run(ctx, tx.(*boltTx).tx, cypher, nil)
		if err != nil {
			return err
		}
		snapshots = make([]models.EntitySnapshot, 0, len(records))
		for _, record := range records {
			e, ok := recordEntity(record, "n")
			if !ok {
				continue
			}
			rels, _ := record.Get("rels")
			snapshots = append(snapshots, models.EntitySnapshot{Entity: e, RelationshipCount: int(asInt64(rels))})
		}
		return nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list entities")
		return nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
	}
	return snapshots, nil
}

func (s *BoltStore) findOne(ctx context.Context, cypher string, params map[string]any) (*models.Entity, error) {
	var found *models.Entity
	err := s.ExecuteRead(ctx, func(tx Tx) error {
		records, err := run(ctx, tx.(*boltTx).tx, cypher, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if e, ok := recordEntity(records[0], "n"); ok {
			found = &e
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query graph: %w", err)
	}
	return found, nil
}

type boltTx struct {
	tx       neo4j.ManagedTransaction
	readOnly bool
}

func (t *boltTx) guard() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *boltTx) Entity(ctx context.Context, key string) (*models.Entity, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	records, err := run(ctx, t.tx, "MATCH (n) WHERE id(n) = $key RETURN n", map[string]any{"key": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("node %s: %w", key, ErrNotFound)
	}
	e, ok := recordEntity(records[0], "n")
	if !ok {
		return nil, fmt.Errorf("node %s is not an entity: %w", key, ErrNotFound)
	}
	return &e, nil
}

func (t *boltTx) Relationships(ctx context.Context, key string) ([]models.Relationship, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	records, err := run(ctx, t.tx, `
		MATCH (n)-[r]-()
		WHERE id(n) = $key
		RETURN r, startNode(r) AS s, endNode(r) AS e
	`, map[string]any{"key": id})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(records))
	rels := make([]models.Relationship, 0, len(records))
	for _, record := range records {
		rv, _ := record.Get("r")
		r, ok := rv.(neo4j.Relationship)
		if !ok || seen[r.Id] {
			continue
		}
		seen[r.Id] = true
		sv, _ := record.Get("s")
		ev, _ := record.Get("e")
		start, _ := sv.(neo4j.Node)
		end, _ := ev.(neo4j.Node)
		rels = append(rels, models.Relationship{
			ID:         formatKey(r.Id),
			Type:       models.RelationshipType(r.Type),
			From:       nodeRef(start),
			To:         nodeRef(end),
			Properties: r.Props,
		})
	}
	return rels, nil
}

// createdMarker is set only by ON CREATE and removed before the query returns,
// so "created" is true for this write alone and not for earlier writes in the same run
const createdMarker = "_fictotum_created"

func upsertEntityCypher(kind models.EntityKind) string {
	return fmt.Sprintf(`
		MERGE (n:%s {%s: $id})
		ON CREATE SET n += $props, n.created_at = $now, n.batch_id = $batch_id, n.source = $source, n.curator = $curator, n.%s = true
		ON MATCH SET n.updated_at = $now
		WITH n, coalesce(n.%s, false) AS created
		REMOVE n.%s
		RETURN created
	`, sanitizeLabel(string(kind)), idProperty(kind), createdMarker, createdMarker, createdMarker)
}

func mergeRelationshipCypher(rel models.Relationship) string {
	return fmt.Sprintf(`
		MATCH (a:%s {%s: $from})
		WHERE NOT a:%s
		MATCH (b:%s {%s: $to})
		WHERE NOT b:%s
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r += $props, r.batch_id = $batch_id, r.created_at = $now, r.source = $source, r.%s = true
		WITH r, coalesce(r.%s, false) AS created
		REMOVE r.%s
		RETURN created
	`,
		sanitizeLabel(string(rel.From.Kind)), idProperty(rel.From.Kind), models.RetiredLabel,
		sanitizeLabel(string(rel.To.Kind)), idProperty(rel.To.Kind), models.RetiredLabel,
		sanitizeLabel(string(rel.Type)), createdMarker, createdMarker, createdMarker)
}

func (t *boltTx) UpsertEntity(ctx context.Context, entity models.Entity, prov Provenance) (bool, error) {
	if err := t.guard(); err != nil {
		return false, err
	}
	props := models.EntityProperties(entity)
	delete(props, models.PropertyCreatedAt)
	delete(props, models.PropertyUpdatedAt)
	now := prov.At.UTC().Format(time.RFC3339Nano)

	records, err := run(ctx, t.tx, upsertEntityCypher(entity.Kind), map[string]any{
		"id":       entity.LocalID,
		"props":    props,
		"now":      now,
		"batch_id": prov.BatchID,
		"source":   prov.Source,
		"curator":  prov.Curator,
	})
	if err != nil {
		return false, err
	}
	return len(records) > 0 && recordBool(records[0], "created"), nil
}

func (t *boltTx) EnsureAgent(ctx context.Context, name string, prov Provenance) error {
	if err := t.guard(); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MERGE (a:%s {name: $name}) ON CREATE SET a.created_at = $now", models.AgentLabel)
	_, err := run(ctx, t.tx, cypher, map[string]any{"name": name, "now": prov.At.UTC().Format(time.RFC3339Nano)})
	return err
}

func (t *boltTx) MergeRelationship(ctx context.Context, rel models.Relationship, prov Provenance) (bool, error) {
	if err := t.guard(); err != nil {
		return false, err
	}
	now := prov.At.UTC().Format(time.RFC3339Nano)
	cypher := mergeRelationshipCypher(rel)

	props := rel.Properties
	if props == nil {
		props = map[string]any{}
	}
	records, err := run(ctx, t.tx, cypher, map[string]any{
		"from":     rel.From.ID,
		"to":       rel.To.ID,
		"props":    props,
		"now":      now,
		"batch_id": prov.BatchID,
		"source":   prov.Source,
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, fmt.Errorf("%s %s -> %s %s: %w", rel.From.Kind, rel.From.ID, rel.To.Kind, rel.To.ID, ErrEndpointNotFound)
	}
	return recordBool(records[0], "created"), nil
}

func (t *boltTx) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	if err := t.guard(); err != nil {
		return err
	}
	from, err := parseKey(rel.From.Key)
	if err != nil {
		return err
	}
	to, err := parseKey(rel.To.Key)
	if err != nil {
		return err
	}
	props := rel.Properties
	if props == nil {
		props = map[string]any{}
	}

	cypher := fmt.Sprintf(`
		MATCH (a) WHERE id(a) = $from
		MATCH (b) WHERE id(b) = $to
		CREATE (a)-[r:%s]->(b)
		SET r = $props
		RETURN id(r) AS id
	`, sanitizeLabel(string(rel.Type)))

	records, err := run(ctx, t.tx, cypher, map[string]any{"from": from, "to": to, "props": props})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s -> %s: %w", rel.From.Key, rel.To.Key, ErrEndpointNotFound)
	}
	return nil
}

func (t *boltTx) UpdateRelationshipProperties(ctx context.Context, id string, props map[string]any) error {
	if err := t.guard(); err != nil {
		return err
	}
	rid, err := parseKey(id)
	if err != nil {
		return err
	}
	_, err = run(ctx, t.tx, "MATCH ()-[r]->() WHERE id(r) = $id SET r += $props", map[string]any{"id": rid, "props": props})
	return err
}

func (t *boltTx) DeleteRelationship(ctx context.Context, id string) error {
	if err := t.guard(); err != nil {
		return err
	}
	rid, err := parseKey(id)
	if err != nil {
		return err
	}
	_, err = run(ctx, t.tx, "MATCH ()-[r]->() WHERE id(r) = $id DELETE r", map[string]any{"id": rid})
	return err
}

func (t *boltTx) SetProperties(ctx context.Context, key string, props map[string]any) error {
	if err := t.guard(); err != nil {
		return err
	}
	if len(props) == 0 {
		return nil
	}
	id, err := parseKey(key)
	if err != nil {
		return err
	}
	_, err = run(ctx, t.tx, "MATCH (n) WHERE id(n) = $key SET n += $props", map[string]any{"key": id, "props": props})
	return err
}

func (t *boltTx) RepointReferences(ctx context.Context, ref models.CrossReference, fromID, toID string) (int, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}
	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE n.%s = $from AND NOT n:%s
		SET n.%s = $to
		RETURN count(n) AS updated
	`, sanitizeLabel(ref.Label), sanitizeLabel(ref.Property), models.RetiredLabel, sanitizeLabel(ref.Property))

	records, err := run(ctx, t.tx, cypher, map[string]any{"from": fromID, "to": toID})
	if err != nil || len(records) == 0 {
		return 0, err
	}
	n, _ := records[0].Get("updated")
	return int(asInt64(n)), nil
}

func (t *boltTx) CountReferences(ctx context.Context, ref models.CrossReference, id string) (int, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE n.%s = $id AND NOT n:%s
		RETURN count(n) AS total
	`, sanitizeLabel(ref.Label), sanitizeLabel(ref.Property), models.RetiredLabel)

	records, err := run(ctx, t.tx, cypher, map[string]any{"id": id})
	if err != nil || len(records) == 0 {
		return 0, err
	}
	n, _ := records[0].Get("total")
	return int(asInt64(n)), nil
}

func (t *boltTx) Retire(ctx context.Context, key string, mode models.RetireMode, mergedInto string, at time.Time) error {
	if err := t.guard(); err != nil {
		return err
	}
	id, err := parseKey(key)
	if err != nil {
		return err
	}

	if mode != models.RetireModeTombstone {
		_, err = run(ctx, t.tx, "MATCH (n) WHERE id(n) = $key DETACH DELETE n", map[string]any{"key": id})
		return err
	}

	if _, err := run(ctx, t.tx, "MATCH (n)-[r]-() WHERE id(n) = $key DELETE r", map[string]any{"key": id}); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MATCH (n) WHERE id(n) = $key SET n:%s, n.%s = $into, n.%s = $at",
		models.RetiredLabel, models.PropertyMergedInto, models.PropertyRetiredAt)
	_, err = run(ctx, t.tx, cypher, map[string]any{"key": id, "into": mergedInto, "at": at.UTC().Format(time.RFC3339Nano)})
	return err
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func idProperty(kind models.EntityKind) string {
	return sanitizeLabel(models.IDPropertyFor(kind))
}

func parseKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid graph key %q: %w", key, ErrNotFound)
	}
	return id, nil
}

func formatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nodeKind(node neo4j.Node) (models.EntityKind, bool) {
	for _, label := range node.Labels {
		if kind := models.EntityKind(label); kind.IsValid() || kind == models.AgentKind {
			return kind, true
		}
	}
	return "", false
}

func nodeRef(node neo4j.Node) models.NodeRef {
	kind, _ := nodeKind(node)
	return models.NodeRef{
		Kind: kind,
		ID:   models.AsString(node.Props[models.IDPropertyFor(kind)]),
		Key:  formatKey(node.Id),
	}
}

func recordEntity(record *neo4j.Record, column string) (models.Entity, bool) {
	v, ok := record.Get(column)
	if !ok {
		return models.Entity{}, false
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return models.Entity{}, false
	}
	kind, ok := nodeKind(node)
	if !ok || kind == models.AgentKind {
		return models.Entity{}, false
	}
	e := models.EntityFromProperties(kind, node.Props)
	e.Key = formatKey(node.Id)
	return e, true
}

func recordBool(record *neo4j.Record, column string) bool {
	v, _ := record.Get(column)
	b, _ := v.(bool)
	return b
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

var _ Store = (*BoltStore)(nil)

package graph

import (
	"context"
	"errors"
	"time"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

var (
	// ErrEndpointNotFound is returned when a relationship endpoint is missing or retired
	ErrEndpointNotFound = errors.New("relationship endpoint not found")
	// ErrNotFound is returned when a node or relationship key does not resolve
	ErrNotFound = errors.New("graph element not found")
	// ErrReadOnly is returned by mutations attempted inside a read transaction
	ErrReadOnly = errors.New("graph transaction is read-only")
)

// Reader is the read view shared by the matcher, importer and merge sweep.
// Retired (tombstoned) nodes are never returned.
type Reader interface {
	FindByAuthoritativeID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)
	FindByLocalID(ctx context.Context, kind models.EntityKind, id string) (*models.Entity, error)
	FindByNameToken(ctx context.Context, kind models.EntityKind, token string, limit int) ([]models.Entity, error)
	ListEntities(ctx context.Context, kind models.EntityKind) ([]models.EntitySnapshot, error)
}

// Provenance is stamped on nodes and relationships written by an import
type Provenance struct {
	BatchID string
	Source  string
	Curator string
	At      time.Time
}

// Tx is one unit of work. Every method runs inside the same storage transaction.
type Tx interface {
	// Entity re-reads a node by storage key, retired or not.
	Entity(ctx context.Context, key string) (*models.Entity, error)
	// Relationships returns every edge touching the node, both directions.
	Relationships(ctx context.Context, key string) ([]models.Relationship, error)

	UpsertEntity(ctx context.Context, entity models.Entity, prov Provenance) (bool, error)
	EnsureAgent(ctx context.Context, name string, prov Provenance) error
	// MergeRelationship links endpoints by kind and local id, creating the edge only once.
	MergeRelationship(ctx context.Context, rel models.Relationship, prov Provenance) (bool, error)

	// CreateRelationship links endpoints by storage key.
	CreateRelationship(ctx context.Context, rel models.Relationship) error
	UpdateRelationshipProperties(ctx context.Context, id string, props map[string]any) error
	DeleteRelationship(ctx context.Context, id string) error
	SetProperties(ctx context.Context, key string, props map[string]any) error
	RepointReferences(ctx context.Context, ref models.CrossReference, fromID, toID string) (int, error)
	CountReferences(ctx context.Context, ref models.CrossReference, id string) (int, error)
	Retire(ctx context.Context, key string, mode models.RetireMode, mergedInto string, at time.Time) error
}

// Store is a graph backend. ExecuteWrite commits when fn returns nil and rolls back otherwise.
type Store interface {
	Reader
	ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error
	ExecuteRead(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

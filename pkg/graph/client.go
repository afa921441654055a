// Package graph stores canonical entities in a Memgraph/Neo4j property graph over Bolt
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
)

// Client wraps the Neo4j driver for Memgraph compatibility
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	dialect  Dialect
	logger   ectologger.Logger
}

// Dialect selects the Cypher variant for DDL statements
type Dialect string

const (
	DialectMemgraph Dialect = "memgraph"
	DialectNeo4j    Dialect = "neo4j"
)

// Config holds graph database configuration
type Config struct {
	URI      string // overrides Scheme/Host/Port when set
	Scheme   string // bolt, neo4j, neo4j+s (default: bolt)
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Dialect  Dialect // default: memgraph
}

// NewClient creates a new graph database client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	uri := cfg.URI
	if uri == "" {
		scheme := cfg.Scheme
		if scheme == "" {
			scheme = "bolt"
		}
		uri = fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectMemgraph
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		dialect:  dialect,
		logger:   logger,
	}, nil
}

// Close closes the driver connection
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Session creates a new session with the given access mode
func (c *Client) Session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode,
		DatabaseName: c.database,
	})
}

// ExecuteWrite runs a write transaction. The driver retries transient failures.
func (c *Client) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}

// ExecuteRead runs a read transaction
func (c *Client) ExecuteRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteRead")
	defer span.End()

	session := c.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	return session.ExecuteRead(ctx, work)
}

// EnsureIndexes creates the lookup indexes the store relies on. Safe to repeat.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.EnsureIndexes")
	defer span.End()

	var statements []string
	for _, idx := range indexSpecs() {
		label, prop := sanitizeLabel(idx.label), sanitizeLabel(idx.property)
		if c.dialect == DialectMemgraph {
			statements = append(statements, fmt.Sprintf("CREATE INDEX ON :%s(%s)", label, prop))
			continue
		}
		statements = append(statements, fmt.Sprintf("CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.%s)", label, prop))
	}

	// Index DDL must run in auto-commit transactions on Memgraph.
	session := c.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range statements {
		result, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("statement", stmt).Error("Failed to ensure graph index")
			return fmt.Errorf("failed to ensure graph index: %w", err)
		}
	}
	return nil
}

// sanitizeLabel ensures the label is safe for Cypher
func sanitizeLabel(label string) string {
	result := make([]rune, 0, len(label))
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		}
	}
	if len(result) == 0 {
		return "Entity"
	}
	return string(result)
}

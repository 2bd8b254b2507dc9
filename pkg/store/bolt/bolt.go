// Package bolt implements the NodeStore on a graph database reached over the
// Bolt protocol. Both supported backends, Neo4j and Memgraph, speak Bolt, so
// the backend selector only tunes connection defaults.
package bolt

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// Backend names accepted by Config.Backend.
const (
	BackendNeo4j    = "neo4j"
	BackendMemgraph = "memgraph"
)

// Config describes the graph database connection.
type Config struct {
	// Backend is "neo4j" or "memgraph".
	Backend  string
	URI      string
	Username string
	Password string
	// Database is the database name; ignored by Memgraph, defaults to
	// "neo4j" on Neo4j when empty.
	Database string
}

// Store is a NodeStore backed by a Bolt graph database.
type Store struct {
	driver  neo4j.DriverWithContext
	session neo4j.SessionWithContext
}

// Open connects to the configured backend and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Backend {
	case BackendNeo4j, BackendMemgraph:
	default:
		return nil, fmt.Errorf("bolt: unknown backend %q", cfg.Backend)
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("bolt: failed to create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}

	sessionCfg := neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite}
	if cfg.Backend == BackendNeo4j && cfg.Database != "" {
		sessionCfg.DatabaseName = cfg.Database
	}

	return &Store{
		driver:  driver,
		session: driver.NewSession(ctx, sessionCfg),
	}, nil
}

// Close releases the session and driver.
func (s *Store) Close(ctx context.Context) error {
	if s.session != nil {
		if err := s.session.Close(ctx); err != nil {
			return fmt.Errorf("bolt: failed to close session: %w", err)
		}
	}
	if s.driver != nil {
		if err := s.driver.Close(ctx); err != nil {
			return fmt.Errorf("bolt: failed to close driver: %w", err)
		}
	}
	return nil
}

// run executes a single statement and collects its records. Driver errors
// are reported as backend unavailability: from the resolver's point of view
// any failing store call is fatal for the current harvest run.
func (s *Store) run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := s.session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return records, nil
}

var _ store.NodeStore = (*Store)(nil)

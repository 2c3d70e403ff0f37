// Package graph implements the ArangoDB adapters for the record graph.
package graph

import (
	"context"
	"fmt"

	driver "github.com/arangodb/go-driver"
	arangohttp "github.com/arangodb/go-driver/http"
)

// NewDatabase connects to ArangoDB and returns a handle to the named
// database, creating it when it does not exist yet.
func NewDatabase(ctx context.Context, endpoints []string, username, password, name string) (driver.Database, error) {
	conn, err := arangohttp.NewConnection(arangohttp.ConnectionConfig{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ArangoDB connection: %w", err)
	}

	cfg := driver.ClientConfig{Connection: conn}
	if username != "" {
		cfg.Authentication = driver.BasicAuthentication(username, password)
	}

	client, err := driver.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ArangoDB client: %w", err)
	}

	exists, err := client.DatabaseExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check ArangoDB database: %w", err)
	}
	if !exists {
		if _, err := client.CreateDatabase(ctx, name, nil); err != nil {
			return nil, fmt.Errorf("failed to create ArangoDB database: %w", err)
		}
	}

	db, err := client.Database(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open ArangoDB database: %w", err)
	}
	return db, nil
}

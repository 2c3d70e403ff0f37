// Package out defines the outbound ports the core services depend on.
package out

import (
	"context"

	"github.com/rish231294/pipeshub-ai/core/domain"
)

// =============================================================================
// Graph Store Port
// =============================================================================

// GraphTransactions controls stream transactions over declared collections.
// An empty transaction id on a write means the write runs standalone.
type GraphTransactions interface {
	// BeginTransaction opens a stream transaction touching the given
	// collections and returns its id.
	BeginTransaction(ctx context.Context, readCols, writeCols []string) (string, error)
	CommitTransaction(ctx context.Context, txID string) error
	AbortTransaction(ctx context.Context, txID string) error
}

// GraphWriter writes vertices and edges, optionally inside a transaction.
type GraphWriter interface {
	// BatchUpsertVertices inserts or updates rows matched on _key.
	BatchUpsertVertices(ctx context.Context, collection string, rows []any, txID string) error
	// BatchCreateEdges creates edges; duplicates with the same
	// from/to/relationType coalesce to a single edge.
	BatchCreateEdges(ctx context.Context, collection string, edges []domain.Edge, txID string) error
}

// GraphReader resolves documents and keys. Lookups that find nothing return
// zero values without an error; errors mean the store itself failed.
type GraphReader interface {
	GetDocument(ctx context.Context, collection, key string) (map[string]any, error)
	GetByExternalID(ctx context.Context, collection, externalID string) (map[string]any, error)
	KeyByExternalMessageID(ctx context.Context, externalMessageID string) (string, error)
	KeyByExternalFileID(ctx context.Context, externalFileID string) (string, error)
	// EntityIDByEmail returns "users/<key>" or "groups/<key>", or "" when
	// the email matches neither collection.
	EntityIDByEmail(ctx context.Context, email string) (string, error)
	GetRecordByKey(ctx context.Context, key string) (*domain.Record, error)
}

// SyncStateStore persists controller progress and watch registrations.
type SyncStateStore interface {
	// GetSyncState returns the user-level entry, defaulting to NOT_STARTED
	// when none is stored yet.
	GetSyncState(ctx context.Context, email, serviceType string) (*domain.SyncStateEntry, error)
	UpdateSyncState(ctx context.Context, email, serviceType string, state domain.SyncState) error
	GetDriveSyncState(ctx context.Context, email, driveID string) (domain.SyncState, error)
	UpdateDriveSyncState(ctx context.Context, email, driveID string, state domain.SyncState) error
	// StoreChannel replaces the watch registration for (email, serviceType).
	StoreChannel(ctx context.Context, ch *domain.Channel) error
	// StorePageToken updates the drive changes cursor on a stored channel.
	StorePageToken(ctx context.Context, channelID, resourceID, email, token string) error
	// ListExpiringChannels returns channels whose expiry falls before the
	// given epoch-millisecond deadline.
	ListExpiringChannels(ctx context.Context, before int64) ([]*domain.Channel, error)
}

// RecordGraph is the store surface the batch transformers need.
type RecordGraph interface {
	GraphTransactions
	GraphWriter
	GraphReader
}

// GraphStore is the full property-graph port the sync core writes through.
type GraphStore interface {
	GraphTransactions
	GraphWriter
	GraphReader
	SyncStateStore
}

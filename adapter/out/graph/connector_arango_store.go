package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	driver "github.com/arangodb/go-driver"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// ArangoStore
// =============================================================================

// ArangoStore persists the record graph in ArangoDB: named vertex and edge
// collections, _key upserts, and stream transactions declared over the
// collections each batch touches.
type ArangoStore struct {
	db  driver.Database
	log *logger.Logger
}

var _ out.GraphStore = (*ArangoStore)(nil)

func NewArangoStore(db driver.Database, log *logger.Logger) *ArangoStore {
	if log == nil {
		log = logger.Default()
	}
	return &ArangoStore{db: db, log: log}
}

// =============================================================================
// Schema
// =============================================================================

var vertexCollections = []string{
	domain.CollUsers,
	domain.CollGroups,
	domain.CollPeople,
	domain.CollOrganizations,
	domain.CollAnyone,
	domain.CollDrives,
	domain.CollFiles,
	domain.CollMails,
	domain.CollAttachments,
	domain.CollRecords,
	domain.CollSyncStates,
	domain.CollChannels,
}

var edgeCollections = []string{
	domain.CollRecordRelations,
	domain.CollPermissions,
	domain.CollBelongsTo,
	domain.CollUserDriveRelation,
}

type indexSpec struct {
	collection string
	fields     []string
	unique     bool
	sparse     bool
}

var graphIndexes = []indexSpec{
	{domain.CollUsers, []string{"email"}, true, false},
	{domain.CollGroups, []string{"email"}, true, false},
	{domain.CollPeople, []string{"email"}, true, false},
	{domain.CollMails, []string{"externalId"}, true, true},
	{domain.CollFiles, []string{"externalId"}, true, true},
	{domain.CollAttachments, []string{"externalId"}, true, true},
	{domain.CollDrives, []string{"externalId"}, true, true},
	{domain.CollRecords, []string{"externalRecordId"}, false, true},
	{domain.CollSyncStates, []string{"email", "serviceType", "driveId"}, true, false},
	{domain.CollChannels, []string{"principalEmail", "serviceType"}, true, false},
	{domain.CollChannels, []string{"expiry"}, false, false},
}

// EnsureCollections creates every vertex and edge collection plus the
// lookup indexes. Safe to call on every startup.
func (a *ArangoStore) EnsureCollections(ctx context.Context) error {
	for _, name := range vertexCollections {
		if err := a.ensureCollection(ctx, name, nil); err != nil {
			return err
		}
	}
	for _, name := range edgeCollections {
		opts := &driver.CreateCollectionOptions{Type: driver.CollectionTypeEdge}
		if err := a.ensureCollection(ctx, name, opts); err != nil {
			return err
		}
	}

	for _, spec := range graphIndexes {
		col, err := a.db.Collection(ctx, spec.collection)
		if err != nil {
			return fmt.Errorf("failed to open collection %s: %w", spec.collection, err)
		}
		_, _, err = col.EnsurePersistentIndex(ctx, spec.fields, &driver.EnsurePersistentIndexOptions{
			Unique: spec.unique,
			Sparse: spec.sparse,
			Name:   fmt.Sprintf("idx_%s_%s", spec.collection, strings.Join(spec.fields, "_")),
		})
		if err != nil {
			return fmt.Errorf("failed to ensure index on %s(%s): %w", spec.collection, strings.Join(spec.fields, ","), err)
		}
	}

	a.log.Info("[ArangoStore.EnsureCollections] ensured %d vertex and %d edge collections", len(vertexCollections), len(edgeCollections))
	return nil
}

func (a *ArangoStore) ensureCollection(ctx context.Context, name string, opts *driver.CreateCollectionOptions) error {
	exists, err := a.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := a.db.CreateCollection(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

func (a *ArangoStore) BeginTransaction(ctx context.Context, readCols, writeCols []string) (string, error) {
	txID, err := a.db.BeginTransaction(ctx, driver.TransactionCollections{
		Read:  readCols,
		Write: writeCols,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	return string(txID), nil
}

func (a *ArangoStore) CommitTransaction(ctx context.Context, txID string) error {
	if err := a.db.CommitTransaction(ctx, driver.TransactionID(txID), nil); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", txID, err)
	}
	return nil
}

func (a *ArangoStore) AbortTransaction(ctx context.Context, txID string) error {
	if err := a.db.AbortTransaction(ctx, driver.TransactionID(txID), nil); err != nil {
		return fmt.Errorf("failed to abort transaction %s: %w", txID, err)
	}
	return nil
}

// =============================================================================
// Writes
// =============================================================================

const upsertVerticesQuery = `
	FOR row IN @rows
		UPSERT { _key: row._key }
		INSERT row
		UPDATE row
		IN @@collection
`

func (a *ArangoStore) BatchUpsertVertices(ctx context.Context, collection string, rows []any, txID string) error {
	if len(rows) == 0 {
		return nil
	}
	bindVars := map[string]any{
		"@collection": collection,
		"rows":        rows,
	}
	if err := a.execute(a.txnCtx(ctx, txID), upsertVerticesQuery, bindVars); err != nil {
		return fmt.Errorf("failed to upsert %d rows into %s: %w", len(rows), collection, err)
	}
	return nil
}

// Duplicate edges coalesce on (_from, _to, relationType); the update path
// must not touch the immutable endpoint attributes.
const upsertEdgesQuery = `
	FOR edge IN @edges
		FILTER edge._from != edge._to
		UPSERT { _from: edge._from, _to: edge._to, relationType: edge.relationType }
		INSERT edge
		UPDATE UNSET(edge, "_from", "_to")
		IN @@collection
`

func (a *ArangoStore) BatchCreateEdges(ctx context.Context, collection string, edges []domain.Edge, txID string) error {
	if len(edges) == 0 {
		return nil
	}
	bindVars := map[string]any{
		"@collection": collection,
		"edges":       edges,
	}
	if err := a.execute(a.txnCtx(ctx, txID), upsertEdgesQuery, bindVars); err != nil {
		return fmt.Errorf("failed to upsert %d edges into %s: %w", len(edges), collection, err)
	}
	return nil
}

// =============================================================================
// Reads
// =============================================================================

func (a *ArangoStore) GetDocument(ctx context.Context, collection, key string) (map[string]any, error) {
	col, err := a.db.Collection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	var doc map[string]any
	if _, err := col.ReadDocument(ctx, key, &doc); err != nil {
		if driver.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (a *ArangoStore) GetByExternalID(ctx context.Context, collection, externalID string) (map[string]any, error) {
	query := `
		FOR doc IN @@collection
			FILTER doc.externalId == @externalId
			LIMIT 1
			RETURN doc
	`
	bindVars := map[string]any{
		"@collection": collection,
		"externalId":  externalID,
	}

	var doc map[string]any
	found, err := a.readOne(ctx, query, bindVars, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s by externalId: %w", collection, err)
	}
	if !found {
		return nil, nil
	}
	return doc, nil
}

func (a *ArangoStore) KeyByExternalMessageID(ctx context.Context, externalMessageID string) (string, error) {
	return a.keyByExternalID(ctx, domain.CollMails, externalMessageID)
}

func (a *ArangoStore) KeyByExternalFileID(ctx context.Context, externalFileID string) (string, error) {
	return a.keyByExternalID(ctx, domain.CollFiles, externalFileID)
}

func (a *ArangoStore) keyByExternalID(ctx context.Context, collection, externalID string) (string, error) {
	query := `
		FOR doc IN @@collection
			FILTER doc.externalId == @externalId
			LIMIT 1
			RETURN doc._key
	`
	bindVars := map[string]any{
		"@collection": collection,
		"externalId":  externalID,
	}

	var key string
	found, err := a.readOne(ctx, query, bindVars, &key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve key in %s: %w", collection, err)
	}
	if !found {
		return "", nil
	}
	return key, nil
}

const entityByEmailQuery = `
	LET userId = FIRST(
		FOR doc IN users
			FILTER LOWER(doc.email) == @email
			LIMIT 1
			RETURN doc._id
	)
	LET groupId = FIRST(
		FOR doc IN groups
			FILTER LOWER(doc.email) == @email
			LIMIT 1
			RETURN doc._id
	)
	RETURN userId != null ? userId : (groupId != null ? groupId : "")
`

func (a *ArangoStore) EntityIDByEmail(ctx context.Context, email string) (string, error) {
	bindVars := map[string]any{"email": strings.ToLower(email)}

	var entityID string
	if _, err := a.readOne(ctx, entityByEmailQuery, bindVars, &entityID); err != nil {
		return "", fmt.Errorf("failed to resolve entity for %s: %w", email, err)
	}
	return entityID, nil
}

func (a *ArangoStore) GetRecordByKey(ctx context.Context, key string) (*domain.Record, error) {
	col, err := a.db.Collection(ctx, domain.CollRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", domain.CollRecords, err)
	}

	var record domain.Record
	if _, err := col.ReadDocument(ctx, key, &record); err != nil {
		if driver.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	return &record, nil
}

// =============================================================================
// Sync State
// =============================================================================

const syncStateQuery = `
	FOR s IN syncStates
		FILTER s.email == @email AND s.serviceType == @serviceType AND s.driveId == @driveId
		LIMIT 1
		RETURN s
`

func (a *ArangoStore) GetSyncState(ctx context.Context, email, serviceType string) (*domain.SyncStateEntry, error) {
	bindVars := map[string]any{
		"email":       email,
		"serviceType": serviceType,
		"driveId":     "",
	}

	var entry domain.SyncStateEntry
	found, err := a.readOne(ctx, syncStateQuery, bindVars, &entry)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for %s/%s: %w", email, serviceType, err)
	}
	if !found {
		return &domain.SyncStateEntry{
			Email:       email,
			ServiceType: serviceType,
			State:       domain.SyncNotStarted,
		}, nil
	}
	return &entry, nil
}

func (a *ArangoStore) UpdateSyncState(ctx context.Context, email, serviceType string, state domain.SyncState) error {
	return a.upsertSyncState(ctx, email, serviceType, "", state)
}

func (a *ArangoStore) GetDriveSyncState(ctx context.Context, email, driveID string) (domain.SyncState, error) {
	bindVars := map[string]any{
		"email":       email,
		"serviceType": domain.ServiceDrive,
		"driveId":     driveID,
	}

	var entry domain.SyncStateEntry
	found, err := a.readOne(ctx, syncStateQuery, bindVars, &entry)
	if err != nil {
		return "", fmt.Errorf("failed to get drive sync state for %s/%s: %w", email, driveID, err)
	}
	if !found {
		return domain.SyncNotStarted, nil
	}
	return entry.State, nil
}

func (a *ArangoStore) UpdateDriveSyncState(ctx context.Context, email, driveID string, state domain.SyncState) error {
	return a.upsertSyncState(ctx, email, domain.ServiceDrive, driveID, state)
}

const upsertSyncStateQuery = `
	UPSERT { email: @email, serviceType: @serviceType, driveId: @driveId }
	INSERT @entry
	UPDATE { syncState: @state, updatedAt: @now }
	IN syncStates
`

func (a *ArangoStore) upsertSyncState(ctx context.Context, email, serviceType, driveID string, state domain.SyncState) error {
	now := time.Now().UnixMilli()
	bindVars := map[string]any{
		"email":       email,
		"serviceType": serviceType,
		"driveId":     driveID,
		"state":       string(state),
		"now":         now,
		"entry": &domain.SyncStateEntry{
			Email:       email,
			ServiceType: serviceType,
			DriveID:     driveID,
			State:       state,
			UpdatedAt:   now,
		},
	}
	if err := a.execute(ctx, upsertSyncStateQuery, bindVars); err != nil {
		return fmt.Errorf("failed to update sync state for %s/%s: %w", email, serviceType, err)
	}
	return nil
}

// =============================================================================
// Channels
// =============================================================================

// StoreChannel replaces the stored registration wholesale so stale cursor
// or history fields from a previous registration never survive.
const storeChannelQuery = `
	UPSERT { principalEmail: @email, serviceType: @serviceType }
	INSERT @channel
	REPLACE @channel
	IN channels
`

func (a *ArangoStore) StoreChannel(ctx context.Context, ch *domain.Channel) error {
	bindVars := map[string]any{
		"email":       ch.Email,
		"serviceType": ch.ServiceType,
		"channel":     ch,
	}
	if err := a.execute(ctx, storeChannelQuery, bindVars); err != nil {
		return fmt.Errorf("failed to store channel for %s/%s: %w", ch.Email, ch.ServiceType, err)
	}
	return nil
}

const storePageTokenQuery = `
	FOR c IN channels
		FILTER c.channelId == @channelId
			AND c.resourceId == @resourceId
			AND c.principalEmail == @email
		UPDATE c WITH { pageToken: @token } IN channels
`

func (a *ArangoStore) StorePageToken(ctx context.Context, channelID, resourceID, email, token string) error {
	bindVars := map[string]any{
		"channelId":  channelID,
		"resourceId": resourceID,
		"email":      email,
		"token":      token,
	}
	if err := a.execute(ctx, storePageTokenQuery, bindVars); err != nil {
		return fmt.Errorf("failed to store page token for %s: %w", email, err)
	}
	return nil
}

const expiringChannelsQuery = `
	FOR c IN channels
		FILTER c.expiry < @before
		SORT c.expiry ASC
		RETURN c
`

func (a *ArangoStore) ListExpiringChannels(ctx context.Context, before int64) ([]*domain.Channel, error) {
	cursor, err := a.db.Query(ctx, expiringChannelsQuery, map[string]any{"before": before})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring channels: %w", err)
	}
	defer cursor.Close()

	var channels []*domain.Channel
	for cursor.HasMore() {
		var ch domain.Channel
		if _, err := cursor.ReadDocument(ctx, &ch); err != nil {
			return nil, fmt.Errorf("failed to read channel: %w", err)
		}
		channels = append(channels, &ch)
	}
	return channels, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (a *ArangoStore) txnCtx(ctx context.Context, txID string) context.Context {
	if txID == "" {
		return ctx
	}
	return driver.WithTransactionID(ctx, driver.TransactionID(txID))
}

// readOne runs a query expected to yield at most one result and reports
// whether a result was found.
func (a *ArangoStore) readOne(ctx context.Context, query string, bindVars map[string]any, result any) (bool, error) {
	cursor, err := a.db.Query(ctx, query, bindVars)
	if err != nil {
		return false, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return false, nil
	}
	if _, err := cursor.ReadDocument(ctx, result); err != nil {
		return false, err
	}
	return true, nil
}

// execute runs a data-modification query and discards the cursor.
func (a *ArangoStore) execute(ctx context.Context, query string, bindVars map[string]any) error {
	cursor, err := a.db.Query(ctx, query, bindVars)
	if err != nil {
		return err
	}
	return cursor.Close()
}

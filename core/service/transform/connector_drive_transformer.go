package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// Drive Batch Transform
// =============================================================================

// FileBatchResult reports what one committed file batch produced.
type FileBatchResult struct {
	Events          []*domain.RecordEvent
	NewRecords      int
	SkippedExisting int
}

// DriveTransformer mirrors drive containers and file metadata pages into
// the graph.
type DriveTransformer struct {
	store    out.RecordGraph
	resolver *PrincipalResolver
	routes   RecordRoutes
	log      *logger.Logger
}

// NewDriveTransformer creates a new drive transformer.
func NewDriveTransformer(store out.RecordGraph, resolver *PrincipalResolver, routes RecordRoutes, log *logger.Logger) *DriveTransformer {
	if log == nil {
		log = logger.Default()
	}
	return &DriveTransformer{
		store:    store,
		resolver: resolver,
		routes:   routes,
		log:      log,
	}
}

// TransformDrive mirrors the drive container itself: drives row + files row
// + records row sharing one key, a userDriveRelation edge carrying the
// access level and a HAS_ACCESS edge from the drive record back to the
// syncing user (WRITER iff the user can write, else VIEWER). The container
// emits no record event. Returns the drive's graph key.
func (t *DriveTransformer) TransformDrive(ctx context.Context, orgID, userEmail string, drive *out.ProviderDriveInfo) (string, error) {
	if drive == nil || drive.ID == "" {
		return "", fmt.Errorf("drive info missing id")
	}

	// Reuse the key when the drive was mirrored before.
	existing, err := t.store.GetByExternalID(ctx, domain.CollDrives, drive.ID)
	if err != nil {
		return "", fmt.Errorf("lookup drive %s: %w", drive.ID, err)
	}
	key := ""
	if existing != nil {
		key, _ = existing["_key"].(string)
	}
	if key == "" {
		key = uuid.New().String()
	}

	userEntityID, err := t.store.EntityIDByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", userEmail, err)
	}
	if userEntityID == "" {
		t.log.Warn("[DriveTransformer.TransformDrive] user %s not mirrored yet, drive %s gets no access edges", userEmail, drive.ID)
	}

	now := time.Now().UnixMilli()

	driveRows := []any{&domain.Drive{
		Key:         key,
		ExternalID:  drive.ID,
		Name:        drive.Name,
		AccessLevel: drive.AccessLevel,
	}}
	fileRows := []any{&domain.File{
		Key:        key,
		OrgID:      orgID,
		FileName:   drive.Name,
		IsFile:     false,
		ExternalID: drive.ID,
	}}
	recordRows := []any{&domain.Record{
		Key:                key,
		OrgID:              orgID,
		RecordName:         drive.Name,
		RecordType:         domain.RecordTypeFile,
		Version:            0,
		ExternalRecordID:   drive.ID,
		RecordSource:       domain.RecordSourceConnector,
		ConnectorName:      domain.ConnectorDrive,
		CreatedAtTimestamp: now,
		UpdatedAtTimestamp: now,
		LastSyncTimestamp:  now,
		IndexingStatus:     domain.StatusNotStarted,
		ExtractionStatus:   domain.StatusNotStarted,
	}}

	var relationEdges, permEdges []domain.Edge
	if userEntityID != "" {
		relationEdges = appendEdge(relationEdges, domain.Edge{
			From:        userEntityID,
			To:          domain.CollDrives + "/" + key,
			AccessLevel: drive.AccessLevel,
		})
		role := domain.RoleViewer
		if drive.AccessLevel == domain.AccessWriter {
			role = domain.RoleWriter
		}
		permEdges = appendEdge(permEdges, domain.Edge{
			From:         domain.CollRecords + "/" + key,
			To:           userEntityID,
			RelationType: domain.RelationHasAccess,
			Role:         role,
		})
	}

	writeCols := []string{
		domain.CollDrives,
		domain.CollFiles,
		domain.CollRecords,
		domain.CollUserDriveRelation,
		domain.CollPermissions,
	}
	txID, err := t.store.BeginTransaction(ctx, nil, writeCols)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	err = func() error {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollDrives, driveRows, txID); err != nil {
			return fmt.Errorf("upsert drives: %w", err)
		}
		if err := t.store.BatchUpsertVertices(ctx, domain.CollFiles, fileRows, txID); err != nil {
			return fmt.Errorf("upsert files: %w", err)
		}
		if err := t.store.BatchUpsertVertices(ctx, domain.CollRecords, recordRows, txID); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
		if len(relationEdges) > 0 {
			if err := t.store.BatchCreateEdges(ctx, domain.CollUserDriveRelation, relationEdges, txID); err != nil {
				return fmt.Errorf("create drive relation: %w", err)
			}
		}
		if len(permEdges) > 0 {
			if err := t.store.BatchCreateEdges(ctx, domain.CollPermissions, permEdges, txID); err != nil {
				return fmt.Errorf("create drive access: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[DriveTransformer.TransformDrive] abort failed for drive %s: %v", drive.ID, aerr)
		}
		return "", err
	}
	if err := t.store.CommitTransaction(ctx, txID); err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[DriveTransformer.TransformDrive] abort failed for drive %s: %v", drive.ID, aerr)
		}
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	t.log.Info("[DriveTransformer.TransformDrive] mirrored drive %s (%s) for %s", drive.Name, drive.ID, userEmail)
	return key, nil
}

// TransformFileBatch mirrors one page of file metadata in a single
// transaction. Already-mirrored files are skipped; parents resolve by
// external id against the batch first, then the store, and a missing end
// logs and omits the edge.
func (t *DriveTransformer) TransformFileBatch(ctx context.Context, orgID string, files []*out.ProviderFile) (*FileBatchResult, error) {
	result := &FileBatchResult{}
	if len(files) == 0 {
		return result, nil
	}

	now := time.Now().UnixMilli()

	var (
		fileRows   []any
		recordRows []any
		peopleRows []any
		relEdges   []domain.Edge
		permEdges  []domain.Edge
		newFiles   []*out.ProviderFile
		keyByExtID = make(map[string]string)
		seenPeople = make(map[string]bool)
	)

	// 1. New files become files + records rows; mirrored ones only anchor
	// parent lookups.
	for _, f := range files {
		if f == nil || f.ID == "" {
			t.log.Warn("[DriveTransformer.TransformFileBatch] skipping malformed file entry")
			continue
		}

		existingKey, err := t.store.KeyByExternalFileID(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup file %s: %w", f.ID, err)
		}
		if existingKey != "" {
			result.SkippedExisting++
			keyByExtID[f.ID] = existingKey
			continue
		}

		key := uuid.New().String()
		keyByExtID[f.ID] = key
		newFiles = append(newFiles, f)

		created := parseSourceTime(f.CreatedTime)
		modified := parseSourceTime(f.ModifiedTime)

		ext := f.Extension
		if ext == "" && !f.IsFolder {
			ext = extensionOf(f.Name)
		}

		fileRows = append(fileRows, &domain.File{
			Key:         key,
			OrgID:       orgID,
			FileName:    f.Name,
			IsFile:      !f.IsFolder,
			Extension:   ext,
			MimeType:    f.MimeType,
			SizeInBytes: f.Size,
			WebURL:      f.WebURL,
			MD5Checksum: f.MD5Checksum,
			SHA1Hash:    f.SHA1Checksum,
			SHA256Hash:  f.SHA256Hash,
			ExternalID:  f.ID,
			Path:        f.Path,
		})
		recordRows = append(recordRows, &domain.Record{
			Key:                         key,
			OrgID:                       orgID,
			RecordName:                  f.Name,
			RecordType:                  domain.RecordTypeFile,
			Version:                     0,
			ExternalRecordID:            f.ID,
			RecordSource:                domain.RecordSourceConnector,
			ConnectorName:               domain.ConnectorDrive,
			CreatedAtTimestamp:          now,
			UpdatedAtTimestamp:          now,
			SourceCreatedAtTimestamp:    epochMilli(created),
			SourceLastModifiedTimestamp: epochMilli(modified),
			LastSyncTimestamp:           now,
			IndexingStatus:              domain.StatusNotStarted,
			ExtractionStatus:            domain.StatusNotStarted,
		})

		result.Events = append(result.Events, &domain.RecordEvent{
			OrgID:                     orgID,
			RecordID:                  key,
			RecordName:                f.Name,
			RecordType:                domain.RecordTypeFile,
			RecordVersion:             0,
			EventType:                 domain.EventCreate,
			SignedURLRoute:            t.routes.DriveSignedURL(key),
			MetadataRoute:             t.routes.DriveMetadata(key),
			ConnectorName:             domain.ConnectorDrive,
			RecordSource:              domain.RecordSourceConnector,
			MimeType:                  f.MimeType,
			Extension:                 ext,
			CreatedAtSourceTimestamp:  epochSeconds(created),
			ModifiedAtSourceTimestamp: epochSeconds(modified),
		})
	}

	// 2. Parent edges for new files. Parents outside the batch resolve
	// through the store; still-unknown parents omit the edge.
	for _, f := range newFiles {
		childKey := keyByExtID[f.ID]
		for _, parentID := range f.Parents {
			if parentID == "" {
				continue
			}
			parentKey := keyByExtID[parentID]
			if parentKey == "" {
				var err error
				parentKey, err = t.store.KeyByExternalFileID(ctx, parentID)
				if err != nil {
					return nil, fmt.Errorf("lookup parent %s: %w", parentID, err)
				}
				keyByExtID[parentID] = parentKey
			}
			if parentKey == "" {
				t.log.Warn("[DriveTransformer.TransformFileBatch] parent %s of file %s not mirrored, omitting edge", parentID, f.ID)
				continue
			}
			relEdges = appendEdge(relEdges, domain.Edge{
				From:         domain.CollRecords + "/" + parentKey,
				To:           domain.CollRecords + "/" + childKey,
				RelationType: domain.RelationParentChild,
			})
		}
	}

	// 3. ACLs of new files.
	for _, f := range newFiles {
		if len(f.Permissions) == 0 {
			continue
		}
		targets, people, err := t.resolver.ResolveACL(ctx, orgID, f.Permissions)
		if err != nil {
			return nil, fmt.Errorf("resolve acl for file %s: %w", f.ID, err)
		}
		for _, p := range people {
			if seenPeople[p.Key] {
				continue
			}
			seenPeople[p.Key] = true
			peopleRows = append(peopleRows, p)
		}
		fileKey := keyByExtID[f.ID]
		for _, target := range targets {
			permEdges = appendEdge(permEdges, domain.Edge{
				From:         target.EntityID,
				To:           domain.CollRecords + "/" + fileKey,
				RelationType: domain.RelationHasAccess,
				Role:         target.Role,
			})
		}
	}

	if len(fileRows) == 0 {
		result.Events = nil
		return result, nil
	}
	result.NewRecords = len(recordRows)

	// 4. One transaction per page.
	writeCols := []string{
		domain.CollFiles,
		domain.CollRecords,
		domain.CollRecordRelations,
		domain.CollPermissions,
		domain.CollPeople,
	}
	txID, err := t.store.BeginTransaction(ctx, nil, writeCols)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	err = func() error {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollFiles, fileRows, txID); err != nil {
			return fmt.Errorf("upsert files: %w", err)
		}
		if err := t.store.BatchUpsertVertices(ctx, domain.CollRecords, recordRows, txID); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
		if len(peopleRows) > 0 {
			if err := t.store.BatchUpsertVertices(ctx, domain.CollPeople, peopleRows, txID); err != nil {
				return fmt.Errorf("upsert people: %w", err)
			}
		}
		if len(relEdges) > 0 {
			if err := t.store.BatchCreateEdges(ctx, domain.CollRecordRelations, relEdges, txID); err != nil {
				return fmt.Errorf("create record relations: %w", err)
			}
		}
		if len(permEdges) > 0 {
			if err := t.store.BatchCreateEdges(ctx, domain.CollPermissions, permEdges, txID); err != nil {
				return fmt.Errorf("create permissions: %w", err)
			}
		}
		return nil
	}()
	if err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[DriveTransformer.TransformFileBatch] abort failed: %v", aerr)
		}
		return nil, err
	}
	if err := t.store.CommitTransaction(ctx, txID); err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[DriveTransformer.TransformFileBatch] abort failed: %v", aerr)
		}
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	t.log.Info("[DriveTransformer.TransformFileBatch] %d new records, %d skipped", result.NewRecords, result.SkippedExisting)
	return result, nil
}

// parseSourceTime parses a provider RFC3339 timestamp, zero time on failure.
func parseSourceTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func epochMilli(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

func epochSeconds(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

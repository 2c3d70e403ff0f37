package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/drive/v3"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

const folderMimeType = "application/vnd.google-apps.folder"

// driveFileFields selects everything the record graph needs from one file,
// permissions included.
const driveFileFields = "id, name, mimeType, fileExtension, size, webViewLink, parents, md5Checksum, sha1Checksum, sha256Checksum, createdTime, modifiedTime, driveId, permissions(id, type, emailAddress, role, domain)"

// driveWatchTTL is the requested lifetime of a changes notification channel.
const driveWatchTTL = 24 * time.Hour

// maxPathDepth bounds the parent walk when resolving a file's path.
const maxPathDepth = 20

// =============================================================================
// Drive Surface
// =============================================================================

// driveSurface implements out.DriveSurface for one impersonated principal.
// The resolved personal-root id and fetched parent folders are cached for the
// surface's lifetime, so path resolution does not refetch shared ancestors.
type driveSurface struct {
	svc        *drive.Service
	email      string
	webhookURL string
	call       *apiCall

	mu          sync.Mutex
	rootID      string
	parentCache map[string]parentEntry
}

type parentEntry struct {
	name    string
	parents []string
}

func newDriveSurface(svc *drive.Service, email, webhookURL string, call *apiCall) *driveSurface {
	return &driveSurface{
		svc:         svc,
		email:       email,
		webhookURL:  webhookURL,
		call:        call,
		parentCache: make(map[string]parentEntry),
	}
}

var _ out.DriveSurface = (*driveSurface)(nil)

// ListSharedDrives lists every shared drive visible to the principal.
func (s *driveSurface) ListSharedDrives(ctx context.Context) ([]*out.ProviderDriveInfo, error) {
	var drives []*out.ProviderDriveInfo
	pageToken := ""

	for {
		var resp *drive.DriveList
		err := s.call.run(ctx, s.email, "list shared drives", func() error {
			req := s.svc.Drives.List().PageSize(domain.GenericPageLimit)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, d := range resp.Drives {
			drives = append(drives, &out.ProviderDriveInfo{
				ID:          d.Id,
				Name:        d.Name,
				AccessLevel: driveAccessLevel(d.Capabilities),
			})
		}

		if resp.NextPageToken == "" {
			return drives, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetDriveInfo resolves one drive. The provider alias "root" stands for the
// principal's personal drive; the resolved id is cached so later calls with
// the real id still take the personal path.
func (s *driveSurface) GetDriveInfo(ctx context.Context, driveID string) (*out.ProviderDriveInfo, error) {
	if s.isPersonalDrive(driveID) {
		return s.personalDriveInfo(ctx)
	}

	var d *drive.Drive
	err := s.call.run(ctx, s.email, "get drive", func() error {
		var apiErr error
		d, apiErr = s.svc.Drives.Get(driveID).Fields("id, name, capabilities").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	return &out.ProviderDriveInfo{
		ID:          d.Id,
		Name:        d.Name,
		AccessLevel: driveAccessLevel(d.Capabilities),
	}, nil
}

func (s *driveSurface) personalDriveInfo(ctx context.Context) (*out.ProviderDriveInfo, error) {
	var f *drive.File
	err := s.call.run(ctx, s.email, "get root folder", func() error {
		var apiErr error
		f, apiErr = s.svc.Files.Get("root").Fields("id, name").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rootID = f.Id
	s.mu.Unlock()

	// Owners always write to their own drive.
	return &out.ProviderDriveInfo{
		ID:          f.Id,
		Name:        "My Drive",
		AccessLevel: domain.AccessWriter,
	}, nil
}

// ListFilesInFolder lists one page of non-trashed file ids under a drive.
func (s *driveSurface) ListFilesInFolder(ctx context.Context, driveID, pageToken string) (*out.ProviderFileIDPage, error) {
	var resp *drive.FileList
	err := s.call.run(ctx, s.email, "list files", func() error {
		req := s.svc.Files.List().
			Q("trashed = false").
			PageSize(domain.GenericPageLimit).
			Fields("nextPageToken, files(id)")
		if s.isPersonalDrive(driveID) {
			req = req.Corpora("user")
		} else {
			req = req.Corpora("drive").
				DriveId(driveID).
				IncludeItemsFromAllDrives(true).
				SupportsAllDrives(true)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	page := &out.ProviderFileIDPage{NextPageToken: resp.NextPageToken}
	for _, f := range resp.Files {
		page.FileIDs = append(page.FileIDs, f.Id)
	}
	return page, nil
}

// BatchFetchMetadataAndPermissions fetches full metadata for a batch of file
// ids in parallel. Files that fail to fetch are dropped; the batch only
// errors when nothing could be fetched at all.
func (s *driveSurface) BatchFetchMetadataAndPermissions(ctx context.Context, fileIDs []string) ([]*out.ProviderFile, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	const maxConcurrency = 10
	const perFileTimeout = 30 * time.Second

	type result struct {
		index int
		file  *out.ProviderFile
		err   error
	}

	results := make(chan result, len(fileIDs))
	sem := make(chan struct{}, maxConcurrency)

	for i, id := range fileIDs {
		go func(idx int, fileID string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			fileCtx, cancel := context.WithTimeout(ctx, perFileTimeout)
			defer cancel()

			file, err := s.fetchFile(fileCtx, fileID)
			results <- result{index: idx, file: file, err: err}
		}(i, id)
	}

	files := make([]*out.ProviderFile, len(fileIDs))
	var lastErr error
	for collected := 0; collected < len(fileIDs); collected++ {
		select {
		case r := <-results:
			if r.err != nil {
				lastErr = r.err
				s.call.log.Warn("[driveSurface.BatchFetchMetadataAndPermissions] fetch %s for %s: %v",
					fileIDs[r.index], s.email, r.err)
				continue
			}
			files[r.index] = r.file
		case <-ctx.Done():
			return nil, out.NewProviderError("drive", out.ProviderErrNetwork, "request cancelled", ctx.Err(), false)
		}
	}

	fetched := make([]*out.ProviderFile, 0, len(files))
	for _, f := range files {
		if f != nil {
			fetched = append(fetched, f)
		}
	}
	if len(fetched) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return fetched, nil
}

// CreateChangesWatch registers a notification channel over the principal's
// change feed and returns the start cursor it was bound to.
func (s *driveSurface) CreateChangesWatch(ctx context.Context) (*out.ProviderDriveWatch, error) {
	var start *drive.StartPageToken
	err := s.call.run(ctx, s.email, "get start page token", func() error {
		var apiErr error
		start, apiErr = s.svc.Changes.GetStartPageToken().SupportsAllDrives(true).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	channel := &drive.Channel{
		Id:         uuid.New().String(),
		Type:       "web_hook",
		Address:    s.webhookURL,
		Expiration: time.Now().Add(driveWatchTTL).UnixMilli(),
	}

	var registered *drive.Channel
	err = s.call.run(ctx, s.email, "create changes watch", func() error {
		var apiErr error
		registered, apiErr = s.svc.Changes.Watch(start.StartPageToken, channel).
			IncludeItemsFromAllDrives(true).
			SupportsAllDrives(true).
			Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	return &out.ProviderDriveWatch{
		ChannelID:  registered.Id,
		ResourceID: registered.ResourceId,
		PageToken:  start.StartPageToken,
		Expiry:     registered.Expiration,
	}, nil
}

// GetChanges queries one page of the change feed from the given cursor.
func (s *driveSurface) GetChanges(ctx context.Context, pageToken string) (*out.ProviderDriveChanges, error) {
	var resp *drive.ChangeList
	err := s.call.run(ctx, s.email, "list changes", func() error {
		var apiErr error
		resp, apiErr = s.svc.Changes.List(pageToken).
			IncludeItemsFromAllDrives(true).
			SupportsAllDrives(true).
			PageSize(domain.GenericPageLimit).
			Fields("nextPageToken, newStartPageToken, changes(fileId)").
			Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	changes := &out.ProviderDriveChanges{
		NewPageToken:  resp.NewStartPageToken,
		NextPageToken: resp.NextPageToken,
	}
	seen := make(map[string]bool)
	for _, c := range resp.Changes {
		if c.FileId == "" || seen[c.FileId] {
			continue
		}
		seen[c.FileId] = true
		changes.FileIDs = append(changes.FileIDs, c.FileId)
	}
	return changes, nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (s *driveSurface) fetchFile(ctx context.Context, fileID string) (*out.ProviderFile, error) {
	var f *drive.File
	err := s.call.run(ctx, s.email, "get file metadata", func() error {
		var apiErr error
		f, apiErr = s.svc.Files.Get(fileID).
			SupportsAllDrives(true).
			Fields(driveFileFields).
			Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	file := convertDriveFile(f)

	// Shared-drive items do not carry permissions on files.get.
	if len(file.Permissions) == 0 && f.DriveId != "" {
		perms, permErr := s.listFilePermissions(ctx, fileID)
		if permErr != nil {
			s.call.log.Warn("[driveSurface.fetchFile] list permissions for %s: %v", fileID, permErr)
		} else {
			file.Permissions = perms
		}
	}

	file.Path = s.resolvePath(ctx, f)
	return file, nil
}

func (s *driveSurface) listFilePermissions(ctx context.Context, fileID string) ([]*out.ProviderFilePermission, error) {
	var permissions []*out.ProviderFilePermission
	pageToken := ""

	for {
		var resp *drive.PermissionList
		err := s.call.run(ctx, s.email, "list file permissions", func() error {
			req := s.svc.Permissions.List(fileID).
				SupportsAllDrives(true).
				Fields("nextPageToken, permissions(id, type, emailAddress, role, domain)")
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, p := range resp.Permissions {
			permissions = append(permissions, convertDrivePermission(p))
		}

		if resp.NextPageToken == "" {
			return permissions, nil
		}
		pageToken = resp.NextPageToken
	}
}

// resolvePath walks the parent chain, leaning on the cache for folders shared
// across a batch. An unreachable ancestor truncates the path rather than
// failing the file.
func (s *driveSurface) resolvePath(ctx context.Context, f *drive.File) string {
	segments := []string{f.Name}

	parentID := ""
	if len(f.Parents) > 0 {
		parentID = f.Parents[0]
	}

	for depth := 0; parentID != "" && depth < maxPathDepth; depth++ {
		entry, ok := s.cachedParent(parentID)
		if !ok {
			fetched, err := s.fetchParent(ctx, parentID)
			if err != nil {
				break
			}
			entry = fetched
		}

		segments = append([]string{entry.name}, segments...)
		if len(entry.parents) == 0 {
			break
		}
		parentID = entry.parents[0]
	}

	return "/" + strings.Join(segments, "/")
}

func (s *driveSurface) cachedParent(id string) (parentEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.parentCache[id]
	return entry, ok
}

func (s *driveSurface) fetchParent(ctx context.Context, id string) (parentEntry, error) {
	var p *drive.File
	err := s.call.run(ctx, s.email, "get parent folder", func() error {
		var apiErr error
		p, apiErr = s.svc.Files.Get(id).
			SupportsAllDrives(true).
			Fields("id, name, parents").
			Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return parentEntry{}, err
	}

	entry := parentEntry{name: p.Name, parents: p.Parents}
	s.mu.Lock()
	s.parentCache[id] = entry
	s.mu.Unlock()
	return entry, nil
}

func (s *driveSurface) isPersonalDrive(driveID string) bool {
	if driveID == "" || driveID == "root" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID != "" && s.rootID == driveID
}

func driveAccessLevel(caps *drive.DriveCapabilities) string {
	if caps != nil && caps.CanEdit {
		return domain.AccessWriter
	}
	return domain.AccessReader
}

// =============================================================================
// Converters
// =============================================================================

func convertDriveFile(f *drive.File) *out.ProviderFile {
	file := &out.ProviderFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Extension:    f.FileExtension,
		Size:         f.Size,
		WebURL:       f.WebViewLink,
		Parents:      f.Parents,
		MD5Checksum:  f.Md5Checksum,
		SHA1Checksum: f.Sha1Checksum,
		SHA256Hash:   f.Sha256Checksum,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
		IsFolder:     f.MimeType == folderMimeType,
	}

	for _, p := range f.Permissions {
		file.Permissions = append(file.Permissions, convertDrivePermission(p))
	}
	return file
}

func convertDrivePermission(p *drive.Permission) *out.ProviderFilePermission {
	return &out.ProviderFilePermission{
		ID:           p.Id,
		Type:         p.Type,
		EmailAddress: p.EmailAddress,
		Role:         p.Role,
		Domain:       p.Domain,
	}
}

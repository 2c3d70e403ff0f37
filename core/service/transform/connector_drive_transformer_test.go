package transform

import (
	"context"
	"testing"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

func newDriveTestTransformer(fake *fakeGraph) *DriveTransformer {
	resolver := NewPrincipalResolver(fake, nil)
	routes := RecordRoutes{BaseURL: "http://localhost:8080"}
	return NewDriveTransformer(fake, resolver, routes, nil)
}

func TestTransformFileBatchParentChild(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	tr := newDriveTestTransformer(fake)

	files := []*out.ProviderFile{
		{
			ID:       "F_root",
			Name:     "Reports",
			MimeType: "application/vnd.google-apps.folder",
			IsFolder: true,
			Path:     "/Reports",
		},
		{
			ID:           "F_child",
			Name:         "q3.xlsx",
			MimeType:     "application/vnd.ms-excel",
			Size:         1024,
			Parents:      []string{"F_root"},
			Path:         "/Reports/q3.xlsx",
			CreatedTime:  "2024-03-01T10:00:00Z",
			ModifiedTime: "2024-03-02T10:00:00Z",
		},
	}

	result, err := tr.TransformFileBatch(ctx, "org1", files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.NewRecords != 2 {
		t.Errorf("NewRecords = %d, want 2", result.NewRecords)
	}
	if len(result.Events) != 2 {
		t.Errorf("events = %d, want 2 (one per file)", len(result.Events))
	}
	if fake.committed != 1 {
		t.Errorf("committed = %d, want 1", fake.committed)
	}
	if got := fake.countDocs(domain.CollFiles); got != 2 {
		t.Errorf("files = %d, want 2", got)
	}
	if got := fake.countDocs(domain.CollRecords); got != 2 {
		t.Errorf("records = %d, want 2", got)
	}

	rootKey := fake.keyByExternal(domain.CollFiles, "F_root")
	childKey := fake.keyByExternal(domain.CollFiles, "F_child")
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+rootKey, "records/"+childKey, domain.RelationParentChild, "") {
		t.Errorf("missing PARENT_CHILD edge root -> child")
	}

	rootDoc, _ := fake.GetDocument(ctx, domain.CollFiles, rootKey)
	if isFile, _ := rootDoc["isFile"].(bool); isFile {
		t.Errorf("folder mirrored with isFile = true")
	}
	childDoc, _ := fake.GetDocument(ctx, domain.CollFiles, childKey)
	if isFile, _ := childDoc["isFile"].(bool); !isFile {
		t.Errorf("file mirrored with isFile = false")
	}

	for _, ev := range result.Events {
		if ev.ConnectorName != domain.ConnectorDrive {
			t.Errorf("connectorName = %q, want %q", ev.ConnectorName, domain.ConnectorDrive)
		}
		if ev.RecordType != domain.RecordTypeFile {
			t.Errorf("recordType = %q, want FILE", ev.RecordType)
		}
		if ev.RecordID == childKey {
			if ev.CreatedAtSourceTimestamp != 1709287200 {
				t.Errorf("createdAtSourceTimestamp = %d, want 1709287200", ev.CreatedAtSourceTimestamp)
			}
			if ev.Extension != "xlsx" {
				t.Errorf("extension = %q, want xlsx", ev.Extension)
			}
		}
	}
}

func TestTransformFileBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	tr := newDriveTestTransformer(fake)

	files := []*out.ProviderFile{
		{ID: "F_root", Name: "Reports", IsFolder: true},
		{ID: "F_child", Name: "q3.xlsx", Parents: []string{"F_root"}},
	}

	if _, err := tr.TransformFileBatch(ctx, "org1", files); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rootKey := fake.keyByExternal(domain.CollFiles, "F_root")

	result, err := tr.TransformFileBatch(ctx, "org1", files)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.NewRecords != 0 {
		t.Errorf("NewRecords = %d, want 0", result.NewRecords)
	}
	if result.SkippedExisting != 2 {
		t.Errorf("SkippedExisting = %d, want 2", result.SkippedExisting)
	}
	if len(result.Events) != 0 {
		t.Errorf("events = %d, want 0 on re-observation", len(result.Events))
	}
	if fake.committed != 1 {
		t.Errorf("committed = %d, want 1", fake.committed)
	}
	if got := len(fake.edgesOf(domain.CollRecordRelations, domain.RelationParentChild)); got != 1 {
		t.Errorf("parent edges = %d, want 1", got)
	}
	if got := fake.keyByExternal(domain.CollFiles, "F_root"); got != rootKey {
		t.Errorf("F_root key changed across runs: %q -> %q", rootKey, got)
	}
}

func TestTransformFileBatchACLResolution(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	tr := newDriveTestTransformer(fake)

	files := []*out.ProviderFile{{
		ID:   "F1",
		Name: "shared.doc",
		Permissions: []*out.ProviderFilePermission{
			{ID: "p1", Type: "user", EmailAddress: "alice@x.com", Role: "WRITER"},
			{ID: "p2", Type: "user", EmailAddress: "ext@partner.com", Role: "reader"},
			{ID: "p3", Type: "anyone", Role: "READER"},
			{ID: "p4", Type: "domain", Domain: "x.com", Role: "reader"},
		},
	}}

	result, err := tr.TransformFileBatch(ctx, "org1", files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRecords != 1 {
		t.Fatalf("NewRecords = %d, want 1", result.NewRecords)
	}

	key := fake.keyByExternal(domain.CollFiles, "F1")
	personKey := domain.PersonKey("ext@partner.com")

	// Roles are lower-cased on the edges.
	if !fake.hasEdge(domain.CollPermissions, "users/u-alice", "records/"+key, domain.RelationHasAccess, "writer") {
		t.Errorf("missing lower-cased writer edge for alice")
	}
	if !fake.hasEdge(domain.CollPermissions, "people/"+personKey, "records/"+key, domain.RelationHasAccess, "reader") {
		t.Errorf("missing people fallback edge for ext@partner.com")
	}
	if doc, _ := fake.GetDocument(ctx, domain.CollPeople, personKey); doc == nil {
		t.Errorf("people vertex %s missing", personKey)
	}
	if !fake.hasEdge(domain.CollPermissions, "anyone/"+domain.AnyoneKey("org1"), "records/"+key, domain.RelationHasAccess, "reader") {
		t.Errorf("missing anyone edge")
	}

	// The domain-type ACL is skipped: 3 permission edges total.
	if got := len(fake.edgesOf(domain.CollPermissions, domain.RelationHasAccess)); got != 3 {
		t.Errorf("permission edges = %d, want 3", got)
	}
}

func TestTransformFileBatchMissingParentOmitsEdge(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	tr := newDriveTestTransformer(fake)

	files := []*out.ProviderFile{
		{ID: "F2", Name: "orphan.txt", Parents: []string{"F_unknown"}},
		{ID: "F3", Name: "loop.txt", Parents: []string{"F3"}},
	}

	result, err := tr.TransformFileBatch(ctx, "org1", files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRecords != 2 {
		t.Errorf("NewRecords = %d, want 2", result.NewRecords)
	}
	if got := len(fake.edgesOf(domain.CollRecordRelations, domain.RelationParentChild)); got != 0 {
		t.Errorf("parent edges = %d, want 0 (missing parent omitted, self loop skipped)", got)
	}
}

func TestTransformDrive(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		accessLevel string
		wantRole    string
	}{
		{name: "writer access binds WRITER role", accessLevel: domain.AccessWriter, wantRole: domain.RoleWriter},
		{name: "reader access binds VIEWER role", accessLevel: domain.AccessReader, wantRole: domain.RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGraph()
			fake.addUser("u-alice", "alice@x.com")
			tr := newDriveTestTransformer(fake)

			drive := &out.ProviderDriveInfo{ID: "D1", Name: "Team Drive", AccessLevel: tt.accessLevel}
			key, err := tr.TransformDrive(ctx, "org1", "alice@x.com", drive)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key == "" {
				t.Fatalf("empty drive key")
			}

			// One key across drives, files and records.
			for _, coll := range []string{domain.CollDrives, domain.CollFiles, domain.CollRecords} {
				if doc, _ := fake.GetDocument(ctx, coll, key); doc == nil {
					t.Errorf("%s/%s missing", coll, key)
				}
			}

			found := false
			for _, e := range fake.edges[domain.CollUserDriveRelation] {
				if e.From == "users/u-alice" && e.To == "drives/"+key && e.AccessLevel == tt.accessLevel {
					found = true
				}
			}
			if !found {
				t.Errorf("missing userDriveRelation edge with accessLevel %q", tt.accessLevel)
			}

			if !fake.hasEdge(domain.CollPermissions, "records/"+key, "users/u-alice", domain.RelationHasAccess, tt.wantRole) {
				t.Errorf("missing HAS_ACCESS edge with role %q", tt.wantRole)
			}
		})
	}
}

func TestTransformDriveReusesKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	tr := newDriveTestTransformer(fake)

	drive := &out.ProviderDriveInfo{ID: "D1", Name: "Team Drive", AccessLevel: domain.AccessWriter}
	first, err := tr.TransformDrive(ctx, "org1", "alice@x.com", drive)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := tr.TransformDrive(ctx, "org1", "alice@x.com", drive)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Errorf("drive key changed across runs: %q -> %q", first, second)
	}
	if got := fake.countDocs(domain.CollDrives); got != 1 {
		t.Errorf("drives = %d, want 1", got)
	}
}

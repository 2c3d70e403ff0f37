package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

func newMailTestTransformer(fake *fakeGraph, bodies out.MailBodyStore) *MailTransformer {
	resolver := NewPrincipalResolver(fake, nil)
	routes := RecordRoutes{BaseURL: "http://localhost:8080"}
	return NewMailTransformer(fake, resolver, bodies, routes, nil)
}

// scenarioThread returns thread T1 with three messages out of internalDate
// order and one attachment on M2, exchanged between alice and bob.
func scenarioThread() (*out.ProviderThread, []*out.ProviderMessage) {
	thread := &out.ProviderThread{ID: "T1", HistoryID: "h-100"}
	m1 := &out.ProviderMessage{
		ID:           "M1",
		ThreadID:     "T1",
		InternalDate: 10_000,
		Subject:      "Quarterly numbers",
		From:         "alice@x.com",
		To:           []string{"bob@x.com"},
		Body:         "see attached",
	}
	m2 := &out.ProviderMessage{
		ID:           "M2",
		ThreadID:     "T1",
		InternalDate: 20_000,
		Subject:      "Re: Quarterly numbers",
		From:         "bob@x.com",
		To:           []string{"alice@x.com"},
		Attachments: []*out.ProviderAttachment{
			{ID: "A1", MessageID: "M2", Filename: "report.pdf", MimeType: "application/pdf", Size: 2048},
		},
	}
	m3 := &out.ProviderMessage{
		ID:           "M3",
		ThreadID:     "T1",
		InternalDate: 15_000,
		Subject:      "Re: Quarterly numbers",
		From:         "alice@x.com",
		To:           []string{"bob@x.com"},
	}
	// Listing order is M1, M2, M3; internalDate order is M1, M3, M2.
	return thread, []*out.ProviderMessage{m1, m2, m3}
}

func TestTransformMailBatchThreadChain(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addUser("u-bob", "bob@x.com")
	bodies := newFakeBodyStore()
	tr := newMailTestTransformer(fake, bodies)

	thread, msgs := scenarioThread()
	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.NewRecords != 4 {
		t.Errorf("NewRecords = %d, want 4", result.NewRecords)
	}
	if result.SkippedExisting != 0 {
		t.Errorf("SkippedExisting = %d, want 0", result.SkippedExisting)
	}
	if len(result.Events) != 4 {
		t.Errorf("events = %d, want 4", len(result.Events))
	}
	if fake.committed != 1 || fake.aborted != 0 {
		t.Errorf("committed/aborted = %d/%d, want 1/0", fake.committed, fake.aborted)
	}

	if got := fake.countDocs(domain.CollMails); got != 3 {
		t.Errorf("mails = %d, want 3", got)
	}
	if got := fake.countDocs(domain.CollAttachments); got != 1 {
		t.Errorf("attachments = %d, want 1", got)
	}
	if got := fake.countDocs(domain.CollRecords); got != 4 {
		t.Errorf("records = %d, want 4", got)
	}
	if got := fake.countDocs(domain.CollPeople); got != 0 {
		t.Errorf("people = %d, want 0", got)
	}

	k1 := fake.keyByExternal(domain.CollMails, "M1")
	k2 := fake.keyByExternal(domain.CollMails, "M2")
	k3 := fake.keyByExternal(domain.CollMails, "M3")
	kA := fake.keyByExternal(domain.CollAttachments, "A1")
	for name, key := range map[string]string{"M1": k1, "M2": k2, "M3": k3, "A1": kA} {
		if key == "" {
			t.Fatalf("%s was not mirrored", name)
		}
	}

	// SIBLING chain follows internalDate order: M1 -> M3 -> M2.
	siblings := fake.edgesOf(domain.CollRecordRelations, domain.RelationSibling)
	if len(siblings) != 2 {
		t.Fatalf("sibling edges = %d, want 2", len(siblings))
	}
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+k1, "records/"+k3, domain.RelationSibling, "") {
		t.Errorf("missing SIBLING edge M1 -> M3")
	}
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+k3, "records/"+k2, domain.RelationSibling, "") {
		t.Errorf("missing SIBLING edge M3 -> M2")
	}
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+k2, "records/"+kA, domain.RelationAttachment, "") {
		t.Errorf("missing ATTACHMENT edge M2 -> A1")
	}

	// Only the first message of the thread is the parent.
	for extID, wantParent := range map[string]bool{"M1": true, "M2": false, "M3": false} {
		doc, _ := fake.GetByExternalID(ctx, domain.CollMails, extID)
		if got, _ := doc["isParent"].(bool); got != wantParent {
			t.Errorf("%s isParent = %v, want %v", extID, got, wantParent)
		}
	}

	// Both participants can read all four records.
	for _, principal := range []string{"users/u-alice", "users/u-bob"} {
		for _, key := range []string{k1, k2, k3, kA} {
			if !fake.hasEdge(domain.CollPermissions, principal, "records/"+key, domain.RelationHasAccess, domain.RoleReader) {
				t.Errorf("missing HAS_ACCESS %s -> records/%s", principal, key)
			}
		}
	}

	var messages, attachments int
	for _, ev := range result.Events {
		switch ev.RecordType {
		case domain.RecordTypeMessage:
			messages++
			if ev.ThreadID != "T1" {
				t.Errorf("message event threadId = %q, want T1", ev.ThreadID)
			}
			if ev.MimeType != domain.MimeTypeGmailContent {
				t.Errorf("message event mimeType = %q, want %q", ev.MimeType, domain.MimeTypeGmailContent)
			}
		case domain.RecordTypeAttachment:
			attachments++
			if ev.MimeType != "application/pdf" {
				t.Errorf("attachment event mimeType = %q, want application/pdf", ev.MimeType)
			}
			if ev.Extension != "pdf" {
				t.Errorf("attachment event extension = %q, want pdf", ev.Extension)
			}
		}
		if ev.EventType != domain.EventCreate {
			t.Errorf("eventType = %q, want create", ev.EventType)
		}
		if ev.ConnectorName != domain.ConnectorGmail {
			t.Errorf("connectorName = %q, want %q", ev.ConnectorName, domain.ConnectorGmail)
		}
		if !strings.HasPrefix(ev.SignedURLRoute, "http://localhost:8080/api/v1/gmail/record/") {
			t.Errorf("signedUrlRoute = %q", ev.SignedURLRoute)
		}
	}
	if messages != 3 || attachments != 1 {
		t.Errorf("events by type = %d messages / %d attachments, want 3/1", messages, attachments)
	}

	// Small bodies ride on the event; full bodies land in the body store.
	for _, ev := range result.Events {
		if ev.RecordID == k1 && ev.Body != "see attached" {
			t.Errorf("M1 event body = %q, want inline body", ev.Body)
		}
	}
	if got := bodies.saved[k1]; got != "see attached" {
		t.Errorf("offloaded body = %q, want %q", got, "see attached")
	}
}

func TestTransformMailBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addUser("u-bob", "bob@x.com")
	tr := newMailTestTransformer(fake, nil)

	thread, msgs := scenarioThread()
	if _, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	k1 := fake.keyByExternal(domain.CollMails, "M1")

	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.NewRecords != 0 {
		t.Errorf("NewRecords = %d, want 0", result.NewRecords)
	}
	if result.SkippedExisting != 3 {
		t.Errorf("SkippedExisting = %d, want 3", result.SkippedExisting)
	}
	if len(result.Events) != 0 {
		t.Errorf("events = %d, want 0 on re-observation", len(result.Events))
	}
	if fake.committed != 1 {
		t.Errorf("committed = %d, want 1 (no second transaction)", fake.committed)
	}
	if got := fake.countDocs(domain.CollRecords); got != 4 {
		t.Errorf("records = %d, want 4", got)
	}
	if got := len(fake.edgesOf(domain.CollRecordRelations, domain.RelationSibling)); got != 2 {
		t.Errorf("sibling edges = %d, want 2", got)
	}
	if got := fake.keyByExternal(domain.CollMails, "M1"); got != k1 {
		t.Errorf("M1 key changed across runs: %q -> %q", k1, got)
	}
}

func TestTransformMailBatchAnchorsChainOnExistingKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addUser("u-bob", "bob@x.com")
	tr := newMailTestTransformer(fake, nil)

	thread, msgs := scenarioThread()

	// Mirror M1 alone first.
	if _, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs[:1])); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	k1 := fake.keyByExternal(domain.CollMails, "M1")

	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs))
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if result.SkippedExisting != 1 {
		t.Errorf("SkippedExisting = %d, want 1", result.SkippedExisting)
	}
	if result.NewRecords != 3 {
		t.Errorf("NewRecords = %d, want 3 (M2, M3, A1)", result.NewRecords)
	}

	k2 := fake.keyByExternal(domain.CollMails, "M2")
	k3 := fake.keyByExternal(domain.CollMails, "M3")
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+k1, "records/"+k3, domain.RelationSibling, "") {
		t.Errorf("chain did not anchor on existing M1 key")
	}
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+k3, "records/"+k2, domain.RelationSibling, "") {
		t.Errorf("missing SIBLING edge M3 -> M2")
	}
	if got := len(fake.edgesOf(domain.CollRecordRelations, domain.RelationSibling)); got != 2 {
		t.Errorf("sibling edges = %d, want 2", got)
	}
}

func TestTransformMailBatchAbortsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addUser("u-bob", "bob@x.com")
	fake.failCol = domain.CollPermissions
	tr := newMailTestTransformer(fake, nil)

	thread, msgs := scenarioThread()
	_, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs))
	if err == nil {
		t.Fatalf("expected error from failing collection write")
	}
	if fake.aborted != 1 {
		t.Errorf("aborted = %d, want 1", fake.aborted)
	}
	if fake.committed != 0 {
		t.Errorf("committed = %d, want 0", fake.committed)
	}
	if got := fake.countDocs(domain.CollMails); got != 0 {
		t.Errorf("mails = %d after abort, want 0", got)
	}
	if got := fake.countDocs(domain.CollRecords); got != 0 {
		t.Errorf("records = %d after abort, want 0", got)
	}
}

func TestTransformMailBatchSkipsMalformedMessages(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	tr := newMailTestTransformer(fake, nil)

	thread := &out.ProviderThread{ID: "T9"}
	msgs := []*out.ProviderMessage{
		{ID: "", ThreadID: "T9", InternalDate: 1_000},
		{ID: "M9", ThreadID: "", InternalDate: 2_000},
	}

	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRecords != 0 || len(result.Events) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if fake.committed != 0 {
		t.Errorf("committed = %d, want 0 (nothing to write)", fake.committed)
	}
}

func TestTransformMailBatchPrincipalFallback(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addGroup("g-team", "team@x.com")
	tr := newMailTestTransformer(fake, nil)

	thread := &out.ProviderThread{ID: "T2"}
	msg := &out.ProviderMessage{
		ID:           "M10",
		ThreadID:     "T2",
		InternalDate: 5_000,
		Subject:      "external thread",
		From:         "alice@x.com",
		To:           []string{"team@x.com", "Carol@Partner.com"},
	}

	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, []*out.ProviderMessage{msg}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(result.Events))
	}

	key := fake.keyByExternal(domain.CollMails, "M10")
	personKey := domain.PersonKey("carol@partner.com")

	if got := fake.countDocs(domain.CollPeople); got != 1 {
		t.Fatalf("people = %d, want 1", got)
	}
	if doc, _ := fake.GetDocument(ctx, domain.CollPeople, personKey); doc == nil {
		t.Errorf("people vertex %s missing", personKey)
	}
	if !fake.hasEdge(domain.CollPermissions, "users/u-alice", "records/"+key, domain.RelationHasAccess, domain.RoleReader) {
		t.Errorf("missing user edge")
	}
	if !fake.hasEdge(domain.CollPermissions, "groups/g-team", "records/"+key, domain.RelationHasAccess, domain.RoleReader) {
		t.Errorf("missing group edge")
	}
	if !fake.hasEdge(domain.CollPermissions, "people/"+personKey, "records/"+key, domain.RelationHasAccess, domain.RoleReader) {
		t.Errorf("missing people fallback edge")
	}
}

func TestTransformMailBatchLargeBodyNotInlined(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	bodies := newFakeBodyStore()
	tr := newMailTestTransformer(fake, bodies)

	thread := &out.ProviderThread{ID: "T3"}
	big := strings.Repeat("x", maxInlineBodyBytes+1)
	msg := &out.ProviderMessage{
		ID:           "M20",
		ThreadID:     "T3",
		InternalDate: 7_000,
		Subject:      "big one",
		From:         "alice@x.com",
		Body:         big,
	}

	result, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, []*out.ProviderMessage{msg}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Events[0].Body != "" {
		t.Errorf("large body was inlined on the event")
	}
	key := fake.keyByExternal(domain.CollMails, "M20")
	if bodies.saved[key] != big {
		t.Errorf("full body was not offloaded to the body store")
	}
}

func TestTransformThreadBatchSingleTransaction(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	fake.addUser("u-alice", "alice@x.com")
	fake.addUser("u-bob", "bob@x.com")
	tr := newMailTestTransformer(fake, nil)

	threadA := &out.ProviderThread{ID: "TA"}
	threadB := &out.ProviderThread{ID: "TB"}
	msgsA := []*out.ProviderMessage{
		{ID: "MA1", ThreadID: "TA", InternalDate: 1_000, Subject: "a1", From: "alice@x.com", To: []string{"bob@x.com"}},
		{ID: "MA2", ThreadID: "TA", InternalDate: 2_000, Subject: "a2", From: "bob@x.com", To: []string{"alice@x.com"}},
	}
	msgsB := []*out.ProviderMessage{
		{ID: "MB1", ThreadID: "TB", InternalDate: 3_000, Subject: "b1", From: "alice@x.com", To: []string{"bob@x.com"}},
	}

	result, err := tr.TransformThreadBatch(ctx, "org1", []*MailBatch{
		NewMailBatch(threadA, msgsA),
		NewMailBatch(threadB, msgsB),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.NewRecords != 3 {
		t.Errorf("NewRecords = %d, want 3", result.NewRecords)
	}
	if len(result.Events) != 3 {
		t.Errorf("events = %d, want 3", len(result.Events))
	}
	if fake.committed != 1 {
		t.Errorf("committed transactions = %d, want exactly one for the whole batch", fake.committed)
	}
	if got := fake.countDocs(domain.CollMails); got != 3 {
		t.Errorf("mails = %d, want 3", got)
	}

	// Sibling chains stay per thread: MA1 -> MA2 and nothing across threads.
	kA1 := fake.keyByExternal(domain.CollMails, "MA1")
	kA2 := fake.keyByExternal(domain.CollMails, "MA2")
	kB1 := fake.keyByExternal(domain.CollMails, "MB1")
	if !fake.hasEdge(domain.CollRecordRelations, "records/"+kA1, "records/"+kA2, domain.RelationSibling, "") {
		t.Errorf("missing sibling edge within thread TA")
	}
	if fake.hasEdge(domain.CollRecordRelations, "records/"+kA2, "records/"+kB1, domain.RelationSibling, "") {
		t.Errorf("sibling chain leaked across threads")
	}
	if got := len(fake.edges[domain.CollRecordRelations]); got != 1 {
		t.Errorf("record relation edges = %d, want 1", got)
	}

	// Both thread parents are marked, the replies are not.
	for ext, wantParent := range map[string]bool{"MA1": true, "MA2": false, "MB1": true} {
		key := fake.keyByExternal(domain.CollMails, ext)
		doc := fake.docs[domain.CollMails][key]
		if got, _ := doc["isParent"].(bool); got != wantParent {
			t.Errorf("%s isParent = %v, want %v", ext, got, wantParent)
		}
	}
}

func TestTransformThreadBatchFullyMirroredSkipsTransaction(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGraph()
	tr := newMailTestTransformer(fake, nil)

	thread, msgs := scenarioThread()
	if _, err := tr.TransformMailBatch(ctx, "org1", NewMailBatch(thread, msgs)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := fake.committed

	result, err := tr.TransformThreadBatch(ctx, "org1", []*MailBatch{NewMailBatch(thread, msgs)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRecords != 0 || len(result.Events) != 0 {
		t.Errorf("mirrored batch produced records=%d events=%d", result.NewRecords, len(result.Events))
	}
	if fake.committed != before {
		t.Errorf("a transaction was opened for a fully mirrored batch")
	}
}

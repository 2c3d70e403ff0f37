package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// maxInlineBodyBytes caps the message body carried inline on an event.
// Larger bodies stay in the body store and are served by the content route.
const maxInlineBodyBytes = 4096

// =============================================================================
// Mail Batch Transform
// =============================================================================

// MailBatch is one thread's worth of transform input: the thread stub, its
// fully fetched messages, the flattened attachment metadata and the
// permission descriptors derived from message participants.
type MailBatch struct {
	Thread      *out.ProviderThread
	Messages    []*out.ProviderMessage
	Attachments []*out.ProviderAttachment
	Permissions []*domain.MailPermission
}

// NewMailBatch assembles a batch from fetched messages: attachments are
// flattened off the messages and each message's participants (from, to, cc,
// bcc) become one reader-role permission descriptor.
func NewMailBatch(thread *out.ProviderThread, messages []*out.ProviderMessage) *MailBatch {
	batch := &MailBatch{Thread: thread, Messages: messages}

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		var attIDs []string
		for _, att := range msg.Attachments {
			if att == nil || att.ID == "" {
				continue
			}
			if att.MessageID == "" {
				att.MessageID = msg.ID
			}
			batch.Attachments = append(batch.Attachments, att)
			attIDs = append(attIDs, att.ID)
		}

		principals := participantEmails(msg)
		if len(principals) == 0 {
			continue
		}
		batch.Permissions = append(batch.Permissions, &domain.MailPermission{
			MessageID:     msg.ID,
			AttachmentIDs: attIDs,
			Role:          domain.RoleReader,
			Principals:    principals,
		})
	}

	return batch
}

// participantEmails collects the deduplicated from/to/cc/bcc addresses.
func participantEmails(msg *out.ProviderMessage) []string {
	var (
		emails []string
		seen   = make(map[string]bool)
	)
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		emails = append(emails, addr)
	}

	add(msg.From)
	for _, addr := range msg.To {
		add(addr)
	}
	for _, addr := range msg.CC {
		add(addr)
	}
	for _, addr := range msg.BCC {
		add(addr)
	}
	return emails
}

// MailBatchResult reports what one committed batch produced. Events are
// returned, not emitted: the caller publishes them, which keeps emission
// strictly after the commit that returned this result.
type MailBatchResult struct {
	Events          []*domain.RecordEvent
	NewRecords      int
	SkippedExisting int
}

// MailTransformer mirrors mail thread batches into the graph.
type MailTransformer struct {
	store    out.RecordGraph
	resolver *PrincipalResolver
	bodies   out.MailBodyStore // optional, nil disables body offload
	routes   RecordRoutes
	log      *logger.Logger
}

// NewMailTransformer creates a new mail transformer.
func NewMailTransformer(store out.RecordGraph, resolver *PrincipalResolver, bodies out.MailBodyStore, routes RecordRoutes, log *logger.Logger) *MailTransformer {
	if log == nil {
		log = logger.Default()
	}
	return &MailTransformer{
		store:    store,
		resolver: resolver,
		bodies:   bodies,
		routes:   routes,
		log:      log,
	}
}

// mailRowSet accumulates the staged writes and bodies for one transaction.
// A single set spans every thread of a batch so people rows dedupe
// batch-wide.
type mailRowSet struct {
	mails       []any
	attachments []any
	records     []any
	people      []any
	relEdges    []domain.Edge
	permEdges   []domain.Edge
	bodyByKey   map[string]string
	seenPeople  map[string]bool
}

func newMailRowSet() *mailRowSet {
	return &mailRowSet{
		bodyByKey:  make(map[string]string),
		seenPeople: make(map[string]bool),
	}
}

// TransformMailBatch mirrors a single thread in its own transaction. It is
// TransformThreadBatch with a batch of one.
func (t *MailTransformer) TransformMailBatch(ctx context.Context, orgID string, batch *MailBatch) (*MailBatchResult, error) {
	return t.TransformThreadBatch(ctx, orgID, []*MailBatch{batch})
}

// TransformThreadBatch mirrors a batch of threads in a single transaction.
//
// Within each thread, messages sort by internalDate ascending and chain with
// SIBLING edges in that order; already-mirrored messages are skipped but
// still anchor the chain through their existing key. The first message of a
// thread is the parent. Attachments and permissions only materialize for new
// messages. Nothing from the batch becomes visible until the one commit, and
// the returned events describe exactly what that commit made visible.
func (t *MailTransformer) TransformThreadBatch(ctx context.Context, orgID string, batches []*MailBatch) (*MailBatchResult, error) {
	result := &MailBatchResult{}
	rows := newMailRowSet()

	// 1. Stage rows, edges and events across every thread of the batch.
	for _, batch := range batches {
		if batch == nil || len(batch.Messages) == 0 {
			continue
		}
		if err := t.collectThread(ctx, orgID, batch, rows, result); err != nil {
			return nil, err
		}
	}

	if len(rows.mails) == 0 && len(rows.attachments) == 0 {
		// Every thread in the batch is already mirrored.
		result.Events = nil
		return result, nil
	}
	result.NewRecords = len(rows.records)

	// 2. One transaction per batch.
	writeCols := []string{
		domain.CollMails,
		domain.CollAttachments,
		domain.CollRecords,
		domain.CollRecordRelations,
		domain.CollPermissions,
		domain.CollPeople,
	}
	txID, err := t.store.BeginTransaction(ctx, nil, writeCols)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if err := t.writeBatch(ctx, txID, rows); err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[MailTransformer.TransformThreadBatch] abort failed: %v", aerr)
		}
		return nil, err
	}
	if err := t.store.CommitTransaction(ctx, txID); err != nil {
		if aerr := t.store.AbortTransaction(ctx, txID); aerr != nil {
			t.log.Warn("[MailTransformer.TransformThreadBatch] abort failed: %v", aerr)
		}
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// 3. Offload full bodies after commit, best effort.
	if t.bodies != nil {
		for key, body := range rows.bodyByKey {
			if body == "" {
				continue
			}
			if err := t.bodies.SaveBody(ctx, orgID, key, domain.MimeTypeGmailContent, body); err != nil {
				t.log.Warn("[MailTransformer.TransformThreadBatch] body offload failed for record %s: %v", key, err)
			}
		}
	}

	t.log.Info("[MailTransformer.TransformThreadBatch] %d threads: %d new records, %d skipped",
		len(batches), result.NewRecords, result.SkippedExisting)
	return result, nil
}

// collectThread stages one thread's rows, edges and events. The sibling
// chain anchor resets per thread; key lookups and people dedup live on the
// shared row set.
func (t *MailTransformer) collectThread(ctx context.Context, orgID string, batch *MailBatch, rows *mailRowSet, result *MailBatchResult) error {
	threadID := ""
	if batch.Thread != nil {
		threadID = batch.Thread.ID
	}

	// Drop malformed messages, then order the thread by internalDate.
	msgs := make([]*out.ProviderMessage, 0, len(batch.Messages))
	for _, msg := range batch.Messages {
		if msg == nil || msg.ID == "" || msg.ThreadID == "" {
			t.log.Warn("[MailTransformer.TransformThreadBatch] skipping malformed message in thread %s", threadID)
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].InternalDate < msgs[j].InternalDate
	})
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()

	var (
		previousKey string
		keyByMsgID  = make(map[string]string) // external message id -> new key
		keyByAttID  = make(map[string]string) // external attachment id -> new key
	)

	// Messages: skip mirrored ones, build rows for new ones, chain siblings
	// in sorted order.
	for i, msg := range msgs {
		existingKey, err := t.store.KeyByExternalMessageID(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("lookup message %s: %w", msg.ID, err)
		}
		if existingKey != "" {
			result.SkippedExisting++
			previousKey = existingKey
			continue
		}

		key := uuid.New().String()
		keyByMsgID[msg.ID] = key

		rows.mails = append(rows.mails, &domain.Mail{
			Key:             key,
			ExternalID:      msg.ID,
			ThreadID:        msg.ThreadID,
			IsParent:        i == 0,
			InternalDate:    msg.InternalDate,
			Subject:         msg.Subject,
			Date:            msg.Date,
			From:            msg.From,
			To:              msg.To,
			CC:              msg.CC,
			BCC:             msg.BCC,
			MessageIDHeader: msg.MessageIDHeader,
			HistoryID:       msg.HistoryID,
			WebURL:          msg.WebURL,
			LabelIDs:        msg.LabelIDs,
			LastSyncTime:    now,
		})
		rows.records = append(rows.records, &domain.Record{
			Key:                         key,
			OrgID:                       orgID,
			RecordName:                  mailRecordName(msg.Subject),
			RecordType:                  domain.RecordTypeMessage,
			Version:                     0,
			ExternalRecordID:            msg.ID,
			RecordSource:                domain.RecordSourceConnector,
			ConnectorName:               domain.ConnectorGmail,
			CreatedAtTimestamp:          now,
			UpdatedAtTimestamp:          now,
			SourceCreatedAtTimestamp:    msg.InternalDate,
			SourceLastModifiedTimestamp: msg.InternalDate,
			LastSyncTimestamp:           now,
			IndexingStatus:              domain.StatusNotStarted,
			ExtractionStatus:            domain.StatusNotStarted,
		})

		if previousKey != "" {
			rows.relEdges = appendEdge(rows.relEdges, domain.Edge{
				From:         domain.CollRecords + "/" + previousKey,
				To:           domain.CollRecords + "/" + key,
				RelationType: domain.RelationSibling,
			})
		}
		previousKey = key

		rows.bodyByKey[key] = msg.Body
		result.Events = append(result.Events, t.mailEvent(orgID, key, msg))
	}

	// Attachments of new messages. An attachment whose owning message was
	// skipped (or never resolved) is skipped with it.
	for _, att := range batch.Attachments {
		if att == nil || att.ID == "" {
			continue
		}
		owningKey := keyByMsgID[att.MessageID]
		if owningKey == "" {
			continue
		}

		key := uuid.New().String()
		keyByAttID[att.ID] = key

		rows.attachments = append(rows.attachments, &domain.Attachment{
			Key:          key,
			ExternalID:   att.ID,
			MessageID:    att.MessageID,
			MimeType:     att.MimeType,
			Filename:     att.Filename,
			Size:         att.Size,
			LastSyncTime: now,
		})
		rows.records = append(rows.records, &domain.Record{
			Key:                         key,
			OrgID:                       orgID,
			RecordName:                  att.Filename,
			RecordType:                  domain.RecordTypeAttachment,
			Version:                     0,
			ExternalRecordID:            att.ID,
			RecordSource:                domain.RecordSourceConnector,
			ConnectorName:               domain.ConnectorGmail,
			CreatedAtTimestamp:          now,
			UpdatedAtTimestamp:          now,
			SourceCreatedAtTimestamp:    msgInternalDate(msgs, att.MessageID),
			SourceLastModifiedTimestamp: msgInternalDate(msgs, att.MessageID),
			LastSyncTimestamp:           now,
			IndexingStatus:              domain.StatusNotStarted,
			ExtractionStatus:            domain.StatusNotStarted,
		})
		rows.relEdges = appendEdge(rows.relEdges, domain.Edge{
			From:         domain.CollRecords + "/" + owningKey,
			To:           domain.CollRecords + "/" + key,
			RelationType: domain.RelationAttachment,
		})

		result.Events = append(result.Events, t.attachmentEvent(orgID, key, att, msgInternalDate(msgs, att.MessageID)))
	}

	// Permission descriptors resolve to HAS_ACCESS edges onto the message
	// record and each named attachment record.
	for _, perm := range batch.Permissions {
		if perm == nil {
			continue
		}
		msgKey := keyByMsgID[perm.MessageID]
		if msgKey == "" {
			continue
		}

		role := strings.ToLower(perm.Role)
		if role == "" {
			role = domain.RoleReader
		}

		for _, email := range perm.Principals {
			entityID, person, err := t.resolver.Resolve(ctx, email)
			if err != nil {
				return fmt.Errorf("resolve principal %s: %w", email, err)
			}
			if entityID == "" {
				continue
			}
			if person != nil && !rows.seenPeople[person.Key] {
				rows.seenPeople[person.Key] = true
				rows.people = append(rows.people, person)
			}

			rows.permEdges = appendEdge(rows.permEdges, domain.Edge{
				From:         entityID,
				To:           domain.CollRecords + "/" + msgKey,
				RelationType: domain.RelationHasAccess,
				Role:         role,
			})
			for _, attID := range perm.AttachmentIDs {
				attKey := keyByAttID[attID]
				if attKey == "" {
					continue
				}
				rows.permEdges = appendEdge(rows.permEdges, domain.Edge{
					From:         entityID,
					To:           domain.CollRecords + "/" + attKey,
					RelationType: domain.RelationHasAccess,
					Role:         role,
				})
			}
		}
	}

	return nil
}

func (t *MailTransformer) writeBatch(ctx context.Context, txID string, rows *mailRowSet) error {
	if len(rows.mails) > 0 {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollMails, rows.mails, txID); err != nil {
			return fmt.Errorf("upsert mails: %w", err)
		}
	}
	if len(rows.attachments) > 0 {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollAttachments, rows.attachments, txID); err != nil {
			return fmt.Errorf("upsert attachments: %w", err)
		}
	}
	if len(rows.records) > 0 {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollRecords, rows.records, txID); err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
	}
	if len(rows.people) > 0 {
		if err := t.store.BatchUpsertVertices(ctx, domain.CollPeople, rows.people, txID); err != nil {
			return fmt.Errorf("upsert people: %w", err)
		}
	}
	if len(rows.relEdges) > 0 {
		if err := t.store.BatchCreateEdges(ctx, domain.CollRecordRelations, rows.relEdges, txID); err != nil {
			return fmt.Errorf("create record relations: %w", err)
		}
	}
	if len(rows.permEdges) > 0 {
		if err := t.store.BatchCreateEdges(ctx, domain.CollPermissions, rows.permEdges, txID); err != nil {
			return fmt.Errorf("create permissions: %w", err)
		}
	}
	return nil
}

func (t *MailTransformer) mailEvent(orgID, key string, msg *out.ProviderMessage) *domain.RecordEvent {
	event := &domain.RecordEvent{
		OrgID:                     orgID,
		RecordID:                  key,
		RecordName:                mailRecordName(msg.Subject),
		RecordType:                domain.RecordTypeMessage,
		RecordVersion:             0,
		EventType:                 domain.EventCreate,
		SignedURLRoute:            t.routes.MailSignedURL(key),
		MetadataRoute:             t.routes.MailMetadata(key),
		ConnectorName:             domain.ConnectorGmail,
		RecordSource:              domain.RecordSourceConnector,
		MimeType:                  domain.MimeTypeGmailContent,
		ThreadID:                  msg.ThreadID,
		CreatedAtSourceTimestamp:  msg.InternalDate / 1000,
		ModifiedAtSourceTimestamp: msg.InternalDate / 1000,
	}
	if len(msg.Body) > 0 && len(msg.Body) <= maxInlineBodyBytes {
		event.Body = msg.Body
	}
	return event
}

func (t *MailTransformer) attachmentEvent(orgID, key string, att *out.ProviderAttachment, internalDate int64) *domain.RecordEvent {
	return &domain.RecordEvent{
		OrgID:                     orgID,
		RecordID:                  key,
		RecordName:                att.Filename,
		RecordType:                domain.RecordTypeAttachment,
		RecordVersion:             0,
		EventType:                 domain.EventCreate,
		SignedURLRoute:            t.routes.MailSignedURL(key),
		MetadataRoute:             t.routes.MailMetadata(key),
		ConnectorName:             domain.ConnectorGmail,
		RecordSource:              domain.RecordSourceConnector,
		MimeType:                  att.MimeType,
		Extension:                 extensionOf(att.Filename),
		CreatedAtSourceTimestamp:  internalDate / 1000,
		ModifiedAtSourceTimestamp: internalDate / 1000,
	}
}

// appendEdge appends e unless it is a self loop.
func appendEdge(edges []domain.Edge, e domain.Edge) []domain.Edge {
	if e.From == e.To {
		return edges
	}
	return append(edges, e)
}

func mailRecordName(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return "No Subject"
	}
	return subject
}

func extensionOf(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), ".")
}

func msgInternalDate(msgs []*out.ProviderMessage, msgID string) int64 {
	for _, msg := range msgs {
		if msg.ID == msgID {
			return msg.InternalDate
		}
	}
	return 0
}

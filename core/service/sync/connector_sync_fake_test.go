package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

// =============================================================================
// Fake graph store
// =============================================================================

// fakeStore is an in-memory stand-in for the full graph store: staged
// transactions, document and edge books, sync states, and watch channels.
// Pool workers hit it concurrently, so every method takes the mutex.
type fakeStore struct {
	mu          sync.Mutex
	docs        map[string]map[string]map[string]any // collection -> key -> doc
	edges       map[string][]domain.Edge
	txSeq       int
	staged      map[string]*stagedTx
	committed   int
	aborted     int
	failCommits int // fail this many commits before succeeding

	states      map[string]*domain.SyncStateEntry // email|service
	driveStates map[string]domain.SyncState       // email|driveID
	stateLog    []string                          // "email|service|STATE" in write order
	channels    map[string]*domain.Channel        // email|service
	tokenCalls  []string                          // "channelID|resourceID|email|token"
}

type stagedTx struct {
	docs  map[string][]map[string]any
	edges map[string][]domain.Edge
}

var _ out.GraphStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:        make(map[string]map[string]map[string]any),
		edges:       make(map[string][]domain.Edge),
		staged:      make(map[string]*stagedTx),
		states:      make(map[string]*domain.SyncStateEntry),
		driveStates: make(map[string]domain.SyncState),
		channels:    make(map[string]*domain.Channel),
	}
}

func (f *fakeStore) addUser(key, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putDocLocked(domain.CollUsers, map[string]any{"_key": key, "email": email})
}

func (f *fakeStore) putDocLocked(collection string, doc map[string]any) {
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	key, _ := doc["_key"].(string)
	f.docs[collection][key] = doc
}

func toDoc(row any) (map[string]any, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ===== GraphTransactions =====

func (f *fakeStore) BeginTransaction(ctx context.Context, readCols, writeCols []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txSeq++
	id := fmt.Sprintf("tx-%d", f.txSeq)
	f.staged[id] = &stagedTx{
		docs:  make(map[string][]map[string]any),
		edges: make(map[string][]domain.Edge),
	}
	return id, nil
}

func (f *fakeStore) CommitTransaction(ctx context.Context, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.staged[txID]
	if !ok {
		return errors.New("unknown transaction")
	}
	if f.failCommits > 0 {
		f.failCommits--
		return errors.New("commit rejected")
	}
	delete(f.staged, txID)
	for coll, docs := range tx.docs {
		for _, doc := range docs {
			f.putDocLocked(coll, doc)
		}
	}
	for coll, edges := range tx.edges {
		for _, e := range edges {
			f.applyEdgeLocked(coll, e)
		}
	}
	f.committed++
	return nil
}

func (f *fakeStore) AbortTransaction(ctx context.Context, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.staged[txID]; !ok {
		return errors.New("unknown transaction")
	}
	delete(f.staged, txID)
	f.aborted++
	return nil
}

// ===== GraphWriter =====

func (f *fakeStore) BatchUpsertVertices(ctx context.Context, collection string, rows []any, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		doc, err := toDoc(row)
		if err != nil {
			return err
		}
		if txID != "" {
			tx, ok := f.staged[txID]
			if !ok {
				return errors.New("unknown transaction")
			}
			tx.docs[collection] = append(tx.docs[collection], doc)
			continue
		}
		f.putDocLocked(collection, doc)
	}
	return nil
}

func (f *fakeStore) BatchCreateEdges(ctx context.Context, collection string, edges []domain.Edge, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if txID != "" {
			tx, ok := f.staged[txID]
			if !ok {
				return errors.New("unknown transaction")
			}
			tx.edges[collection] = append(tx.edges[collection], e)
			continue
		}
		f.applyEdgeLocked(collection, e)
	}
	return nil
}

func (f *fakeStore) applyEdgeLocked(collection string, e domain.Edge) {
	for i, existing := range f.edges[collection] {
		if existing.From == e.From && existing.To == e.To && existing.RelationType == e.RelationType {
			f.edges[collection][i] = e
			return
		}
	}
	f.edges[collection] = append(f.edges[collection], e)
}

// ===== GraphReader =====

func (f *fakeStore) GetDocument(ctx context.Context, collection, key string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[collection][key], nil
}

func (f *fakeStore) GetByExternalID(ctx context.Context, collection, externalID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byExternalLocked(collection, externalID), nil
}

func (f *fakeStore) byExternalLocked(collection, externalID string) map[string]any {
	for _, doc := range f.docs[collection] {
		if doc["externalId"] == externalID {
			return doc
		}
	}
	return nil
}

func (f *fakeStore) KeyByExternalMessageID(ctx context.Context, externalMessageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.byExternalLocked(domain.CollMails, externalMessageID)
	if doc == nil {
		return "", nil
	}
	key, _ := doc["_key"].(string)
	return key, nil
}

func (f *fakeStore) KeyByExternalFileID(ctx context.Context, externalFileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.byExternalLocked(domain.CollFiles, externalFileID)
	if doc == nil {
		return "", nil
	}
	key, _ := doc["_key"].(string)
	return key, nil
}

func (f *fakeStore) EntityIDByEmail(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	for key, doc := range f.docs[domain.CollUsers] {
		if doc["email"] == email {
			return domain.CollUsers + "/" + key, nil
		}
	}
	for key, doc := range f.docs[domain.CollGroups] {
		if doc["email"] == email {
			return domain.CollGroups + "/" + key, nil
		}
	}
	return "", nil
}

func (f *fakeStore) GetRecordByKey(ctx context.Context, key string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[domain.CollRecords][key]
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ===== SyncStateStore =====

func stateKey(email, serviceType string) string {
	return email + "|" + serviceType
}

func (f *fakeStore) GetSyncState(ctx context.Context, email, serviceType string) (*domain.SyncStateEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.states[stateKey(email, serviceType)]; ok {
		copied := *entry
		return &copied, nil
	}
	return &domain.SyncStateEntry{Email: email, ServiceType: serviceType, State: domain.SyncNotStarted}, nil
}

func (f *fakeStore) UpdateSyncState(ctx context.Context, email, serviceType string, state domain.SyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[stateKey(email, serviceType)] = &domain.SyncStateEntry{
		Email:       email,
		ServiceType: serviceType,
		State:       state,
	}
	f.stateLog = append(f.stateLog, email+"|"+serviceType+"|"+string(state))
	return nil
}

func (f *fakeStore) GetDriveSyncState(ctx context.Context, email, driveID string) (domain.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.driveStates[stateKey(email, driveID)]; ok {
		return state, nil
	}
	return domain.SyncNotStarted, nil
}

func (f *fakeStore) UpdateDriveSyncState(ctx context.Context, email, driveID string, state domain.SyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driveStates[stateKey(email, driveID)] = state
	return nil
}

func (f *fakeStore) StoreChannel(ctx context.Context, ch *domain.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *ch
	f.channels[stateKey(ch.Email, ch.ServiceType)] = &copied
	return nil
}

func (f *fakeStore) StorePageToken(ctx context.Context, channelID, resourceID, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls = append(f.tokenCalls, channelID+"|"+resourceID+"|"+email+"|"+token)
	if ch, ok := f.channels[stateKey(email, domain.ServiceDrive)]; ok && ch.ChannelID == channelID {
		ch.PageToken = token
	}
	return nil
}

func (f *fakeStore) ListExpiringChannels(ctx context.Context, before int64) ([]*domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expiring []*domain.Channel
	for _, ch := range f.channels {
		if ch.Expiry < before {
			copied := *ch
			expiring = append(expiring, &copied)
		}
	}
	return expiring, nil
}

// ===== assertion helpers =====

func (f *fakeStore) countDocs(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[collection])
}

func (f *fakeStore) keyByExternal(collection, externalID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.byExternalLocked(collection, externalID)
	if doc == nil {
		return ""
	}
	key, _ := doc["_key"].(string)
	return key
}

func (f *fakeStore) syncState(email, serviceType string) domain.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.states[stateKey(email, serviceType)]; ok {
		return entry.State
	}
	return domain.SyncNotStarted
}

func (f *fakeStore) driveState(email, driveID string) domain.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.driveStates[stateKey(email, driveID)]; ok {
		return state
	}
	return domain.SyncNotStarted
}

func (f *fakeStore) channelFor(email, serviceType string) *domain.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[stateKey(email, serviceType)]; ok {
		copied := *ch
		return &copied
	}
	return nil
}

func (f *fakeStore) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

func (f *fakeStore) stateTransitions(email, serviceType string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := email + "|" + serviceType + "|"
	var states []string
	for _, entry := range f.stateLog {
		if strings.HasPrefix(entry, prefix) {
			states = append(states, strings.TrimPrefix(entry, prefix))
		}
	}
	return states
}

func (f *fakeStore) edgeCount(collection, relationType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if relationType == "" {
		return len(f.edges[collection])
	}
	n := 0
	for _, e := range f.edges[collection] {
		if e.RelationType == relationType {
			n++
		}
	}
	return n
}

func (f *fakeStore) hasEdge(collection, from, to string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges[collection] {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

func (f *fakeStore) edgeBetween(collection, from, to string) (domain.Edge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges[collection] {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return domain.Edge{}, false
}

// =============================================================================
// Fake event producer
// =============================================================================

type fakeProducer struct {
	mu     sync.Mutex
	events []*domain.RecordEvent
}

var _ out.RecordEventProducer = (*fakeProducer)(nil)

func (f *fakeProducer) EmitRecordEvent(ctx context.Context, event *domain.RecordEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeProgress records progress writes keyed by email|service.
type fakeProgress struct {
	mu     sync.Mutex
	fields map[string]map[string]any
}

var _ out.SyncProgressReporter = (*fakeProgress)(nil)

func newFakeProgress() *fakeProgress {
	return &fakeProgress{fields: make(map[string]map[string]any)}
}

func (f *fakeProgress) SetSyncProgress(ctx context.Context, email, serviceType string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey(email, serviceType)
	if f.fields[key] == nil {
		f.fields[key] = make(map[string]any)
	}
	for k, v := range fields {
		f.fields[key][k] = v
	}
	return nil
}

func (f *fakeProgress) IncrSyncCounter(ctx context.Context, email, serviceType, field string, by int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stateKey(email, serviceType)
	if f.fields[key] == nil {
		f.fields[key] = make(map[string]any)
	}
	current, _ := f.fields[key][field].(int64)
	f.fields[key][field] = current + by
	return nil
}

func (f *fakeProgress) GetSyncProgress(ctx context.Context, email, serviceType string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]string)
	for k, v := range f.fields[stateKey(email, serviceType)] {
		result[k] = fmt.Sprintf("%v", v)
	}
	return result, nil
}

func (f *fakeProgress) counter(email, serviceType, field string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := f.fields[stateKey(email, serviceType)][field].(int64)
	return v
}

// =============================================================================
// Fake provider surfaces
// =============================================================================

type fakeUserSurface struct {
	mail  *fakeMailSurface
	drive *fakeDriveSurface
}

var _ out.UserSurface = (*fakeUserSurface)(nil)

func (s *fakeUserSurface) Mail() out.MailSurface   { return s.mail }
func (s *fakeUserSurface) Drive() out.DriveSurface { return s.drive }

// fakeMailSurface serves canned threads one listing page at a time. The
// onListMessages hook fires before each thread fetch so tests can inject
// control actions mid-run.
type fakeMailSurface struct {
	threads  []*out.ProviderThread
	messages map[string][]*out.ProviderMessage
	pageSize int // threads per listing page, 0 = everything on one page

	listThreadsErr  error
	listMessagesErr map[string]error
	onListMessages  func(threadID string)

	watch      *out.ProviderMailWatch
	watchErr   error
	changes    *out.ProviderMailChanges
	changesErr error

	block chan struct{} // when set, ListThreads waits for close or ctx

	watchCalls   int
	watchTopics  []string
	changesWith  []string
	listMsgCalls int
}

var _ out.MailSurface = (*fakeMailSurface)(nil)

func newFakeMailSurface() *fakeMailSurface {
	return &fakeMailSurface{
		messages:        make(map[string][]*out.ProviderMessage),
		listMessagesErr: make(map[string]error),
		watch:           &out.ProviderMailWatch{HistoryID: "h-1", Expiry: 9_999_999_999_999},
		changes:         &out.ProviderMailChanges{NewHistoryID: "h-1"},
	}
}

// addThread registers a thread with one plain message per given id.
func (s *fakeMailSurface) addThread(threadID string, messageIDs ...string) {
	s.threads = append(s.threads, &out.ProviderThread{ID: threadID})
	for i, id := range messageIDs {
		s.messages[threadID] = append(s.messages[threadID], &out.ProviderMessage{
			ID:           id,
			ThreadID:     threadID,
			InternalDate: int64(1000 * (i + 1)),
			Subject:      "subject " + id,
			From:         "alice@x.com",
			To:           []string{"bob@x.com"},
		})
	}
}

func (s *fakeMailSurface) ListThreads(ctx context.Context, pageToken string, max int64) (*out.ProviderThreadPage, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.listThreadsErr != nil {
		return nil, s.listThreadsErr
	}
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &start)
	}
	size := s.pageSize
	if size <= 0 {
		size = len(s.threads)
	}
	end := start + size
	next := ""
	if end >= len(s.threads) {
		end = len(s.threads)
	} else {
		next = fmt.Sprintf("page-%d", end)
	}
	if start > end {
		start = end
	}
	return &out.ProviderThreadPage{Threads: s.threads[start:end], NextPageToken: next}, nil
}

func (s *fakeMailSurface) ListMessages(ctx context.Context, threadID string) ([]*out.ProviderMessage, error) {
	s.listMsgCalls++
	if s.onListMessages != nil {
		s.onListMessages(threadID)
	}
	if err := s.listMessagesErr[threadID]; err != nil {
		return nil, err
	}
	return s.messages[threadID], nil
}

func (s *fakeMailSurface) GetMessage(ctx context.Context, id string) (*out.ProviderMessage, error) {
	for _, msgs := range s.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				return msg, nil
			}
		}
	}
	return nil, nil
}

func (s *fakeMailSurface) ListAttachments(ctx context.Context, msg *out.ProviderMessage) ([]*out.ProviderAttachment, error) {
	return msg.Attachments, nil
}

func (s *fakeMailSurface) CreateWatch(ctx context.Context, topic string) (*out.ProviderMailWatch, error) {
	s.watchCalls++
	s.watchTopics = append(s.watchTopics, topic)
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	return s.watch, nil
}

func (s *fakeMailSurface) GetChanges(ctx context.Context, historyID string) (*out.ProviderMailChanges, error) {
	s.changesWith = append(s.changesWith, historyID)
	if s.changesErr != nil {
		return nil, s.changesErr
	}
	return s.changes, nil
}

// fakeDriveSurface serves a personal drive plus canned shared drives. The
// onBatchFetch hook fires before each metadata batch.
type fakeDriveSurface struct {
	root   *out.ProviderDriveInfo
	shared []*out.ProviderDriveInfo
	files  map[string][]string // driveID -> file ids
	meta   map[string]*out.ProviderFile

	rootErr      error
	sharedErr    error
	listFilesErr map[string]error
	onBatchFetch func(fileIDs []string)

	watch      *out.ProviderDriveWatch
	watchErr   error
	changes    *out.ProviderDriveChanges
	changesErr error

	watchCalls  int
	changesWith []string
	walkedOrder []string // driveIDs in ListFilesInFolder call order
}

var _ out.DriveSurface = (*fakeDriveSurface)(nil)

func newFakeDriveSurface() *fakeDriveSurface {
	return &fakeDriveSurface{
		root:         &out.ProviderDriveInfo{ID: "d-personal", Name: "My Drive", AccessLevel: "organizer"},
		files:        make(map[string][]string),
		meta:         make(map[string]*out.ProviderFile),
		listFilesErr: make(map[string]error),
		watch: &out.ProviderDriveWatch{
			ChannelID:  "ch-1",
			ResourceID: "res-1",
			PageToken:  "pt-1",
			Expiry:     9_999_999_999_999,
		},
		changes: &out.ProviderDriveChanges{},
	}
}

// addFile registers a plain file in the given drive.
func (s *fakeDriveSurface) addFile(driveID, fileID string) {
	s.files[driveID] = append(s.files[driveID], fileID)
	s.meta[fileID] = &out.ProviderFile{
		ID:       fileID,
		Name:     fileID + ".txt",
		MimeType: "text/plain",
		Size:     64,
		Path:     "/" + fileID + ".txt",
	}
}

func (s *fakeDriveSurface) ListSharedDrives(ctx context.Context) ([]*out.ProviderDriveInfo, error) {
	if s.sharedErr != nil {
		return nil, s.sharedErr
	}
	return s.shared, nil
}

func (s *fakeDriveSurface) GetDriveInfo(ctx context.Context, driveID string) (*out.ProviderDriveInfo, error) {
	if s.rootErr != nil {
		return nil, s.rootErr
	}
	return s.root, nil
}

func (s *fakeDriveSurface) ListFilesInFolder(ctx context.Context, driveID, pageToken string) (*out.ProviderFileIDPage, error) {
	if pageToken == "" {
		s.walkedOrder = append(s.walkedOrder, driveID)
	}
	if err := s.listFilesErr[driveID]; err != nil {
		return nil, err
	}
	return &out.ProviderFileIDPage{FileIDs: s.files[driveID]}, nil
}

func (s *fakeDriveSurface) BatchFetchMetadataAndPermissions(ctx context.Context, fileIDs []string) ([]*out.ProviderFile, error) {
	if s.onBatchFetch != nil {
		s.onBatchFetch(fileIDs)
	}
	files := make([]*out.ProviderFile, 0, len(fileIDs))
	for _, id := range fileIDs {
		if file, ok := s.meta[id]; ok {
			files = append(files, file)
		}
	}
	return files, nil
}

func (s *fakeDriveSurface) CreateChangesWatch(ctx context.Context) (*out.ProviderDriveWatch, error) {
	s.watchCalls++
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	return s.watch, nil
}

func (s *fakeDriveSurface) GetChanges(ctx context.Context, pageToken string) (*out.ProviderDriveChanges, error) {
	s.changesWith = append(s.changesWith, pageToken)
	if s.changesErr != nil {
		return nil, s.changesErr
	}
	return s.changes, nil
}

// =============================================================================
// Fake admin surface and factory
// =============================================================================

type fakeAdmin struct {
	users       []*out.ProviderPrincipal
	groups      []*out.ProviderGroup
	members     map[string][]*out.ProviderGroupMember
	domains     []*out.ProviderDomain
	surfaces    map[string]*fakeUserSurface
	delegateErr map[string]error
}

var _ out.AdminSurface = (*fakeAdmin)(nil)

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		members:     make(map[string][]*out.ProviderGroupMember),
		surfaces:    make(map[string]*fakeUserSurface),
		delegateErr: make(map[string]error),
	}
}

// addUser registers a principal with fresh empty mail and drive surfaces.
func (a *fakeAdmin) addUser(email string) *fakeUserSurface {
	a.users = append(a.users, &out.ProviderPrincipal{
		ID:       "ext-" + email,
		Email:    email,
		FullName: strings.Split(email, "@")[0],
		IsActive: true,
	})
	surface := &fakeUserSurface{mail: newFakeMailSurface(), drive: newFakeDriveSurface()}
	a.surfaces[email] = surface
	return surface
}

func (a *fakeAdmin) ListPrincipals(ctx context.Context) ([]*out.ProviderPrincipal, error) {
	return a.users, nil
}

func (a *fakeAdmin) ListGroups(ctx context.Context) ([]*out.ProviderGroup, error) {
	return a.groups, nil
}

func (a *fakeAdmin) ListGroupMembers(ctx context.Context, groupEmail string) ([]*out.ProviderGroupMember, error) {
	return a.members[groupEmail], nil
}

func (a *fakeAdmin) ListDomains(ctx context.Context) ([]*out.ProviderDomain, error) {
	return a.domains, nil
}

func (a *fakeAdmin) DelegateFor(ctx context.Context, email string) (out.UserSurface, error) {
	if err := a.delegateErr[email]; err != nil {
		return nil, err
	}
	surface, ok := a.surfaces[email]
	if !ok {
		return nil, fmt.Errorf("no surface for %s", email)
	}
	return surface, nil
}

type fakeFactory struct {
	mu    sync.Mutex
	admin *fakeAdmin
	err   error
	calls int
}

var _ out.ProviderFactory = (*fakeFactory)(nil)

func (f *fakeFactory) AdminFor(ctx context.Context, orgID string) (out.AdminSurface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.admin, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

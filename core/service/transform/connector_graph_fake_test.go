package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

// fakeGraph is an in-memory stand-in for the graph store with staged
// transactions, shared by the transformer tests.
type fakeGraph struct {
	docs      map[string]map[string]map[string]any // collection -> key -> doc
	edges     map[string][]domain.Edge
	txSeq     int
	staged    map[string]*stagedTx
	committed int
	aborted   int
	failCol   string // collection whose writes fail
}

type stagedTx struct {
	docs  map[string][]map[string]any
	edges map[string][]domain.Edge
}

var _ out.RecordGraph = (*fakeGraph)(nil)

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		docs:   make(map[string]map[string]map[string]any),
		edges:  make(map[string][]domain.Edge),
		staged: make(map[string]*stagedTx),
	}
}

func (f *fakeGraph) addUser(key, email string) {
	f.putDoc(domain.CollUsers, map[string]any{"_key": key, "email": email})
}

func (f *fakeGraph) addGroup(key, email string) {
	f.putDoc(domain.CollGroups, map[string]any{"_key": key, "email": email})
}

func (f *fakeGraph) putDoc(collection string, doc map[string]any) {
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

func (f *fakeGraph) BeginTransaction(ctx context.Context, readCols, writeCols []string) (string, error) {
	f.txSeq++
	id := fmt.Sprintf("tx-%d", f.txSeq)
	f.staged[id] = &stagedTx{
		docs:  make(map[string][]map[string]any),
		edges: make(map[string][]domain.Edge),
	}
	return id, nil
}

func (f *fakeGraph) CommitTransaction(ctx context.Context, txID string) error {
	tx, ok := f.staged[txID]
	if !ok {
		return errors.New("unknown transaction")
	}
	delete(f.staged, txID)
	for coll, docs := range tx.docs {
		for _, doc := range docs {
			f.putDoc(coll, doc)
		}
	}
	for coll, edges := range tx.edges {
		for _, e := range edges {
			f.applyEdge(coll, e)
		}
	}
	f.committed++
	return nil
}

func (f *fakeGraph) AbortTransaction(ctx context.Context, txID string) error {
	if _, ok := f.staged[txID]; !ok {
		return errors.New("unknown transaction")
	}
	delete(f.staged, txID)
	f.aborted++
	return nil
}

// ===== GraphWriter =====

func (f *fakeGraph) BatchUpsertVertices(ctx context.Context, collection string, rows []any, txID string) error {
	if collection == f.failCol {
		return errors.New("write rejected")
	}
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
		f.putDoc(collection, doc)
	}
	return nil
}

func (f *fakeGraph) BatchCreateEdges(ctx context.Context, collection string, edges []domain.Edge, txID string) error {
	if collection == f.failCol {
		return errors.New("write rejected")
	}
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
		f.applyEdge(collection, e)
	}
	return nil
}

// applyEdge coalesces duplicates on (from, to, relationType).
func (f *fakeGraph) applyEdge(collection string, e domain.Edge) {
	for i, existing := range f.edges[collection] {
		if existing.From == e.From && existing.To == e.To && existing.RelationType == e.RelationType {
			f.edges[collection][i] = e
			return
		}
	}
	f.edges[collection] = append(f.edges[collection], e)
}

// ===== GraphReader =====

func (f *fakeGraph) GetDocument(ctx context.Context, collection, key string) (map[string]any, error) {
	return f.docs[collection][key], nil
}

func (f *fakeGraph) GetByExternalID(ctx context.Context, collection, externalID string) (map[string]any, error) {
	for _, doc := range f.docs[collection] {
		if doc["externalId"] == externalID {
			return doc, nil
		}
	}
	return nil, nil
}

func (f *fakeGraph) KeyByExternalMessageID(ctx context.Context, externalMessageID string) (string, error) {
	doc, _ := f.GetByExternalID(ctx, domain.CollMails, externalMessageID)
	if doc == nil {
		return "", nil
	}
	key, _ := doc["_key"].(string)
	return key, nil
}

func (f *fakeGraph) KeyByExternalFileID(ctx context.Context, externalFileID string) (string, error) {
	doc, _ := f.GetByExternalID(ctx, domain.CollFiles, externalFileID)
	if doc == nil {
		return "", nil
	}
	key, _ := doc["_key"].(string)
	return key, nil
}

func (f *fakeGraph) EntityIDByEmail(ctx context.Context, email string) (string, error) {
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

func (f *fakeGraph) GetRecordByKey(ctx context.Context, key string) (*domain.Record, error) {
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

// ===== assertion helpers =====

func (f *fakeGraph) countDocs(collection string) int {
	return len(f.docs[collection])
}

func (f *fakeGraph) keyByExternal(collection, externalID string) string {
	doc, _ := f.GetByExternalID(context.Background(), collection, externalID)
	if doc == nil {
		return ""
	}
	key, _ := doc["_key"].(string)
	return key
}

func (f *fakeGraph) edgesOf(collection, relationType string) []domain.Edge {
	var result []domain.Edge
	for _, e := range f.edges[collection] {
		if e.RelationType == relationType {
			result = append(result, e)
		}
	}
	return result
}

func (f *fakeGraph) hasEdge(collection, from, to, relationType, role string) bool {
	for _, e := range f.edges[collection] {
		if e.From == from && e.To == to && e.RelationType == relationType && e.Role == role {
			return true
		}
	}
	return false
}

// fakeBodyStore records offloaded bodies.
type fakeBodyStore struct {
	saved map[string]string
	mimes map[string]string
}

var _ out.MailBodyStore = (*fakeBodyStore)(nil)

func newFakeBodyStore() *fakeBodyStore {
	return &fakeBodyStore{saved: make(map[string]string), mimes: make(map[string]string)}
}

func (f *fakeBodyStore) SaveBody(ctx context.Context, orgID, recordKey, mimeType, body string) error {
	f.saved[recordKey] = body
	f.mimes[recordKey] = mimeType
	return nil
}

func (f *fakeBodyStore) GetBody(ctx context.Context, recordKey string) (string, string, error) {
	return f.saved[recordKey], f.mimes[recordKey], nil
}

func (f *fakeBodyStore) DeleteBody(ctx context.Context, recordKey string) error {
	delete(f.saved, recordKey)
	delete(f.mimes, recordKey)
	return nil
}

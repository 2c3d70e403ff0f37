package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rish231294/pipeshub-ai/core/port/out"
)

// =============================================================================
// MongoDB Mail Body Adapter
// =============================================================================

const (
	collectionMailBodies = "mail_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB

	// Cached bodies expire after this window; the TTL index reclaims them.
	bodyTTL = 30 * 24 * time.Hour
)

// MailBodyAdapter implements out.MailBodyStore using MongoDB.
type MailBodyAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewMailBodyAdapter creates a new MongoDB mail body adapter.
func NewMailBodyAdapter(db *mongo.Database) *MailBodyAdapter {
	collection := db.Collection(collectionMailBodies)
	return &MailBodyAdapter{
		db:         db,
		collection: collection,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *MailBodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "record_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "org_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

// mailBodyDocument represents the MongoDB document structure.
type mailBodyDocument struct {
	RecordKey string `bson:"record_key"`
	OrgID     string `bson:"org_id"`
	MimeType  string `bson:"mime_type"`

	// Content (potentially compressed)
	Body         []byte `bson:"body"`
	IsCompressed bool   `bson:"is_compressed"`

	// Size info
	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	// Cache metadata
	CachedAt  time.Time `bson:"cached_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// =============================================================================
// Operations
// =============================================================================

// SaveBody caches a mail body, replacing any previous version for the key.
func (a *MailBodyAdapter) SaveBody(ctx context.Context, orgID, recordKey, mimeType, body string) error {
	doc, err := a.toDocument(orgID, recordKey, mimeType, body)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"record_key": recordKey}

	_, err = a.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save mail body: %w", err)
	}

	return nil
}

// GetBody retrieves a cached mail body. Returns ("", "", nil) on a miss.
func (a *MailBodyAdapter) GetBody(ctx context.Context, recordKey string) (string, string, error) {
	var doc mailBodyDocument
	filter := bson.M{"record_key": recordKey}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", "", nil
		}
		return "", "", fmt.Errorf("failed to get mail body: %w", err)
	}

	content := doc.Body
	if doc.IsCompressed {
		content, err = decompress(doc.Body)
		if err != nil {
			return "", "", fmt.Errorf("failed to decompress mail body: %w", err)
		}
	}

	return string(content), doc.MimeType, nil
}

// DeleteBody removes a cached mail body.
func (a *MailBodyAdapter) DeleteBody(ctx context.Context, recordKey string) error {
	filter := bson.M{"record_key": recordKey}

	_, err := a.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete mail body: %w", err)
	}

	return nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func (a *MailBodyAdapter) toDocument(orgID, recordKey, mimeType, body string) (*mailBodyDocument, error) {
	content := []byte(body)
	originalSize := int64(len(content))

	isCompressed := false
	compressedSize := originalSize

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressed, err := compress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to compress body: %w", err)
		}

		content = compressed
		isCompressed = true
		compressedSize = int64(len(content))
	}

	now := time.Now()
	return &mailBodyDocument{
		RecordKey:      recordKey,
		OrgID:          orgID,
		MimeType:       mimeType,
		Body:           content,
		IsCompressed:   isCompressed,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		CachedAt:       now,
		ExpiresAt:      now.Add(bodyTTL),
	}, nil
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailBodyStore = (*MailBodyAdapter)(nil)

package in

import "context"

// ===== Record Service Inbound Port =====

// RecordMetadata is the view of a stored record returned to API clients.
type RecordMetadata struct {
	RecordID      string `json:"recordId"`
	RecordName    string `json:"recordName"`
	RecordType    string `json:"recordType"`
	Version       int    `json:"recordVersion"`
	ConnectorName string `json:"connectorName"`
	OrgID         string `json:"orgId"`
	CreatedAt     int64  `json:"createdAtTimestamp"`
	UpdatedAt     int64  `json:"updatedAtTimestamp"`
	SignedURL     string `json:"signedUrl,omitempty"`
}

// RecordService serves record metadata and content for the per-record
// API routes announced in event envelopes.
type RecordService interface {
	// GetRecordMetadata returns the stored record fields for the given
	// connector and record key.
	GetRecordMetadata(ctx context.Context, connector, recordID string) (*RecordMetadata, error)

	// IssueSignedURL mints a short-lived signed content URL for a record.
	IssueSignedURL(ctx context.Context, connector, recordID string) (string, error)

	// GetRecordContent validates a signed token and streams back the
	// stored body and its MIME type.
	GetRecordContent(ctx context.Context, connector, recordID, token string) ([]byte, string, error)
}

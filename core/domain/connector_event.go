package domain

// =============================================================================
// Record Events
// =============================================================================

// EventType classifies a record event.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// RecordEvent is the envelope published to the record stream once per
// mirrored record, strictly after the owning transaction commits.
type RecordEvent struct {
	OrgID                     string     `json:"orgId"`
	RecordID                  string     `json:"recordId"`
	RecordName                string     `json:"recordName"`
	RecordType                RecordType `json:"recordType"`
	RecordVersion             int        `json:"recordVersion"`
	EventType                 EventType  `json:"eventType"`
	Body                      string     `json:"body,omitempty"`
	SignedURLRoute            string     `json:"signedUrlRoute"`
	MetadataRoute             string     `json:"metadataRoute"`
	ConnectorName             string     `json:"connectorName"`
	RecordSource              string     `json:"recordSource"`
	MimeType                  string     `json:"mimeType"`
	Extension                 string     `json:"extension,omitempty"`
	ThreadID                  string     `json:"threadId,omitempty"`
	CreatedAtSourceTimestamp  int64      `json:"createdAtSourceTimestamp"`
	ModifiedAtSourceTimestamp int64      `json:"modifiedAtSourceTimestamp"`
}

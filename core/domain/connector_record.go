// Package domain holds the graph entities mirrored out of a Google
// Workspace tenant and the values shared between services and adapters.
package domain

// =============================================================================
// Graph Collections
// =============================================================================

// Vertex collections.
const (
	CollUsers         = "users"
	CollGroups        = "groups"
	CollPeople        = "people"
	CollOrganizations = "organizations"
	CollAnyone        = "anyone"
	CollDrives        = "drives"
	CollFiles         = "files"
	CollMails         = "mails"
	CollAttachments   = "attachments"
	CollRecords       = "records"
	CollSyncStates    = "syncStates"
	CollChannels      = "channels"
)

// Edge collections.
const (
	CollRecordRelations   = "recordRelations"
	CollPermissions       = "permissions"
	CollBelongsTo         = "belongsTo"
	CollUserDriveRelation = "userDriveRelation"
)

// =============================================================================
// Record Types
// =============================================================================

// RecordType identifies what kind of source entity a record mirrors.
type RecordType string

const (
	RecordTypeMessage    RecordType = "MESSAGE"
	RecordTypeFile       RecordType = "FILE"
	RecordTypeAttachment RecordType = "ATTACHMENT"
)

// Connector names carried on records and events.
const (
	ConnectorGmail = "GOOGLE_GMAIL"
	ConnectorDrive = "GOOGLE_DRIVE"
)

// RecordSourceConnector marks records mirrored by this service (as opposed
// to records uploaded directly by end users).
const RecordSourceConnector = "CONNECTOR"

// Processing statuses stamped on new records for the downstream indexer.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Record is the uniform mirror vertex. Every mails/files/attachments vertex
// has exactly one record with the same key.
type Record struct {
	Key                         string     `json:"_key"`
	OrgID                       string     `json:"orgId"`
	RecordName                  string     `json:"recordName"`
	RecordType                  RecordType `json:"recordType"`
	Version                     int        `json:"version"`
	ExternalRecordID            string     `json:"externalRecordId"`
	RecordSource                string     `json:"recordSource"`
	ConnectorName               string     `json:"connectorName"`
	CreatedAtTimestamp          int64      `json:"createdAtTimestamp"`
	UpdatedAtTimestamp          int64      `json:"updatedAtTimestamp"`
	SourceCreatedAtTimestamp    int64      `json:"sourceCreatedAtTimestamp"`
	SourceLastModifiedTimestamp int64      `json:"sourceLastModifiedTimestamp"`
	LastSyncTimestamp           int64      `json:"lastSyncTimestamp"`
	IsArchived                  bool       `json:"isArchived"`
	IndexingStatus              string     `json:"indexingStatus"`
	ExtractionStatus            string     `json:"extractionStatus"`
}

// =============================================================================
// Edges
// =============================================================================

// Relation types on recordRelations edges.
const (
	RelationParentChild = "PARENT_CHILD"
	RelationSibling     = "SIBLING"
	RelationAttachment  = "ATTACHMENT"
)

// RelationHasAccess is the relation type on permission edges.
const RelationHasAccess = "HAS_ACCESS"

// Entity types on belongsTo edges.
const (
	EntityGroup        = "GROUP"
	EntityOrganization = "ORGANIZATION"
)

// Edge is a generic graph edge. The optional fields cover all four edge
// collections; unset fields are omitted from the stored document.
type Edge struct {
	From         string `json:"_from"`
	To           string `json:"_to"`
	RelationType string `json:"relationType,omitempty"`
	Role         string `json:"role,omitempty"`
	EntityType   string `json:"entityType,omitempty"`
	AccessLevel  string `json:"accessLevel,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

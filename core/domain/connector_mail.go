package domain

// =============================================================================
// Mail Vertices
// =============================================================================

// Mail is a mirrored Gmail message vertex. Its key equals the key of the
// matching records vertex.
type Mail struct {
	Key             string   `json:"_key"`
	ExternalID      string   `json:"externalId"`
	ThreadID        string   `json:"threadId"`
	IsParent        bool     `json:"isParent"`
	InternalDate    int64    `json:"internalDate"`
	Subject         string   `json:"subject"`
	Date            string   `json:"date"`
	From            string   `json:"from"`
	To              []string `json:"to"`
	CC              []string `json:"cc,omitempty"`
	BCC             []string `json:"bcc,omitempty"`
	MessageIDHeader string   `json:"messageIdHeader,omitempty"`
	HistoryID       string   `json:"historyId,omitempty"`
	WebURL          string   `json:"webUrl"`
	LabelIDs        []string `json:"labelIds,omitempty"`
	LastSyncTime    int64    `json:"lastSyncTime"`
}

// Attachment is a mirrored mail attachment vertex.
type Attachment struct {
	Key          string `json:"_key"`
	ExternalID   string `json:"externalId"`
	MessageID    string `json:"messageId"`
	MimeType     string `json:"mimeType"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	WebURL       string `json:"webUrl,omitempty"`
	LastSyncTime int64  `json:"lastSyncTime"`
}

// MailPermission describes which principals may read a message and its
// attachments. Resolved into HAS_ACCESS edges while a batch transforms.
type MailPermission struct {
	MessageID     string
	AttachmentIDs []string
	Role          string
	Principals    []string
}

// MimeTypeGmailContent is the mime type stamped on mail record events so the
// downstream indexer picks the Gmail extractor.
const MimeTypeGmailContent = "text/gmail_content"

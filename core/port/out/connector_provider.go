package out

import "context"

// =============================================================================
// Provider DTOs
// =============================================================================

// ProviderPrincipal is a tenant directory user as reported by the admin
// surface. Suspended users are filtered out before they reach the core.
type ProviderPrincipal struct {
	ID        string
	Email     string
	FullName  string
	Domain    string
	IsActive  bool
	CreatedAt int64 // epoch ms
}

// ProviderGroup is a tenant directory group.
type ProviderGroup struct {
	ID           string
	Email        string
	Name         string
	Description  string
	AdminCreated bool
	CreatedAt    int64
}

// ProviderGroupMember is one membership row of a group.
type ProviderGroupMember struct {
	Email  string
	Role   string
	Type   string
	Status string
}

// ProviderDomain is one tenant domain.
type ProviderDomain struct {
	DomainName string
	IsPrimary  bool
	Verified   bool
}

// ProviderThread is a mail thread stub from a thread listing page.
type ProviderThread struct {
	ID        string
	HistoryID string
	Snippet   string
}

// ProviderThreadPage is one page of thread stubs.
type ProviderThreadPage struct {
	Threads       []*ProviderThread
	NextPageToken string
}

// ProviderMessage is a fully fetched mail message with parsed headers.
type ProviderMessage struct {
	ID              string
	ThreadID        string
	LabelIDs        []string
	InternalDate    int64 // epoch ms
	HistoryID       string
	Subject         string
	Date            string
	From            string
	To              []string
	CC              []string
	BCC             []string
	MessageIDHeader string
	WebURL          string
	Body            string
	Attachments     []*ProviderAttachment
}

// ProviderAttachment is attachment metadata parsed from a message payload.
type ProviderAttachment struct {
	ID        string
	MessageID string
	Filename  string
	MimeType  string
	Size      int64
}

// ProviderMailWatch is the result of registering a mailbox watch.
type ProviderMailWatch struct {
	HistoryID string
	Expiry    int64 // epoch ms
}

// ProviderMailChanges is the result of a history delta query.
type ProviderMailChanges struct {
	NewHistoryID string
	MessageIDs   []string
}

// ProviderDriveInfo describes a drive and the delegated user's access to it.
type ProviderDriveInfo struct {
	ID          string
	Name        string
	AccessLevel string
}

// ProviderFileIDPage is one page of file ids from a drive listing.
type ProviderFileIDPage struct {
	FileIDs       []string
	NextPageToken string
}

// ProviderFilePermission is one ACL entry on a file.
type ProviderFilePermission struct {
	ID           string
	Type         string // user | group | domain | anyone
	EmailAddress string
	Role         string
	Domain       string
}

// ProviderFile is full file metadata including permissions and path.
type ProviderFile struct {
	ID           string
	Name         string
	MimeType     string
	Extension    string
	Size         int64
	WebURL       string
	Parents      []string
	MD5Checksum  string
	SHA1Checksum string
	SHA256Hash   string
	CreatedTime  string // RFC3339
	ModifiedTime string // RFC3339
	IsFolder     bool
	Path         string
	Permissions  []*ProviderFilePermission
}

// ProviderDriveWatch is the result of registering a drive changes watch.
type ProviderDriveWatch struct {
	ChannelID  string
	ResourceID string
	PageToken  string
	Expiry     int64 // epoch ms
}

// ProviderDriveChanges is the result of a changes page query.
type ProviderDriveChanges struct {
	FileIDs       []string
	NewPageToken  string
	NextPageToken string
}

// =============================================================================
// Provider Surfaces
// =============================================================================

// AdminSurface is the tenant directory façade. Implementations rate-limit,
// retry transient failures and circuit-break internally; the core treats any
// returned error as terminal for that call.
type AdminSurface interface {
	ListPrincipals(ctx context.Context) ([]*ProviderPrincipal, error)
	ListGroups(ctx context.Context) ([]*ProviderGroup, error)
	ListGroupMembers(ctx context.Context, groupEmail string) ([]*ProviderGroupMember, error)
	ListDomains(ctx context.Context) ([]*ProviderDomain, error)
	// DelegateFor builds per-user mail and drive surfaces through
	// domain-wide delegation.
	DelegateFor(ctx context.Context, email string) (UserSurface, error)
}

// UserSurface bundles the per-user service façades.
type UserSurface interface {
	Mail() MailSurface
	Drive() DriveSurface
}

// MailSurface is the per-user mail façade.
type MailSurface interface {
	ListThreads(ctx context.Context, pageToken string, max int64) (*ProviderThreadPage, error)
	ListMessages(ctx context.Context, threadID string) ([]*ProviderMessage, error)
	GetMessage(ctx context.Context, id string) (*ProviderMessage, error)
	ListAttachments(ctx context.Context, msg *ProviderMessage) ([]*ProviderAttachment, error)
	CreateWatch(ctx context.Context, topic string) (*ProviderMailWatch, error)
	GetChanges(ctx context.Context, historyID string) (*ProviderMailChanges, error)
}

// DriveSurface is the per-user drive façade.
type DriveSurface interface {
	ListSharedDrives(ctx context.Context) ([]*ProviderDriveInfo, error)
	GetDriveInfo(ctx context.Context, driveID string) (*ProviderDriveInfo, error)
	ListFilesInFolder(ctx context.Context, driveID, pageToken string) (*ProviderFileIDPage, error)
	BatchFetchMetadataAndPermissions(ctx context.Context, fileIDs []string) ([]*ProviderFile, error)
	CreateChangesWatch(ctx context.Context) (*ProviderDriveWatch, error)
	GetChanges(ctx context.Context, pageToken string) (*ProviderDriveChanges, error)
}

// ProviderFactory builds the admin surface for a tenant from its stored
// service-account credential.
type ProviderFactory interface {
	AdminFor(ctx context.Context, orgID string) (AdminSurface, error)
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrSyncRequired ProviderErrorCode = "full_sync_required"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

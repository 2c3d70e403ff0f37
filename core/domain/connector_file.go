package domain

// =============================================================================
// Drive Vertices
// =============================================================================

// File is a mirrored Drive file or folder vertex. Its key equals the key of
// the matching records vertex.
type File struct {
	Key          string `json:"_key"`
	OrgID        string `json:"orgId"`
	FileName     string `json:"fileName"`
	IsFile       bool   `json:"isFile"`
	Extension    string `json:"extension,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	SizeInBytes  int64  `json:"sizeInBytes"`
	WebURL       string `json:"webUrl,omitempty"`
	ETag         string `json:"etag,omitempty"`
	CTag         string `json:"ctag,omitempty"`
	MD5Checksum  string `json:"md5Checksum,omitempty"`
	SHA1Hash     string `json:"sha1Hash,omitempty"`
	SHA256Hash   string `json:"sha256Hash,omitempty"`
	QuickXorHash string `json:"quickXorHash,omitempty"`
	CRC32Hash    string `json:"crc32Hash,omitempty"`
	ExternalID   string `json:"externalId"`
	Path         string `json:"path,omitempty"`
}

// Drive is a mirrored shared drive (or a user's root drive) vertex.
type Drive struct {
	Key         string `json:"_key"`
	ExternalID  string `json:"externalId"`
	Name        string `json:"name,omitempty"`
	AccessLevel string `json:"accessLevel"`
}

// Drive access levels carried on userDriveRelation edges.
const (
	AccessWriter = "writer"
	AccessReader = "reader"
)

// Roles on the drive-record HAS_ACCESS edge toward the syncing user.
const (
	RoleWriter = "WRITER"
	RoleViewer = "VIEWER"
)

// RoleReader is the default role for mail ACL edges. ACL roles resolved from
// provider permissions are always lower-cased.
const RoleReader = "reader"

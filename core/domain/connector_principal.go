package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// =============================================================================
// Principal Vertices
// =============================================================================

// User is a tenant directory user vertex.
type User struct {
	Key                string `json:"_key"`
	OrgID              string `json:"orgId"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	Domain             string `json:"domain"`
	Designation        string `json:"designation"`
	IsActive           bool   `json:"isActive"`
	CreatedAtTimestamp int64  `json:"createdAtTimestamp"`
	ExternalID         string `json:"externalId"`
}

// Group is a tenant directory group vertex.
type Group struct {
	Key                string `json:"_key"`
	Email              string `json:"email"`
	GroupName          string `json:"groupName"`
	Description        string `json:"description,omitempty"`
	AdminCreated       bool   `json:"adminCreated"`
	CreatedAtTimestamp int64  `json:"createdAtTimestamp"`
	ExternalID         string `json:"externalId"`
}

// Person is the fallback principal vertex for ACL emails that resolve to
// neither a directory user nor a group. Keyed by a hash of the email so
// repeated observations land on the same vertex.
type Person struct {
	Key   string `json:"_key"`
	Email string `json:"email"`
}

// Organization is the tenant vertex.
type Organization struct {
	Key  string `json:"_key"`
	Name string `json:"name"`
}

// Anyone is the per-organization vertex that open ("anyone") ACLs bind to.
type Anyone struct {
	Key   string `json:"_key"`
	OrgID string `json:"organization"`
}

// PersonKey derives the stable people-vertex key for an email.
func PersonKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// AnyoneKey derives the well-known anyone-vertex key for an organization.
func AnyoneKey(orgID string) string {
	return "anyone_" + orgID
}

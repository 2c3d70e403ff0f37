package out

import (
	"context"
	"time"
)

// =============================================================================
// Credential Store Port
// =============================================================================

// ServiceCredentialEntity is a tenant's service-account credential. The
// private key is encrypted at rest by the adapter. Scopes records what the
// workspace admin authorized for the client id during delegation setup.
type ServiceCredentialEntity struct {
	ID          int64     `db:"id"`
	OrgID       string    `db:"org_id"`
	ClientEmail string    `db:"client_email"`
	PrivateKey  string    `db:"private_key"`
	AdminEmail  string    `db:"admin_email"`
	Scopes      []string  `db:"-"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// DelegatedTokenEntity is a cached domain-wide-delegation access token,
// keyed by (email, scope-set hash).
type DelegatedTokenEntity struct {
	ID          int64     `db:"id"`
	Email       string    `db:"email"`
	ScopeHash   string    `db:"scope_hash"`
	AccessToken string    `db:"access_token"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// CredentialStore persists service-account credentials and the delegated
// token cache.
type CredentialStore interface {
	GetByOrg(ctx context.Context, orgID string) (*ServiceCredentialEntity, error)
	Upsert(ctx context.Context, cred *ServiceCredentialEntity) error
	GetDelegatedToken(ctx context.Context, email, scopeHash string) (*DelegatedTokenEntity, error)
	CacheDelegatedToken(ctx context.Context, email, scopeHash, accessToken string, expiresAt time.Time) error
}

// Package persistence provides the PostgreSQL adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/crypto"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// CredentialAdapter implements out.CredentialStore using PostgreSQL. Service
// account private keys and cached access tokens are encrypted at rest;
// callers see plaintext.
type CredentialAdapter struct {
	db                *sqlx.DB
	encryptionEnabled bool
}

// NewCredentialAdapter creates a new CredentialAdapter.
func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	err := crypto.Init()
	encryptionEnabled := err == nil
	if !encryptionEnabled {
		logger.Warn("Credential encryption disabled: %v", err)
	}

	return &CredentialAdapter{
		db:                db,
		encryptionEnabled: encryptionEnabled,
	}
}

// EnsureSchema creates the credential tables when they do not exist.
func (a *CredentialAdapter) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS service_credentials (
			id                BIGSERIAL PRIMARY KEY,
			org_id            TEXT NOT NULL UNIQUE,
			client_email      TEXT NOT NULL,
			private_key       TEXT NOT NULL,
			admin_email       TEXT NOT NULL,
			authorized_scopes TEXT[] NOT NULL DEFAULT '{}',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS delegated_tokens (
			id           BIGSERIAL PRIMARY KEY,
			email        TEXT NOT NULL,
			scope_hash   TEXT NOT NULL,
			access_token TEXT NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (email, scope_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delegated_tokens_expires_at
			ON delegated_tokens (expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// serviceCredentialRow is the sqlx row shape; authorized_scopes is a
// Postgres array.
type serviceCredentialRow struct {
	ID          int64          `db:"id"`
	OrgID       string         `db:"org_id"`
	ClientEmail string         `db:"client_email"`
	PrivateKey  string         `db:"private_key"`
	AdminEmail  string         `db:"admin_email"`
	Scopes      pq.StringArray `db:"authorized_scopes"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// GetByOrg returns a tenant's service credential, or nil when none is stored.
func (a *CredentialAdapter) GetByOrg(ctx context.Context, orgID string) (*out.ServiceCredentialEntity, error) {
	var row serviceCredentialRow
	query := `
		SELECT id, org_id, client_email, private_key, admin_email, authorized_scopes, created_at, updated_at
		FROM service_credentials
		WHERE org_id = $1`

	if err := a.db.GetContext(ctx, &row, query, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &out.ServiceCredentialEntity{
		ID:          row.ID,
		OrgID:       row.OrgID,
		ClientEmail: row.ClientEmail,
		PrivateKey:  a.decryptValue(row.PrivateKey),
		AdminEmail:  row.AdminEmail,
		Scopes:      []string(row.Scopes),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Upsert inserts or replaces a tenant's service credential.
func (a *CredentialAdapter) Upsert(ctx context.Context, cred *out.ServiceCredentialEntity) error {
	query := `
		INSERT INTO service_credentials (org_id, client_email, private_key, admin_email, authorized_scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (org_id)
		DO UPDATE SET client_email      = EXCLUDED.client_email,
		              private_key       = EXCLUDED.private_key,
		              admin_email       = EXCLUDED.admin_email,
		              authorized_scopes = EXCLUDED.authorized_scopes,
		              updated_at        = EXCLUDED.updated_at
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		cred.OrgID,
		cred.ClientEmail,
		a.encryptValue(cred.PrivateKey),
		cred.AdminEmail,
		pq.StringArray(cred.Scopes),
		time.Now(),
	).Scan(&cred.ID)
}

// GetDelegatedToken returns a cached delegation token, or nil when the
// (email, scope-hash) pair has none.
func (a *CredentialAdapter) GetDelegatedToken(ctx context.Context, email, scopeHash string) (*out.DelegatedTokenEntity, error) {
	var entity out.DelegatedTokenEntity
	query := `
		SELECT id, email, scope_hash, access_token, expires_at, created_at
		FROM delegated_tokens
		WHERE email = $1 AND scope_hash = $2`

	if err := a.db.GetContext(ctx, &entity, query, email, scopeHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	entity.AccessToken = a.decryptValue(entity.AccessToken)
	return &entity, nil
}

// CacheDelegatedToken stores a freshly minted delegation token, replacing any
// previous token for the same (email, scope-hash) pair.
func (a *CredentialAdapter) CacheDelegatedToken(ctx context.Context, email, scopeHash, accessToken string, expiresAt time.Time) error {
	query := `
		INSERT INTO delegated_tokens (email, scope_hash, access_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email, scope_hash)
		DO UPDATE SET access_token = EXCLUDED.access_token,
		              expires_at   = EXCLUDED.expires_at`

	_, err := a.db.ExecContext(ctx, query, email, scopeHash, a.encryptValue(accessToken), expiresAt, time.Now())
	return err
}

// encryptValue encrypts a secret if encryption is enabled
func (a *CredentialAdapter) encryptValue(value string) string {
	if !a.encryptionEnabled || value == "" {
		return value
	}
	encrypted, err := crypto.EncryptPrivateKey(value)
	if err != nil {
		logger.Warn("Failed to encrypt credential value: %v", err)
		return value
	}
	return encrypted
}

// decryptValue decrypts a secret if it appears to be encrypted
func (a *CredentialAdapter) decryptValue(value string) string {
	if value == "" || !crypto.IsEncrypted(value) {
		return value
	}
	decrypted, err := crypto.DecryptPrivateKey(value)
	if err != nil {
		// Value might not be encrypted (legacy), return as-is
		return value
	}
	return decrypted
}

// Ensure CredentialAdapter implements out.CredentialStore
var _ out.CredentialStore = (*CredentialAdapter)(nil)

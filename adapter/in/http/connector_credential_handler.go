package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/apperr"
	"github.com/rish231294/pipeshub-ai/pkg/response"
)

// CredentialHandler manages the tenant's service-account credential. The
// private key is write-only: it goes in through PUT and never comes back out.
type CredentialHandler struct {
	credentials out.CredentialStore
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(credentials out.CredentialStore) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
	}
}

// Register registers credential routes.
func (h *CredentialHandler) Register(router fiber.Router) {
	credentials := router.Group("/credentials")

	credentials.Get("/", h.GetCredential)
	credentials.Put("/", h.UpsertCredential)
}

// UpsertCredentialRequest carries a service-account credential and the
// scopes the workspace admin authorized for it.
type UpsertCredentialRequest struct {
	ClientEmail string   `json:"clientEmail"`
	PrivateKey  string   `json:"privateKey"`
	AdminEmail  string   `json:"adminEmail"`
	Scopes      []string `json:"scopes,omitempty"`
}

// CredentialView is the redacted read model.
type CredentialView struct {
	ClientEmail string    `json:"clientEmail"`
	AdminEmail  string    `json:"adminEmail"`
	Scopes      []string  `json:"scopes"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GetCredential returns the stored credential without its private key.
func (h *CredentialHandler) GetCredential(c *fiber.Ctx) error {
	orgID, err := GetOrgID(c)
	if err != nil {
		return err
	}

	cred, err := h.credentials.GetByOrg(c.Context(), orgID)
	if err != nil {
		return apperr.DatabaseError("get credential", err)
	}
	if cred == nil {
		return apperr.NotFound("service credential")
	}

	return response.OK(c, CredentialView{
		ClientEmail: cred.ClientEmail,
		AdminEmail:  cred.AdminEmail,
		Scopes:      cred.Scopes,
		UpdatedAt:   cred.UpdatedAt,
	})
}

// UpsertCredential stores or replaces the tenant's service-account
// credential.
func (h *CredentialHandler) UpsertCredential(c *fiber.Ctx) error {
	orgID, err := GetOrgID(c)
	if err != nil {
		return err
	}

	var req UpsertCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	switch {
	case strings.TrimSpace(req.ClientEmail) == "":
		return apperr.MissingField("clientEmail")
	case strings.TrimSpace(req.PrivateKey) == "":
		return apperr.MissingField("privateKey")
	case strings.TrimSpace(req.AdminEmail) == "":
		return apperr.MissingField("adminEmail")
	}

	cred := &out.ServiceCredentialEntity{
		OrgID:       orgID,
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		PrivateKey:  req.PrivateKey,
		AdminEmail:  strings.TrimSpace(req.AdminEmail),
		Scopes:      req.Scopes,
	}
	if err := h.credentials.Upsert(c.Context(), cred); err != nil {
		return apperr.DatabaseError("upsert credential", err)
	}

	return response.OK(c, fiber.Map{"id": cred.ID})
}

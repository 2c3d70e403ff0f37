// Package http exposes the control, record and health surfaces over Fiber.
package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rish231294/pipeshub-ai/pkg/apperr"
)

// GetOrgID extracts the tenant org id stamped onto the request by the auth
// middleware.
func GetOrgID(c *fiber.Ctx) (string, error) {
	orgID, ok := c.Locals("org_id").(string)
	if !ok || orgID == "" {
		return "", apperr.Unauthorized("missing org context")
	}
	return orgID, nil
}

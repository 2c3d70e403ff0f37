package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rish231294/pipeshub-ai/core/port/in"
	"github.com/rish231294/pipeshub-ai/pkg/apperr"
	"github.com/rish231294/pipeshub-ai/pkg/response"
)

// RecordHandler serves the per-record routes announced in event envelopes.
type RecordHandler struct {
	recordService in.RecordService
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(recordService in.RecordService) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
	}
}

// Register registers record routes under /:connector/record.
func (h *RecordHandler) Register(router fiber.Router) {
	records := router.Group("/:connector/record/:recordId")

	records.Get("/metadata", h.GetMetadata)
	records.Post("/signedUrl", h.IssueSignedURL)
	records.Get("/content", h.GetContent)
}

// =============================================================================
// Handlers
// =============================================================================

// GetMetadata returns the stored record fields.
func (h *RecordHandler) GetMetadata(c *fiber.Ctx) error {
	connector := c.Params("connector")
	recordID := c.Params("recordId")
	if recordID == "" {
		return apperr.MissingField("recordId")
	}

	meta, err := h.recordService.GetRecordMetadata(c.Context(), connector, recordID)
	if err != nil {
		return err
	}

	return response.OK(c, meta)
}

// IssueSignedURL mints a short-lived content URL for a record.
func (h *RecordHandler) IssueSignedURL(c *fiber.Ctx) error {
	connector := c.Params("connector")
	recordID := c.Params("recordId")
	if recordID == "" {
		return apperr.MissingField("recordId")
	}

	url, err := h.recordService.IssueSignedURL(c.Context(), connector, recordID)
	if err != nil {
		return err
	}

	return response.OK(c, fiber.Map{"signedUrl": url})
}

// GetContent validates the signed token and streams the cached body back
// with its stored MIME type.
func (h *RecordHandler) GetContent(c *fiber.Ctx) error {
	connector := c.Params("connector")
	recordID := c.Params("recordId")
	if recordID == "" {
		return apperr.MissingField("recordId")
	}
	token := c.Query("token")

	body, mimeType, err := h.recordService.GetRecordContent(c.Context(), connector, recordID, token)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, mimeType)
	return c.Send(body)
}

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rish231294/pipeshub-ai/core/port/in"
	"github.com/rish231294/pipeshub-ai/pkg/response"
)

// SyncHandler handles sync control requests.
type SyncHandler struct {
	syncService in.SyncControlService
}

// NewSyncHandler creates a new sync control handler.
func NewSyncHandler(syncService in.SyncControlService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// Register registers sync control routes.
func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")

	sync.Post("/start", h.Start)
	sync.Post("/pause", h.Pause)
	sync.Post("/resume", h.Resume)
	sync.Post("/stop", h.Stop)
}

// =============================================================================
// Handlers
// =============================================================================

// Control routes report the transition result in the body: a rejected
// transition is a successful request that answers {"success": false}.

// Start launches the tenant-wide sync run.
func (h *SyncHandler) Start(c *fiber.Ctx) error {
	orgID, err := GetOrgID(c)
	if err != nil {
		return err
	}

	ok := h.syncService.StartSync(c.Context(), orgID)
	return c.JSON(response.Response{Success: ok})
}

// Pause requests a cooperative pause of the running sync.
func (h *SyncHandler) Pause(c *fiber.Ctx) error {
	orgID, err := GetOrgID(c)
	if err != nil {
		return err
	}

	ok := h.syncService.PauseSync(c.Context(), orgID)
	return c.JSON(response.Response{Success: ok})
}

// Resume relaunches a paused sync run.
func (h *SyncHandler) Resume(c *fiber.Ctx) error {
	orgID, err := GetOrgID(c)
	if err != nil {
		return err
	}

	ok := h.syncService.ResumeSync(c.Context(), orgID)
	return c.JSON(response.Response{Success: ok})
}

// Stop drains the run and disconnects the tenant.
func (h *SyncHandler) Stop(c *fiber.Ctx) error {
	if _, err := GetOrgID(c); err != nil {
		return err
	}

	ok := h.syncService.StopSync(c.Context())
	return c.JSON(response.Response{Success: ok})
}

package http

import (
	"context"
	"time"

	driver "github.com/arangodb/go-driver"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler answers liveness and readiness probes. Dependencies are
// optional; a nil client reports "not configured" instead of failing the
// probe.
type HealthHandler struct {
	db     *sqlx.DB
	redis  *redis.Client
	mongo  *mongo.Client
	arango driver.Database
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, mongoClient *mongo.Client, arango driver.Database) *HealthHandler {
	return &HealthHandler{
		db:     db,
		redis:  redisClient,
		mongo:  mongoClient,
		arango: arango,
	}
}

// Register registers health routes on the app root, outside the
// authenticated API group.
func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/health/ready", h.Ready)
}

// Health is the liveness probe.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every configured dependency.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["postgres"] = "healthy"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// Check MongoDB
	if h.mongo != nil {
		if err := h.mongo.Ping(ctx, nil); err != nil {
			checks["mongodb"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["mongodb"] = "healthy"
		}
	} else {
		checks["mongodb"] = "not configured"
	}

	// Check ArangoDB
	if h.arango != nil {
		if _, err := h.arango.Info(ctx); err != nil {
			checks["arangodb"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["arangodb"] = "healthy"
		}
	} else {
		checks["arangodb"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

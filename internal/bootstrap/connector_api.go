package bootstrap

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/rish231294/pipeshub-ai/adapter/in/http"
	"github.com/rish231294/pipeshub-ai/config"
	"github.com/rish231294/pipeshub-ai/infra/middleware"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
	"github.com/rish231294/pipeshub-ai/pkg/ratelimit"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	// Initialize logger
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "connector-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json is a drop-in replacement for encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 10 * 1024 * 1024, // 10MB

		Concurrency: 256 * 1024,

		ServerHeader:             "",
		DisableDefaultDate:       true,
		DisableHeaderNormalizing: false,

		DisableKeepalive: false,

		StreamRequestBody:            true,
		DisablePreParseMultipartForm: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())         // 1. Panic recovery
	app.Use(middleware.RequestID())       // 2. Request ID
	app.Use(middleware.SecurityHeaders()) // 3. Security headers
	app.Use(middleware.RequestLogger())   // 4. Request logging

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS - AllowCredentials:true requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400, // 24 hours
	}))

	// Health check (no auth required)
	healthHandler := http.NewHealthHandler(deps.SQLDB, deps.Redis, deps.MongoDB, deps.ArangoDB)
	healthHandler.Register(app)

	// API routes (with rate limiting and auth)
	api := app.Group("/api/v1")

	apiLimiter := ratelimit.NewSlidingWindowLimiter(deps.Redis, 50, 100)
	api.Use(middleware.RateLimit(apiLimiter))

	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	syncHandler := http.NewSyncHandler(deps.Orchestrator)
	syncHandler.Register(api)

	recordHandler := http.NewRecordHandler(deps.RecordService)
	recordHandler.Register(api)

	credentialHandler := http.NewCredentialHandler(deps.CredentialStore)
	credentialHandler.Register(api)

	// Mirror the tenant directory and bootstrap watches on startup (async).
	// A sync started before this completes sees no principals and finishes empty.
	go func() {
		if err := deps.Orchestrator.Initialize(context.Background(), cfg.OrgID); err != nil {
			logger.Error("Failed to initialize sync orchestrator: %v", err)
		}
	}()

	logger.Info("API server initialized successfully")

	return app, cleanup, nil
}

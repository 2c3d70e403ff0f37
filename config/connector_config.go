package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateInstanceID creates a unique instance ID using hostname and PID
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "connector"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// ArangoDB
	ArangoURL      string
	ArangoUsername string
	ArangoPassword string
	ArangoDatabase string

	// JWT
	JWTSecret string

	// Tenant
	OrgID   string
	OrgName string

	// Sync
	InstanceID     string
	SyncMaxWorkers int

	// Watch channels
	PubSubTopic string
	WebhookURL  string

	// Record routes
	PublicBaseURL string
	SignedURLTTL  time.Duration

	// Provider quota
	QuotaMaxConcurrent  int
	QuotaRequestsPerSec int
	QuotaBurstSize      int

	// CORS
	AllowedOrigins []string

	// Scheduler
	WatchRenewalEnabled bool
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "pipeshub"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// ArangoDB
		ArangoURL:      getEnv("ARANGO_URL", "http://localhost:8529"),
		ArangoUsername: getEnv("ARANGO_USERNAME", "root"),
		ArangoPassword: getEnv("ARANGO_PASSWORD", ""),
		ArangoDatabase: getEnv("ARANGO_DATABASE", "pipeshub"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Tenant
		OrgID:   getEnv("ORG_ID", ""),
		OrgName: getEnv("ORG_NAME", ""),

		// Sync
		InstanceID:     getEnv("INSTANCE_ID", generateInstanceID()),
		SyncMaxWorkers: getEnvInt("SYNC_MAX_WORKERS", 4),

		// Watch channels
		PubSubTopic: getEnv("GMAIL_PUBSUB_TOPIC", ""),
		WebhookURL:  getEnv("DRIVE_WEBHOOK_URL", ""),

		// Record routes
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		SignedURLTTL:  time.Duration(getEnvInt("SIGNED_URL_TTL_MIN", 60)) * time.Minute,

		// Provider quota
		QuotaMaxConcurrent:  getEnvInt("QUOTA_MAX_CONCURRENT", 100),
		QuotaRequestsPerSec: getEnvInt("QUOTA_REQUESTS_PER_SEC", 10),
		QuotaBurstSize:      getEnvInt("QUOTA_BURST_SIZE", 20),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Scheduler
		WatchRenewalEnabled: getEnvBool("WATCH_RENEWAL_ENABLED", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

package bootstrap

import (
	"context"

	driver "github.com/arangodb/go-driver"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rish231294/pipeshub-ai/adapter/out/graph"
	"github.com/rish231294/pipeshub-ai/adapter/out/messaging"
	"github.com/rish231294/pipeshub-ai/adapter/out/mongodb"
	"github.com/rish231294/pipeshub-ai/adapter/out/persistence"
	"github.com/rish231294/pipeshub-ai/adapter/out/provider"
	"github.com/rish231294/pipeshub-ai/config"
	"github.com/rish231294/pipeshub-ai/core/port/in"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/core/service/record"
	"github.com/rish231294/pipeshub-ai/core/service/sync"
	"github.com/rish231294/pipeshub-ai/core/service/transform"
	"github.com/rish231294/pipeshub-ai/infra/database"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
	"github.com/rish231294/pipeshub-ai/pkg/ratelimit"
)

type Dependencies struct {
	Config   *config.Config
	SQLDB    *sqlx.DB
	Redis    *redis.Client
	MongoDB  *mongo.Client
	ArangoDB driver.Database

	// Stores
	GraphStore      *graph.ArangoStore
	CredentialStore out.CredentialStore
	MailBodyStore   out.MailBodyStore

	// Messaging
	EventProducer    out.RecordEventProducer
	ProgressReporter out.SyncProgressReporter

	// Provider
	QuotaGuard      *ratelimit.QuotaGuard
	ProviderFactory out.ProviderFactory

	// Services
	MailTransformer  *transform.MailTransformer
	DriveTransformer *transform.DriveTransformer
	MailSyncService  *sync.MailSyncService
	DriveSyncService *sync.DriveSyncService
	Watches          *sync.WatchBootstrapper
	Orchestrator     *sync.Orchestrator
	RecordService    in.RecordService
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	fail := func(err error) (*Dependencies, func(), error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, err
	}

	log := logger.Default()
	ctx := context.Background()

	// Database (sqlx over pgx, credential store)
	sqlDB, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	credentials := persistence.NewCredentialAdapter(sqlDB)
	if err := credentials.EnsureSchema(ctx); err != nil {
		logger.Warn("Failed to ensure credential schema: %v", err)
	}
	deps.CredentialStore = credentials

	// Redis (record events, sync progress, provider quota)
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		return fail(err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	producer := messaging.NewRedisProducer(redisClient)
	deps.EventProducer = producer
	deps.ProgressReporter = producer

	deps.QuotaGuard = ratelimit.NewQuotaGuard(redisClient, &ratelimit.Config{
		MaxConcurrent:     cfg.QuotaMaxConcurrent,
		RequestsPerSecond: cfg.QuotaRequestsPerSec,
		BurstSize:         cfg.QuotaBurstSize,
	})

	// MongoDB (mail body cache, optional)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			bodies := mongodb.NewMailBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := bodies.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to ensure mail body indexes: %v", err)
			}
			deps.MailBodyStore = bodies
		}
	} else {
		logger.Warn("MONGODB_URL not set, record content will not be cached")
	}

	// ArangoDB (record graph)
	arangoDB, err := graph.NewDatabase(ctx, []string{cfg.ArangoURL}, cfg.ArangoUsername, cfg.ArangoPassword, cfg.ArangoDatabase)
	if err != nil {
		return fail(err)
	}
	deps.ArangoDB = arangoDB

	store := graph.NewArangoStore(arangoDB, log)
	if err := store.EnsureCollections(ctx); err != nil {
		return fail(err)
	}
	deps.GraphStore = store
	logger.Info("ArangoDB graph store initialized (database: %s)", cfg.ArangoDatabase)

	// Google Workspace provider factory
	deps.ProviderFactory = provider.NewGoogleFactory(deps.CredentialStore, deps.QuotaGuard, &provider.GoogleConfig{
		WebhookURL: cfg.WebhookURL,
	}, log)

	// Transformers
	routes := transform.RecordRoutes{BaseURL: cfg.PublicBaseURL}
	resolver := transform.NewPrincipalResolver(store, log)
	deps.MailTransformer = transform.NewMailTransformer(store, resolver, deps.MailBodyStore, routes, log)
	deps.DriveTransformer = transform.NewDriveTransformer(store, resolver, routes, log)

	// Sync services
	deps.MailSyncService = sync.NewMailSyncService(store, deps.MailTransformer, producer, producer, log)
	deps.DriveSyncService = sync.NewDriveSyncService(store, deps.DriveTransformer, producer, producer, log)
	deps.Watches = sync.NewWatchBootstrapper(store, cfg.PubSubTopic, log)

	deps.Orchestrator = sync.NewOrchestrator(sync.OrchestratorConfig{
		OrgID:      cfg.OrgID,
		OrgName:    cfg.OrgName,
		MaxWorkers: cfg.SyncMaxWorkers,
	}, store, deps.ProviderFactory, deps.MailSyncService, deps.DriveSyncService, deps.Watches, log)

	// Record service (metadata, signed URLs, content)
	deps.RecordService = record.NewService(store, deps.MailBodyStore, record.SignerConfig{
		Secret:  cfg.JWTSecret,
		TTL:     cfg.SignedURLTTL,
		BaseURL: cfg.PublicBaseURL,
	}, log)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.SQLDB.PingContext(ctx); err != nil {
		return err
	}

	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"verifyflow.backend/internal/config"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/datasources/postgres"
	"verifyflow.backend/internal/infrastructure/jobs"
	"verifyflow.backend/internal/infrastructure/notification"
	"verifyflow.backend/internal/infrastructure/provider"
	"verifyflow.backend/internal/infrastructure/queue"
	"verifyflow.backend/internal/infrastructure/repositories"
	"verifyflow.backend/internal/infrastructure/storage"
	"verifyflow.backend/internal/interfaces/http/handlers"
	"verifyflow.backend/internal/interfaces/http/middleware"
	"verifyflow.backend/internal/usecases"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/jwt"
	"verifyflow.backend/pkg/logger"
	"verifyflow.backend/pkg/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	probeTimeout    = 500 * time.Millisecond
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	openDB     = postgres.NewConnection
	migrateDB  = postgres.Migrate
	openRedis  = redis.NewClient
	runServer  = func(srv *http.Server) error { return srv.ListenAndServe() }
)

// notificationSink is a Notifier that owns a connection
type notificationSink interface {
	usecases.Notifier
	Close(ctx context.Context) error
}

// documentStore is the upload store plus a health probe
type documentStore interface {
	usecases.ObjectStorage
	Ping(ctx context.Context) error
}

// application is the wired service: HTTP router plus background workers
type application struct {
	router   *gin.Engine
	queue    *queue.RedisQueue
	workers  *jobs.VerificationWorkerPool
	notifier notificationSink
	jwt      *jwt.JWTService
}

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	initLog(cfg.Server.Env)
	defer logger.Sync()
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := migrateDB(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info(ctx, "Database schema migrated")
	}

	rdb, err := openRedis(ctx, cfg.Redis.URL, cfg.Redis.Password)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer rdb.Close()
	logger.Info(ctx, "Redis initialized")

	app, err := buildApp(ctx, cfg, db, rdb)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, app)
}

func buildApp(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb goredis.UniversalClient) (*application, error) {
	cipher, err := crypto.NewCipher(cfg.Security.DocumentEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document cipher: %w", err)
	}

	uow := repositories.NewUnitOfWork(db)
	requestRepo := repositories.NewVerificationRequestRepository(db)
	documentRepo := repositories.NewVerificationDocumentRepository(db)
	historyRepo := repositories.NewVerificationHistoryRepository(db)
	callLogRepo := repositories.NewProviderCallLogRepository(db)

	recorder := usecases.NewCallLogRecorder(callLogRepo)
	registry := provider.NewRegistry(newProviderBackend(cfg.Provider, recorder.Record))
	logger.Info(ctx, "Verification provider configured",
		zap.String("mode", cfg.Provider.Mode),
		zap.String("provider", registry.Name()),
	)

	jobQueue := queue.NewRedisQueue(rdb, queueOptions(cfg.Queue))

	store, err := newDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	notifier, err := newNotifier(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	verificationUsecase := usecases.NewVerificationUsecase(uow, requestRepo, documentRepo, historyRepo, store, cipher, jobQueue, cfg.Server.MaxUploadBytes)
	processor := usecases.NewVerificationProcessor(uow, requestRepo, documentRepo, historyRepo, registry, cipher, notifier)
	webhookUsecase := usecases.NewWebhookUsecase(uow, requestRepo, documentRepo, historyRepo, callLogRepo, notifier, usecases.WebhookConfig{
		ProviderName:  cfg.Provider.Name,
		Secret:        cfg.Security.WebhookSecret,
		MinConfidence: confidence(cfg.Provider.MinConfidence),
	})
	adminUsecase := usecases.NewAdminUsecase(uow, requestRepo, documentRepo, historyRepo, callLogRepo, store, jobQueue, notifier, cfg.Storage.PresignTTL)

	health := usecases.NewHealthUsecase(probeTimeout)
	health.Register("database", func(ctx context.Context) error { return postgres.Ping(ctx, db, probeTimeout) }, true)
	health.Register("redis", func(ctx context.Context) error { return redis.Ping(ctx, rdb, probeTimeout) }, false)
	health.Register("storage", store.Ping, false)
	health.Register("queue", func(ctx context.Context) error {
		_, err := jobQueue.Stats(ctx)
		return err
	}, false)

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)

	r := newRouter(cfg.Server)
	registerHealthRoutes(r, handlers.NewHealthHandler(health))
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		verificationHandler: handlers.NewVerificationHandler(verificationUsecase),
		adminHandler:        handlers.NewAdminHandler(adminUsecase),
		webhookHandler:      handlers.NewWebhookHandler(webhookUsecase),
		authMiddleware:      middleware.AuthMiddleware(jwtService),
		idempotency:         middleware.IdempotencyMiddleware(rdb),
	})

	workers := jobs.NewVerificationWorkerPool(jobQueue, processor, jobs.WorkerConfig{
		Concurrency:     cfg.Queue.Concurrency,
		RatePerSecond:   cfg.Queue.RatePerSecond,
		Burst:           cfg.Queue.Burst,
		PollInterval:    cfg.Queue.PollInterval,
		JanitorInterval: cfg.Queue.JanitorInterval,
	})

	return &application{
		router:   r,
		queue:    jobQueue,
		workers:  workers,
		notifier: notifier,
		jwt:      jwtService,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, app *application) error {
	workersDone := make(chan struct{})
	if cfg.Queue.WorkersEnabled {
		go func() {
			defer close(workersDone)
			app.workers.Start(ctx)
		}()
	} else {
		close(workersDone)
		logger.Info(ctx, "Verification workers disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- runServer(srv)
	}()
	logger.Info(ctx, "HTTP server listening", zap.String("port", cfg.Server.Port))

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP server shutdown failed", zap.Error(err))
	}
	app.workers.Stop()
	<-workersDone
	if err := app.notifier.Close(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Failed to close notifier", zap.Error(err))
	}
	return runErr
}

func newProviderBackend(cfg config.ProviderConfig, recorder provider.CallRecorder) provider.Backend {
	if cfg.Mode == "http" {
		return provider.NewHTTPProvider(provider.HTTPConfig{
			Name:          cfg.Name,
			BaseURL:       cfg.BaseURL,
			AppID:         cfg.AppID,
			SecretKey:     cfg.SecretKey,
			Timeout:       cfg.Timeout,
			MinConfidence: confidence(cfg.MinConfidence),
		}, nil, recorder)
	}
	return provider.NewSandboxProvider(recorder)
}

func queueOptions(cfg config.QueueConfig) queue.Options {
	opts := queue.DefaultOptions()
	opts.MaxAttempts = cfg.MaxAttempts
	opts.BackoffBase = cfg.BackoffBase
	opts.Lease = cfg.Lease
	opts.CompletedKeep = cfg.CompletedKeep
	opts.CompletedMaxAge = cfg.CompletedMaxAge
	opts.FailedKeep = cfg.FailedKeep
	opts.FailedMaxAge = cfg.FailedMaxAge
	return opts
}

func newDocumentStore(ctx context.Context, cfg config.StorageConfig) (documentStore, error) {
	if cfg.Driver == "s3" {
		return storage.NewS3Storage(ctx, cfg)
	}
	logger.Warn(ctx, "Using in-memory document storage")
	return storage.NewMemoryStorage(), nil
}

func newNotifier(cfg config.KafkaConfig) (notificationSink, error) {
	if len(cfg.Brokers) == 0 {
		return notification.NewLogNotifier(), nil
	}
	return notification.NewKafkaNotifier(cfg.Brokers, cfg.Topic)
}

// confidence converts a configured threshold to the 0..100 integer scale
func confidence(v float64) int {
	return entities.ClampConfidence(v)
}

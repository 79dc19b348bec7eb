package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	rbac "github.com/bohemiyan/grc-rbac"
	"github.com/bohemiyan/grc-rbac/internal/config"
	"github.com/bohemiyan/grc-rbac/internal/db"
	"github.com/bohemiyan/grc-rbac/internal/routes"
	"github.com/bohemiyan/grc-rbac/workflow"
	"github.com/bohemiyan/grc-rbac/zapLogger"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GatewaySecret == "" {
		log.Fatal("GATEWAY_SECRET must be set")
	}

	logFile := zapLogger.Init(cfg.LogFile, cfg.LogLevel)
	if logFile != nil {
		defer logFile.Close()
	}
	defer zapLogger.Log.Sync()

	pgDB, err := db.NewPostgresDB(ctx, cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer pgDB.Close()

	redisDB, err := db.NewRedisClient(ctx, cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to Redis")
	defer redisDB.Close()

	rbacService, err := rbac.NewRBACService(rbac.Config{
		DB:                 pgDB.GormDB,
		RedisClient:        redisDB,
		CacheTTL:           cfg.CacheTTL,
		CachePrefix:        cfg.CachePrefix,
		AutoMigrate:        cfg.AutoMigrate,
		EnableAuditLogging: cfg.AuditEnabled,
		Logger:             zapLogger.Log,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize RBAC service: %v", err)
	}

	engine := workflow.NewEngine(workflow.DefaultDefinition(),
		workflow.WithThresholds(cfg.Quality),
		workflow.WithLogger(zapLogger.Log),
	)
	workflowService, err := workflow.NewService(ctx, workflow.ServiceConfig{
		DB:          pgDB.GormDB,
		Engine:      engine,
		Logger:      zapLogger.Log,
		AutoMigrate: cfg.AutoMigrate,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize workflow service: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: routes.ErrorHandler})
	app.Use(zapLogger.FiberLoggingMiddleware(logFile))

	routes.Setup(app, routes.Deps{
		RBAC:          rbacService,
		Workflow:      workflowService,
		Authenticator: routes.GatewayAuth(cfg.GatewaySecret),
		Health: func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return pgDB.Ping(gctx) })
			g.Go(func() error { return redisDB.Ping(gctx).Err() })
			return g.Wait()
		},
		Logger: zapLogger.Log,
	})

	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
	if err := app.Listen(addr); err != nil {
		zapLogger.Log.Fatalf("Server stopped: %v", err)
	}
}

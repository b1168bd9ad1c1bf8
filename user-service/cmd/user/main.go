package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	pgdb "venue-server/pkg/database"
	"venue-server/pkg/migration"
	"venue-server/shared/authutils"
	"venue-server/shared/database"
	sharedLogger "venue-server/shared/logger"
	sharedMiddleware "venue-server/shared/middleware"
	"venue-server/user-service/internal/config"
	"venue-server/user-service/internal/handler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("../../.env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := sharedLogger.MustInstall(sharedLogger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogFormat,
		Service:     "user-service",
		Development: !cfg.IsProduction(),
	})
	defer logger.Sync()
	zap.L().Info("Configuration loaded", zap.String("env", cfg.Env), zap.String("trustMode", cfg.TrustMode))

	pgPool, err := pgdb.Connect(context.Background(), cfg.DatabaseURL(), pgdb.RetryConfig{}, logger)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = migration.NewMigrator(migration.Config{
		MigrationsPath:  database.ProfileMigrationsDir,
		MigrationsFS:    database.ProfileMigrationsFS,
		MigrationsTable: "profile_schema_migrations",
	}, pgPool, logger).Up(migrateCtx)
	migrateCancel()
	if err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}

	trustMode, err := sharedMiddleware.ParseTrustMode(cfg.TrustMode)
	if err != nil {
		zap.L().Fatal("Invalid trust mode", zap.Error(err))
	}
	opts := sharedMiddleware.GuardOptions{
		GatewaySecret: cfg.GatewaySecret,
		ExposeStack:   !cfg.IsProduction(),
		Logger:        logger,
	}
	if trustMode == sharedMiddleware.TrustModeCredential {
		verifier, err := authutils.NewAccessVerifier(cfg.JWTAccessSecret, cfg.JWTMinSecretLength, nil)
		if err != nil {
			zap.L().Fatal("Invalid JWT configuration", zap.Error(err))
		}
		opts.Verifier = verifier
	}
	guard, err := sharedMiddleware.NewTrustBoundaryGuard(trustMode, opts)
	if err != nil {
		zap.L().Fatal("Failed to create trust boundary guard", zap.Error(err))
	}

	profiles := database.NewPgProfileRepository(pgPool, logger)
	profileHandler := handler.NewProfileHandler(profiles, guard, cfg.InternalSecret, !cfg.IsProduction(), logger)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(sharedMiddleware.CorrelationID())
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("user")
	p.Use(router)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", sharedMiddleware.CorrelationIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	profileHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Server exiting")
}

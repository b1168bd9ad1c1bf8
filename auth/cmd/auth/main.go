package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"venue-server/auth/internal/config"
	"venue-server/auth/internal/handler"
	"venue-server/auth/internal/profiles"
	"venue-server/auth/internal/service"
	pgdb "venue-server/pkg/database"
	"venue-server/pkg/migration"
	"venue-server/shared/authutils"
	"venue-server/shared/database"
	"venue-server/shared/interfaces"
	sharedLogger "venue-server/shared/logger"
	"venue-server/shared/messaging"
	sharedMiddleware "venue-server/shared/middleware"
	"venue-server/shared/models"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig("../../.env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := sharedLogger.MustInstall(sharedLogger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogFormat,
		Service:     "auth-service",
		Development: !cfg.IsProduction(),
	})
	defer logger.Sync()
	zap.L().Info("Configuration loaded", zap.String("env", cfg.Env), zap.String("credentialStore", cfg.CredentialStore))

	// --- External Connections ---
	pgPool, err := pgdb.Connect(context.Background(), cfg.DatabaseURL(), pgdb.RetryConfig{}, logger)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = migration.NewMigrator(migration.Config{
		MigrationsPath:  database.MigrationsDir,
		MigrationsFS:    database.MigrationsFS,
		MigrationsTable: "auth_schema_migrations",
	}, pgPool, logger).Up(migrateCtx)
	migrateCancel()
	if err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}

	redisClient, err := setupRedis(cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	var events interface {
		service.EventPublisher
		Close() error
	} = messaging.NopSessionPublisher{}
	if cfg.AMQPURL != "" {
		mqConn, err := connectRabbitMQ(cfg.AMQPURL, logger)
		if err != nil {
			zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		publisher, err := messaging.NewRabbitMQSessionPublisher(mqConn, cfg.EventsExchange, logger)
		if err != nil {
			zap.L().Fatal("Failed to create session event publisher", zap.Error(err))
		}
		events = publisher
	}
	defer events.Close()

	// --- Dependency Injection ---
	userRepo := database.NewPgUserRepository(pgPool, logger)
	var (
		store   interfaces.CredentialStore
		pgStore database.PgCredentialStore
	)
	switch cfg.CredentialStore {
	case "redis":
		store = database.NewRedisCredentialStore(redisClient, userRepo, logger)
	default:
		pgStore = database.NewPgCredentialStore(pgPool, logger)
		store = pgStore
	}

	codec, err := authutils.NewCodec(authutils.CodecConfig{
		AccessSecret:    cfg.JWTAccessSecret,
		RefreshSecret:   cfg.JWTRefreshSecret,
		AccessTTL:       cfg.AccessTokenTTL,
		RefreshTTL:      cfg.RefreshTokenTTL,
		MinSecretLength: cfg.JWTMinSecretLength,
	}, logger)
	if err != nil {
		zap.L().Fatal("Invalid JWT configuration", zap.Error(err))
	}

	profileClient := profiles.NewClient(profiles.ClientConfig{
		BaseURL:        cfg.UserServiceURL,
		InternalSecret: cfg.InternalSecret,
		Timeout:        cfg.UserServiceTimeout,
	}, logger)
	sessions := service.NewSessionIssuer(userRepo, store, codec, profileClient, events, cfg, logger)

	trustMode, err := sharedMiddleware.ParseTrustMode(cfg.TrustMode)
	if err != nil {
		zap.L().Fatal("Invalid trust mode", zap.Error(err))
	}
	guard, err := sharedMiddleware.NewTrustBoundaryGuard(trustMode, sharedMiddleware.GuardOptions{
		GatewaySecret: cfg.GatewaySecret,
		Verifier:      codec,
		ExposeStack:   !cfg.IsProduction(),
		Logger:        logger,
	})
	if err != nil {
		zap.L().Fatal("Failed to create trust boundary guard", zap.Error(err))
	}
	zap.L().Info("Trust boundary guard configured", zap.String("mode", string(guard.Mode())))

	rateLimitStore := rateli.RedisStore(&rateli.RedisOptions{
		RedisClient: redisClient,
		Rate:        time.Minute,
		Limit:       cfg.RateLimitPerMinute,
	})
	rateLimitMiddleware := rateli.RateLimiter(rateLimitStore, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.Header("Retry-After", fmt.Sprintf("%d", int(time.Until(info.ResetTime).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"code":    models.ErrCodeRateLimited,
				"message": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})

	authHandler := handler.NewAuthHandler(sessions, guard, cfg, logger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(sharedMiddleware.CorrelationID())
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Refresh-Token", sharedMiddleware.CorrelationIDHeader}
	corsConfig.ExposeHeaders = []string{"X-Access-Token", "X-Refresh-Token", sharedMiddleware.CorrelationIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	authHandler.RegisterRoutes(router, rateLimitMiddleware)

	// --- Background: очистка просроченных refresh токенов ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	if pgStore != nil {
		go runPurgeLoop(workerCtx, pgStore, cfg.PurgeInterval, logger)
	}

	// --- Start HTTP Server ---
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

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")
	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Server exiting")
}

func runPurgeLoop(ctx context.Context, store database.PgCredentialStore, interval time.Duration, logger *zap.Logger) {
	log := logger.Named("TokenPurger")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := store.PurgeExpired(purgeCtx)
			cancel()
			if err != nil {
				log.Error("Failed to purge expired refresh tokens", zap.Error(err))
				continue
			}
			log.Info("Expired refresh tokens purged", zap.Int64("count", n))
		}
	}
}

// setupRedis initializes the Redis client with retry logic.
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second
	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client := redis.NewClient(redisOpts)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := client.Ping(pingCtx).Result()
		pingCancel()
		if err == nil {
			zap.L().Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt), zap.String("address", redisOpts.Addr))
			return client, nil
		}

		client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp091.Connection, error) {
	var err error
	maxRetries := 20
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		var conn *amqp091.Connection
		conn, err = amqp091.Dial(url)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ", zap.Int("attempt", i+1))
			go func() {
				notifyClose := conn.NotifyClose(make(chan *amqp091.Error, 1))
				if err := <-notifyClose; err != nil {
					logger.Error("RabbitMQ connection closed unexpectedly", zap.Error(err))
				}
			}()
			return conn, nil
		}
		logger.Warn("RabbitMQ connection failed, retrying...", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"venue-server/api-gateway/internal/authclient"
	"venue-server/api-gateway/internal/authn"
	"venue-server/api-gateway/internal/config"
	"venue-server/api-gateway/internal/proxy"
	"venue-server/api-gateway/internal/registry"
	"venue-server/api-gateway/internal/router"
	"venue-server/shared/authutils"
	sharedLogger "venue-server/shared/logger"
	sharedMiddleware "venue-server/shared/middleware"
	"venue-server/shared/models"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
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
		Service:     "api-gateway",
		Development: !cfg.IsProduction(),
	})
	defer logger.Sync()

	// --- Registry: неизменяемый, проверяется при старте ---
	reg, err := registry.New(cfg.ServiceURLs())
	if err != nil {
		zap.L().Fatal("Invalid service registry", zap.Error(err))
	}
	if err := reg.MustContain(router.RequiredServices...); err != nil {
		zap.L().Fatal("Route table points at an unregistered service", zap.Error(err))
	}
	zap.L().Info("Service registry loaded", zap.Strings("services", reg.Names()))

	trustMode, err := sharedMiddleware.ParseTrustMode(cfg.TrustMode)
	if err != nil {
		zap.L().Fatal("Invalid trust mode", zap.Error(err))
	}

	verifier, err := authutils.NewAccessVerifier(cfg.JWTAccessSecret, cfg.JWTMinSecretLength, nil)
	if err != nil {
		zap.L().Fatal("Invalid JWT configuration", zap.Error(err))
	}

	authURL, _ := reg.Resolve(registry.ServiceAuth)
	authClient := authclient.New(authclient.Config{
		BaseURL:        authURL.String(),
		InternalSecret: cfg.InternalSecret,
		Timeout:        cfg.AuthServiceTimeout,
	}, logger)

	cookies := authutils.CookiePolicy{
		Production: cfg.IsProduction(),
		Domain:     cfg.CookieDomain,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	authenticator := authn.NewAuthenticator(verifier, authClient, authClient, authn.Options{
		ExpiryBuffer: cfg.ExpiryBuffer,
		Cookies:      cookies,
		ExposeStack:  !cfg.IsProduction(),
	}, logger)

	forwarder, err := proxy.NewForwarder(reg, proxy.Config{
		Timeout:            cfg.ProxyTimeout,
		GatewaySecret:      cfg.GatewaySecret,
		TrustMode:          trustMode,
		ExposeStack:        !cfg.IsProduction(),
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}, nil, logger)
	if err != nil {
		zap.L().Fatal("Failed to create proxy forwarder", zap.Error(err))
	}

	// In-memory limiter: шлюз не держит собственного Redis
	rateLimitStore := rateli.InMemoryStore(&rateli.InMemoryOptions{
		Rate:  time.Minute,
		Limit: cfg.RateLimitPerMinute,
	})
	rateLimit := rateli.RateLimiter(rateLimitStore, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded", zap.String("clientIP", c.ClientIP()), zap.String("path", c.Request.URL.Path))
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

	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = true
	r.Use(sharedMiddleware.CorrelationID())
	r.Use(sharedMiddleware.GinZapLogger(logger))
	r.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gateway")
	p.Use(r)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", authutils.RefreshHeader, sharedMiddleware.CorrelationIDHeader}
	corsConfig.ExposeHeaders = []string{authutils.AccessHeader, authutils.RefreshHeader, sharedMiddleware.CorrelationIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	r.GET("/health", healthHandler)
	r.HEAD("/health", healthHandler)

	router.Register(r, router.Deps{
		Authenticator: authenticator,
		Forwarder:     forwarder,
		Sessions:      authClient,
		Cookies:       cookies,
		RateLimit:     rateLimit,
		ExposeStack:   !cfg.IsProduction(),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting API gateway",
		zap.String("port", cfg.ServerPort),
		zap.String("trustMode", string(trustMode)),
		zap.Duration("expiryBuffer", cfg.ExpiryBuffer),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Gateway exiting")
}

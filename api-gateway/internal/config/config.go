package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"venue-server/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the api-gateway configuration.
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	// Service registry
	AuthServiceURL  string `envconfig:"AUTH_SERVICE_URL" default:"http://auth-service:8081"`
	UserServiceURL  string `envconfig:"USER_SERVICE_URL" default:"http://user-service:8082"`
	VenueServiceURL string `envconfig:"VENUE_SERVICE_URL" default:"http://venue-service:8083"`

	AuthServiceTimeout time.Duration `envconfig:"AUTH_SERVICE_TIMEOUT" default:"5s"`
	ProxyTimeout       time.Duration `envconfig:"PROXY_TIMEOUT" default:"5s"`
	// ExpiryBuffer: токен, истекающий раньше чем через buffer, считается истекшим
	ExpiryBuffer time.Duration `envconfig:"EXPIRY_BUFFER" default:"30s"`

	TrustMode string `envconfig:"TRUST_MODE" default:"header"`

	// Секреты загружаются из файлов
	JWTAccessSecret    string
	JWTMinSecretLength int `envconfig:"JWT_MIN_SECRET_LENGTH" default:"32"`
	GatewaySecret      string
	InternalSecret     string

	// Cookie lifetimes mirror auth-service token TTLs.
	AccessTokenTTL  time.Duration `envconfig:"JWT_ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"JWT_REFRESH_TOKEN_TTL" default:"168h"`
	CookieDomain    string        `envconfig:"COOKIE_DOMAIN" default:""`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerMinute uint   `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	// Circuit breaker per downstream service
	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// IsProduction reports whether cookies must be Secure and SameSite=Strict.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// GetAllowedOrigins splits the CORSAllowedOrigins string into a slice.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.CORSAllowedOrigins, " ", ""), ",")
}

// ServiceURLs returns the registry entries keyed by service name.
func (c *Config) ServiceURLs() map[string]string {
	return map[string]string{
		"auth":  c.AuthServiceURL,
		"user":  c.UserServiceURL,
		"venue": c.VenueServiceURL,
	}
}

// Validate checks invariants envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	for name, raw := range c.ServiceURLs() {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s service url %q is not absolute", name, raw))
		}
	}
	if c.ExpiryBuffer < 0 || c.ExpiryBuffer >= c.AccessTokenTTL {
		errs = append(errs, errors.New("EXPIRY_BUFFER must be non-negative and shorter than the access token TTL"))
	}
	if c.ProxyTimeout <= 0 || c.AuthServiceTimeout <= 0 {
		errs = append(errs, errors.New("PROXY_TIMEOUT and AUTH_SERVICE_TIMEOUT must be positive"))
	}
	if c.GatewaySecret == "" || c.InternalSecret == "" {
		errs = append(errs, errors.New("gateway_secret and internal_secret are required"))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from environment variables and secrets.
func LoadConfig(envFilePath string) (*Config, error) {
	if _, err := os.Stat(envFilePath); err == nil {
		if err = godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	secrets := map[string]*string{
		"jwt_access_secret": &cfg.JWTAccessSecret,
		"gateway_secret":    &cfg.GatewaySecret,
		"internal_secret":   &cfg.InternalSecret,
	}
	for name, dst := range secrets {
		v, err := utils.LoadSecret(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"venue-server/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the auth-service configuration.
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8081"`

	// PostgreSQL (subjects, refresh credentials)
	DBHost    string `envconfig:"DB_HOST" required:"true"`
	DBPort    string `envconfig:"DB_PORT" required:"true"`
	DBUser    string `envconfig:"DB_USER" required:"true"`
	DBName    string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode string `envconfig:"DB_SSL_MODE" default:"disable"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Redis: rate limiting and, with CREDENTIAL_STORE=redis, refresh credentials
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string

	// CredentialStore выбирает реализацию хранилища refresh токенов: postgres | redis
	CredentialStore string `envconfig:"CREDENTIAL_STORE" default:"postgres"`

	// JWT settings. Secrets are loaded from files.
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTMinSecretLength int           `envconfig:"JWT_MIN_SECRET_LENGTH" default:"32"`
	AccessTokenTTL     time.Duration `envconfig:"JWT_ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL    time.Duration `envconfig:"JWT_REFRESH_TOKEN_TTL" default:"168h"`
	PasswordPepper     string
	BcryptCost         int `envconfig:"BCRYPT_COST" default:"10"`

	CookieDomain       string `envconfig:"COOKIE_DOMAIN" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Rate limiting for login/register/refresh
	RateLimitPerMinute uint `envconfig:"RATE_LIMIT_PER_MINUTE" default:"20"`

	// Downstream profile creation
	UserServiceURL     string        `envconfig:"USER_SERVICE_URL" default:"http://user-service:8082"`
	UserServiceTimeout time.Duration `envconfig:"USER_SERVICE_TIMEOUT" default:"5s"`
	// InternalSecret guards service-to-service calls in both directions.
	InternalSecret string

	// TrustMode выбирает проверку запросов от шлюза: header | credential
	TrustMode     string `envconfig:"TRUST_MODE" default:"header"`
	GatewaySecret string

	// RabbitMQ (optional). Empty URL disables session events.
	AMQPURL        string
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"auth.events"`

	PurgeInterval time.Duration `envconfig:"TOKEN_PURGE_INTERVAL" default:"1h"`
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

// DatabaseURL builds the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Validate checks invariants envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.CredentialStore != "postgres" && c.CredentialStore != "redis" {
		errs = append(errs, fmt.Errorf("CREDENTIAL_STORE must be postgres or redis, got %q", c.CredentialStore))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("refresh token TTL must exceed a positive access token TTL"))
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("jwt_access_secret and jwt_refresh_secret must differ"))
	}
	if c.InternalSecret == "" {
		errs = append(errs, errors.New("internal_secret is required"))
	}
	if c.GatewaySecret == "" {
		errs = append(errs, errors.New("gateway_secret is required"))
	}
	if c.PurgeInterval <= 0 {
		errs = append(errs, errors.New("TOKEN_PURGE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from environment variables and secrets.
func LoadConfig(envFilePath string) (*Config, error) {
	if _, err := os.Stat(envFilePath); err == nil {
		if err = godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		} else {
			log.Printf("Loaded configuration from %s", envFilePath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	required := map[string]*string{
		"db_password":        &cfg.DBPassword,
		"jwt_access_secret":  &cfg.JWTAccessSecret,
		"jwt_refresh_secret": &cfg.JWTRefreshSecret,
		"password_pepper":    &cfg.PasswordPepper,
		"internal_secret":    &cfg.InternalSecret,
		"gateway_secret":     &cfg.GatewaySecret,
	}
	for name, dst := range required {
		v, err := utils.LoadSecret(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	// НЕОБЯЗАТЕЛЬНЫЕ секреты
	if v, err := utils.LoadSecret("redis_password"); err == nil {
		cfg.RedisPassword = v
	}
	if v, err := utils.LoadSecret("amqp_url"); err == nil {
		cfg.AMQPURL = v
	} else {
		log.Printf("Optional secret 'amqp_url' not found: session events disabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Println("Configuration loaded successfully.")
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"venue-server/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the user-service configuration.
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8082"`

	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" required:"true"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBPassword string

	TrustMode      string `envconfig:"TRUST_MODE" default:"header"`
	GatewaySecret  string
	InternalSecret string
	// JWTAccessSecret нужен только в режиме credential
	JWTAccessSecret    string
	JWTMinSecretLength int `envconfig:"JWT_MIN_SECRET_LENGTH" default:"32"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

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
	if c.GatewaySecret == "" || c.InternalSecret == "" {
		errs = append(errs, errors.New("gateway_secret and internal_secret are required"))
	}
	if strings.EqualFold(c.TrustMode, "credential") && c.JWTAccessSecret == "" {
		errs = append(errs, errors.New("jwt_access_secret is required in credential trust mode"))
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

	required := map[string]*string{
		"db_password":     &cfg.DBPassword,
		"gateway_secret":  &cfg.GatewaySecret,
		"internal_secret": &cfg.InternalSecret,
	}
	for name, dst := range required {
		v, err := utils.LoadSecret(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	if v, err := utils.LoadSecret("jwt_access_secret"); err == nil {
		cfg.JWTAccessSecret = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"portal/internal/workflow"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type DatabaseOptions struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN builds the postgres URL gorm's driver expects.
func (d DatabaseOptions) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type DocumentOptions struct {
	// URL of the document service; empty disables re-signing.
	URL     string        `env:"DOCUMENT_SERVICE_URL"`
	Timeout time.Duration `env:"DOCUMENT_SERVICE_TIMEOUT" envDefault:"10s"`
}

type Config struct {
	Database DatabaseOptions
	Document DocumentOptions

	Port        string   `env:"PORT" envDefault:"8080"`
	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	JWTSecret   string   `env:"JWT_SECRET"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"text"`
	// inclusive or half_open, see workflow.Boundary
	ReservationBoundary string `env:"RESERVATION_BOUNDARY" envDefault:"inclusive"`
}

// Load reads the optional env files, then parses the environment. Files that do not
// exist are skipped.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := workflow.ParseBoundary(c.ReservationBoundary); err != nil {
		return fmt.Errorf("RESERVATION_BOUNDARY: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.JWTSecret == "" && c.GinMode == "release" {
		return fmt.Errorf("JWT_SECRET is required in release mode")
	}
	return nil
}

// Boundary returns the parsed reservation boundary policy. Call after Validate.
func (c *Config) Boundary() workflow.Boundary {
	b, _ := workflow.ParseBoundary(c.ReservationBoundary)
	return b
}

// Secret returns the JWT signing key, falling back to a development key outside release mode.
func (c *Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte("default_super_secret_key")
	}
	return []byte(c.JWTSecret)
}

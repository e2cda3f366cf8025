package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           string
	BaseURL        string
	DatabaseURL    string
	JWTSecret      string
	ClientURL      string
	AllowedOrigins []string
	Slack          SlackConfig

	// NotificationRetention is how long notification log rows are kept; zero keeps them forever.
	NotificationRetention time.Duration
}

type SlackConfig struct {
	ClientID      string
	ClientSecret  string
	SigningSecret string
}

// Default allowed origins for development
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:5173",
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnv("PORT", "3000"),
		BaseURL:     strings.TrimSuffix(getEnv("BASE_URL", os.Getenv("NEXT_PUBLIC_BASE_URL")), "/"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ClientURL:   os.Getenv("CLIENT_URL"),
		Slack: SlackConfig{
			ClientID:      os.Getenv("SLACK_CLIENT_ID"),
			ClientSecret:  os.Getenv("SLACK_CLIENT_SECRET"),
			SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		},
	}

	cfg.AllowedOrigins = buildAllowedOrigins(cfg.ClientURL, os.Getenv("ALLOWED_ORIGINS"))

	retention, err := time.ParseDuration(getEnv("NOTIFICATION_RETENTION", "720h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid NOTIFICATION_RETENTION: %w", err)
	}
	cfg.NotificationRetention = retention

	return cfg, nil
}

// Validate checks what the server needs; the setup wizard runs without it.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL environment variable is not set")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// RedirectURI is the OAuth redirect registered with the Slack app.
func (c Config) RedirectURI() string {
	return c.BaseURL + "/api/integrations/slack"
}

func buildAllowedOrigins(clientURL, extra string) []string {
	origins := make([]string, len(defaultOrigins))
	copy(origins, defaultOrigins)

	if clientURL != "" {
		origins = append(origins, clientURL)
	}

	for _, origin := range strings.Split(extra, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

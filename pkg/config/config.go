package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Environment  string
	Port         string
	DatabasePath string

	JWTSecret     string
	JWTIssuer     string
	JWTExpiration time.Duration

	LogLevel  string
	LogFormat string

	// Overdue scan
	OverdueScanInterval time.Duration

	// Rate limiting: RateLimitRequests per RateLimitWindow, per client IP
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Timezone       string
	CurrencySymbol string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	return &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "lendbook.db"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "lendbook"),
		JWTExpiration: getEnvAsDuration("JWT_EXPIRATION", 7*24*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		OverdueScanInterval: getEnvAsDuration("OVERDUE_SCAN_INTERVAL", time.Hour),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		Timezone:       getEnv("TIMEZONE", "UTC"),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₹"),
	}
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if c.Environment == "production" {
			return errors.New("JWT_SECRET must be set in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("rate limit requests and window must be positive")
	}
	if c.OverdueScanInterval <= 0 {
		return errors.New("OVERDUE_SCAN_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

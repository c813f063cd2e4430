package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the service configuration, read from configs/.env and the environment.
type Config struct {
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	Port    string
	GinMode string

	JWTSecret string

	LogLevel  string
	LogFormat string

	CORSOrigins []string

	// RedisAddr empty disables the Redis event publisher.
	RedisAddr    string
	RedisChannel string

	RequestTimeout time.Duration
}

// Load reads envFile (when present) and then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("No %s file found or error loading it", envFile)
		}
	}

	cfg := &Config{
		DBDriver:     getEnv("DB_DRIVER", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "postgres"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: getEnv("REDIS_CHANNEL", "approval-events"),
	}

	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %q", os.Getenv("REQUEST_TIMEOUT"))
	}
	cfg.RequestTimeout = timeout

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in release mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}

	return cfg, nil
}

// DSN builds the connection string for the configured driver.
// For sqlite, DB_NAME is the database file.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBName
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

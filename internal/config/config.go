// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	DatabaseURL       string
	Store             string
	RedisAddr         string
	ServerPort        string
	AllowedOrigins    string
	LogLevel          string
	ApprovalLockTTL   time.Duration
	ReportConcurrency int
	DBMaxConns        int32
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and applies defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL:       getenv("DATABASE_URL"),
		Store:             strings.ToLower(strings.TrimSpace(getenv("STORE"))),
		RedisAddr:         getenv("REDIS_ADDR"),
		ServerPort:        getenv("SERVER_PORT"),
		AllowedOrigins:    getenv("ALLOWED_ORIGINS"),
		LogLevel:          getenv("LOG_LEVEL"),
		ApprovalLockTTL:   30 * time.Second,
		ReportConcurrency: 4,
	}
	if cfg.Store == "" {
		cfg.Store = StorePostgres
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if v := getenv("APPROVAL_LOCK_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid APPROVAL_LOCK_TTL %q", v)
		}
		cfg.ApprovalLockTTL = ttl
	}
	if v := getenv("REPORT_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid REPORT_CONCURRENCY %q", v)
		}
		cfg.ReportConcurrency = n
	}
	if v := getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}

	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	return cfg, nil
}

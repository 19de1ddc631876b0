// Package config loads the server configuration from environment variables.
package config

import (
	"fmt"
	"os"
)

// Store drivers accepted by COMPTRACK_STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config carries everything the server binary needs at startup.
//
//	COMPTRACK_HTTP_ADDR:      listen address (default :8080)
//	COMPTRACK_STORE_DRIVER:   memory|sqlite|postgres (default memory)
//	COMPTRACK_SQLITE_PATH:    database file when driver=sqlite (default ./comptrack.db)
//	COMPTRACK_POSTGRES_DSN:   connection string when driver=postgres (required then)
//	COMPTRACK_AI_BASE_URL:    chat-completions endpoint base (default OpenRouter)
//	COMPTRACK_AI_API_KEY:     provider key; empty selects the rule-based responder
//	COMPTRACK_AI_MODEL:       model override (provider default when empty)
//	COMPTRACK_API_TOKENS:     token:email:role[,token:email:role...] (required)
//	COMPTRACK_LOG_LEVEL:      zap level name (default info)
//	(blob storage variables documented in the blob package)
type Config struct {
	HTTPAddr    string
	StoreDriver string
	SQLitePath  string
	PostgresDSN string
	AIBaseURL   string
	AIAPIKey    string
	AIModel     string
	APITokens   string
	LogLevel    string
}

// FromEnv reads the configuration and validates cross-field requirements.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:    envOr("COMPTRACK_HTTP_ADDR", ":8080"),
		StoreDriver: envOr("COMPTRACK_STORE_DRIVER", StoreMemory),
		SQLitePath:  envOr("COMPTRACK_SQLITE_PATH", "./comptrack.db"),
		PostgresDSN: os.Getenv("COMPTRACK_POSTGRES_DSN"),
		AIBaseURL:   envOr("COMPTRACK_AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIAPIKey:    os.Getenv("COMPTRACK_AI_API_KEY"),
		AIModel:     os.Getenv("COMPTRACK_AI_MODEL"),
		APITokens:   os.Getenv("COMPTRACK_API_TOKENS"),
		LogLevel:    envOr("COMPTRACK_LOG_LEVEL", "info"),
	}

	switch cfg.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("COMPTRACK_POSTGRES_DSN is required when COMPTRACK_STORE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown store driver %s", cfg.StoreDriver)
	}

	if cfg.APITokens == "" {
		return Config{}, fmt.Errorf("COMPTRACK_API_TOKENS is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

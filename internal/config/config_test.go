package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("COMPTRACK_API_TOKENS", "tok:ana@example.com:ADMIN")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("StoreDriver = %q, want memory", cfg.StoreDriver)
	}
	if cfg.AIBaseURL == "" {
		t.Fatal("AIBaseURL should default to the provider endpoint")
	}
}

func TestFromEnvRequiresTokens(t *testing.T) {
	t.Setenv("COMPTRACK_API_TOKENS", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error when COMPTRACK_API_TOKENS is unset")
	}
}

func TestFromEnvPostgresNeedsDSN(t *testing.T) {
	t.Setenv("COMPTRACK_API_TOKENS", "tok:ana@example.com:ADMIN")
	t.Setenv("COMPTRACK_STORE_DRIVER", StorePostgres)
	t.Setenv("COMPTRACK_POSTGRES_DSN", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error when the postgres DSN is missing")
	}

	t.Setenv("COMPTRACK_POSTGRES_DSN", "postgres://localhost/comptrack")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.PostgresDSN == "" {
		t.Fatal("PostgresDSN should carry the configured DSN")
	}
}

func TestFromEnvRejectsUnknownDriver(t *testing.T) {
	t.Setenv("COMPTRACK_API_TOKENS", "tok:ana@example.com:ADMIN")
	t.Setenv("COMPTRACK_STORE_DRIVER", "oracle")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error for an unknown store driver")
	}
}

// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// B2C authority (delegated / act-as-user trust domain)
	TenantName   string
	PolicyName   string
	IdPHost      string // defaults to b2clogin.com; override for local stubs
	ClientID     string
	ClientName   string // app registration name, used to derive the impersonation scope
	ClientSecret string
	RedirectURI  string

	// Directory service (app-only / act-as-service trust domain).
	// Separate client identity pair: the two flows never share credentials.
	DirectoryBaseURL      string
	DirectoryTokenURL     string
	DirectoryClientID     string
	DirectoryClientSecret string
	DirectoryScope        string

	// Extension-attribute application
	ExtensionsAppID string

	// Bounds on outbound identity-provider / directory calls
	UpstreamTimeout time.Duration

	// CSRF state validity window for the authorization-code flow
	LoginStateTTL time.Duration

	// Redis & Postgres (optional: login-state store, audit trail)
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                   env("DIRGATE_ENV", "dev"),
		HTTPAddr:              env("DIRGATE_HTTP_ADDR", ":8080"),
		TenantName:            env("B2C_TENANT_NAME", ""),
		PolicyName:            env("B2C_POLICY_NAME", ""),
		IdPHost:               env("B2C_IDP_HOST", "b2clogin.com"),
		ClientID:              env("B2C_CLIENT_ID", ""),
		ClientName:            env("B2C_CLIENT_NAME", ""),
		ClientSecret:          env("B2C_CLIENT_SECRET", ""),
		RedirectURI:           env("B2C_REDIRECT_URI", ""),
		DirectoryBaseURL:      env("DIRECTORY_BASE_URL", "https://graph.microsoft.com"),
		DirectoryTokenURL:     env("DIRECTORY_TOKEN_URL", ""),
		DirectoryClientID:     env("DIRECTORY_CLIENT_ID", ""),
		DirectoryClientSecret: env("DIRECTORY_CLIENT_SECRET", ""),
		DirectoryScope:        env("DIRECTORY_SCOPE", "https://graph.microsoft.com/.default"),
		ExtensionsAppID:       env("B2C_EXTENSIONS_CLIENT_ID", ""),
		UpstreamTimeout:       envDur("UPSTREAM_TIMEOUT_SEC", 15) * time.Second,
		LoginStateTTL:         envDur("LOGIN_STATE_TTL_SEC", 300) * time.Second,
		RedisURL:              env("REDIS_URL", ""),
		DatabaseURL:           env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — login audit trail disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("[WARN] REDIS_URL not set — using in-memory login-state store")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}

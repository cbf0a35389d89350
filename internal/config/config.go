package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Document Store
	MongoURI      string
	MongoDatabase string

	// Identity Gateway
	IdentityJWKSURL    string
	IdentityIssuer     string
	IdentityAudience   string
	IdentityAdminURL   string
	IdentityAdminToken string

	// Session
	SessionSecret          string
	SessionTTL             time.Duration
	SessionRefreshInterval time.Duration
	SessionSweepInterval   time.Duration

	// Lifecycle
	DeletionGracePeriod time.Duration

	// Rate Limit
	RateLimitLifecycle int
	RateLimitGeneral   int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}

	cfg.MongoDatabase = os.Getenv("MONGO_DATABASE")
	if cfg.MongoDatabase == "" {
		missing = append(missing, "MONGO_DATABASE")
	}

	cfg.IdentityJWKSURL = os.Getenv("IDENTITY_JWKS_URL")
	if cfg.IdentityJWKSURL == "" {
		missing = append(missing, "IDENTITY_JWKS_URL")
	}

	cfg.IdentityIssuer = os.Getenv("IDENTITY_ISSUER")
	if cfg.IdentityIssuer == "" {
		missing = append(missing, "IDENTITY_ISSUER")
	}

	cfg.IdentityAdminURL = os.Getenv("IDENTITY_ADMIN_URL")
	if cfg.IdentityAdminURL == "" {
		missing = append(missing, "IDENTITY_ADMIN_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityAudience = getEnvString("IDENTITY_AUDIENCE", "")
	cfg.IdentityAdminToken = getEnvString("IDENTITY_ADMIN_TOKEN", "")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 7*24*time.Hour)
	cfg.SessionRefreshInterval = getEnvDuration("SESSION_REFRESH_INTERVAL", 30*time.Minute)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	cfg.DeletionGracePeriod = getEnvDuration("DELETION_GRACE_PERIOD", 30*24*time.Hour)
	cfg.RateLimitLifecycle = getEnvInt("RATE_LIMIT_LIFECYCLE", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

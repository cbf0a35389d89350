package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "jacobsladder")
	t.Setenv("IDENTITY_JWKS_URL", "https://identity.example.com/.well-known/jwks.json")
	t.Setenv("IDENTITY_ISSUER", "https://identity.example.com")
	t.Setenv("IDENTITY_ADMIN_URL", "https://identity.example.com/admin")
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("MongoURI = %q, want %q", cfg.MongoURI, "mongodb://localhost:27017")
	}
	if cfg.MongoDatabase != "jacobsladder" {
		t.Errorf("MongoDatabase = %q, want %q", cfg.MongoDatabase, "jacobsladder")
	}
	if cfg.IdentityJWKSURL != "https://identity.example.com/.well-known/jwks.json" {
		t.Errorf("IdentityJWKSURL = %q, want %q", cfg.IdentityJWKSURL, "https://identity.example.com/.well-known/jwks.json")
	}
	if cfg.IdentityIssuer != "https://identity.example.com" {
		t.Errorf("IdentityIssuer = %q, want %q", cfg.IdentityIssuer, "https://identity.example.com")
	}
	if cfg.SessionSecret != "test-session-secret-32bytes-long!" {
		t.Errorf("SessionSecret = %q, want %q", cfg.SessionSecret, "test-session-secret-32bytes-long!")
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Session defaults
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, 7*24*time.Hour)
	}
	if cfg.SessionRefreshInterval != 30*time.Minute {
		t.Errorf("SessionRefreshInterval = %v, want %v", cfg.SessionRefreshInterval, 30*time.Minute)
	}
	if cfg.SessionSweepInterval != 5*time.Minute {
		t.Errorf("SessionSweepInterval = %v, want %v", cfg.SessionSweepInterval, 5*time.Minute)
	}

	// Lifecycle defaults
	if cfg.DeletionGracePeriod != 30*24*time.Hour {
		t.Errorf("DeletionGracePeriod = %v, want %v", cfg.DeletionGracePeriod, 30*24*time.Hour)
	}

	// Rate limit defaults
	if cfg.RateLimitLifecycle != 10 {
		t.Errorf("RateLimitLifecycle = %d, want %d", cfg.RateLimitLifecycle, 10)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want %d", cfg.RateLimitGeneral, 120)
	}

	// Server defaults
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CORSAllowedOrigin != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "http://localhost:3000")
	}
}

func TestLoad_MissingRequiredVars_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("MONGO_URI", "")
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// 欠けている変数名がすべてエラーメッセージに含まれる
	if !strings.Contains(err.Error(), "MONGO_URI") {
		t.Errorf("error message should contain MONGO_URI: %v", err)
	}
	if !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("error message should contain SESSION_SECRET: %v", err)
	}
}

func TestLoad_CookieSecure_FollowsBaseURLScheme(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http BASE_URL")
	}

	t.Setenv("BASE_URL", "https://ladder.example.com")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https BASE_URL")
	}
}

func TestLoad_CustomDurations(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("SESSION_REFRESH_INTERVAL", "10m")
	t.Setenv("DELETION_GRACE_PERIOD", "168h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.SessionTTL != 48*time.Hour {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, 48*time.Hour)
	}
	if cfg.SessionRefreshInterval != 10*time.Minute {
		t.Errorf("SessionRefreshInterval = %v, want %v", cfg.SessionRefreshInterval, 10*time.Minute)
	}
	if cfg.DeletionGracePeriod != 168*time.Hour {
		t.Errorf("DeletionGracePeriod = %v, want %v", cfg.DeletionGracePeriod, 168*time.Hour)
	}
}

func TestLoad_InvalidDuration_FallsBackToDefault(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v, want default %v", cfg.SessionTTL, 7*24*time.Hour)
	}
}

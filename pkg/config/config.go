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

	// Platform API
	APIURL    string // public API base, e.g. https://api.platform.example.com/public/v1
	APIKey    string // service-level key, used only for impersonation exchanges
	ServiceID string // service id the extension runs as (SRVC-xxxx)

	// Impersonation grants
	GrantTTL        time.Duration // cache TTL, must not exceed grant validity
	ExchangeRetries int           // re-exchange attempts after a rejected/expired grant
	ExchangeTimeout time.Duration

	// Inbound call verification (platform-signed JWT); empty issuer/jwks disables it
	Issuer  string
	JWKSURL string

	// Timing middleware
	TimingLevel     string        // critical|error|warning|info|debug
	TimingThreshold time.Duration // zero logs every call

	// Shutdown
	DrainGrace time.Duration

	// Optional backends
	RedisURL    string // shared grant cache
	DatabaseURL string // impersonation audit store

	DescriptorPath string
	PolicyPath     string // optional rego module overriding the builtin skip policy
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("CHARTEX_ENV", "dev"),
		HTTPAddr:        env("CHARTEX_HTTP_ADDR", ":8080"),
		APIURL:          env("API_URL", "https://api.platform.example.com/public/v1"),
		APIKey:          env("API_KEY", ""),
		ServiceID:       env("SERVICE_ID", ""),
		GrantTTL:        envDur("GRANT_TTL_SEC", 300) * time.Second,
		ExchangeRetries: envInt("EXCHANGE_RETRIES", 1),
		ExchangeTimeout: envDur("EXCHANGE_TIMEOUT_SEC", 10) * time.Second,
		Issuer:          env("PLATFORM_ISSUER", ""),
		JWKSURL:         env("PLATFORM_JWKS_URL", ""),
		TimingLevel:     env("TIMING_LOG_LEVEL", "info"),
		TimingThreshold: envDur("TIMING_THRESHOLD_MS", 0) * time.Millisecond,
		DrainGrace:      envDur("DRAIN_GRACE_SEC", 10) * time.Second,
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
		DescriptorPath:  env("DESCRIPTOR_PATH", "extension.yaml"),
		PolicyPath:      env("POLICY_PATH", ""),
	}
	if cfg.APIKey == "" {
		log.Println("[WARN] API_KEY not set — admin impersonation will be rejected")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
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

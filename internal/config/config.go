package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FlagCachePrefix      string
	FlagDecisionCacheTTL time.Duration

	APIRateLimitPerMin int

	EnforcementProbeBypass   bool
	EnforcementTrustedBypass bool
	EnforcementExemptPaths   []string
	EnforcementTrustedCIDRs  []string
	EnforcementTrustedUsers  []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		FlagCachePrefix:          getEnv("FLAG_CACHE_PREFIX", "ff"),
		APIRateLimitPerMin:       getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		EnforcementProbeBypass:   getEnvBool("ENFORCEMENT_PROBE_BYPASS", true),
		EnforcementTrustedBypass: getEnvBool("ENFORCEMENT_TRUSTED_BYPASS", false),
		EnforcementExemptPaths:   splitCSV(getEnv("ENFORCEMENT_EXEMPT_PATHS", "/api/admin/")),
		EnforcementTrustedCIDRs:  splitCSV(os.Getenv("ENFORCEMENT_TRUSTED_CIDRS")),
		EnforcementTrustedUsers:  splitCSV(os.Getenv("ENFORCEMENT_TRUSTED_USERS")),
	}

	ttl, err := time.ParseDuration(getEnv("FLAG_DECISION_CACHE_TTL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("parse FLAG_DECISION_CACHE_TTL: %w", err)
	}
	cfg.FlagDecisionCacheTTL = ttl

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.FlagDecisionCacheTTL <= 0 || c.FlagDecisionCacheTTL > time.Hour {
		errs = append(errs, "FLAG_DECISION_CACHE_TTL must be between 1ms and 1h")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}

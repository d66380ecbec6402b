package di

import (
	"testing"

	"github.com/AstroMined/debtonator/internal/config"
	"github.com/AstroMined/debtonator/internal/http/router"
)

func TestProvideHTTPServer(t *testing.T) {
	cfg := &config.Config{HTTPPort: "9999"}
	srv := provideHTTPServer(cfg, nil)
	if srv.Addr != ":9999" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadTimeout.Seconds() != 10 {
		t.Fatalf("unexpected read timeout: %v", srv.ReadTimeout)
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{
		APIRateLimitPerMin:     100,
		EnforcementProbeBypass: true,
	}
	dep := provideRouterDependencies(nil, nil, nil, nil, cfg)
	if dep.APIRateLimitRPM != 100 {
		t.Fatalf("unexpected rate limit: %+v", dep)
	}
	if dep.Limiter == nil {
		t.Fatal("expected local limiter fallback without redis")
	}
	if dep.Bypass == nil {
		t.Fatal("expected bypass evaluator when probe bypass is on")
	}
	_ = router.Dependencies(dep)
}

func TestProvideRedisClientDisabled(t *testing.T) {
	if client := provideRedisClient(&config.Config{}); client != nil {
		t.Fatal("expected nil client without REDIS_ADDR")
	}
}

func TestProvideDecisionCacheFallsBackToMemory(t *testing.T) {
	cache := provideDecisionCache(&config.Config{FlagCachePrefix: "ff"}, nil)
	if cache == nil {
		t.Fatal("expected in-memory cache store")
	}
}

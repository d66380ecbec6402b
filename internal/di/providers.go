package di

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/AstroMined/debtonator/internal/app"
	"github.com/AstroMined/debtonator/internal/config"
	"github.com/AstroMined/debtonator/internal/database"
	"github.com/AstroMined/debtonator/internal/http/handler"
	"github.com/AstroMined/debtonator/internal/http/middleware"
	"github.com/AstroMined/debtonator/internal/http/router"
	"github.com/AstroMined/debtonator/internal/interceptor"
	"github.com/AstroMined/debtonator/internal/observability"
	"github.com/AstroMined/debtonator/internal/registry"
	"github.com/AstroMined/debtonator/internal/repository"
	"github.com/AstroMined/debtonator/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger)

var RuntimeInfraSet = wire.NewSet(provideOpenDB, provideRedisClient)

var RepositorySet = wire.NewSet(repository.NewFeatureFlagRepository)

var ServiceSet = wire.NewSet(
	provideRegistry,
	service.NewFeatureFlagService,
	provideRequirementProvider,
	provideDecisionCache,
	provideGuard,
)

var HTTPSet = wire.NewSet(
	handler.NewFeatureFlagHandler,
	provideRouterDependencies,
	provideRootHandler,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg.LogLevel)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// provideRedisClient returns nil when no Redis address is configured;
// downstream providers fall back to in-process implementations.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideRegistry(logger *slog.Logger) *registry.FlagRegistry {
	return registry.New(logger)
}

func provideRequirementProvider(repo repository.FeatureFlagRepository) service.RequirementProvider {
	return service.NewDatabaseRequirementProvider(repo)
}

func provideDecisionCache(cfg *config.Config, client redis.UniversalClient) service.DecisionCacheStore {
	if client == nil {
		return service.NewInMemoryDecisionCacheStore()
	}
	return service.NewRedisDecisionCacheStore(client, cfg.FlagCachePrefix)
}

func provideGuard(
	provider service.RequirementProvider,
	reg *registry.FlagRegistry,
	svc service.FeatureFlagService,
	cache service.DecisionCacheStore,
	cfg *config.Config,
	logger *slog.Logger,
) *interceptor.Guard {
	return interceptor.NewGuard(provider, reg, svc, cache, cfg.FlagDecisionCacheTTL, logger)
}

func provideRouterDependencies(
	logger *slog.Logger,
	flags *handler.FeatureFlagHandler,
	guard *interceptor.Guard,
	client redis.UniversalClient,
	cfg *config.Config,
) router.Dependencies {
	var limiter middleware.Limiter
	if client != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(client, cfg.FlagCachePrefix+":rl")
	} else {
		limiter = middleware.NewLocalFixedWindowLimiter()
	}
	return router.Dependencies{
		Logger:       logger,
		FeatureFlags: flags,
		Guard:        guard,
		Bypass: middleware.NewEnforcementBypassEvaluator(middleware.EnforcementBypassConfig{
			EnableProbeBypass:   cfg.EnforcementProbeBypass,
			EnableTrustedBypass: cfg.EnforcementTrustedBypass,
			ExemptPathPrefixes:  cfg.EnforcementExemptPaths,
			TrustedCIDRs:        cfg.EnforcementTrustedCIDRs,
			TrustedUserIDs:      cfg.EnforcementTrustedUsers,
		}),
		Limiter:         limiter,
		APIRateLimitRPM: cfg.APIRateLimitPerMin,
	}
}

func provideRootHandler(dep router.Dependencies) http.Handler {
	return router.New(dep)
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     h,
		ReadTimeout: 10 * time.Second,
	}
}

// MigrationRunner opens the database and applies the schema, used by
// the migrate subcommand.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}

// Package interceptor enforces feature-flag requirements around calls
// into repository and service objects, and behind the api-layer HTTP
// middleware. Method wrappers are registered explicitly at composition
// time; nothing here reflects over the wrapped target.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/observability"
	"github.com/AstroMined/debtonator/internal/service"
)

// FlagLister exposes the names of every known flag. Satisfied by
// *registry.FlagRegistry.
type FlagLister interface {
	Names() []string
}

// FlagEvaluator answers whether a flag is enabled for a call context.
// Satisfied by service.FeatureFlagService.
type FlagEvaluator interface {
	IsEnabled(ctx context.Context, name string, evalCtx *domain.EvaluationContext) bool
}

// Guard resolves which flags govern a method and whether the call may
// proceed. Each call walks RECEIVED -> RESOLVING_REQUIREMENT and ends
// in FORWARD (uncontrolled, or controlled and enabled) or REJECT
// (controlled and disabled). Resolved decisions are cached for the
// configured TTL, so enforcement is eventually consistent with the
// registry, never linearizable.
type Guard struct {
	provider  service.RequirementProvider
	lister    FlagLister
	evaluator FlagEvaluator
	cache     service.DecisionCacheStore
	ttl       time.Duration
	logger    *slog.Logger
}

// cachedDecision is the serialized form of one resolved call decision.
type cachedDecision struct {
	Controlled bool   `json:"controlled"`
	Allowed    bool   `json:"allowed"`
	Flag       string `json:"flag,omitempty"`
}

func NewGuard(provider service.RequirementProvider, lister FlagLister, evaluator FlagEvaluator, cache service.DecisionCacheStore, ttl time.Duration, logger *slog.Logger) *Guard {
	if cache == nil {
		cache = service.NewNoopDecisionCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		provider:  provider,
		lister:    lister,
		evaluator: evaluator,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
	}
}

// Allow reports whether a call to method on the given layer may
// proceed for the given account type. It returns nil for ungoverned
// and enabled calls, a *FeatureDisabledError for denied ones, and a
// wrapped store error when requirement lookup itself fails.
func (g *Guard) Allow(ctx context.Context, layer domain.Layer, method, accountType string, evalCtx *domain.EvaluationContext) error {
	var userID string
	if evalCtx != nil {
		userID = evalCtx.UserID
	}
	key := service.DecisionCacheKey(userID, string(layer), method, accountType)

	if payload, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		var cached cachedDecision
		if json.Unmarshal(payload, &cached) == nil {
			return g.outcome(layer, method, accountType, cached)
		}
	} else if err != nil {
		g.logger.WarnContext(ctx, "decision cache read failed", "layer", string(layer), "method", method, "error", err)
	}

	decision, err := g.resolve(ctx, layer, method, accountType, evalCtx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(decision)
	if err == nil {
		if err := g.cache.Set(ctx, key, payload, g.ttl); err != nil {
			g.logger.WarnContext(ctx, "decision cache write failed", "layer", string(layer), "method", method, "error", err)
		}
	}
	return g.outcome(layer, method, accountType, decision)
}

func (g *Guard) resolve(ctx context.Context, layer domain.Layer, method, accountType string, evalCtx *domain.EvaluationContext) (cachedDecision, error) {
	names := g.lister.Names()
	sort.Strings(names)

	var controlling []string
	for _, name := range names {
		reqs, err := g.provider.GetRequirements(ctx, name)
		if err != nil {
			return cachedDecision{}, fmt.Errorf("resolve requirements for %s: %w", name, err)
		}
		decision, ok := reqs.MethodDecision(layer, method)
		if !ok {
			continue
		}
		if decision.Controlled(accountType) {
			controlling = append(controlling, name)
		}
	}
	if len(controlling) == 0 {
		return cachedDecision{Controlled: false, Allowed: true}, nil
	}

	for _, name := range controlling {
		if !g.evaluator.IsEnabled(ctx, name, evalCtx) {
			return cachedDecision{Controlled: true, Allowed: false, Flag: name}, nil
		}
	}
	return cachedDecision{Controlled: true, Allowed: true, Flag: controlling[0]}, nil
}

func (g *Guard) outcome(layer domain.Layer, method, accountType string, decision cachedDecision) error {
	switch {
	case !decision.Controlled:
		observability.RecordInterceptorDecision(string(layer), "uncontrolled")
		return nil
	case decision.Allowed:
		observability.RecordInterceptorDecision(string(layer), "allowed")
		return nil
	default:
		observability.RecordInterceptorDecision(string(layer), "denied")
		return &FeatureDisabledError{
			Flag:        decision.Flag,
			Layer:       layer,
			Method:      method,
			AccountType: accountType,
		}
	}
}

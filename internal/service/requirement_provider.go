package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/repository"
)

// RequirementProvider supplies, per flag, the resolved layer ->
// method -> decision mapping consumed by the interception guard.
type RequirementProvider interface {
	GetRequirements(ctx context.Context, flagName string) (domain.Requirements, error)
}

// DatabaseRequirementProvider reads the requirements column of the
// persisted flag record. Flags without a persisted record or without
// requirements resolve to an empty mapping.
type DatabaseRequirementProvider struct {
	repo repository.FeatureFlagRepository
}

func NewDatabaseRequirementProvider(repo repository.FeatureFlagRepository) *DatabaseRequirementProvider {
	return &DatabaseRequirementProvider{repo: repo}
}

func (p *DatabaseRequirementProvider) GetRequirements(_ context.Context, flagName string) (domain.Requirements, error) {
	raw, err := p.repo.GetRequirements(flagName)
	if err != nil {
		if errors.Is(err, repository.ErrFeatureFlagNotFound) {
			return domain.Requirements{}, nil
		}
		return nil, fmt.Errorf("load requirements for %s: %w", flagName, err)
	}
	return domain.ParseRequirements(raw)
}

// StaticRequirementProvider serves a preloaded requirement map. Used
// for built-in defaults and in tests.
type StaticRequirementProvider struct {
	requirements map[string]domain.Requirements
}

func NewStaticRequirementProvider(requirements map[string]domain.Requirements) *StaticRequirementProvider {
	if requirements == nil {
		requirements = map[string]domain.Requirements{}
	}
	return &StaticRequirementProvider{requirements: requirements}
}

func (p *StaticRequirementProvider) GetRequirements(_ context.Context, flagName string) (domain.Requirements, error) {
	reqs, ok := p.requirements[flagName]
	if !ok {
		return domain.Requirements{}, nil
	}
	return reqs, nil
}

// DefaultRequirements returns the built-in requirement set for the
// banking account-type flags. The admin layer exposes it so operators
// can seed or reset a flag's requirements.
func DefaultRequirements() map[string]domain.Requirements {
	gate := func(accountType string, methods map[domain.Layer][]string) domain.Requirements {
		out := domain.Requirements{}
		for layer, names := range methods {
			entries := make(map[string]domain.Decision, len(names))
			for _, name := range names {
				entries[name] = domain.Decision{
					Kind:       domain.DecisionList,
					AccountSet: map[string]struct{}{accountType: {}},
				}
			}
			out[layer] = entries
		}
		return out
	}
	return map[string]domain.Requirements{
		"BANKING_ACCOUNT_TYPES_EWA_ENABLED": gate("ewa", map[domain.Layer][]string{
			domain.LayerRepository: {"create_typed_entity", "update_typed_entity", "get_by_type"},
			domain.LayerService:    {"create_account", "update_account"},
			domain.LayerAPI:        {"/api/v1/accounts/ewa"},
		}),
		"BANKING_ACCOUNT_TYPES_BNPL_ENABLED": gate("bnpl", map[domain.Layer][]string{
			domain.LayerRepository: {"create_typed_entity", "update_typed_entity", "get_by_type"},
			domain.LayerService:    {"create_account", "update_account", "update_bnpl_status"},
			domain.LayerAPI:        {"/api/v1/accounts/bnpl"},
		}),
		"BANKING_ACCOUNT_TYPES_PAYMENT_APP_ENABLED": gate("payment_app", map[domain.Layer][]string{
			domain.LayerRepository: {"create_typed_entity", "update_typed_entity", "get_by_type"},
			domain.LayerService:    {"create_account", "update_account"},
			domain.LayerAPI:        {"/api/v1/accounts/payment-app"},
		}),
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/observability"
	"github.com/AstroMined/debtonator/internal/registry"
	"github.com/AstroMined/debtonator/internal/repository"
)

var (
	ErrUnknownFlag         = registry.ErrUnknownFlag
	ErrSystemFlagProtected = errors.New("system flag cannot be deleted")
)

// CreateFlagInput carries the fields accepted by CreateFlag.
type CreateFlagInput struct {
	Name         string
	FlagType     domain.FlagType
	Value        any
	Description  string
	Metadata     map[string]any
	IsSystem     bool
	Requirements map[string]any
}

// UpdateFlagInput carries a partial update. Nil fields are left
// untouched; Value is applied only when HasValue is set.
type UpdateFlagInput struct {
	Name        string
	Value       any
	HasValue    bool
	Description *string
	Metadata    map[string]any
}

// FeatureFlagService orchestrates the persisted flag store and the
// in-memory registry. Every mutating path writes the persisted record
// first and then pushes the change into the registry; the two writes
// are not transactional, so readers may briefly observe the old
// registry value after the persisted write commits.
type FeatureFlagService interface {
	Initialize(ctx context.Context) error
	IsEnabled(ctx context.Context, name string, evalCtx *domain.EvaluationContext) bool
	SetEnabled(ctx context.Context, name string, enabled bool, persist bool) bool
	SetValue(ctx context.Context, name string, value any, persist bool) bool
	CreateFlag(ctx context.Context, in CreateFlagInput) (*domain.FeatureFlag, error)
	UpdateFlag(ctx context.Context, name string, in UpdateFlagInput) (*domain.FeatureFlag, error)
	DeleteFlag(ctx context.Context, name string) (bool, error)
	GetAllFlags(ctx context.Context) ([]domain.FeatureFlag, error)
	GetFlag(ctx context.Context, name string) (*domain.FeatureFlag, error)
	BulkUpdateFlags(ctx context.Context, updates []UpdateFlagInput) ([]domain.FeatureFlag, error)
	GetRequirements(ctx context.Context, name string) (domain.Requirements, error)
	UpdateRequirements(ctx context.Context, name string, requirements map[string]any) error
	DefaultRequirements() map[string]domain.Requirements
}

type featureFlagService struct {
	repo     repository.FeatureFlagRepository
	registry *registry.FlagRegistry
	logger   *slog.Logger
}

func NewFeatureFlagService(repo repository.FeatureFlagRepository, reg *registry.FlagRegistry, logger *slog.Logger) FeatureFlagService {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &featureFlagService{repo: repo, registry: reg, logger: logger}
	reg.AddObserver(svc)
	return svc
}

// Initialize loads every persisted flag into the registry. Names that
// are already registered get their value refreshed instead, so the
// call is idempotent and safe to repeat.
func (s *featureFlagService) Initialize(ctx context.Context) error {
	flags, err := s.repo.List()
	if err != nil {
		return fmt.Errorf("load persisted flags: %w", err)
	}
	for _, flag := range flags {
		value, err := decodeValue(flag.Value)
		if err != nil {
			return fmt.Errorf("decode value of %s: %w", flag.Name, err)
		}
		metadata, err := decodeMetadata(flag.Metadata)
		if err != nil {
			return fmt.Errorf("decode metadata of %s: %w", flag.Name, err)
		}
		regErr := s.registry.Register(registry.RegisterInput{
			Name:        flag.Name,
			Type:        flag.FlagType,
			Value:       value,
			Description: flag.Description,
			Metadata:    metadata,
			IsSystem:    flag.IsSystem,
		})
		if errors.Is(regErr, registry.ErrDuplicateFlag) {
			if err := s.registry.SetValue(flag.Name, value); err != nil {
				return fmt.Errorf("refresh %s: %w", flag.Name, err)
			}
			continue
		}
		if regErr != nil {
			return regErr
		}
	}
	s.logger.InfoContext(ctx, "feature flag registry initialized", "flags", len(flags))
	return nil
}

// IsEnabled evaluates the flag and coerces the result to a boolean.
// Unknown flags log a warning and fail closed instead of erroring.
func (s *featureFlagService) IsEnabled(ctx context.Context, name string, evalCtx *domain.EvaluationContext) bool {
	value, err := s.registry.Value(name, evalCtx)
	if err != nil {
		s.logger.WarnContext(ctx, "evaluated unknown feature flag", "flag", name)
		return false
	}
	enabled, _ := value.(bool)
	observability.RecordFlagEvaluation(name, enabled)
	return enabled
}

// SetEnabled flips a boolean flag. Any other flag type is rejected
// without touching either store.
func (s *featureFlagService) SetEnabled(ctx context.Context, name string, enabled bool, persist bool) bool {
	flag, ok := s.registry.Get(name)
	if !ok {
		s.logger.WarnContext(ctx, "set_enabled on unknown flag", "flag", name)
		return false
	}
	if flag.Type != domain.FlagTypeBoolean {
		s.logger.WarnContext(ctx, "set_enabled on non-boolean flag", "flag", name, "type", string(flag.Type))
		return false
	}
	return s.applyValue(ctx, name, enabled, persist)
}

// SetValue validates the value's shape against the flag's declared
// type, then applies it. Shape mismatches are rejected before any
// write.
func (s *featureFlagService) SetValue(ctx context.Context, name string, value any, persist bool) bool {
	flag, ok := s.registry.Get(name)
	if !ok {
		s.logger.WarnContext(ctx, "set_value on unknown flag", "flag", name)
		return false
	}
	if err := domain.ValidateValue(name, flag.Type, value); err != nil {
		s.logger.WarnContext(ctx, "rejected flag value", "flag", name, "error", err)
		return false
	}
	return s.applyValue(ctx, name, value, persist)
}

// applyValue performs the dual write: persisted record first, then the
// registry. When the registry push fails after a successful persist
// the two stores diverge until the next Initialize; the error is
// logged and the call reports failure.
func (s *featureFlagService) applyValue(ctx context.Context, name string, value any, persist bool) bool {
	if persist {
		persisted, err := s.repo.FindByName(name)
		if err != nil {
			s.logger.ErrorContext(ctx, "load flag for persist", "flag", name, "error", err)
			return false
		}
		encoded, err := encodeValue(value)
		if err != nil {
			s.logger.ErrorContext(ctx, "encode flag value", "flag", name, "error", err)
			return false
		}
		persisted.Value = encoded
		if err := s.repo.Update(persisted); err != nil {
			s.logger.ErrorContext(ctx, "persist flag value", "flag", name, "error", err)
			return false
		}
	}
	if err := s.registry.SetValue(name, value); err != nil {
		s.logger.ErrorContext(ctx, "registry update after persist", "flag", name, "error", err)
		return false
	}
	return true
}

// CreateFlag writes the persisted record first, then registers it.
func (s *featureFlagService) CreateFlag(ctx context.Context, in CreateFlagInput) (*domain.FeatureFlag, error) {
	if err := domain.ValidateValue(in.Name, in.FlagType, in.Value); err != nil {
		return nil, err
	}
	value, err := encodeValue(in.Value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	flag := &domain.FeatureFlag{
		ID:          uuid.NewString(),
		Name:        in.Name,
		FlagType:    in.FlagType,
		Value:       value,
		Description: in.Description,
		IsSystem:    in.IsSystem,
	}
	if in.Metadata != nil {
		encoded, err := encodeValue(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		flag.Metadata = encoded
	}
	if in.Requirements != nil {
		encoded, err := encodeValue(in.Requirements)
		if err != nil {
			return nil, fmt.Errorf("encode requirements: %w", err)
		}
		if _, err := domain.ParseRequirements(encoded); err != nil {
			return nil, err
		}
		flag.Requirements = encoded
	}
	if err := s.repo.Create(flag); err != nil {
		return nil, err
	}
	regErr := s.registry.Register(registry.RegisterInput{
		Name:        in.Name,
		Type:        in.FlagType,
		Value:       in.Value,
		Description: in.Description,
		Metadata:    in.Metadata,
		IsSystem:    in.IsSystem,
	})
	if regErr != nil {
		s.logger.ErrorContext(ctx, "register after persist", "flag", in.Name, "error", regErr)
		return nil, regErr
	}
	return flag, nil
}

// UpdateFlag requires the flag to already be registered. The persisted
// update happens first; a supplied value is then pushed into the
// registry.
func (s *featureFlagService) UpdateFlag(ctx context.Context, name string, in UpdateFlagInput) (*domain.FeatureFlag, error) {
	regFlag, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	persisted, err := s.repo.FindByName(name)
	if err != nil {
		return nil, err
	}
	if in.HasValue {
		if err := domain.ValidateValue(name, regFlag.Type, in.Value); err != nil {
			return nil, err
		}
		encoded, err := encodeValue(in.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		persisted.Value = encoded
	}
	if in.Description != nil {
		persisted.Description = *in.Description
	}
	if in.Metadata != nil {
		encoded, err := encodeValue(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		persisted.Metadata = encoded
	}
	if err := s.repo.Update(persisted); err != nil {
		return nil, err
	}
	if in.HasValue {
		if err := s.registry.SetValue(name, in.Value); err != nil {
			s.logger.ErrorContext(ctx, "registry update after persist", "flag", name, "error", err)
			return nil, err
		}
	}
	return persisted, nil
}

// DeleteFlag removes the persisted record only. The registry keeps no
// delete primitive, so the in-memory entry goes stale until the next
// process start; callers listing flags read through the store and do
// not see the orphan.
func (s *featureFlagService) DeleteFlag(ctx context.Context, name string) (bool, error) {
	persisted, err := s.repo.FindByName(name)
	if err != nil {
		if errors.Is(err, repository.ErrFeatureFlagNotFound) {
			return false, nil
		}
		return false, err
	}
	if persisted.IsSystem {
		s.logger.WarnContext(ctx, "refused delete of system flag", "flag", name)
		return false, ErrSystemFlagProtected
	}
	if err := s.repo.Delete(name); err != nil {
		return false, err
	}
	return true, nil
}

func (s *featureFlagService) GetAllFlags(context.Context) ([]domain.FeatureFlag, error) {
	return s.repo.List()
}

func (s *featureFlagService) GetFlag(_ context.Context, name string) (*domain.FeatureFlag, error) {
	return s.repo.FindByName(name)
}

// BulkUpdateFlags applies several partial updates; each one goes
// through the same persist-then-registry path as UpdateFlag.
func (s *featureFlagService) BulkUpdateFlags(ctx context.Context, updates []UpdateFlagInput) ([]domain.FeatureFlag, error) {
	out := make([]domain.FeatureFlag, 0, len(updates))
	for _, in := range updates {
		updated, err := s.UpdateFlag(ctx, in.Name, in)
		if err != nil {
			return nil, fmt.Errorf("bulk update %s: %w", in.Name, err)
		}
		out = append(out, *updated)
	}
	return out, nil
}

func (s *featureFlagService) GetRequirements(_ context.Context, name string) (domain.Requirements, error) {
	raw, err := s.repo.GetRequirements(name)
	if err != nil {
		return nil, err
	}
	return domain.ParseRequirements(raw)
}

func (s *featureFlagService) UpdateRequirements(_ context.Context, name string, requirements map[string]any) error {
	encoded, err := encodeValue(requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	if _, err := domain.ParseRequirements(encoded); err != nil {
		return &domain.InvalidValueError{Name: name, Reason: err.Error()}
	}
	return s.repo.UpdateRequirements(name, encoded)
}

func (s *featureFlagService) DefaultRequirements() map[string]domain.Requirements {
	return DefaultRequirements()
}

// OnFlagChanged makes the service a registry observer. It only logs
// the transition: persistence has already happened on the mutating
// path that triggered the registry change.
func (s *featureFlagService) OnFlagChanged(name string, oldValue, newValue any) {
	s.logger.Info("feature flag changed", "flag", name, "old_value", oldValue, "new_value", newValue)
}

func decodeValue(raw datatypes.JSON) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func decodeMetadata(raw datatypes.JSON) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func encodeValue(value any) (datatypes.JSON, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
